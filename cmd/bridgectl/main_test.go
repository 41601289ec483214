package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExistingEnvKeysReportsPresentNames(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EMQX_API_KEY=\"x\"\nOTHER=1\n"), 0o600))

	present, ok := existingEnvKeys(envFile)
	require.True(t, ok)
	assert.Equal(t, []string{"EMQX_API_KEY"}, present)
}

func TestExistingEnvKeysMissingFile(t *testing.T) {
	present, ok := existingEnvKeys(filepath.Join(t.TempDir(), "nope.env"))
	assert.False(t, ok)
	assert.Nil(t, present)
}

func TestRandomTokenLengthAndPrefix(t *testing.T) {
	tok, err := randomToken("bridger-", 8)
	require.NoError(t, err)
	assert.True(t, len(tok) == len("bridger-")+16)
	assert.Equal(t, "bridger-", tok[:len("bridger-")])
}

func TestParseTimeStringUnixTimestamp(t *testing.T) {
	ts, err := parseTimeString("1640995200")
	require.NoError(t, err)
	assert.Equal(t, int64(1640995200), ts)
}

func TestParseTimeStringISO(t *testing.T) {
	ts, err := parseTimeString("2022-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1640995200), ts)

	// No timezone means UTC.
	ts, err = parseTimeString("2022-01-01T00:00:00")
	require.NoError(t, err)
	assert.Equal(t, int64(1640995200), ts)
}

func TestParseTimeStringDateOnly(t *testing.T) {
	ts, err := parseTimeString("2022-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1640995200), ts)
}

func TestParseTimeStringRelative(t *testing.T) {
	before := time.Now().Unix()
	ts, err := parseTimeString("+1h")
	require.NoError(t, err)
	after := time.Now().Unix()

	assert.GreaterOrEqual(t, ts, before+3600)
	assert.LessOrEqual(t, ts, after+3600)
}

func TestParseTimeStringRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "soon", "2022-13-99", "+1y"} {
		_, err := parseTimeString(s)
		assert.Error(t, err, s)
	}
}

func TestRandomTokenUniqueAcrossCalls(t *testing.T) {
	a, err := randomToken("", 32)
	require.NoError(t, err)
	b, err := randomToken("", 32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
