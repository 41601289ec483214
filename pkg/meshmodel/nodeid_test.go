package meshmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeIDRoundTrip(t *testing.T) {
	ids := []uint32{0, 1, 0xCAFEBABE, 0xFFFFFFFF, 0x042524447}
	for _, id := range ids {
		withBang := HexWithBang(id)
		withoutBang := HexWithoutBang(id)

		assert.Len(t, withoutBang, 8)
		assert.Equal(t, "!"+withoutBang, withBang)

		got, err := ParseNodeID(withBang)
		require.NoError(t, err)
		assert.Equal(t, id, got)

		got, err = ParseNodeID(withoutBang)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestParseNodeIDRejectsBadLength(t *testing.T) {
	_, err := ParseNodeID("!cafe")
	assert.Error(t, err)

	_, err = ParseNodeID("cafebabef")
	assert.Error(t, err)
}

func TestParseNodeIDRejectsNonHex(t *testing.T) {
	_, err := ParseNodeID("zzzzzzzz")
	assert.Error(t, err)
}

func TestColorIsLast6Hex(t *testing.T) {
	assert.Equal(t, "cafebabe"[2:], Color(0xCAFEBABE))
}
