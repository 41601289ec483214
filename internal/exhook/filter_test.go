package exhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnMessagePublishAllowsListedUser(t *testing.T) {
	f := NewFilter([]string{"bridger"})

	verdict, out := f.OnMessagePublish(Message{
		Node: "n1", ID: 1, QoS: 0, Topic: "t", Payload: []byte("x"),
		Timestamp: 1234, From: "bridger",
		Headers: map[string]string{"username": "bridger"},
	})

	assert.Equal(t, VerdictStopAndReturn, verdict)
	assert.Equal(t, "true", out.Headers["allow_publish"])
	assert.Equal(t, "n1", out.Node)
	assert.Equal(t, uint64(1), out.ID)
	assert.Equal(t, "t", out.Topic)
	assert.Equal(t, []byte("x"), out.Payload)
	assert.Equal(t, int64(1234), out.Timestamp)
	assert.Equal(t, "bridger", out.From)
}

func TestOnMessagePublishBlocksUnlistedUser(t *testing.T) {
	f := NewFilter([]string{"bridger"})

	verdict, out := f.OnMessagePublish(Message{
		Headers: map[string]string{"username": "intruder"},
	})

	assert.Equal(t, VerdictStopAndReturn, verdict)
	assert.Equal(t, "false", out.Headers["allow_publish"])
}

func TestOnMessagePublishPreservesOtherHeaders(t *testing.T) {
	f := NewFilter([]string{"bridger"})

	_, out := f.OnMessagePublish(Message{
		Headers: map[string]string{"username": "bridger", "custom": "kept"},
	})

	assert.Equal(t, "kept", out.Headers["custom"])
}
