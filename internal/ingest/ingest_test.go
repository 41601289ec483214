package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austinmesh/bridger/internal/dedup"
	"github.com/austinmesh/bridger/internal/handlers"
	"github.com/austinmesh/bridger/internal/mqtt"
	"github.com/austinmesh/bridger/internal/writer"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

func testLoop(t *testing.T) *Loop {
	t.Helper()
	client, err := mqtt.NewClient(mqtt.Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)

	return New(client, Config{
		BaseTopic: "egr/home/2/e/#",
		Registry:  handlers.NewRegistry(),
		Dedup:     dedup.New(10, false),
		Writer:    writer.New("http://localhost:9999", "unused", "unused", "unused", "unused", "s"),
	})
}

// emptyPositionEnvelope decodes to zero points (a coordinate-less
// Position emits nothing), letting onMessage reach MarkProcessed without
// ever calling the writer.
func emptyPositionEnvelope(packetID uint32) *meshpb.ServiceEnvelope {
	return &meshpb.ServiceEnvelope{
		ChannelID: "LongFast",
		GatewayID: "!00000001",
		Packet: &meshpb.MeshPacket{
			From: 0x2a,
			To:   0xFFFFFFFF,
			ID:   packetID,
			Decoded: &meshpb.Data{
				PortNum: meshpb.PortPosition,
				Payload: nil,
			},
		},
	}
}

func TestOnMessageDropsPKISubtopic(t *testing.T) {
	l := testLoop(t)
	env := emptyPositionEnvelope(1)

	l.onMessage("egr/home/2/e/PKI/!00000001", env.Marshal())

	assert.False(t, l.dedup.IsDuplicate(env))
}

func TestOnMessageMarksDuplicatesAfterFirstDelivery(t *testing.T) {
	l := testLoop(t)
	env := emptyPositionEnvelope(42)
	payload := env.Marshal()

	l.onMessage("egr/home/2/e/LongFast/!00000001", payload)
	assert.True(t, l.dedup.IsDuplicate(env))

	// A second delivery of the identical packet must not re-dispatch; the
	// dedup entry should still be exactly one.
	l.onMessage("egr/home/2/e/LongFast/!00000001", payload)
	assert.Equal(t, 1, l.dedup.Len())
}

func TestOnMessageIgnoresUndecodablePayload(t *testing.T) {
	l := testLoop(t)
	assert.NotPanics(t, func() {
		l.onMessage("egr/home/2/e/LongFast/!00000001", []byte("not a protobuf envelope"))
	})
}

func TestStateTransitionsThroughRun(t *testing.T) {
	l := testLoop(t)
	assert.Equal(t, StateDisconnected, l.State())
	assert.Equal(t, "DISCONNECTED", l.State().String())
}
