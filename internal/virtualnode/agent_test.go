package virtualnode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austinmesh/bridger/internal/mqtt"
	"github.com/austinmesh/bridger/pkg/meshmodel"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

func testAgent(t *testing.T) *Agent {
	t.Helper()
	client, err := mqtt.NewClient(mqtt.Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, err)

	a, err := New(client, Config{
		NodeID:            0x42524447,
		ShortName:         "BRDG",
		LongName:          "Bridger",
		HwModel:           255,
		Role:              3,
		Channel:           "LongFast",
		BroadcastInterval: 2 * time.Hour,
		BaseTopic:         "egr/home/2/e/#",
	})
	require.NoError(t, err)
	return a
}

func TestShouldIgnoreNotAddressedToSelf(t *testing.T) {
	a := testAgent(t)

	assert.True(t, a.shouldIgnore(&meshpb.MeshPacket{From: 1, To: 0xdeadbeef}))
	assert.False(t, a.shouldIgnore(&meshpb.MeshPacket{From: 1, To: a.cfg.NodeID}))
	assert.False(t, a.shouldIgnore(&meshpb.MeshPacket{From: 1, To: meshmodel.BroadcastNodeID}))
}

func TestShouldIgnoreOwnPackets(t *testing.T) {
	a := testAgent(t)

	assert.True(t, a.shouldIgnore(&meshpb.MeshPacket{From: a.cfg.NodeID, To: meshmodel.BroadcastNodeID}))
}

func TestBuildEnvelopeUsesConfiguredChannelAndGateway(t *testing.T) {
	a := testAgent(t)
	a.nowFunc = func() time.Time { return time.Unix(1700000000, 0) }

	env := a.buildEnvelope(meshmodel.BroadcastNodeID, meshpb.PortNodeInfo, []byte("payload"))

	assert.Equal(t, "LongFast", env.ChannelID)
	assert.Equal(t, "!42524447", env.GatewayID)
	assert.Equal(t, a.cfg.NodeID, env.Packet.From)
	assert.Equal(t, uint32(meshmodel.BroadcastNodeID), env.Packet.To)
	assert.Equal(t, meshpb.PortNodeInfo, env.Packet.Decoded.PortNum)
}

func TestPublishTopicUnderNodeHex(t *testing.T) {
	a := testAgent(t)
	assert.Equal(t, "egr/home/2/e/LongFast/!42524447", a.publishTopic)
}
