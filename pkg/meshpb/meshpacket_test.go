package meshpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeshPacketRoundTrip(t *testing.T) {
	pkt := &MeshPacket{
		From: 0xCAFEBABE,
		To:   0xFFFFFFFF,
		ID:   12345,
		Decoded: &Data{
			PortNum: PortTextMessage,
			Payload: []byte("hello mesh"),
		},
	}

	encoded := pkt.Marshal()
	decoded, err := UnmarshalMeshPacket(encoded)
	require.NoError(t, err)

	assert.Equal(t, pkt.From, decoded.From)
	assert.Equal(t, pkt.To, decoded.To)
	assert.Equal(t, pkt.ID, decoded.ID)
	require.NotNil(t, decoded.Decoded)
	assert.Equal(t, PortTextMessage, decoded.Decoded.PortNum)
	assert.Equal(t, []byte("hello mesh"), decoded.Decoded.Payload)
}

func TestServiceEnvelopeRoundTrip(t *testing.T) {
	env := &ServiceEnvelope{
		Packet: &MeshPacket{
			From: 1,
			To:   2,
			ID:   3,
		},
		ChannelID: "LongFast",
		GatewayID: "!00000001",
	}

	encoded := env.Marshal()
	decoded, err := UnmarshalServiceEnvelope(encoded)
	require.NoError(t, err)

	assert.Equal(t, env.ChannelID, decoded.ChannelID)
	assert.Equal(t, env.GatewayID, decoded.GatewayID)
	require.NotNil(t, decoded.Packet)
	assert.Equal(t, uint32(1), decoded.Packet.From)
	assert.Equal(t, uint32(2), decoded.Packet.To)
	assert.Equal(t, uint32(3), decoded.Packet.ID)
}

func TestUnmarshalServiceEnvelopeRejectsGarbage(t *testing.T) {
	_, err := UnmarshalServiceEnvelope([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
