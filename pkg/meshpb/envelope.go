package meshpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ServiceEnvelope is the outer wrapper a gateway publishes to the broker:
// a MeshPacket plus the channel and gateway it was received on.
type ServiceEnvelope struct {
	Packet    *MeshPacket
	ChannelID string
	GatewayID string
}

// UnmarshalServiceEnvelope performs a strict protobuf parse of the MQTT
// publish payload.
func UnmarshalServiceEnvelope(b []byte) (*ServiceEnvelope, error) {
	env := &ServiceEnvelope{}
	var packetBytes []byte

	err := decodeMessage(b, func(num protowire.Number, typ protowire.Type, val any) error {
		switch num {
		case 1:
			packetBytes = asBytes(val)
		case 2:
			env.ChannelID = asString(val)
		case 3:
			env.GatewayID = asString(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meshpb: decode ServiceEnvelope: %w", err)
	}

	if packetBytes != nil {
		pkt, err := UnmarshalMeshPacket(packetBytes)
		if err != nil {
			return nil, fmt.Errorf("meshpb: decode embedded MeshPacket: %w", err)
		}
		env.Packet = pkt
	}
	return env, nil
}

// Marshal re-encodes the envelope, used by the virtual node agent to publish
// beacons and replies.
func (e *ServiceEnvelope) Marshal() []byte {
	var b []byte
	if e.Packet != nil {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Packet.Marshal())
	}
	if e.ChannelID != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, e.ChannelID)
	}
	if e.GatewayID != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, e.GatewayID)
	}
	return b
}
