package meshpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Data is the decoded (plaintext) inner payload of a MeshPacket, multiplexed
// by PortNum.
type Data struct {
	PortNum PortNum
	Payload []byte
}

// MeshPacket is the inner radio packet carried by a ServiceEnvelope. Exactly
// one of Decoded or Encrypted is populated, matching the wire format's oneof.
type MeshPacket struct {
	From      uint32
	To        uint32
	Channel   uint32
	Decoded   *Data
	Encrypted []byte
	ID        uint32
	RxTime    uint32
	RxSNR     float32
	RxRSSI    int32
	HopLimit  uint32
	HopStart  uint32
}

// UnmarshalMeshPacket performs a strict protobuf parse.
func UnmarshalMeshPacket(b []byte) (*MeshPacket, error) {
	pkt := &MeshPacket{}
	var decodedBytes []byte

	err := decodeMessage(b, func(num protowire.Number, typ protowire.Type, val any) error {
		switch num {
		case 1:
			pkt.From = asUint32(val)
		case 2:
			pkt.To = asUint32(val)
		case 3:
			pkt.Channel = asUint32(val)
		case 4:
			decodedBytes = asBytes(val)
		case 5:
			pkt.Encrypted = asBytes(val)
		case 6:
			pkt.ID = asUint32(val)
		case 7:
			pkt.RxTime = asUint32(val)
		case 8:
			pkt.RxSNR = asFloat32(val)
		case 9:
			pkt.HopLimit = asUint32(val)
		case 12:
			pkt.RxRSSI = asInt32(val)
		case 15:
			pkt.HopStart = asUint32(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meshpb: decode MeshPacket: %w", err)
	}

	if decodedBytes != nil {
		data, err := UnmarshalData(decodedBytes)
		if err != nil {
			return nil, fmt.Errorf("meshpb: decode embedded Data: %w", err)
		}
		pkt.Decoded = data
	}
	return pkt, nil
}

// UnmarshalData parses the inner Data message, either found plaintext in a
// MeshPacket or recovered after AES-CTR decryption.
func UnmarshalData(b []byte) (*Data, error) {
	d := &Data{}
	err := decodeMessage(b, func(num protowire.Number, typ protowire.Type, val any) error {
		switch num {
		case 1:
			d.PortNum = PortNum(asUint64(val))
		case 2:
			d.Payload = asBytes(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meshpb: decode Data: %w", err)
	}
	return d, nil
}

// Marshal re-encodes the Data message (used when building outgoing packets).
func (d *Data) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.PortNum))
	if len(d.Payload) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Payload)
	}
	return b
}

// Marshal re-encodes the MeshPacket (used when building outgoing packets).
func (p *MeshPacket) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, p.From)
	b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, p.To)
	if p.Channel != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Channel))
	}
	if p.Decoded != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Decoded.Marshal())
	}
	if len(p.Encrypted) > 0 {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Encrypted)
	}
	b = protowire.AppendTag(b, 6, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, p.ID)
	return b
}
