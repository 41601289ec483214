// Package meshpb decodes and encodes the Meshtastic wire messages this
// bridge needs (ServiceEnvelope, MeshPacket, Data, and the payload types
// carried by Data) directly against the protobuf wire format, without
// generated message code.
package meshpb

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// visitFunc is called once per top-level field decoded from a message. val
// is a uint64 for varint fields, uint32 for fixed32, uint64 for fixed64, or
// []byte for length-delimited fields.
type visitFunc func(num protowire.Number, typ protowire.Type, val any) error

// decodeMessage walks b's top-level fields in wire order, invoking visit for
// each one, and reports any malformed field encoding.
func decodeMessage(b []byte, visit visitFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var val any
		var size int
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			val, size = v, m
		case protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			val, size = v, m
		case protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			val, size = v, m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			val, size = v, m
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			size = m
		}

		if val != nil {
			if err := visit(num, typ, val); err != nil {
				return err
			}
		}
		b = b[size:]
	}
	return nil
}

func asUint64(v any) uint64 {
	switch t := v.(type) {
	case uint64:
		return t
	case uint32:
		return uint64(t)
	}
	return 0
}

func asUint32(v any) uint32 {
	switch t := v.(type) {
	case uint32:
		return t
	case uint64:
		return uint32(t)
	}
	return 0
}

func asInt32(v any) int32 {
	return int32(asUint64(v))
}

func asInt64(v any) int64 {
	return int64(asUint64(v))
}

func asBool(v any) bool {
	return asUint64(v) != 0
}

func asFloat32(v any) float32 {
	return math.Float32frombits(asUint32(v))
}

func asBytes(v any) []byte {
	b, _ := v.([]byte)
	return b
}

func asString(v any) string {
	return string(asBytes(v))
}
