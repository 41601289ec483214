package meshpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// User is the NODEINFO_APP payload.
type User struct {
	ID        string
	LongName  string
	ShortName string
	HwModel   int32
	Role      int32
}

func UnmarshalUser(b []byte) (*User, error) {
	u := &User{}
	err := decodeMessage(b, func(num protowire.Number, typ protowire.Type, val any) error {
		switch num {
		case 1:
			u.ID = asString(val)
		case 2:
			u.LongName = asString(val)
		case 3:
			u.ShortName = asString(val)
		case 5:
			u.HwModel = asInt32(val)
		case 7:
			u.Role = asInt32(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meshpb: decode User: %w", err)
	}
	return u, nil
}

func (u *User) Marshal() []byte {
	var b []byte
	if u.ID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, u.ID)
	}
	if u.LongName != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, u.LongName)
	}
	if u.ShortName != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, u.ShortName)
	}
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(u.HwModel))
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(u.Role))
	return b
}

// Position is the POSITION_APP payload. Pointer fields are nil when the
// wire message omits the corresponding field, which the Position handler
// relies on for gating (see internal/handlers).
type Position struct {
	LatitudeI     *int32
	LongitudeI    *int32
	Altitude      *int32
	Time          *int64
	PDOP          *uint32
	SatsInView    *uint32
	PrecisionBits *uint32
}

func UnmarshalPosition(b []byte) (*Position, error) {
	p := &Position{}
	err := decodeMessage(b, func(num protowire.Number, typ protowire.Type, val any) error {
		switch num {
		case 1:
			v := asInt32(val)
			p.LatitudeI = &v
		case 2:
			v := asInt32(val)
			p.LongitudeI = &v
		case 3:
			v := asInt32(val)
			p.Altitude = &v
		case 4:
			v := asInt64(val)
			p.Time = &v
		case 11:
			v := asUint32(val)
			p.PDOP = &v
		case 19:
			v := asUint32(val)
			p.SatsInView = &v
		case 23:
			v := asUint32(val)
			p.PrecisionBits = &v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meshpb: decode Position: %w", err)
	}
	return p, nil
}

// EnvironmentMetrics is one of Telemetry's sub-variants.
type EnvironmentMetrics struct {
	Temperature        *float32
	RelativeHumidity   *float32
	BarometricPressure *float32
	GasResistance      *float32
	Voltage            *float32
	Current            *float32
	IAQ                *uint32
	// ChannelUtilization has no upstream field number in Meshtastic's
	// telemetry.proto EnvironmentMetrics (it's a DeviceMetrics-only concept
	// there); this bridge carries it at field 18 in its own wire codec so the
	// sensor measurement can record it when a device reports one.
	ChannelUtilization *float32
}

// DeviceMetrics is one of Telemetry's sub-variants.
type DeviceMetrics struct {
	BatteryLevel       *uint32
	Voltage            *float32
	ChannelUtilization *float32
	AirUtilTx          *float32
	UptimeSeconds      *uint32
}

// PowerMetrics is one of Telemetry's sub-variants: up to three channels of
// voltage/current pairs.
type PowerMetrics struct {
	Ch1Voltage *float32
	Ch1Current *float32
	Ch2Voltage *float32
	Ch2Current *float32
	Ch3Voltage *float32
	Ch3Current *float32
}

// Telemetry wraps exactly one populated sub-variant, matching the oneof in
// the wire format.
type Telemetry struct {
	Time               uint32
	EnvironmentMetrics *EnvironmentMetrics
	DeviceMetrics      *DeviceMetrics
	PowerMetrics       *PowerMetrics
}

func UnmarshalTelemetry(b []byte) (*Telemetry, error) {
	t := &Telemetry{}
	var envBytes, devBytes, pwrBytes []byte

	err := decodeMessage(b, func(num protowire.Number, typ protowire.Type, val any) error {
		switch num {
		case 1:
			t.Time = asUint32(val)
		case 2:
			devBytes = asBytes(val)
		case 3:
			envBytes = asBytes(val)
		case 5:
			pwrBytes = asBytes(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meshpb: decode Telemetry: %w", err)
	}

	if devBytes != nil {
		dm := &DeviceMetrics{}
		err := decodeMessage(devBytes, func(num protowire.Number, typ protowire.Type, val any) error {
			switch num {
			case 1:
				v := asUint32(val)
				dm.BatteryLevel = &v
			case 2:
				v := asFloat32(val)
				dm.Voltage = &v
			case 3:
				v := asFloat32(val)
				dm.ChannelUtilization = &v
			case 4:
				v := asFloat32(val)
				dm.AirUtilTx = &v
			case 5:
				v := asUint32(val)
				dm.UptimeSeconds = &v
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("meshpb: decode DeviceMetrics: %w", err)
		}
		t.DeviceMetrics = dm
	}

	if envBytes != nil {
		em := &EnvironmentMetrics{}
		err := decodeMessage(envBytes, func(num protowire.Number, typ protowire.Type, val any) error {
			switch num {
			case 1:
				v := asFloat32(val)
				em.Temperature = &v
			case 2:
				v := asFloat32(val)
				em.RelativeHumidity = &v
			case 3:
				v := asFloat32(val)
				em.BarometricPressure = &v
			case 4:
				v := asFloat32(val)
				em.GasResistance = &v
			case 5:
				v := asFloat32(val)
				em.Voltage = &v
			case 6:
				v := asFloat32(val)
				em.Current = &v
			case 7:
				v := asUint32(val)
				em.IAQ = &v
			case 18:
				v := asFloat32(val)
				em.ChannelUtilization = &v
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("meshpb: decode EnvironmentMetrics: %w", err)
		}
		t.EnvironmentMetrics = em
	}

	if pwrBytes != nil {
		pm := &PowerMetrics{}
		err := decodeMessage(pwrBytes, func(num protowire.Number, typ protowire.Type, val any) error {
			switch num {
			case 1:
				v := asFloat32(val)
				pm.Ch1Voltage = &v
			case 2:
				v := asFloat32(val)
				pm.Ch1Current = &v
			case 3:
				v := asFloat32(val)
				pm.Ch2Voltage = &v
			case 4:
				v := asFloat32(val)
				pm.Ch2Current = &v
			case 5:
				v := asFloat32(val)
				pm.Ch3Voltage = &v
			case 6:
				v := asFloat32(val)
				pm.Ch3Current = &v
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("meshpb: decode PowerMetrics: %w", err)
		}
		t.PowerMetrics = pm
	}

	return t, nil
}

// Neighbor is one entry of a NeighborInfo payload.
type Neighbor struct {
	NodeID                    uint32
	SNR                       *float32
	NodeBroadcastIntervalSecs *uint32
}

// NeighborInfo is the NEIGHBORINFO_APP payload.
type NeighborInfo struct {
	NodeID                    uint32
	LastSentByID              uint32
	NodeBroadcastIntervalSecs uint32
	Neighbors                 []Neighbor
}

func UnmarshalNeighborInfo(b []byte) (*NeighborInfo, error) {
	ni := &NeighborInfo{}
	err := decodeMessage(b, func(num protowire.Number, typ protowire.Type, val any) error {
		switch num {
		case 1:
			ni.NodeID = asUint32(val)
		case 2:
			ni.LastSentByID = asUint32(val)
		case 3:
			ni.NodeBroadcastIntervalSecs = asUint32(val)
		case 4:
			nb := Neighbor{}
			err := decodeMessage(asBytes(val), func(num protowire.Number, typ protowire.Type, val any) error {
				switch num {
				case 1:
					nb.NodeID = asUint32(val)
				case 2:
					v := asFloat32(val)
					nb.SNR = &v
				case 4:
					v := asUint32(val)
					nb.NodeBroadcastIntervalSecs = &v
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode Neighbor: %w", err)
			}
			ni.Neighbors = append(ni.Neighbors, nb)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meshpb: decode NeighborInfo: %w", err)
	}
	return ni, nil
}

// RouteDiscovery is the TRACEROUTE_APP payload.
type RouteDiscovery struct {
	Route      []uint32
	SNRTowards []int32
	RouteBack  []uint32
	SNRBack    []int32
}

// unpackVarints decodes a packed-repeated varint field (the wire form proto3
// uses for repeated scalar fields like RouteDiscovery.route).
func unpackVarints(b []byte) []uint64 {
	var out []uint64
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			break
		}
		out = append(out, v)
		b = b[n:]
	}
	return out
}

func UnmarshalRouteDiscovery(b []byte) (*RouteDiscovery, error) {
	rd := &RouteDiscovery{}
	err := decodeMessage(b, func(num protowire.Number, typ protowire.Type, val any) error {
		switch num {
		case 1:
			rd.Route = append(rd.Route, packedOrSingleUint32(typ, val)...)
		case 2:
			rd.SNRTowards = append(rd.SNRTowards, packedOrSingleInt32(typ, val)...)
		case 3:
			rd.RouteBack = append(rd.RouteBack, packedOrSingleUint32(typ, val)...)
		case 4:
			rd.SNRBack = append(rd.SNRBack, packedOrSingleInt32(typ, val)...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("meshpb: decode RouteDiscovery: %w", err)
	}
	return rd, nil
}

// packedOrSingleUint32 handles repeated fixed32 node ids encoded either as a
// packed length-delimited field (the common proto3 case) or, defensively,
// as a lone varint.
func packedOrSingleUint32(typ protowire.Type, val any) []uint32 {
	if typ == protowire.BytesType {
		vs := unpackVarints(asBytes(val))
		out := make([]uint32, len(vs))
		for i, v := range vs {
			out[i] = uint32(v)
		}
		return out
	}
	return []uint32{asUint32(val)}
}

func packedOrSingleInt32(typ protowire.Type, val any) []int32 {
	if typ == protowire.BytesType {
		vs := unpackVarints(asBytes(val))
		out := make([]int32, len(vs))
		for i, v := range vs {
			out[i] = int32(v)
		}
		return out
	}
	return []int32{asInt32(val)}
}
