package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/austinmesh/bridger/pkg/meshmodel"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

// HandleTraceroute emits one TraceroutePoint. route/route_back are wire
// lists but scalar fields in the point model; each is rendered as a
// comma-separated hex node-id list, and snr lists as comma-separated
// decimal dB/4 values.
func HandleTraceroute(header meshmodel.Header, payload []byte, _ Options) ([]meshmodel.Point, error) {
	rd, err := meshpb.UnmarshalRouteDiscovery(payload)
	if err != nil {
		return nil, fmt.Errorf("handlers: decode RouteDiscovery payload: %w", err)
	}

	point := meshmodel.TraceroutePoint{
		Header:     header,
		Route:      joinHex(rd.Route),
		SNRTowards: joinInt(rd.SNRTowards),
		RouteBack:  joinHex(rd.RouteBack),
		SNRBack:    joinInt(rd.SNRBack),
	}
	return []meshmodel.Point{point}, nil
}

func joinHex(ids []uint32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = meshmodel.HexWithoutBang(id)
	}
	return strings.Join(parts, ",")
}

func joinInt(vs []int32) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ",")
}
