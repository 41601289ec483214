package handlers

import (
	"fmt"

	"github.com/austinmesh/bridger/pkg/meshmodel"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

// HandleNeighborInfo expands one NeighborInfo payload into one point per
// neighbor entry. Returns nil (no error) when the list is empty.
func HandleNeighborInfo(header meshmodel.Header, payload []byte, _ Options) ([]meshmodel.Point, error) {
	ni, err := meshpb.UnmarshalNeighborInfo(payload)
	if err != nil {
		return nil, fmt.Errorf("handlers: decode NeighborInfo payload: %w", err)
	}
	if len(ni.Neighbors) == 0 {
		return nil, nil
	}

	points := make([]meshmodel.Point, 0, len(ni.Neighbors))
	for _, n := range ni.Neighbors {
		points = append(points, meshmodel.NeighborInfoPoint{
			Header:                    header,
			NodeID:                    meshmodel.HexWithoutBang(ni.NodeID),
			LastSentByID:              meshmodel.HexWithoutBang(ni.LastSentByID),
			NeighborID:                meshmodel.HexWithoutBang(n.NodeID),
			SNR:                       n.SNR,
			NodeBroadcastIntervalSecs: broadcastInterval(n, ni),
		})
	}
	return points, nil
}

// broadcastInterval prefers the per-neighbor value when the wire message
// carries one, falling back to the envelope-level interval.
func broadcastInterval(n meshpb.Neighbor, ni *meshpb.NeighborInfo) *uint32 {
	if n.NodeBroadcastIntervalSecs != nil {
		return n.NodeBroadcastIntervalSecs
	}
	if ni.NodeBroadcastIntervalSecs != 0 {
		v := ni.NodeBroadcastIntervalSecs
		return &v
	}
	return nil
}
