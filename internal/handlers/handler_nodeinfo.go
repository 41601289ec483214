package handlers

import (
	"fmt"

	"github.com/austinmesh/bridger/pkg/meshmodel"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

// HandleNodeInfo always emits exactly one NodeInfoPoint.
func HandleNodeInfo(header meshmodel.Header, payload []byte, _ Options) ([]meshmodel.Point, error) {
	user, err := meshpb.UnmarshalUser(payload)
	if err != nil {
		return nil, fmt.Errorf("handlers: decode NodeInfo payload: %w", err)
	}

	point := meshmodel.NodeInfoPoint{
		Header:    header,
		LongName:  user.LongName,
		ShortName: user.ShortName,
		HwModel:   user.HwModel,
		Role:      user.Role,
		ID:        user.ID,
	}
	return []meshmodel.Point{point}, nil
}
