package handlers

import (
	"fmt"

	"github.com/austinmesh/bridger/pkg/meshmodel"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

// HandlePosition emits a PositionPoint only when both latitude_i and
// longitude_i are present, unless opts.ForceDecode is set. A payload "time"
// field is carried as GPSTime to avoid colliding with the store's own
// record timestamp.
func HandlePosition(header meshmodel.Header, payload []byte, opts Options) ([]meshmodel.Point, error) {
	pos, err := meshpb.UnmarshalPosition(payload)
	if err != nil {
		return nil, fmt.Errorf("handlers: decode Position payload: %w", err)
	}

	if (pos.LatitudeI == nil || pos.LongitudeI == nil) && !opts.ForceDecode {
		return nil, nil
	}

	point := meshmodel.PositionPoint{
		Header:        header,
		PrecisionBits: pos.PrecisionBits,
		SatsInView:    pos.SatsInView,
		GPSTime:       pos.Time,
	}
	if pos.LatitudeI != nil {
		point.LatitudeI = *pos.LatitudeI
	}
	if pos.LongitudeI != nil {
		point.LongitudeI = *pos.LongitudeI
	}
	point.Altitude = pos.Altitude
	if pos.PDOP != nil {
		v := float64(*pos.PDOP)
		point.PDOP = &v
	}

	return []meshmodel.Point{point}, nil
}
