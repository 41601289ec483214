// Package handlers holds the port-number → payload-interpreter registry and
// the registered handlers themselves, each turning a decoded payload into
// zero or more meshmodel.Point values.
package handlers

import (
	"github.com/austinmesh/bridger/pkg/meshmodel"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

// Options carries the per-handler toggles from the config overlay.
type Options struct {
	// StripText elides TextMessagePoint.Text when true (the default).
	StripText bool
	// ForceDecode allows PositionPoint to be emitted even when latitude or
	// longitude is missing.
	ForceDecode bool
}

// Handler turns a decoded payload into zero, one, or many points. A nil,
// nil return means "no point for this input" (not an error), e.g. a
// Position payload lacking coordinates.
type Handler func(header meshmodel.Header, payload []byte, opts Options) ([]meshmodel.Point, error)

// Registry maps each known port to an ordered list of handlers. Order
// matters for ports that carry multiple subtypes.
type Registry struct {
	handlers map[meshpb.PortNum][]Handler
}

// NewRegistry builds the registry populated with every required handler.
// Construction is a single function with no import-time side
// effects.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[meshpb.PortNum][]Handler)}
	r.register(meshpb.PortNodeInfo, HandleNodeInfo)
	r.register(meshpb.PortPosition, HandlePosition)
	r.register(meshpb.PortTelemetry, HandleTelemetry)
	r.register(meshpb.PortNeighborInfo, HandleNeighborInfo)
	r.register(meshpb.PortTextMessage, HandleText)
	r.register(meshpb.PortTraceroute, HandleTraceroute)
	return r
}

func (r *Registry) register(port meshpb.PortNum, h Handler) {
	r.handlers[port] = append(r.handlers[port], h)
}

// IsRegistered reports whether any handler is bound to port. Used by
// internal/codec.Classify to distinguish "unknown port" from a decode
// failure without internal/codec importing this package's handler
// implementations.
func (r *Registry) IsRegistered(port meshpb.PortNum) bool {
	return len(r.handlers[port]) > 0
}

// Dispatch runs every handler registered for port in order, concatenating
// their non-nil results.
func (r *Registry) Dispatch(port meshpb.PortNum, header meshmodel.Header, payload []byte, opts Options) ([]meshmodel.Point, error) {
	var out []meshmodel.Point
	for _, h := range r.handlers[port] {
		points, err := h(header, payload, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, points...)
	}
	return out, nil
}
