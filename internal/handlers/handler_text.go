package handlers

import (
	"github.com/austinmesh/bridger/pkg/meshmodel"
)

// HandleText emits a TextMessagePoint. The message body is elided by
// default (opts.StripText, true by default) to avoid persisting message
// content; set StripText=false to retain it.
func HandleText(header meshmodel.Header, payload []byte, opts Options) ([]meshmodel.Point, error) {
	point := meshmodel.TextMessagePoint{Header: header}
	if !opts.StripText {
		text := string(payload)
		point.Text = &text
	}
	return []meshmodel.Point{point}, nil
}
