// Package meshmodel holds the data shared by every bridge component: node-id
// conversions and the TypedPoint measurement variants written to the
// time-series store.
package meshmodel

import (
	"fmt"
	"strconv"
	"strings"
)

// BroadcastNodeID is the MeshPacket "to" value meaning "every node".
const BroadcastNodeID = 0xFFFFFFFF

// HexWithoutBang renders a node id as 8 lowercase hex characters, zero-padded.
func HexWithoutBang(nodeID uint32) string {
	return fmt.Sprintf("%08x", nodeID)
}

// HexWithBang renders a node id as "!" followed by 8 lowercase hex characters.
func HexWithBang(nodeID uint32) string {
	return "!" + HexWithoutBang(nodeID)
}

// Color returns the last 6 hex characters of the node id's hex form.
func Color(nodeID uint32) string {
	hex := HexWithoutBang(nodeID)
	return hex[len(hex)-6:]
}

// ParseNodeID accepts "!cafebabe" or "cafebabe" and returns the node id.
// It requires exactly 8 hex characters after an optional leading "!".
func ParseNodeID(s string) (uint32, error) {
	trimmed := strings.TrimPrefix(s, "!")
	if len(trimmed) != 8 {
		return 0, fmt.Errorf("meshmodel: node id %q must be 8 hex characters", s)
	}
	n, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("meshmodel: node id %q is not hex: %w", s, err)
	}
	return uint32(n), nil
}
