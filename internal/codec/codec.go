// Package codec decodes MQTT publish payloads into ServiceEnvelopes,
// decrypts AES-CTR encrypted packets, and classifies the decoded payload by
// port number.
package codec

import (
	"fmt"

	"github.com/austinmesh/bridger/pkg/meshpb"
)

// PKIChannelID is the reserved channel name whose payloads use asymmetric
// keys this bridge does not hold. Packets on this channel are never
// decrypted.
const PKIChannelID = "PKI"

// DecodeError wraps a malformed-envelope failure. Callers attempt a
// best-effort UTF-8 decode of the raw bytes for diagnostic logging only.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("codec: decode envelope: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Kind is a small fixed set of processing-error categories, used as a
// Prometheus label.
// Reason carries the free-form detail for the log line; Kind must never grow
// unbounded cardinality the way an interpolated Reason string would.
type Kind string

const (
	KindUnknownPort   Kind = "unknown_port"
	KindNoPayload     Kind = "no_payload"
	KindPKIRefused    Kind = "pki_refused"
	KindDecryptFailed Kind = "decrypt_failed"
)

// ProcessingError covers failures after a successful envelope decode:
// undecryptable PKI traffic, a corrupt inner Data message, or an unknown
// port. Port is zero when not yet known (e.g. decrypt failures before the
// inner Data could be parsed).
type ProcessingError struct {
	Port   meshpb.PortNum
	Kind   Kind
	Reason string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("codec: processing error on port %s: %s", e.Port, e.Reason)
}

// DecodeEnvelope performs a strict protobuf parse of an MQTT publish
// payload.
func DecodeEnvelope(payload []byte) (*meshpb.ServiceEnvelope, error) {
	env, err := meshpb.UnmarshalServiceEnvelope(payload)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return env, nil
}

// Classify looks up the decoded payload's port number. isKnown reports
// whether a handler is registered for that port (internal/handlers owns the
// registry; codec stays decoupled from it). Returns a ProcessingError,
// distinguishable from a DecodeError, when no handler is registered.
func Classify(env *meshpb.ServiceEnvelope, isKnown func(meshpb.PortNum) bool) (meshpb.PortNum, []byte, error) {
	if env.Packet == nil || env.Packet.Decoded == nil {
		return meshpb.PortUnknown, nil, &ProcessingError{Kind: KindNoPayload, Reason: "no decoded payload"}
	}

	port := env.Packet.Decoded.PortNum
	if !isKnown(port) {
		return port, nil, &ProcessingError{Port: port, Kind: KindUnknownPort, Reason: "no handler registered for port"}
	}
	return port, env.Packet.Decoded.Payload, nil
}
