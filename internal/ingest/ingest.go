// Package ingest drives the MQTT subscription loop: decode, decrypt,
// dispatch, deduplicate, and write. It wires together internal/codec,
// internal/handlers, internal/dedup, and internal/writer.
package ingest

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/austinmesh/bridger/internal/codec"
	"github.com/austinmesh/bridger/internal/dedup"
	"github.com/austinmesh/bridger/internal/handlers"
	"github.com/austinmesh/bridger/internal/metrics"
	"github.com/austinmesh/bridger/internal/mqtt"
	"github.com/austinmesh/bridger/internal/writer"
	"github.com/austinmesh/bridger/pkg/log"
	"github.com/austinmesh/bridger/pkg/meshmodel"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

// State is the ingest loop's connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateRunning:
		return "RUNNING"
	default:
		return "DISCONNECTED"
	}
}

// Loop owns one MQTT subscription and the single-consumer pipeline that
// turns its deliveries into time-series writes.
type Loop struct {
	mqttClient *mqtt.Client
	dedup      *dedup.Deduplicator
	registry   *handlers.Registry
	writer     *writer.Writer
	key        []byte
	opts       handlers.Options

	baseTopic   string
	pkiSubtopic string
	state       State
}

// Config bundles everything Loop needs beyond the MQTT client, which the
// caller constructs and connects separately (so main() can fold the
// connect-retry and reconnect wiring in one place).
type Config struct {
	BaseTopic   string
	AESKey      []byte
	Registry    *handlers.Registry
	Dedup       *dedup.Deduplicator
	Writer      *writer.Writer
	HandlerOpts handlers.Options
}

// New builds a Loop bound to an already-constructed MQTT client.
func New(client *mqtt.Client, cfg Config) *Loop {
	return &Loop{
		mqttClient:  client,
		dedup:       cfg.Dedup,
		registry:    cfg.Registry,
		writer:      cfg.Writer,
		key:         cfg.AESKey,
		opts:        cfg.HandlerOpts,
		baseTopic:   strings.TrimSuffix(cfg.BaseTopic, "/#"),
		pkiSubtopic: strings.TrimSuffix(cfg.BaseTopic, "/#") + "/PKI/",
		state:       StateDisconnected,
	}
}

// State reports the loop's current connection state.
func (l *Loop) State() State { return l.state }

// Run subscribes to the base topic and drives every delivery through
// onMessage until ctx is canceled, at which point it disconnects.
func (l *Loop) Run(ctx context.Context) error {
	l.state = StateConnecting
	if err := l.mqttClient.Connect(); err != nil {
		l.state = StateDisconnected
		return err
	}

	l.state = StateSubscribed
	if err := l.mqttClient.Subscribe(l.baseTopic+"/#", l.onMessage); err != nil {
		l.state = StateDisconnected
		return err
	}
	l.state = StateRunning

	<-ctx.Done()
	l.mqttClient.Disconnect(250 * time.Millisecond)
	l.state = StateDisconnected
	return nil
}

// onMessage is the single-consumer callback invoked by the MQTT client for
// every delivery on the subscription. It is synchronous: one delivery is
// fully handled (or dropped) before the next is processed.
func (l *Loop) onMessage(topic string, payload []byte) {
	if strings.HasPrefix(topic, l.pkiSubtopic) {
		return
	}

	env, err := codec.DecodeEnvelope(payload)
	if err != nil {
		logUndecodable(payload, err)
		return
	}

	if env.Packet == nil {
		return
	}

	if l.dedup.IsDuplicate(env) {
		metrics.DedupDropped.Inc()
		return
	}

	if err := codec.Decrypt(l.key, env); err != nil {
		logProcessingError(err)
		return
	}

	port, body, err := codec.Classify(env, l.registry.IsRegistered)
	if err != nil {
		logProcessingError(err)
		return
	}

	header := headerFrom(env)
	points, err := l.registry.Dispatch(port, header, body, l.opts)
	if err != nil {
		log.Errorf("ingest: handler for port %s: %v", port, err)
		return
	}
	if len(points) == 0 {
		l.dedup.MarkProcessed(env)
		return
	}

	metrics.PacketsDecoded.WithLabelValues(port.String()).Inc()
	if err := l.writer.Write(context.Background(), points...); err != nil {
		log.Errorf("ingest: write points: %v", err)
		return
	}
	for _, p := range points {
		metrics.PointsWritten.WithLabelValues(p.Measurement()).Inc()
	}
	l.dedup.MarkProcessed(env)
}

func headerFrom(env *meshpb.ServiceEnvelope) meshmodel.Header {
	return meshmodel.Header{
		ChannelID: env.ChannelID,
		GatewayID: env.GatewayID,
		From:      env.Packet.From,
		To:        env.Packet.To,
		PacketID:  env.Packet.ID,
		RxTime:    int64(env.Packet.RxTime),
		RxSNR:     env.Packet.RxSNR,
		RxRSSI:    env.Packet.RxRSSI,
		HopLimit:  env.Packet.HopLimit,
		HopStart:  env.Packet.HopStart,
	}
}

// logProcessingError distinguishes ProcessingError (unknown port, PKI,
// schema) from any other error: info-level, not exception-level.
// The metric label is pe.Kind, a small fixed enum, never the free-form
// Reason text, which would give the counter unbounded cardinality.
func logProcessingError(err error) {
	if pe, ok := err.(*codec.ProcessingError); ok {
		metrics.ProcessingErrors.WithLabelValues(string(pe.Kind)).Inc()
		log.Infof("ingest: %v", pe)
		return
	}
	log.Errorf("ingest: %v", err)
}

// logUndecodable logs a malformed envelope at warn, attempting a
// best-effort UTF-8 decode for diagnostics only.
func logUndecodable(payload []byte, err error) {
	if utf8.Valid(payload) {
		log.Warnf("ingest: %v (payload as text: %s)", err, string(payload))
		return
	}
	log.Warnf("ingest: %v (payload is not valid UTF-8, %d bytes)", err, len(payload))
}
