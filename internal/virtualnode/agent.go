// Package virtualnode implements the virtual mesh node agent:
// a periodic NodeInfo beacon plus a direct-message responder, both driven
// over the same MQTT bus as ingest.
package virtualnode

import (
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/austinmesh/bridger/internal/dedup"
	"github.com/austinmesh/bridger/internal/metrics"
	"github.com/austinmesh/bridger/internal/mqtt"
	"github.com/austinmesh/bridger/pkg/log"
	"github.com/austinmesh/bridger/pkg/meshmodel"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

// Config carries the virtual node's identity and beacon cadence, sourced
// from the VIRTUAL_NODE_* environment variables.
type Config struct {
	NodeID            uint32
	ShortName         string
	LongName          string
	HwModel           int32
	Role              int32
	Channel           string
	BroadcastInterval time.Duration
	BaseTopic         string // the ingest base topic, e.g. "egr/home/2/e/#"
}

// Agent owns a persistent MQTT connection and runs the beacon and responder
// tasks. The deduplicator is owned by the message callback only.
type Agent struct {
	cfg          Config
	client       *mqtt.Client
	dedup        *dedup.Deduplicator
	scheduler    gocron.Scheduler
	publishTopic string
	nowFunc      func() time.Time
}

// New builds an Agent bound to an already-constructed MQTT client.
func New(client *mqtt.Client, cfg Config) (*Agent, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(cfg.BaseTopic, "/#")
	return &Agent{
		cfg:          cfg,
		client:       client,
		dedup:        dedup.New(100, false),
		scheduler:    scheduler,
		publishTopic: base + "/" + cfg.Channel + "/" + meshmodel.HexWithBang(cfg.NodeID),
		nowFunc:      time.Now,
	}, nil
}

// Run connects, subscribes the responder, registers the beacon job, beacons
// once immediately, and starts the scheduler.
func (a *Agent) Run() error {
	if err := a.client.Connect(); err != nil {
		return err
	}

	subscribeTopic := strings.TrimSuffix(a.cfg.BaseTopic, "/#") + "/" + a.cfg.Channel + "/#"
	if err := a.client.Subscribe(subscribeTopic, a.onMessage); err != nil {
		return err
	}

	if _, err := a.scheduler.NewJob(
		gocron.DurationJob(a.cfg.BroadcastInterval),
		gocron.NewTask(a.beacon),
	); err != nil {
		return err
	}

	a.beacon()
	a.scheduler.Start()
	return nil
}

// Stop cancels the scheduler and disconnects from the broker.
func (a *Agent) Stop() {
	_ = a.scheduler.Shutdown()
	a.client.Disconnect(250 * time.Millisecond)
}

// beacon publishes a NodeInfo ServiceEnvelope advertising this node.
func (a *Agent) beacon() {
	user := &meshpb.User{
		ID:        meshmodel.HexWithBang(a.cfg.NodeID),
		LongName:  a.cfg.LongName,
		ShortName: a.cfg.ShortName,
		HwModel:   a.cfg.HwModel,
		Role:      a.cfg.Role,
	}
	env := a.buildEnvelope(meshmodel.BroadcastNodeID, meshpb.PortNodeInfo, user.Marshal())

	if err := a.client.Publish(a.publishTopic, env.Marshal()); err != nil {
		log.Errorf("virtualnode: publish beacon: %v", err)
		return
	}
	metrics.BeaconsSent.Inc()
	log.Infof("virtualnode: sent NodeInfo beacon on %s", a.publishTopic)
}

// sendText publishes a text message addressed to toNode.
func (a *Agent) sendText(toNode uint32, text string) {
	env := a.buildEnvelope(toNode, meshpb.PortTextMessage, []byte(text))
	if err := a.client.Publish(a.publishTopic, env.Marshal()); err != nil {
		log.Errorf("virtualnode: publish text reply: %v", err)
		return
	}
	log.Infof("virtualnode: replied to %s: %q", meshmodel.HexWithBang(toNode), text)
}

// buildEnvelope wraps a payload in a Data/MeshPacket/ServiceEnvelope.
// Packet ids are the current wall time masked to 32 bits.
func (a *Agent) buildEnvelope(to uint32, port meshpb.PortNum, payload []byte) *meshpb.ServiceEnvelope {
	now := a.nowFunc()
	return &meshpb.ServiceEnvelope{
		Packet: &meshpb.MeshPacket{
			From: a.cfg.NodeID,
			To:   to,
			ID:   uint32(now.UnixNano()) & 0xFFFFFFFF,
			Decoded: &meshpb.Data{
				PortNum: port,
				Payload: payload,
			},
			RxTime: uint32(now.Unix()),
		},
		ChannelID: a.cfg.Channel,
		GatewayID: meshmodel.HexWithBang(a.cfg.NodeID),
	}
}

// shouldIgnore reports whether pkt is not addressed to this virtual node or
// originated from it.
func (a *Agent) shouldIgnore(pkt *meshpb.MeshPacket) bool {
	if pkt.To != a.cfg.NodeID && pkt.To != meshmodel.BroadcastNodeID {
		return true
	}
	return pkt.From == a.cfg.NodeID
}

// onMessage is the responder: dedup, filter by destination and origin, and
// auto-reply to any text message, broadcast or direct,
// once it has passed shouldIgnore.
func (a *Agent) onMessage(_ string, payload []byte) {
	env, err := meshpb.UnmarshalServiceEnvelope(payload)
	if err != nil {
		log.Debugf("virtualnode: discarding undecodable message: %v", err)
		return
	}
	if env.Packet == nil {
		return
	}

	if !a.dedup.ShouldProcess(env) {
		return
	}

	pkt := env.Packet
	if a.shouldIgnore(pkt) {
		return
	}

	if pkt.Decoded == nil {
		return
	}

	switch pkt.Decoded.PortNum {
	case meshpb.PortTextMessage:
		text := string(pkt.Decoded.Payload)
		log.Infof("virtualnode: received text from %s: %q", meshmodel.HexWithBang(pkt.From), text)
		a.sendText(pkt.From, "Hello from Bridger! You sent: "+text)
	case meshpb.PortNodeInfo:
		log.Debugf("virtualnode: received NodeInfo directed at virtual node")
	default:
		log.Debugf("virtualnode: received %s directed at virtual node", pkt.Decoded.PortNum)
	}
}
