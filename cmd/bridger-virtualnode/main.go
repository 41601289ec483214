// Command bridger-virtualnode runs the virtual mesh node agent: a periodic
// NodeInfo beacon and a direct-message auto-responder, both over the ingest
// MQTT bus.
package main

import (
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/austinmesh/bridger/internal/config"
	"github.com/austinmesh/bridger/internal/mqtt"
	"github.com/austinmesh/bridger/internal/virtualnode"
	"github.com/austinmesh/bridger/pkg/log"
)

func main() {
	var (
		flagConfigFile = flag.String("config", "", "Optional config.json overlay path")
		flagGops       = flag.Bool("gops", false, "Listen via github.com/google/gops/agent (for debugging)")
		flagLogLevel   = flag.String("loglevel", "info", "debug|info|warn|err")
	)
	flag.Parse()

	log.SetLogLevel(*flagLogLevel)

	if *flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	cfg, err := config.Load(*flagConfigFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	client, err := mqtt.NewClient(mqtt.Config{
		Broker:   "tcp://" + cfg.MQTTBroker + ":" + strconv.Itoa(cfg.MQTTPort),
		ClientID: "bridger-virtualnode",
		Username: cfg.MQTTUser,
		Password: cfg.MQTTPass,
	})
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}

	agentNode, err := virtualnode.New(client, virtualnode.Config{
		NodeID:            cfg.VirtualNodeID,
		ShortName:         cfg.VirtualNodeShortName,
		LongName:          cfg.VirtualNodeLongName,
		HwModel:           cfg.VirtualNodeHwModel,
		Role:              cfg.VirtualNodeRole,
		Channel:           cfg.VirtualNodeChannel,
		BroadcastInterval: cfg.VirtualNodeBroadcastInterval,
		BaseTopic:         cfg.MQTTTopic,
	})
	if err != nil {
		log.Fatalf("virtualnode: %v", err)
	}

	if err := agentNode.Run(); err != nil {
		log.Fatalf("virtualnode: %v", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("virtualnode: shutting down")
	agentNode.Stop()
	log.Info("virtualnode: graceful shutdown complete")
}
