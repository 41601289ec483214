// Command bridger-ingest runs the MQTT-to-InfluxDB packet pipeline: it
// subscribes to the mesh's MQTT bus, decodes and decrypts
// deliveries, dispatches them to the handler registry, deduplicates, and
// writes the resulting points to InfluxDB.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/austinmesh/bridger/internal/codec"
	"github.com/austinmesh/bridger/internal/config"
	"github.com/austinmesh/bridger/internal/dedup"
	"github.com/austinmesh/bridger/internal/handlers"
	"github.com/austinmesh/bridger/internal/ingest"
	"github.com/austinmesh/bridger/internal/metrics"
	"github.com/austinmesh/bridger/internal/mqtt"
	"github.com/austinmesh/bridger/internal/writer"
	"github.com/austinmesh/bridger/pkg/log"
)

func main() {
	var (
		flagConfigFile = flag.String("config", "", "Optional config.json overlay path")
		flagGops       = flag.Bool("gops", false, "Listen via github.com/google/gops/agent (for debugging)")
		flagMetrics    = flag.String("metrics-addr", ":2112", "Address to serve /metrics on")
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

	key, err := codec.Key(cfg.MeshtasticKey)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}

	client, err := mqtt.NewClient(mqtt.Config{
		Broker:   "tcp://" + cfg.MQTTBroker + ":" + strconv.Itoa(cfg.MQTTPort),
		ClientID: "bridger-ingest",
		Username: cfg.MQTTUser,
		Password: cfg.MQTTPass,
	})
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}

	w := writer.New(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, cfg.InfluxAnnotationsBucket, cfg.InfluxWritePrecision)
	defer w.Close()

	loop := ingest.New(client, ingest.Config{
		BaseTopic: cfg.MQTTTopic,
		AESKey:    key,
		Registry:  handlers.NewRegistry(),
		Dedup:     dedup.New(cfg.DedupCapacity, cfg.DedupUseGatewayID),
		Writer:    w,
		HandlerOpts: handlers.Options{
			StripText:   cfg.Overlay.StripText,
			ForceDecode: cfg.Overlay.ForceDecode,
		},
	})

	metricsServer := &http.Server{Addr: *flagMetrics, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil {
			log.Fatalf("ingest: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("ingest: shutting down")
	cancel()
	_ = metricsServer.Shutdown(context.Background())
	wg.Wait()
	log.Info("ingest: graceful shutdown complete")
}
