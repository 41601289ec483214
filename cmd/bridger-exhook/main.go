// Command bridger-exhook runs the external-hook filter: a
// request/response service the broker calls on every publish, tagging the
// message with allow_publish based on the authenticated username.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/austinmesh/bridger/internal/config"
	"github.com/austinmesh/bridger/internal/exhook"
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

	srv := exhook.NewServer(exhook.Config{
		Addr:           fmt.Sprintf("%s:%d", cfg.ExhookHost, cfg.ExhookPort),
		AllowedUsers:   cfg.ExhookAllowedUsers,
		WorkerPoolSize: cfg.ExhookWorkerPoolSize,
		ShutdownGrace:  cfg.ExhookShutdownGrace,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(); err != nil {
			log.Fatalf("exhook: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("exhook: shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Errorf("exhook: shutdown: %v", err)
	}
	wg.Wait()
	log.Info("exhook: graceful shutdown complete")
}
