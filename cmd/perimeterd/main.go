// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command perimeterd runs the per-application firewall daemon: it loads
// runtime configuration, starts the policy engine and HTTP control
// surface, and serves classification requests until signaled to stop.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/perimeterd/perimeterd/internal/ctlplane"
	"github.com/perimeterd/perimeterd/internal/daemonconfig"
	"github.com/perimeterd/perimeterd/internal/engine"
	"github.com/perimeterd/perimeterd/internal/logging"
	"github.com/perimeterd/perimeterd/internal/metrics"
	"github.com/perimeterd/perimeterd/internal/sockdiag"
)

func main() {
	configPath := flag.String("config", "", "Path to HCL daemon config file")
	flag.Parse()

	cfg := daemonconfig.Default()
	if *configPath != "" {
		loaded, err := daemonconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load daemon config: %v", err)
		}
		cfg = loaded
	}

	logging.SetDefault(logging.New(cfg.LoggingConfig()))
	logger := logging.WithComponent("main")

	m := metrics.New(prometheus.DefaultRegisterer)

	eng := engine.New()
	eng.SetMetrics(m)

	diag := sockdiag.NewClient()
	diag.SetMetrics(m)

	server := ctlplane.New(eng)
	if err := server.Start(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to start control plane: %v", err)
	}

	logger.Info("perimeterd started", "listen_addr", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	if err := server.Stop(); err != nil {
		logger.WithError(err).Warn("control plane shutdown error")
	}
}
