// Command alertd runs the alert daemon: it loads alert definitions from a
// directory, evaluates their sources on a schedule, and dispatches
// notifications to email, Slack, and Zendesk targets.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/beyondessential/alertd/internal/config"
	"github.com/beyondessential/alertd/internal/daemon"
)

func main() {
	configPath := flag.String("config", "/etc/alertd/config.yaml", "path to the daemon configuration file")
	flag.Parse()

	log, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("loading config", zap.Error(err))
	}

	d, err := daemon.New(cfg, log)
	if err != nil {
		log.Fatal("initializing daemon", zap.Error(err))
	}

	go serveMetrics(log)

	if err := d.Run(context.Background()); err != nil {
		log.Fatal("daemon exited with error", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	level := os.Getenv("ALERTD_LOG_LEVEL")
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// serveMetrics exposes /metrics on ALERTD_METRICS_ADDR (default
// 127.0.0.1:9271), separate from the Control Server's bind addresses.
func serveMetrics(log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", daemon.Handler())
	addr := os.Getenv("ALERTD_METRICS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:9271"
	}
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}
