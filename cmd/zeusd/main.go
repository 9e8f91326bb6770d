// Command zeusd is the dispatcher daemon: it owns the Drain Loop and
// exposes /metrics and /healthz on a loopback HTTP listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusmux/zeus/internal/logging"
	"github.com/zeusmux/zeus/internal/metrics"
	"github.com/zeusmux/zeus/internal/zeus/config"
	"github.com/zeusmux/zeus/internal/zeus/statedir"
	"github.com/zeusmux/zeus/internal/zeus/world"
)

var version = "dev"

func main() {
	logging.Setup()

	fs := flag.NewFlagSet("zeusd", flag.ExitOnError)
	stateDir := fs.String("state-dir", statedir.Resolve(), "root directory for durable bus state")
	configFile := fs.String("config", "", "optional YAML config file")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*stateDir, *configFile); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(stateDir, configFile string) error {
	cfg, err := config.Load(stateDir, configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if level, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		logging.SetLevel(level)
	}

	w := world.New(cfg, world.Options{})
	slog.Info("zeusd starting", "state_dir", cfg.StateDir, "metrics_addr", cfg.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- w.Drain.Run(ctx) }()
	go func() { errCh <- serveMetrics(ctx, cfg.MetricsAddr) }()

	err = <-errCh
	stop()
	<-errCh
	return err
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: addr, Handler: logging.HTTPMiddleware(metrics.HTTPMiddleware(mux))}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics endpoint listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

const shutdownGrace = 5 * time.Second
