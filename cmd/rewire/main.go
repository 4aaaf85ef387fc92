// Command rewire runs the checker service of spec.md: it loads a YAML
// config, opens the SQLite store, and runs the HTTP surface and the
// CheckerLoop side by side until SIGINT/SIGTERM. The teacher's
// cmd/*/main.go are ~20-line wrappers around mxmain.BridgeMain; rewire
// has no such framework, so main does the wiring directly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rewire/rewire/pkg/checker"
	"github.com/rewire/rewire/pkg/clock"
	"github.com/rewire/rewire/pkg/config"
	"github.com/rewire/rewire/pkg/httpapi"
	"github.com/rewire/rewire/pkg/notify"
	"github.com/rewire/rewire/pkg/obs"
	"github.com/rewire/rewire/pkg/reconcile"
	"github.com/rewire/rewire/pkg/store"
	"github.com/rewire/rewire/pkg/trial"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "rewire.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rewire: config: %v\n", err)
		return 1
	}

	log := obs.NewLogger(os.Getenv("REWIRE_DEBUG") != "")

	clk := clock.System{}
	st, err := store.Open(cfg.DBPath, clk, log)
	if err != nil {
		log.Error().Err(err).Msg("open store failed")
		return 1
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	metrics := obs.NewMetrics(registry)

	notifier := buildNotifier(cfg, log)

	trials := trial.New(st, clk)
	notifyTimeout := time.Duration(cfg.CheckEveryS) * time.Second / 2
	if notifyTimeout <= 0 {
		notifyTimeout = 5 * time.Second
	}
	reconciler := reconcile.New(st, clk, trials, notifier, log, cfg.BaseURL, cfg.RenotifyAfterS, notifyTimeout)
	reconciler.SetMetrics(metrics)

	loop := checker.New(st, reconciler, log, cfg.CheckEveryS)
	loop.SetMetrics(metrics)

	api := httpapi.New(st, trials, cfg.AdminToken, log, metrics)
	mainSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.ListenPort),
		Handler: api.Handler(),
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go loop.Start(ctx)

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", mainSrv.Addr).Msg("rewire: http surface listening")
		if err := mainSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info().Str("addr", metricsSrv.Addr).Msg("rewire: metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("rewire: shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("rewire: server failed")
		stop()
	}

	loop.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = mainSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	return 0
}

// buildNotifier selects the NotifierPort implementation per spec.md
// §6: an absent SMTP host falls back to the webhook notifier if a
// webhook timeout is configured, and finally to dev-print mode.
func buildNotifier(cfg config.Config, log zerolog.Logger) notify.Notifier {
	if cfg.SMTP.Host != "" {
		return notify.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.FromAddress)
	}
	if cfg.Webhook.TimeoutS > 0 {
		return notify.NewWebhookNotifier(time.Duration(cfg.Webhook.TimeoutS) * time.Second)
	}
	return notify.NewDevNotifier(log)
}
