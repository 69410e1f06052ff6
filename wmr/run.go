package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/wmr/pkg/meter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		report      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Measure flow headless",
		Long:  "Reads the sensor, logs meter totals periodically and optionally serves prometheus metrics on /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr != "" {
				a.cfg.Metrics.Listen = metricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runHeadless(ctx, a, report)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "Prometheus listen address (e.g., :9120), overrides config")
	cmd.Flags().DurationVar(&report, "report", 10*time.Second, "Interval between totals log lines")
	return cmd
}

func runHeadless(ctx context.Context, a *app, report time.Duration) error {
	m := meter.New(a.cfg)

	var server *http.Server
	if addr := a.cfg.Metrics.Listen; addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		m.SetMetrics(meter.NewMetrics(reg))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", addr).Msg("serving metrics")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	device, source := openDevice(a.cfg, a.mock)
	chain, err := startChain(a.cfg, device, source, m)
	if err != nil {
		return err
	}

	if report <= 0 {
		report = 10 * time.Second
	}
	ticker := time.NewTicker(report)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-chain.meterDone:
			log.Warn().Str("source", source).Msg("sensor stream ended")
			break loop
		case <-ticker.C:
			logTotals(m)
		}
	}

	chain.close()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	return nil
}

func logTotals(m *meter.Meter) {
	snap := m.Snapshot()
	ev := log.Info().
		Stringer("mode", snap.Mode).
		Int("samples", snap.Totals.Samples).
		Int("pulses", snap.Totals.Pulses).
		Float64("liters", snap.Totals.Liters).
		Int("anomalies", snap.Totals.Anomalies).
		Int("drifts", snap.Totals.Drifts)
	if snap.Fit.Valid() {
		ev = ev.
			Float64("cx", snap.Fit.Center.X).
			Float64("cy", snap.Fit.Center.Y).
			Float64("rx", snap.Fit.Radius.X).
			Float64("ry", snap.Fit.Radius.Y)
	}
	ev.Msg("meter")
}
