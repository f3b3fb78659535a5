package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pakachere/liveclass/internal/config"
	"github.com/pakachere/liveclass/internal/logging"
	"github.com/pakachere/liveclass/internal/relay"
	"github.com/pakachere/liveclass/internal/server"
	"github.com/pakachere/liveclass/internal/ui"
	"github.com/pakachere/liveclass/internal/version"
)

const shutdownTimeout = 5 * time.Second

var flagRelayAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay that tutors and students connect to.

Endpoints:
  GET  /ws              websocket signaling
  POST /video/create    create a room for a session (also /api/video/create)
  GET  /video/rooms     list open rooms (also /api/video/rooms)
  GET  /health          liveness
  GET  /metrics         Prometheus metrics

Examples:
  liveclass relay
  liveclass relay --addr :9000
  LIVECLASS_RELAY_REQUIRE_RESERVATION=true liveclass relay`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{
			Path:      flagConfig,
			RelayAddr: flagRelayAddr,
			LogLevel:  flagLogLevel,
		})
		if err != nil {
			return err
		}
		logging.Init(levelOr(cfg.Log.Level, "info"), false)
		return runRelay(cmd.Context(), cfg)
	},
}

func runRelay(ctx context.Context, cfg *config.Config) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := relay.NewRegistry(cfg.Relay.ReservationTTL, cfg.Relay.RequireReservation)
	hub := relay.NewHub(registry, relay.NewMetrics(promReg))

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	srv := &http.Server{
		Addr: cfg.Relay.Addr,
		Handler: server.NewRouter(server.Options{
			Hub:            hub,
			Registry:       registry,
			Gatherer:       promReg,
			SendBuffer:     cfg.Relay.SendBuffer,
			AllowedOrigins: cfg.Relay.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Relay.Addr)
	if err != nil {
		stopHub()
		<-hubDone
		return fmt.Errorf("listen on %s: %w", cfg.Relay.Addr, err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	addr := ln.Addr().String()
	log.Info().
		Str("addr", addr).
		Str("version", version.Version).
		Bool("require_reservation", cfg.Relay.RequireReservation).
		Dur("reservation_ttl", cfg.Relay.ReservationTTL).
		Msg("relay listening")
	ui.PrintSuccess("Relay listening on " + addr)
	ui.PrintInfof("Signaling at ws://%s/ws, metrics at http://%s/metrics", addr, addr)
	if cfg.Relay.RequireReservation {
		ui.PrintWarning("Joins to rooms that were never created are rejected")
	}

	select {
	case err := <-errc:
		stopHub()
		<-hubDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down relay")
	sp := ui.NewSimpleSpinner("Shutting down relay...")
	sp.Start()

	// Websocket connections are hijacked and not tracked by the server; stopping the hub closes them.
	stopHub()
	<-hubDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sp.Error("Relay did not stop cleanly")
		return err
	}
	sp.Success("Relay stopped")
	log.Info().Msg("relay stopped")
	return nil
}

// levelOr returns fallback when neither the config nor LOG_LEVEL picks a level.
func levelOr(level, fallback string) string {
	if level != "" || os.Getenv("LOG_LEVEL") != "" {
		return level
	}
	return fallback
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVarP(&flagRelayAddr, "addr", "a", "", "Listen address (default :8080)")
}
