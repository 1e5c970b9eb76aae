package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bambubeacon/bambubeacon-server/internal/api"
	"github.com/bambubeacon/bambubeacon-server/internal/config"
	"github.com/bambubeacon/bambubeacon-server/internal/integration"
	"github.com/bambubeacon/bambubeacon-server/internal/models"
	"github.com/bambubeacon/bambubeacon-server/internal/monitor"
	"github.com/bambubeacon/bambubeacon-server/internal/settings"
	"github.com/bambubeacon/bambubeacon-server/internal/transport"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/beacon-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	// Load printer settings
	settingsStore := settings.NewStore(cfg.Settings.Path)
	if err := settingsStore.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load printer settings")
	}

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Printer monitor
	mon := monitor.New(transport.NewMQTT(), settingsStore, monitor.Config{
		TTL:               cfg.Monitor.AlertTTL,
		Capacity:          cfg.Monitor.AlertCapacity,
		TickInterval:      cfg.Monitor.TickInterval,
		ReconnectInterval: cfg.Monitor.ReconnectInterval,
	})

	// Optional: connect to NATS for event forwarding
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Server.Name),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				log.Error().Err(err).Msg("NATS error")
			}),
		)

		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
			nc = nil
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	forwarder := integration.NewForwarder(nc, cfg.Webhook.URL)

	// REST API server
	apiServer := api.NewRESTServer(cfg, mon, settingsStore)

	// Fan printer events out to NATS, the webhook and live clients
	mon.SetOnReport(func(map[string]interface{}) {
		ev := integration.NewReportEvent(mon.Serial(), mon.Status(), mon.TopSeverity(), mon.ActiveAlerts(mon.AlertCapacity()))
		forwarder.ForwardReport(ev)
		apiServer.NotifyReport(ev)
	})
	mon.SetOnProblemChange(func(serial string, hasProblem bool, top models.Severity) {
		ev := integration.NewProblemEvent(serial, hasProblem, top)
		forwarder.ForwardProblem(ev)
		apiServer.NotifyProblem(ev)
	})

	if !mon.Begin() {
		log.Warn().Msg("Printer not configured yet, set it up through the web interface")
	}

	// WaitGroup for services
	var wg sync.WaitGroup

	// Start monitor loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mon.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Printer monitor stopped")
		}
	}()

	// Start live event hub
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.RunLive(ctx); err != nil {
			log.Error().Err(err).Msg("Live event hub stopped")
		}
	}()

	// Start API server
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	// Cancel context
	cancel()

	// Shutdown API server
	if err := apiServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	// Wait for all services
	wg.Wait()

	log.Info().Msg("Beacon server stopped")
}
