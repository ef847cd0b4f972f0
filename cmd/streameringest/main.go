// Command streameringest consumes the broadcaster fan-out and populates
// the bloom-filtered streamer registry.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/janovak/twitch-chat-ingestor/internal/bus"
	"github.com/janovak/twitch-chat-ingestor/internal/config"
	"github.com/janovak/twitch-chat-ingestor/internal/ingest"
	"github.com/janovak/twitch-chat-ingestor/internal/logging"
	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/registry"
	"github.com/janovak/twitch-chat-ingestor/internal/storage"
)

// Config is this process's full configuration.
type Config struct {
	Bus         bus.Config
	Postgres    storage.PostgresConfig
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty   bool   `env:"LOG_PRETTY" envDefault:"false"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9105"`
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "streameringest"})
	metricsRegistry := metrics.New("streameringest")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messageBus, err := bus.New(cfg.Bus, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("streameringest: failed to connect to bus")
	}
	defer messageBus.Close()

	postgresSession, err := storage.NewPostgresSession(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("streameringest: failed to connect to postgres")
	}
	defer postgresSession.Close()

	streamerStore := storage.NewStreamerStore(postgresSession)
	streamerRegistry := registry.New(streamerStore, metricsRegistry)

	w := ingest.NewStreamerIngestWorker(streamerRegistry, metricsRegistry, logger)

	sub, err := messageBus.Subscribe(bus.SubjectBroadcasterFanout, "streameringest", func(payload []byte) error {
		return w.HandleBroadcasterEvent(ctx, payload)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("streameringest: failed to subscribe to broadcaster fanout")
	}
	defer sub.Unsubscribe()

	go func() {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("streameringest: metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("streameringest: shutting down")
	cancel()
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
