// Command clipcreator consumes the anomaly fan-out and, for each fresh
// anomaly, defers a clip request and retrieval, storing the result.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/janovak/twitch-chat-ingestor/internal/bus"
	"github.com/janovak/twitch-chat-ingestor/internal/clipworker"
	"github.com/janovak/twitch-chat-ingestor/internal/config"
	"github.com/janovak/twitch-chat-ingestor/internal/logging"
	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/platform"
	"github.com/janovak/twitch-chat-ingestor/internal/storage"
)

// Config is this process's full configuration.
type Config struct {
	Bus             bus.Config
	Cassandra       storage.CassandraConfig
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty       bool          `env:"LOG_PRETTY" envDefault:"false"`
	MetricsAddr     string        `env:"METRICS_ADDR" envDefault:":9103"`
	FreshnessWindow time.Duration `env:"CLIP_FRESHNESS_WINDOW" envDefault:"5s"`
	RequestDelay    time.Duration `env:"CLIP_REQUEST_DELAY" envDefault:"5s"`
	RetrieveDelay   time.Duration `env:"CLIP_RETRIEVE_DELAY" envDefault:"15s"`
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "clipcreator"})
	metricsRegistry := metrics.New("clipcreator")

	messageBus, err := bus.New(cfg.Bus, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("clipcreator: failed to connect to bus")
	}
	defer messageBus.Close()

	cassandraSession, err := storage.NewCassandraSession(cfg.Cassandra)
	if err != nil {
		logger.Fatal().Err(err).Msg("clipcreator: failed to connect to cassandra")
	}
	defer cassandraSession.Close()
	clipStore := storage.NewClipStore(cassandraSession)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clipClient := platform.NewClient()

	w := clipworker.New(clipworker.Config{
		FreshnessWindow: cfg.FreshnessWindow,
		RequestDelay:    cfg.RequestDelay,
		RetrieveDelay:   cfg.RetrieveDelay,
	}, ctx, clipClient, clipStore, metricsRegistry, logger)

	sub, err := messageBus.Subscribe(bus.SubjectAnomalyFanout, "clipcreator", func(payload []byte) error {
		return w.HandleAnomalyEvent(ctx, payload)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("clipcreator: failed to subscribe to anomaly fanout")
	}
	defer sub.Unsubscribe()

	go func() {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("clipcreator: metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("clipcreator: shutting down")
	cancel()
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
