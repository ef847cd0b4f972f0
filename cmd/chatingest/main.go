// Command chatingest consumes the chat fan-out and batches writes into
// partitioned storage.
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
	"github.com/janovak/twitch-chat-ingestor/internal/storage"
)

// Config is this process's full configuration.
type Config struct {
	Bus         bus.Config
	Cassandra   storage.CassandraConfig
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty   bool   `env:"LOG_PRETTY" envDefault:"false"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9104"`
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "chatingest"})
	metricsRegistry := metrics.New("chatingest")

	messageBus, err := bus.New(cfg.Bus, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("chatingest: failed to connect to bus")
	}
	defer messageBus.Close()

	cassandraSession, err := storage.NewCassandraSession(cfg.Cassandra)
	if err != nil {
		logger.Fatal().Err(err).Msg("chatingest: failed to connect to cassandra")
	}
	defer cassandraSession.Close()
	chatStore := storage.NewChatStore(cassandraSession)

	w := ingest.NewChatIngestWorker(chatStore, metricsRegistry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := messageBus.Subscribe(bus.SubjectChatFanout, "chatingest", func(payload []byte) error {
		return w.HandleChatMessage(ctx, payload)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("chatingest: failed to subscribe to chat fanout")
	}
	defer sub.Unsubscribe()

	go func() {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("chatingest: metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("chatingest: shutting down")
	cancel()
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
