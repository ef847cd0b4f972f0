// Command chatdb runs the chat-DB RPC facade in front of the storage
// adapter.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/janovak/twitch-chat-ingestor/internal/chatdb"
	"github.com/janovak/twitch-chat-ingestor/internal/config"
	"github.com/janovak/twitch-chat-ingestor/internal/logging"
	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	rpctransport "github.com/janovak/twitch-chat-ingestor/internal/rpc"
	"github.com/janovak/twitch-chat-ingestor/internal/storage"
)

// Config is this process's full configuration.
type Config struct {
	Cassandra   storage.CassandraConfig
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty   bool   `env:"LOG_PRETTY" envDefault:"false"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9107"`
	RPCAddr     string `env:"CHATDB_ADDR" envDefault:":9301"`
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "chatdb"})
	metricsRegistry := metrics.New("chatdb")

	cassandraSession, err := storage.NewCassandraSession(cfg.Cassandra)
	if err != nil {
		logger.Fatal().Err(err).Msg("chatdb: failed to connect to cassandra")
	}
	defer cassandraSession.Close()

	chatStore := storage.NewChatStore(cassandraSession)
	clipStore := storage.NewClipStore(cassandraSession)
	service := chatdb.NewService(chatStore, clipStore, metricsRegistry, logger)

	go func() {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("chatdb: metrics server failed")
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- rpctransport.Serve(cfg.RPCAddr, service, logger)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		logger.Fatal().Err(err).Msg("chatdb: rpc server stopped")
	case <-sigCh:
		logger.Info().Msg("chatdb: shutting down")
	}
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
