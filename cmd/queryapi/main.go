// Command queryapi runs the HTTP query surface in front of the chat-DB
// RPC facade.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/janovak/twitch-chat-ingestor/internal/chatdb"
	"github.com/janovak/twitch-chat-ingestor/internal/config"
	"github.com/janovak/twitch-chat-ingestor/internal/logging"
	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/queryapi"
)

// Config is this process's full configuration.
type Config struct {
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty          bool          `env:"LOG_PRETTY" envDefault:"false"`
	MetricsAddr        string        `env:"METRICS_ADDR" envDefault:":9108"`
	HTTPAddr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseAddr       string        `env:"DATABASE_GRPC_SERVER" envDefault:"localhost:9301"`
	DatabaseDialTimeout time.Duration `env:"DATABASE_DIAL_TIMEOUT" envDefault:"5s"`
	RateLimitPerSecond float64       `env:"HTTP_RATE_LIMIT_PER_SECOND" envDefault:"20"`
	RateLimitBurst     int           `env:"HTTP_RATE_LIMIT_BURST" envDefault:"40"`
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "queryapi"})
	metricsRegistry := metrics.New("queryapi")

	dbClient, err := chatdb.Dial(cfg.DatabaseAddr, cfg.DatabaseDialTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("queryapi: failed to dial chatdb")
	}
	defer dbClient.Close()

	server := queryapi.NewServer(queryapi.Config{
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	}, dbClient, metricsRegistry, logger)

	mux := http.NewServeMux()
	server.Routes(mux)
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("queryapi: http server stopped")
		}
	case <-sigCh:
		logger.Info().Msg("queryapi: shutting down")
		_ = httpServer.Close()
	}
}
