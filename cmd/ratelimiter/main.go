// Command ratelimiter runs the rate-limiter RPC service: a single
// in-memory fixed-window counter exposed to the listener's admission
// path.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/janovak/twitch-chat-ingestor/internal/config"
	"github.com/janovak/twitch-chat-ingestor/internal/logging"
	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/ratelimit"
	rpctransport "github.com/janovak/twitch-chat-ingestor/internal/rpc"
)

// Config is this process's full configuration.
type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty   bool   `env:"LOG_PRETTY" envDefault:"false"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9106"`
	RPCAddr     string `env:"RATE_LIMITER_ADDR" envDefault:":9300"`
	Limit       int    `env:"RATE_LIMIT" envDefault:"15"`
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "ratelimiter"})
	metricsRegistry := metrics.New("ratelimiter")

	limiter := ratelimit.New(cfg.Limit)
	service := ratelimit.NewService(limiter, metricsRegistry)

	go func() {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("ratelimiter: metrics server failed")
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
		logger.Fatal().Err(err).Msg("ratelimiter: rpc server stopped")
	case <-sigCh:
		logger.Info().Msg("ratelimiter: shutting down")
	}
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
