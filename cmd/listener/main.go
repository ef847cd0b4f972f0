// Command listener runs the chat-listener worker: it admits newly-live
// broadcasters under the rate limiter, joins/leaves their chat rooms,
// and republishes validated chat messages to the chat fan-out.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/janovak/twitch-chat-ingestor/internal/bus"
	"github.com/janovak/twitch-chat-ingestor/internal/config"
	"github.com/janovak/twitch-chat-ingestor/internal/listener"
	"github.com/janovak/twitch-chat-ingestor/internal/logging"
	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
	"github.com/janovak/twitch-chat-ingestor/internal/platform"
	"github.com/janovak/twitch-chat-ingestor/internal/ratelimit"
)

// Config is this process's full configuration.
type Config struct {
	Bus              bus.Config
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty        bool          `env:"LOG_PRETTY" envDefault:"false"`
	MetricsAddr      string        `env:"METRICS_ADDR" envDefault:":9101"`
	RateLimiterAddr  string        `env:"RATE_LIMITER_ADDR" envDefault:"localhost:9300"`
	RateLimiterDial  time.Duration `env:"RATE_LIMITER_DIAL_TIMEOUT" envDefault:"5s"`
	TopN             int           `env:"LISTENER_TOP_N" envDefault:"100"`
	CacheTTL         time.Duration `env:"LISTENER_CACHE_TTL" envDefault:"300s"`
	RetryTimeout     time.Duration `env:"LISTENER_RETRY_TIMEOUT" envDefault:"300s"`
	CacheSweep       time.Duration `env:"LISTENER_CACHE_SWEEP" envDefault:"1s"`
}

// busPublisher adapts a bus.Bus into listener.ChatPublisher, publishing
// normalized chat messages to the chat fan-out.
type busPublisher struct {
	bus bus.Bus
}

func (p *busPublisher) PublishChatMessage(ctx context.Context, msg model.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, bus.SubjectChatFanout, payload)
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "listener"})
	metricsRegistry := metrics.New("listener")

	messageBus, err := bus.New(cfg.Bus, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("listener: failed to connect to bus")
	}
	defer messageBus.Close()

	rateLimiterClient, err := ratelimit.Dial(cfg.RateLimiterAddr, cfg.RateLimiterDial, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("listener: failed to dial rate limiter")
	}
	defer rateLimiterClient.Close()

	platformSession := platform.NewClient()

	cache := listener.NewTTLCache(cfg.CacheSweep)
	defer cache.Close()

	l := listener.New(listener.Config{
		TopN:         cfg.TopN,
		CacheTTL:     cfg.CacheTTL,
		RetryTimeout: cfg.RetryTimeout,
	}, platformSession, rateLimiterClient, &busPublisher{bus: messageBus}, cache, metricsRegistry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := platformSession.Authenticate(ctx); err != nil {
		logger.Error().Err(err).Msg("listener: authenticate failed")
	}

	sub, err := messageBus.Subscribe(bus.SubjectBroadcasterFanout, "listener", func(payload []byte) error {
		return l.HandleBroadcasterEvent(ctx, payload)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("listener: failed to subscribe to broadcaster fanout")
	}
	defer sub.Unsubscribe()

	go l.RunEvictionLoop(ctx)
	go l.RunMessageLoop(ctx)

	go func() {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("listener: metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("listener: shutting down")
	cancel()
	_ = platformSession.Close()
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
