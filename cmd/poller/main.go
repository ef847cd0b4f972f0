// Command poller runs the live-streamer poller: on a fixed schedule it
// fetches currently-live streamers and republishes the admitted subset
// to the broadcaster fan-out.
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
	"github.com/janovak/twitch-chat-ingestor/internal/logging"
	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
	"github.com/janovak/twitch-chat-ingestor/internal/platform"
	"github.com/janovak/twitch-chat-ingestor/internal/poller"
)

// Config is this process's full configuration.
type Config struct {
	Bus             bus.Config
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty       bool          `env:"LOG_PRETTY" envDefault:"false"`
	MetricsAddr     string        `env:"METRICS_ADDR" envDefault:":9100"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"2m"`
	PollFetchN      int           `env:"POLL_FETCH_N" envDefault:"5"`
	CapabilityCap   int           `env:"POLL_CAPABILITY_CAP" envDefault:"100000"`
}

// busPublisher adapts a bus.Bus into poller.Publisher, publishing the
// broadcaster tuple as JSON to the broadcaster fan-out.
type busPublisher struct {
	bus bus.Bus
}

func (p *busPublisher) PublishBroadcasterEvent(ctx context.Context, event model.BroadcasterEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, bus.SubjectBroadcasterFanout, payload)
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "poller"})
	metricsRegistry := metrics.New("poller")

	messageBus, err := bus.New(cfg.Bus, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("poller: failed to connect to bus")
	}
	defer messageBus.Close()

	platformClient := platform.NewClient()

	p := poller.New(poller.Config{
		Interval:      cfg.PollInterval,
		FetchN:        cfg.PollFetchN,
		CapabilityCap: cfg.CapabilityCap,
	}, platformClient, platformClient, &busPublisher{bus: messageBus}, metricsRegistry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("poller: metrics server failed")
		}
	}()

	go p.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("poller: shutting down")
	cancel()
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
