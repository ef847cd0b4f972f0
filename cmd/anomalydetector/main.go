// Command anomalydetector consumes the chat fan-out, maintains
// per-broadcaster time-bucket statistics, and publishes anomaly events.
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
	"github.com/janovak/twitch-chat-ingestor/internal/detector"
	"github.com/janovak/twitch-chat-ingestor/internal/logging"
	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// Config is this process's full configuration.
type Config struct {
	Bus           bus.Config
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty     bool          `env:"LOG_PRETTY" envDefault:"false"`
	MetricsAddr   string        `env:"METRICS_ADDR" envDefault:":9102"`
	BucketSeconds int64         `env:"DETECTOR_BUCKET_SECONDS" envDefault:"5"`
	IdleTTL       time.Duration `env:"DETECTOR_IDLE_TTL" envDefault:"10m"`
	EvictInterval time.Duration `env:"DETECTOR_EVICT_INTERVAL" envDefault:"1m"`
}

// busPublisher adapts a bus.Bus into detector.Publisher, publishing
// anomaly events to the anomaly fan-out.
type busPublisher struct {
	bus bus.Bus
}

func (p *busPublisher) PublishAnomaly(ctx context.Context, event model.AnomalyEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, bus.SubjectAnomalyFanout, payload)
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "anomalydetector"})
	metricsRegistry := metrics.New("anomalydetector")

	messageBus, err := bus.New(cfg.Bus, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("anomalydetector: failed to connect to bus")
	}
	defer messageBus.Close()

	d := detector.New(cfg.BucketSeconds, cfg.IdleTTL, &busPublisher{bus: messageBus}, metricsRegistry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := messageBus.Subscribe(bus.SubjectChatFanout, "anomalydetector", func(payload []byte) error {
		return d.HandleChatMessage(ctx, payload)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("anomalydetector: failed to subscribe to chat fanout")
	}
	defer sub.Unsubscribe()

	go func() {
		ticker := time.NewTicker(cfg.EvictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				d.EvictIdle(now)
			}
		}
	}()

	go func() {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("anomalydetector: metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("anomalydetector: shutting down")
	cancel()
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
