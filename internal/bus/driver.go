package bus

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/janovak/twitch-chat-ingestor/internal/bus/kafkabus"
	"github.com/janovak/twitch-chat-ingestor/internal/bus/natsbus"
)

// Config selects and configures one of the two backends at process
// start via BUS_DRIVER ("nats", the default, or "kafka").
type Config struct {
	Driver          string   `env:"BUS_DRIVER" envDefault:"nats"`
	NATSURL         string   `env:"BUS_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NATSStreamName  string   `env:"BUS_NATS_STREAM" envDefault:"CHATPIPE"`
	KafkaBrokers    []string `env:"BUS_KAFKA_BROKERS" envSeparator:"," envDefault:"127.0.0.1:9092"`
}

// New builds the Bus named by cfg.Driver.
func New(cfg Config, logger zerolog.Logger) (Bus, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "nats":
		return natsbus.New(natsbus.Config{
			URL:        cfg.NATSURL,
			StreamName: cfg.NATSStreamName,
		}, logger)
	case "kafka":
		return kafkabus.New(kafkabus.Config{Brokers: cfg.KafkaBrokers}, logger)
	default:
		return nil, fmt.Errorf("bus: unknown driver %q", cfg.Driver)
	}
}
