package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port         int    `env:"PORT" envDefault:"3000"`
	InternalPort int    `env:"INTERNAL_PORT" envDefault:"3001"`
	PgURL        string `env:"PG_URL,required"`
	PgPoolMax    int    `env:"PG_POOL_MAX" envDefault:"10"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"json"`

	JWTSecret string `env:"JWT_SECRET,required"`

	StripeAPIKey   string        `env:"STRIPE_API_KEY,required"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"20s"`

	// ProcessingFee is the advisory fee (minor currency units) reported for
	// voluntary cancellations. Overdue cancellations always carry a zero fee.
	ProcessingFee int64 `env:"STORNO_PROCESSING_FEE" envDefault:"500"`

	// Kafka configuration. With no brokers configured, outbound events are
	// dropped by a no-op publisher.
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaEventsTopic string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"storno.events"`

	// OpenSearch decision audit index. Optional; disabled when no URLs are set.
	OpensearchURLs           []string `env:"OPENSEARCH_URLS" envSeparator:","`
	OpensearchIndexDecisions string   `env:"OPENSEARCH_INDEX_DECISIONS" envDefault:"storno-decisions"`
}

func New() (Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}

	return c, nil
}
