package retry

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds retry configuration
type Config struct {
	Enabled      bool          `env:"RETRY_ENABLED" envDefault:"true"`
	MaxRetries   int           `env:"RETRY_MAX_RETRIES" envDefault:"10"`
	InitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"1s"`
	MaxDelay     time.Duration `env:"RETRY_MAX_DELAY" envDefault:"60s"`
}

// LoadConfig loads retry configuration from environment variables
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse retry config: %w", err)
	}
	return cfg, nil
}
