package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env       string `env:"ENV,default=dev"`
	BaseURL   string `env:"BASE_URL,default=http://localhost:8080"`
	DataDir   string `env:"DATA_DIR,default=."`
	SecretKey string `env:"SECRET_KEY,required"`
	Server    struct {
		Port        string `env:"PORT,default=8080"`
		MetricsPort string `env:"METRICS_PORT,default=8081"`
		Origins     string `env:"ALLOWED_ORIGINS,default=*"`
	}
	Auth struct {
		SaltRounds                      int `env:"SALT_ROUNDS,default=10"`
		EmailConfirmationTimeoutSeconds int `env:"EMAIL_CONFIRMATION_TIMEOUT_SECONDS,default=86400"`
		SessionTTLSeconds               int `env:"SESSION_TTL_SECONDS,default=3600"`
	}
}

func Load() (*Config, error) {
	config := &Config{}
	if err := envconfig.Process(context.Background(), config); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "dev"
}

func (c *Config) DataDirectory() string {
	return c.DataDir
}

func (c *Config) EmailConfirmationTimeout() time.Duration {
	return time.Duration(c.Auth.EmailConfirmationTimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Auth.SessionTTLSeconds) * time.Second
}
