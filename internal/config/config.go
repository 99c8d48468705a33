package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	DefaultLocationID string `envconfig:"DEFAULT_LOCATION_ID" default:"main-store"`

	TaxRate                float64 `envconfig:"TAX_RATE" default:"0.16"`
	MaxWeight              float64 `envconfig:"MAX_WEIGHT_KG" default:"50"`
	MaxGramWeight          float64 `envconfig:"MAX_GRAM_WEIGHT_KG" default:"5"`
	LowStockThreshold      float64 `envconfig:"LOW_STOCK_THRESHOLD" default:"5"`
	LoyaltyDollarsPerPoint float64 `envconfig:"LOYALTY_DOLLARS_PER_POINT" default:"10"`

	ReportCacheTTLSeconds int `envconfig:"REPORT_CACHE_TTL_SECONDS" default:"300"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		return Config{}, fmt.Errorf("TAX_RATE must be in [0, 1), got %g", cfg.TaxRate)
	}
	if cfg.MaxWeight <= 0 || cfg.MaxGramWeight <= 0 {
		return Config{}, fmt.Errorf("weight ceilings must be greater than 0")
	}
	if cfg.ReportCacheTTLSeconds < 1 {
		cfg.ReportCacheTTLSeconds = 300
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
