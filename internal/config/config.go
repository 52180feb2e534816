// Package config содержит логику чтения конфигурации сервиса Comproum.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress       = "localhost:8080"
	defaultTokenTTL         = 24 * time.Hour
	defaultAddressLookupURL = "https://viacep.com.br"
	defaultRefreshInterval  = 5 * time.Second
)

// Config содержит параметры конфигурации сервиса Comproum.
// Пустой DatabaseURI включает хранилище в памяти, пустой MongoURI
// включает журнал истории в памяти, пустой AdvisoryURL отключает оценку цен.
type Config struct {
	RunAddress       string        `env:"RUN_ADDRESS"`
	DatabaseURI      string        `env:"DATABASE_URI"`
	JWTSecret        string        `env:"JWT_SECRET"`
	TokenTTL         time.Duration `env:"TOKEN_TTL"`
	AddressLookupURL string        `env:"ADDRESS_LOOKUP_URL"`
	AdvisoryURL      string        `env:"ADVISORY_URL"`
	MongoURI         string        `env:"MONGO_URI"`
	RefreshInterval  time.Duration `env:"REFRESH_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret for signing session tokens")
	flag.DurationVar(&cfg.TokenTTL, "t", defaultTokenTTL, "session token lifetime")
	flag.StringVar(&cfg.AddressLookupURL, "l", defaultAddressLookupURL, "postal code lookup service URL")
	flag.StringVar(&cfg.AdvisoryURL, "i", "", "price advisory service URL")
	flag.StringVar(&cfg.MongoURI, "m", "", "MongoDB URI for offer history")
	flag.DurationVar(&cfg.RefreshInterval, "p", defaultRefreshInterval, "view refresh interval")

	flag.Parse()

	override(&cfg.RunAddress, envCfg.RunAddress)
	override(&cfg.DatabaseURI, envCfg.DatabaseURI)
	override(&cfg.JWTSecret, envCfg.JWTSecret)
	override(&cfg.TokenTTL, envCfg.TokenTTL)
	override(&cfg.AddressLookupURL, envCfg.AddressLookupURL)
	override(&cfg.AdvisoryURL, envCfg.AdvisoryURL)
	override(&cfg.MongoURI, envCfg.MongoURI)
	override(&cfg.RefreshInterval, envCfg.RefreshInterval)

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", cfg.TokenTTL)
	}
	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", cfg.RefreshInterval)
	}

	return cfg, nil
}

func override[T comparable](dst *T, envValue T) {
	var zero T
	if envValue != zero {
		*dst = envValue
	}
}
