// Package config loads process configuration from the environment.
package config

import "github.com/caarlos0/env/v11"

// ServerConfig configures the cultivar daemon.
type ServerConfig struct {
	DBPath      string `env:"DB_PATH" envDefault:"cultivar.db"`
	LibraryPath string `env:"LIBRARY_PATH" envDefault:"data/library.yaml"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	FacilityName      string  `env:"FACILITY_NAME" envDefault:"Greenhouse One"`
	Seed              uint64  `env:"SEED" envDefault:"0"`
	TickLengthMinutes float64 `env:"TICK_LENGTH_MINUTES" envDefault:"60"`
	TickIntervalMs    int     `env:"TICK_INTERVAL_MS" envDefault:"1000"`
	StartingCash      float64 `env:"STARTING_CASH" envDefault:"250000"`
	AutoSellHarvest   bool    `env:"AUTO_SELL_HARVEST" envDefault:"true"`

	SaveEveryTicks int64 `env:"SAVE_EVERY_TICKS" envDefault:"24"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadServer parses the daemon configuration from the environment.
func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
