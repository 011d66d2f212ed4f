package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		BaseCurrency string `toml:"base_currency"`
		AllowShort   bool   `toml:"allow_short"`
	} `toml:"app"`

	HTTP struct {
		Port        int      `toml:"port"`
		CorsOrigins []string `toml:"cors_origins"`
	} `toml:"http"`

	Storage struct {
		SQLite struct {
			Path string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`

		Redis struct {
			Enabled bool   `toml:"enabled"`
			Addr    string `toml:"addr"`
			DB      int    `toml:"db"`
			Prefix  string `toml:"prefix"`
			TTLSec  int    `toml:"ttl_sec"`
		} `toml:"redis"`
	} `toml:"storage"`

	MarketData struct {
		Enabled         bool   `toml:"enabled"`
		BaseURL         string `toml:"base_url"`
		WsURL           string `toml:"ws_url"`
		RefreshEveryMin int    `toml:"refresh_every_min"`
		HistoryDays     int    `toml:"history_days"`
	} `toml:"marketdata"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.BaseCurrency == "" {
		cfg.App.BaseCurrency = "USD"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if len(cfg.HTTP.CorsOrigins) == 0 {
		cfg.HTTP.CorsOrigins = []string{"*"}
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/folio.db"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "folio"
	}
	if cfg.Storage.Redis.TTLSec <= 0 {
		cfg.Storage.Redis.TTLSec = 300
	}
	if cfg.MarketData.RefreshEveryMin <= 0 {
		cfg.MarketData.RefreshEveryMin = 60
	}
	if cfg.MarketData.HistoryDays <= 0 {
		cfg.MarketData.HistoryDays = 365 * 5
	}
}

func validate(cfg *Config) error {
	cfg.App.BaseCurrency = strings.ToUpper(strings.TrimSpace(cfg.App.BaseCurrency))
	if len(cfg.App.BaseCurrency) != 3 {
		return fmt.Errorf("app.base_currency %q is not a 3-letter code", cfg.App.BaseCurrency)
	}

	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.MarketData.Enabled && strings.TrimSpace(cfg.MarketData.BaseURL) == "" {
		return errors.New("marketdata.base_url empty but enabled")
	}
	return nil
}
