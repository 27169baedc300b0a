// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

// Package config loads service configuration from a YAML file overlaid with
// command-line flags.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds every recognized option.
type Config struct {
	HTTP struct {
		Addr string `koanf:"addr"`
	} `koanf:"http"`

	Storage struct {
		DSN string `koanf:"dsn"`
	} `koanf:"storage"`

	Mail struct {
		From     string `koanf:"from"`
		Host     string `koanf:"host"`
		Port     int    `koanf:"port"`
		Username string `koanf:"username"`
		Password string `koanf:"password"`
	} `koanf:"mail"`

	Events struct {
		Pool struct {
			Core int `koanf:"core"`
			Max  int `koanf:"max"`
		} `koanf:"pool"`
		Queue struct {
			Capacity int `koanf:"capacity"`
		} `koanf:"queue"`
		Task struct {
			Timeout time.Duration `koanf:"timeout"`
		} `koanf:"task"`
	} `koanf:"events"`

	Security struct {
		PasswordHashCost int `koanf:"password_hash_cost"`
	} `koanf:"security"`

	Observability struct {
		Addr string `koanf:"addr"`
	} `koanf:"observability"`

	Log struct {
		Format string `koanf:"format"`
	} `koanf:"log"`

	Directory struct {
		CacheTTL time.Duration `koanf:"cache_ttl"`
	} `koanf:"directory"`
}

// Default returns the built-in defaults; the event pool sizing matches the
// reference deployment (core=5, max=10, queue=100).
func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8080"
	cfg.Mail.Port = 587
	cfg.Events.Pool.Core = 5
	cfg.Events.Pool.Max = 10
	cfg.Events.Queue.Capacity = 100
	cfg.Events.Task.Timeout = 30 * time.Second
	cfg.Security.PasswordHashCost = 10
	cfg.Observability.Addr = "127.0.0.1:9100"
	cfg.Log.Format = "json"
	cfg.Directory.CacheTTL = time.Minute
	return cfg
}

// Load reads the optional YAML file at path, then overlays flag values.
// Both arguments may be empty/nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}
	return cfg, nil
}
