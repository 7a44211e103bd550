package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if COURTMAP_CONFIG is set
//  3. env (prefix COURTMAP_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("COURTMAP_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: COURTMAP_ADDR, COURTMAP_RESULT_LIMIT, ...
	// Keys map like COURTMAP_RESULT_LIMIT -> result_limit, preserving
	// underscores to match the koanf tags on the struct.
	envProvider := env.Provider("COURTMAP_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "courtmap_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if cfg.ResultLimit <= 0 {
		return nil, fmt.Errorf("%w: result_limit must be positive", ErrInvalidConfig)
	}
	if cfg.CacheCapacity <= 0 {
		return nil, fmt.Errorf("%w: cache_capacity must be positive", ErrInvalidConfig)
	}
	return &cfg, nil
}
