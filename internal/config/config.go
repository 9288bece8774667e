// Package config loads the service configuration by layering defaults,
// an optional YAML file and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/opensource-health/materna/internal/domain"
)

// Load builds the configuration.
// Order of precedence (low -> high):
//  1. defaults (domain.DefaultConfig)
//  2. YAML file if MATERNA_CONFIG is set
//  3. environment variables (prefix MATERNA_)
//
// Env keys use a double underscore as the section separator, so
// MATERNA_SERVER__PORT maps to server.port and
// MATERNA_PREDICTION__MAX_BATCH_SIZE to prediction.max_batch_size.
func Load() (*domain.Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("MATERNA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("MATERNA_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "materna_")
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := domain.DefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	if cfg.Models.Dir == "" {
		return fmt.Errorf("models dir must not be empty")
	}
	if err := cfg.Prediction.Validate(); err != nil {
		return fmt.Errorf("prediction config: %w", err)
	}
	return nil
}
