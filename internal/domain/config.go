package domain

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config holds the complete Materna configuration.
type Config struct {
	// Server settings
	Server ServerConfig `koanf:"server"`

	// Model artifact locations
	Models ModelsConfig `koanf:"models"`

	// Classification thresholds and batch limits
	Prediction PredictionConfig `koanf:"prediction"`

	// Component configurations
	Repository RepositoryConfig `koanf:"repository"`
	Cache      CacheConfig      `koanf:"cache"`
	EventBus   EventBusConfig   `koanf:"eventbus"`

	// Clinical alert rules, compiled at startup
	AlertRules []AlertRule `koanf:"alert_rules"`

	// Observability
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	ReadTimeout  int    `koanf:"read_timeout"`  // seconds
	WriteTimeout int    `koanf:"write_timeout"` // seconds
}

// ModelsConfig locates the serialized classifier bundles, one file per
// risk type, resolved relative to Dir unless absolute.
type ModelsConfig struct {
	Dir          string `koanf:"dir"`
	Sepsis       string `koanf:"sepsis"`
	Hypertension string `koanf:"hypertension"`
	Hemorrhage   string `koanf:"hemorrhage"`
}

// ArtifactPath resolves the artifact file for a risk type. Returns an
// error for risk types outside the closed set or unconfigured entries.
func (m ModelsConfig) ArtifactPath(rt RiskType) (string, error) {
	var name string
	switch rt {
	case RiskSepsis:
		name = m.Sepsis
	case RiskHypertension:
		name = m.Hypertension
	case RiskHemorrhage:
		name = m.Hemorrhage
	default:
		return "", fmt.Errorf("unknown risk type %q", rt)
	}
	if name == "" {
		return "", fmt.Errorf("no artifact configured for risk type %q", rt)
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	return filepath.Join(m.Dir, name), nil
}

// PredictionConfig carries the probability thresholds and batch limit.
// Risk bands are evaluated top-down with >=; the three bounds must be
// strictly descending so the bands partition [0,1].
type PredictionConfig struct {
	HighRisk     float64 `koanf:"high_risk"`     // alto
	ModerateRisk float64 `koanf:"moderate_risk"` // moderado
	LowRisk      float64 `koanf:"low_risk"`      // bajo

	HighConfidence float64 `koanf:"high_confidence"` // alta
	LowConfidence  float64 `koanf:"low_confidence"`  // media

	MaxBatchSize int `koanf:"max_batch_size"`
}

// Validate checks threshold ordering and limits.
func (p PredictionConfig) Validate() error {
	if !(p.HighRisk > p.ModerateRisk && p.ModerateRisk > p.LowRisk && p.LowRisk > 0) {
		return fmt.Errorf("risk thresholds must be strictly descending and positive: %g/%g/%g",
			p.HighRisk, p.ModerateRisk, p.LowRisk)
	}
	if !(p.HighConfidence > p.LowConfidence && p.LowConfidence > 0.5) {
		return fmt.Errorf("confidence bounds must satisfy high > low > 0.5: %g/%g",
			p.HighConfidence, p.LowConfidence)
	}
	if p.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", p.MaxBatchSize)
	}
	return nil
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `koanf:"driver"`

	// SQLite specific
	SQLitePath string `koanf:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `koanf:"postgres_host"`
	PostgresPort     int    `koanf:"postgres_port"`
	PostgresUser     string `koanf:"postgres_user"`
	PostgresPassword string `koanf:"postgres_password"`
	PostgresDB       string `koanf:"postgres_db"`
	PostgresSSLMode  string `koanf:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// CacheConfig holds configuration for the prediction result cache.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `koanf:"type"`

	// Local LRU cache settings
	LocalMaxSize int           `koanf:"local_max_size"`
	LocalTTL     time.Duration `koanf:"local_ttl"`

	// Redis settings
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `koanf:"type"`

	// Channel settings
	ChannelBufferSize int `koanf:"channel_buffer_size"`

	// NATS settings
	NATSUrl           string `koanf:"nats_url"`
	NATSToken         string `koanf:"nats_token"`
	NATSMaxReconnects int    `koanf:"nats_max_reconnects"`
	NATSReconnectWait int    `koanf:"nats_reconnect_wait"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// DefaultConfig returns the default configuration: local artifacts,
// SQLite persistence, in-memory cache and channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Models: ModelsConfig{
			Dir:          "./modelos_entrenados",
			Sepsis:       "riesgo_sepsis.json",
			Hypertension: "riesgo_hipertension_gestacional.json",
			Hemorrhage:   "riesgo_hemorragia_posparto.json",
		},
		Prediction: PredictionConfig{
			HighRisk:       0.7,
			ModerateRisk:   0.5,
			LowRisk:        0.3,
			HighConfidence: 0.8,
			LowConfidence:  0.6,
			MaxBatchSize:   100,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./materna.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
