package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentfleet.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTFLEET_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTFLEET_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AGENTFLEET_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AGENTFLEET_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AGENTFLEET_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AGENTFLEET_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AGENTFLEET_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "AGENTFLEET_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTFLEET_LOG_SERVICE")
	setInt(&cfg.Logging.Buffer, "AGENTFLEET_LOG_BUFFER")
	setInt(&cfg.Breaker.MaxFailures, "AGENTFLEET_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTFLEET_BREAKER_TIMEOUT")

	// Sandbox
	setString(&cfg.Sandbox.Image, "AGENTFLEET_SANDBOX_IMAGE")
	setString(&cfg.Sandbox.Network, "AGENTFLEET_SANDBOX_NETWORK")
	setString(&cfg.Sandbox.WorkspaceRoot, "AGENTFLEET_WORKSPACE_ROOT")
	setString(&cfg.Sandbox.ConfigDir, "AGENTFLEET_CONFIG_DIR")
	setDuration(&cfg.Sandbox.SettleInterval, "AGENTFLEET_SANDBOX_SETTLE")
	setDuration(&cfg.Sandbox.StopGrace, "AGENTFLEET_SANDBOX_STOP_GRACE")

	// Dispatch
	setString(&cfg.Dispatch.Command, "AGENTFLEET_DISPATCH_COMMAND")
	setDuration(&cfg.Dispatch.Timeout, "AGENTFLEET_DISPATCH_TIMEOUT")
	setInt(&cfg.Dispatch.OutputLimit, "AGENTFLEET_DISPATCH_OUTPUT_LIMIT")
	setInt64(&cfg.Dispatch.MaxConcurrent, "AGENTFLEET_DISPATCH_MAX_CONCURRENT")

	// Broadcast
	setDuration(&cfg.Broadcast.SnapshotInterval, "AGENTFLEET_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Broadcast.KeepaliveInterval, "AGENTFLEET_KEEPALIVE_INTERVAL")
	setInt(&cfg.Broadcast.TaskCap, "AGENTFLEET_SNAPSHOT_TASK_CAP")

	// Cache
	setInt64(&cfg.Cache.MaxSizeMB, "AGENTFLEET_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.InspectTTL, "AGENTFLEET_CACHE_INSPECT_TTL")

	// Analytics
	setInt(&cfg.Analytics.WindowDays, "AGENTFLEET_ANALYTICS_WINDOW_DAYS")
	setInt(&cfg.Analytics.TaskTailLimit, "AGENTFLEET_TASK_TAIL_LIMIT")

	// Telemetry / auth / secrets
	setString(&cfg.Telemetry.OTLPEndpoint, "AGENTFLEET_OTLP_ENDPOINT")
	setString(&cfg.Auth.APIKeyHash, "AGENTFLEET_API_KEY_HASH")
	setString(&cfg.Secrets.EnvPrefix, "AGENTFLEET_SECRETS_PREFIX")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Dispatch.Timeout <= 0 {
		return errors.New("dispatch.timeout must be positive")
	}
	if cfg.Dispatch.MaxConcurrent < 1 {
		return errors.New("dispatch.max_concurrent must be >= 1")
	}
	if cfg.Analytics.TaskTailLimit < 1 {
		return errors.New("analytics.task_tail_limit must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
