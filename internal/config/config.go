package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/blob"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/db"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/llm"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/tracing"
)

// DefaultPath is read when CONFIG_PATH is unset. A missing file there is not an error.
const DefaultPath = "./config/studio.yaml"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  db.Config       `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	LLM       llm.Config      `mapstructure:"llm"`
	Storage   blob.Config     `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   tracing.Config  `mapstructure:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Static    StaticConfig    `mapstructure:"static"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type RedisConfig struct {
	Enabled        bool                    `mapstructure:"enabled"`
	Addr           string                  `mapstructure:"addr"`
	Password       string                  `mapstructure:"password"`
	DB             int                     `mapstructure:"db"`
	CircuitBreaker circuitbreaker.Settings `mapstructure:"circuit_breaker"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig covers the research submission guards
type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Requests       int           `mapstructure:"requests"`
	Window         time.Duration `mapstructure:"window"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type StaticConfig struct {
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	// research calls can take the full llm timeout
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(100<<20))
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	v.SetDefault("database.driver", db.DriverSQLite)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "aim")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "aim_studio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.idle_connections", 5)
	v.SetDefault("database.max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.health_interval", 30*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.backend", llm.BackendVertex)
	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.project", "")
	v.SetDefault("llm.location", "us-central1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("llm.timeout", 90*time.Second)

	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.public_read", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "aim-studio")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests", 10)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.idempotency_ttl", 24*time.Hour)

	v.SetDefault("static.dir", "./static")
}

// Names used by existing deployments, checked before the derived SECTION_KEY form
var legacyEnv = map[string][]string{
	"server.port":       {"PORT"},
	"llm.project":       {"GCP_PROJECT", "GOOGLE_CLOUD_PROJECT"},
	"llm.location":      {"VERTEX_AI_LOCATION"},
	"llm.api_key":       {"GEMINI_API_KEY"},
	"storage.bucket":    {"GCS_BUCKET"},
	"database.host":     {"POSTGRES_HOST"},
	"database.port":     {"POSTGRES_PORT"},
	"database.user":     {"POSTGRES_USER"},
	"database.password": {"POSTGRES_PASSWORD"},
	"database.database": {"POSTGRES_DB"},
	"redis.addr":        {"REDIS_ADDR"},
}

// ResolvePath returns CONFIG_PATH or DefaultPath, and whether it was set explicitly
func ResolvePath() (string, bool) {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p, true
	}
	return DefaultPath, false
}

// Load reads configuration from path (or ResolvePath when empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path, explicit = ResolvePath()
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envs := append([]string{strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if explicit {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q unsupported", c.Database.Driver))
	}
	switch strings.ToLower(c.LLM.Backend) {
	case llm.BackendVertex, llm.BackendGemini:
	default:
		problems = append(problems, fmt.Sprintf("llm.backend %q unsupported", c.LLM.Backend))
	}
	if c.LLM.Timeout <= 0 {
		problems = append(problems, "llm.timeout must be positive")
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		problems = append(problems, "ratelimit.requests and ratelimit.window must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
