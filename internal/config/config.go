package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Security  SecurityConfig  `json:"security"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Redis     RedisConfig     `json:"redis"`
	Tracing   TracingConfig   `json:"tracing"`
	Logging   LoggingConfig   `json:"logging"`
	Advisory  AdvisoryConfig  `json:"advisory"`
	Engine    EngineConfig    `json:"engine"`
	Events    EventsConfig    `json:"events"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string   `json:"port" env:"SERVER_PORT"`
	Host            string   `json:"host" env:"SERVER_HOST"`
	ReadTimeout     Duration `json:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    Duration `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout Duration `json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Path string `json:"path" env:"DATABASE_PATH"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	MaxRequestBodySize int64 `json:"max_request_body_size" env:"MAX_REQUEST_BODY_SIZE"`
	// AllowedOrigins is a comma-separated CORS allow list.
	AllowedOrigins string `json:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// Origins splits AllowedOrigins.
func (s SecurityConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled" env:"RATE_LIMIT_ENABLED"`
	Rate    int  `json:"rate" env:"RATE_LIMIT_RATE"`
	Window  int  `json:"window" env:"RATE_LIMIT_WINDOW"` // in seconds
}

// RedisConfig enables the shared advisory gate and response cache. An empty
// Addr keeps both in process memory.
type RedisConfig struct {
	Addr      string `json:"addr" env:"REDIS_ADDR"`
	Password  string `json:"password" env:"REDIS_PASSWORD"`
	DB        int    `json:"db" env:"REDIS_DB"`
	KeyPrefix string `json:"key_prefix" env:"REDIS_KEY_PREFIX"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" env:"TRACING_ENABLED"`
	Endpoint    string  `json:"endpoint" env:"TRACING_ENDPOINT"`
	Environment string  `json:"environment" env:"TRACING_ENVIRONMENT"`
	SampleRatio float64 `json:"sample_ratio" env:"TRACING_SAMPLE_RATIO"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"` // "json" or "text"
}

// AdvisoryConfig configures the external advisory service.
type AdvisoryConfig struct {
	Enabled  bool     `json:"enabled" env:"ADVISORY_ENABLED"`
	APIKey   string   `json:"-" env:"ADVISORY_API_KEY"`
	Model    string   `json:"model" env:"ADVISORY_MODEL"`
	BaseURL  string   `json:"base_url" env:"ADVISORY_BASE_URL"`
	Timeout  Duration `json:"timeout" env:"ADVISORY_TIMEOUT"`
	Cooldown Duration `json:"cooldown" env:"ADVISORY_COOLDOWN"`
	CacheTTL Duration `json:"cache_ttl" env:"ADVISORY_CACHE_TTL"`
}

// EngineConfig holds the recommendation and budget rules.
type EngineConfig struct {
	MinOfferAmount    float64 `json:"min_offer_amount" env:"ENGINE_MIN_OFFER_AMOUNT"`
	SlightlyOffMargin float64 `json:"slightly_off_margin" env:"ENGINE_SLIGHTLY_OFF_MARGIN"`
	OffTrackMargin    float64 `json:"off_track_margin" env:"ENGINE_OFF_TRACK_MARGIN"`
	GeneralFallback   bool    `json:"general_fallback" env:"ENGINE_GENERAL_FALLBACK"`
	SynthesizedReward bool    `json:"synthesized_reward" env:"ENGINE_SYNTHESIZED_REWARD"`
}

// EventsConfig toggles domain event delivery.
type EventsConfig struct {
	Enabled bool `json:"enabled" env:"EVENTS_ENABLED"`
}

// Duration is a time.Duration that reads "5s"-style strings from both JSON
// and the environment.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "./payment_advisor.db",
		},
		Security: SecurityConfig{
			MaxRequestBodySize: 10 << 20,
			AllowedOrigins:     "*",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    100,
			Window:  60,
		},
		Redis: RedisConfig{
			KeyPrefix: "payment-advisor:",
		},
		Tracing: TracingConfig{
			Endpoint:    "http://localhost:14268/api/traces",
			Environment: "development",
			SampleRatio: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Advisory: AdvisoryConfig{
			Enabled:  true,
			Model:    "gemini-flash-latest",
			BaseURL:  "https://generativelanguage.googleapis.com",
			Timeout:  Duration(5 * time.Second),
			Cooldown: Duration(2 * time.Second),
			CacheTTL: Duration(10 * time.Minute),
		},
		Engine: EngineConfig{
			MinOfferAmount:    200,
			SlightlyOffMargin: 0.05,
			OffTrackMargin:    0.15,
			GeneralFallback:   true,
			SynthesizedReward: true,
		},
		Events: EventsConfig{
			Enabled: true,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the optional JSON
// file, then environment variables, each overriding the previous.
func LoadConfig(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Security.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("max request body size must be positive"))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			errs = append(errs, errors.New("rate limit rate must be positive"))
		}
		if c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("rate limit window must be positive"))
		}
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing endpoint is required when tracing is enabled"))
	}
	if c.Advisory.Timeout <= 0 {
		errs = append(errs, errors.New("advisory timeout must be positive"))
	}
	if c.Advisory.Cooldown < 0 {
		errs = append(errs, errors.New("advisory cooldown must not be negative"))
	}
	if c.Engine.MinOfferAmount < 0 {
		errs = append(errs, errors.New("minimum offer amount must not be negative"))
	}
	if c.Engine.SlightlyOffMargin < 0 || c.Engine.SlightlyOffMargin >= c.Engine.OffTrackMargin {
		errs = append(errs, errors.New("slightly-off margin must be non-negative and below the off-track margin"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
