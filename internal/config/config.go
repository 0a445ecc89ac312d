package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backends
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

const envPrefix = "ONETASK"

// Config holds application configuration
type Config struct {
	Backend         string `mapstructure:"backend"`
	SupabaseURL     string `mapstructure:"supabase_url"`
	SupabaseAnonKey string `mapstructure:"supabase_anon_key"`
	DatabaseURL     string `mapstructure:"database_url"`
	JWTSecret       string `mapstructure:"jwt_secret"`

	RedisURL          string        `mapstructure:"redis_url"`
	RabbitMQURL       string        `mapstructure:"rabbitmq_url"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	ConflictDetection bool          `mapstructure:"conflict_detection"`

	FocusMinutes           int    `mapstructure:"focus_minutes"`
	BreakMinutes           int    `mapstructure:"break_minutes"`
	NotificationPermission string `mapstructure:"notification_permission"`

	ControlAddr           string   `mapstructure:"control_addr"`
	ControlAllowedOrigins []string `mapstructure:"control_allowed_origins"`
	ControlRate           string   `mapstructure:"control_rate"`

	OTELEnabled     bool    `mapstructure:"otel_enabled"`
	OTELEndpoint    string  `mapstructure:"otel_endpoint"`
	OTELInsecure    bool    `mapstructure:"otel_insecure"`
	OTELSampleRatio float64 `mapstructure:"otel_sample_ratio"`
	Debug           bool    `mapstructure:"debug"`

	DataDir string `mapstructure:"data_dir"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// DefaultPath returns ONETASK_CONFIG or ~/.config/onetask/config.yaml.
func DefaultPath() string {
	if p := os.Getenv(envPrefix + "_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "."
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "onetask")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendSupabase)
	v.SetDefault("supabase_url", "")
	v.SetDefault("supabase_anon_key", "")
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("rabbitmq_url", "")
	v.SetDefault("cache_ttl", "5m")
	v.SetDefault("conflict_detection", false)
	v.SetDefault("focus_minutes", 25)
	v.SetDefault("break_minutes", 5)
	v.SetDefault("notification_permission", "granted")
	v.SetDefault("control_addr", "")
	v.SetDefault("control_allowed_origins", []string{})
	v.SetDefault("control_rate", "60-M")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("otel_insecure", true)
	v.SetDefault("otel_sample_ratio", 1.0)
	v.SetDefault("debug", false)
	v.SetDefault("data_dir", defaultConfigDir())
}

// Load loads configuration from the default file and the environment
func Load() (*Config, error) {
	return LoadFile(DefaultPath())
}

// LoadFile merges defaults, the YAML file at path (if it exists) and
// ONETASK_* environment variables, in increasing precedence.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var file string
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		err := v.ReadInConfig()
		var notFound viper.ConfigFileNotFoundError
		switch {
		case err == nil:
			file = path
		case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = file
	cfg.ControlAllowedOrigins = splitList(cfg.ControlAllowedOrigins)

	if cfg.DatabaseURL == "" && cfg.Backend == BackendSQLite {
		cfg.DatabaseURL = filepath.Join(cfg.DataDir, "onetask.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings the selected backend needs are present.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("ONETASK_SUPABASE_URL is required for the supabase backend")
		}
		if c.SupabaseAnonKey == "" {
			return fmt.Errorf("ONETASK_SUPABASE_ANON_KEY is required for the supabase backend")
		}
	case BackendPostgres, BackendSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("ONETASK_DATABASE_URL is required for the %s backend", c.Backend)
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("ONETASK_JWT_SECRET is required for the %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q (want supabase, postgres or sqlite)", c.Backend)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative")
	}
	if c.OTELSampleRatio < 0 || c.OTELSampleRatio > 1 {
		return fmt.Errorf("otel_sample_ratio must be between 0 and 1")
	}
	if c.FocusMinutes <= 0 {
		return fmt.Errorf("focus_minutes must be positive")
	}
	switch c.NotificationPermission {
	case "granted", "denied", "undetermined":
	default:
		return fmt.Errorf("notification_permission must be granted, denied or undetermined")
	}
	return nil
}

// splitList accepts both YAML lists and a comma separated env value.
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
