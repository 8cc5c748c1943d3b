package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Log     LogConfig     `mapstructure:"log"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	PerPage int           `mapstructure:"per_page"`
}

type AuthConfig struct {
	Token           string `mapstructure:"token"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type CacheConfig struct {
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	Prefix        string        `mapstructure:"prefix"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type WatchConfig struct {
	Schedule  string  `mapstructure:"schedule"`
	Location  string  `mapstructure:"location"`
	RadiusKM  float64 `mapstructure:"radius_km"`
	MinScore  float64 `mapstructure:"min_score"`
	FoodOnly  bool    `mapstructure:"food_only"`
	EventType string  `mapstructure:"event_type"`
	Source    string  `mapstructure:"source"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Dir is the per-user state directory holding config.yaml and credentials.json.
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv("HACKPLATE_DIR")); v != "" {
		return v, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, ".hackplate"), nil
}

func DefaultPath() string {
	d, err := Dir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(d, "config.yaml")
}

// Load reads path (when present and envOnly is false), then applies
// HACKPLATE_* environment overrides on top of the defaults.
func Load(path string, envOnly bool) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("HACKPLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.per_page", 20)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.credentials_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", true)
	v.SetDefault("log.disable_stacktrace", true)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", "1m")
	v.SetDefault("cache.prefix", "hackplate:")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("watch.schedule", "@every 5m")
	v.SetDefault("watch.location", "")
	v.SetDefault("watch.radius_km", 50)
	v.SetDefault("watch.min_score", 0)
	v.SetDefault("watch.food_only", false)
	v.SetDefault("watch.event_type", "")
	v.SetDefault("watch.source", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")

	// The frontend used NEXT_PUBLIC_API_URL; honour it when no explicit override is set.
	if u := strings.TrimSpace(os.Getenv("NEXT_PUBLIC_API_URL")); u != "" && os.Getenv("HACKPLATE_API_BASE_URL") == "" {
		v.SetDefault("api.base_url", u)
	}

	if !envOnly && strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.BaseURL == "" {
		return Config{}, errors.New("api.base_url is empty")
	}
	if cfg.Auth.CredentialsFile == "" {
		if d, err := Dir(); err == nil {
			cfg.Auth.CredentialsFile = filepath.Join(d, "credentials.json")
		}
	}
	return cfg, nil
}
