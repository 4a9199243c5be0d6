package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AuthMode string

const (
	AuthModeSharedSecret AuthMode = "shared_secret"
	AuthModeJWT          AuthMode = "jwt"
)

const (
	BackpressureDrop  = "drop"
	BackpressureClose = "close"
)

type AuthConfig struct {
	Mode        AuthMode      `mapstructure:"mode"`
	Secret      string        `mapstructure:"secret"`
	TokenLeeway time.Duration `mapstructure:"token_leeway"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

type CacheConfig struct {
	TTL                    time.Duration `mapstructure:"ttl"`
	MaxCandidatesPerSender int           `mapstructure:"max_candidates_per_sender"`
}

type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// RateLimitConfig bounds inbound frames per connection. Messages 0 disables it.
type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Window   time.Duration `mapstructure:"window"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	LogLevel     string        `mapstructure:"log_level"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	Backpressure string        `mapstructure:"backpressure"`

	Auth  AuthConfig      `mapstructure:"auth"`
	Cache CacheConfig     `mapstructure:"cache"`
	Sweep SweepConfig     `mapstructure:"sweep"`
	Rate  RateLimitConfig `mapstructure:"rate_limit"`
}

const envPrefix = "RELAY"

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("backpressure", BackpressureDrop)

	v.SetDefault("auth.mode", string(AuthModeJWT))
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_leeway", "60s")
	v.SetDefault("auth.token_ttl", "720h")

	v.SetDefault("cache.ttl", "48h")
	v.SetDefault("cache.max_candidates_per_sender", 512)

	v.SetDefault("sweep.interval", "1h")

	v.SetDefault("rate_limit.messages", 100)
	v.SetDefault("rate_limit.window", "1s")
}

// Load reads file (or config/config.<CONFIG_ENV>.yaml when file is empty),
// applies RELAY_* environment overrides and validates the result.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if file == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", file).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Auth.Mode {
	case AuthModeSharedSecret, AuthModeJWT:
	default:
		errs = append(errs, fmt.Errorf("unsupported auth.mode %q", c.Auth.Mode))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required (RELAY_AUTH_SECRET)"))
	}
	if c.Auth.TokenLeeway < 0 {
		errs = append(errs, errors.New("auth.token_leeway must not be negative"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Cache.MaxCandidatesPerSender < 0 {
		errs = append(errs, errors.New("cache.max_candidates_per_sender must not be negative"))
	}
	if c.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("sweep.interval must be positive"))
	}
	if c.Rate.Messages < 0 {
		errs = append(errs, errors.New("rate_limit.messages must not be negative"))
	}
	if c.Rate.Messages > 0 && c.Rate.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, errors.New("read_limit must be positive"))
	}
	if c.PingPeriod <= 0 || c.WriteWait <= 0 {
		errs = append(errs, errors.New("ping_period and write_wait must be positive"))
	}
	switch c.Backpressure {
	case BackpressureDrop, BackpressureClose:
	default:
		errs = append(errs, fmt.Errorf("unsupported backpressure policy %q", c.Backpressure))
	}
	return errors.Join(errs...)
}

// PongWait is how long a connection may stay silent before it is dropped.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}
