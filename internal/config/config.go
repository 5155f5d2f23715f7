package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the broker.
type Config struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	DatabaseURL     string        `mapstructure:"database_url"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	LockRetries     int           `mapstructure:"lock_retries"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	JWTTTL          time.Duration `mapstructure:"jwt_ttl"`
	OrderTTL        time.Duration `mapstructure:"order_ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	WebhookTimeout  time.Duration `mapstructure:"webhook_timeout"`
	KafkaTopic      string        `mapstructure:"kafka_topic"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	LoginRateLimit  int           `mapstructure:"login_rate_limit"`
	LoginRateWindow time.Duration `mapstructure:"login_rate_window"`
	SeedDemoData    bool          `mapstructure:"seed_demo_data"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// KafkaBrokers is parsed from the comma-separated KAFKA_BROKERS.
	KafkaBrokers []string `mapstructure:"-"`
	RawBrokers   string   `mapstructure:"kafka_brokers"`
}

// Load reads configuration from environment variables and, when
// CONFIG_FILE names one, a YAML file. Environment variables win over the
// file. It returns an error naming the first invalid key.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.RawBrokers)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config_file", "")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("database_url", "")
	v.SetDefault("lock_timeout", "2s")
	v.SetDefault("lock_retries", 2)
	v.SetDefault("jwt_secret", "dev-secret-change-me")
	v.SetDefault("jwt_ttl", "1h")
	v.SetDefault("order_ttl", "0s")
	v.SetDefault("sweep_interval", "30s")
	v.SetDefault("webhook_timeout", "5s")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "brokerage.orders")
	v.SetDefault("redis_addr", "")
	v.SetDefault("login_rate_limit", 10)
	v.SetDefault("login_rate_window", "1m")
	v.SetDefault("seed_demo_data", false)
	v.SetDefault("read_timeout", "5s")
	v.SetDefault("write_timeout", "10s")
	v.SetDefault("idle_timeout", "60s")
	v.SetDefault("shutdown_timeout", "10s")
}

func (c *Config) validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", c.Port))
	}
	if !isValidLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel))
	}
	if c.LockRetries < 0 {
		errs = append(errs, fmt.Errorf("invalid LOCK_RETRIES: %d, must not be negative", c.LockRetries))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("invalid JWT_SECRET: must not be empty"))
	}
	if c.OrderTTL < 0 {
		errs = append(errs, fmt.Errorf("invalid ORDER_TTL: %s, must not be negative", c.OrderTTL))
	}
	if c.LoginRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid LOGIN_RATE_LIMIT: %d, must be positive", c.LoginRateLimit))
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("invalid KAFKA_TOPIC: required when KAFKA_BROKERS is set"))
	}

	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"LOCK_TIMEOUT", c.LockTimeout},
		{"JWT_TTL", c.JWTTTL},
		{"SWEEP_INTERVAL", c.SweepInterval},
		{"WEBHOOK_TIMEOUT", c.WebhookTimeout},
		{"LOGIN_RATE_WINDOW", c.LoginRateWindow},
		{"READ_TIMEOUT", c.ReadTimeout},
		{"WRITE_TIMEOUT", c.WriteTimeout},
		{"IDLE_TIMEOUT", c.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
	} {
		if d.val <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s: %s, must be positive", d.key, d.val))
		}
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
