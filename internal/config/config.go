package config

import (
	"bytes"
	_ "embed"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Router     RouterConfig     `mapstructure:"router"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Email      EmailConfig      `mapstructure:"email"`
	Conversion ConversionConfig `mapstructure:"conversion"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

type RouterConfig struct {
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	Parallel        bool          `mapstructure:"parallel"`
}

type WorkerConfig struct {
	Count int `mapstructure:"count"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type EmailConfig struct {
	From           string           `mapstructure:"from"`
	OpsInbox       string           `mapstructure:"ops_inbox"`
	AttemptTimeout time.Duration    `mapstructure:"attempt_timeout"`
	DedupTTL       time.Duration    `mapstructure:"dedup_ttl"`
	PendingTTL     time.Duration    `mapstructure:"dedup_pending_ttl"`
	Providers      []ProviderConfig `mapstructure:"providers"`
}

type ProviderConfig struct {
	Name      string        `mapstructure:"name"`
	Kind      string        `mapstructure:"kind"` // resend | sendgrid | log
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type ConversionConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	BaseURL           string  `mapstructure:"base_url"`
	APIVersion        string  `mapstructure:"api_version"`
	PixelID           string  `mapstructure:"pixel_id"`
	AccessToken       string  `mapstructure:"access_token"`
	AccessTokenEnv    string  `mapstructure:"access_token_env"`
	TestEventCode     string  `mapstructure:"test_event_code"`
	PurchaseEventName string  `mapstructure:"purchase_event_name"`
	DefaultCountry    string  `mapstructure:"default_country"`
	ActionSource      string  `mapstructure:"action_source"`
	EventSourceURL    string  `mapstructure:"event_source_url"`
	TimeoutMs         int     `mapstructure:"timeout_ms"`
	RatePerSec        float64 `mapstructure:"rate_per_sec"`
	Burst             int     `mapstructure:"burst"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (ONBOARD_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return Config{}, err
			}
		}
	}

	// env override (ONBOARD_EMAIL_OPS_INBOX, ...)
	v.SetEnvPrefix("ONBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
