package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Email      EmailConfig      `mapstructure:"email"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
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
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

// DispatcherConfig tunes the event→jobs dispatcher worker.
type DispatcherConfig struct {
	WorkerCount int `mapstructure:"worker_count"`
}

// RunnerConfig tunes the job runner worker (poll loop).
type RunnerConfig struct {
	WorkerCount       int           `mapstructure:"worker_count"`
	BatchSize         int           `mapstructure:"batch_size"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	IdleDelay         time.Duration `mapstructure:"idle_delay"`
	LivenessThreshold time.Duration `mapstructure:"liveness_threshold"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

type RetryConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	Factor        float64       `mapstructure:"factor"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	JitterPercent int           `mapstructure:"jitter_percent"`
}

type BreakerConfig struct {
	FailThreshold int           `mapstructure:"fail_threshold"`
	CoolDown      time.Duration `mapstructure:"cool_down"`
}

type WebhookConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	SigningSecret   string        `mapstructure:"signing_secret"`
	SignatureHeader string        `mapstructure:"signature_header"`
	TimestampHeader string        `mapstructure:"timestamp_header"`
}

type EmailConfig struct {
	SMTPAddr string `mapstructure:"smtp_addr"` // host:port; empty = log-only delivery
	From     string `mapstructure:"from"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (ZOOHUB_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (ZOOHUB_*)
	v.SetEnvPrefix("ZOOHUB")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
