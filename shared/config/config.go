package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Transport kinds
const (
	TransportSNSSQS = "sns_sqs"
	TransportRedis  = "redis"
	TransportMemory = "memory"
)

// Storage kinds
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	ServiceName string    `mapstructure:"service_name"`
	Env         string    `mapstructure:"env"`
	Debug       bool      `mapstructure:"debug"`
	Server      Server    `mapstructure:"server"`
	Database    Database  `mapstructure:"database"`
	Transport   Transport `mapstructure:"transport"`
	AWS         AWS       `mapstructure:"aws"`
	Redis       Redis     `mapstructure:"redis"`
	Telemetry   Telemetry `mapstructure:"telemetry"`
	Saga        Saga      `mapstructure:"saga"`
	Outcome     Outcome   `mapstructure:"outcome"`
}

type Server struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Database struct {
	Kind         string `mapstructure:"kind"`
	URL          string `mapstructure:"url"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type Transport struct {
	Kind string `mapstructure:"kind"`
}

type AWS struct {
	Region            string `mapstructure:"region"`
	Endpoint          string `mapstructure:"endpoint"`
	SNSTopicArn       string `mapstructure:"sns_topic_arn"`
	SQSQueueURL       string `mapstructure:"sqs_queue_url"`
	Workers           int32  `mapstructure:"workers"`
	VisibilityTimeout int32  `mapstructure:"visibility_timeout"`
}

type Redis struct {
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	Stream        string        `mapstructure:"stream"`
	Group         string        `mapstructure:"group"`
	Consumer      string        `mapstructure:"consumer"`
	Workers       int           `mapstructure:"workers"`
	MaxDeliveries int64         `mapstructure:"max_deliveries"`
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle"`
}

type Telemetry struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Saga holds the stuck-booking watchdog settings
type Saga struct {
	WatchdogSchedule string        `mapstructure:"watchdog_schedule"`
	StuckAfter       time.Duration `mapstructure:"stuck_after"`
	SweepBatchSize   int           `mapstructure:"sweep_batch_size"`
}

// Outcome configures the simulated provider decisions
type Outcome struct {
	SuccessRate float64 `mapstructure:"success_rate"`
}

// Service describes the defaults a binary starts from
type Service struct {
	Name               string
	EnvPrefix          string
	Port               string
	SuccessRate        float64
	ConsumerGroup      string
	DefaultSQSQueueURL string
}

// ReadConfig loads the service configuration. Values come from, in order of
// precedence: environment (prefixed), an optional <env>.json file, defaults.
func ReadConfig(service Service) (*Config, error) {
	// a missing .env file is fine outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName(getConfigName())
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join("config", strings.TrimSuffix(service.Name, "-service")))
	if dir, ok := callerDir(); ok {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(service.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, service)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks settings that would otherwise fail late at runtime
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportSNSSQS, TransportRedis, TransportMemory:
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}

	switch c.Database.Kind {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown database kind %q", c.Database.Kind)
	}

	if c.Outcome.SuccessRate < 0 || c.Outcome.SuccessRate > 1 {
		return fmt.Errorf("outcome.success_rate must be within [0,1], got %v", c.Outcome.SuccessRate)
	}

	if c.Saga.StuckAfter < 0 {
		return fmt.Errorf("saga.stuck_after must not be negative")
	}

	return nil
}

func getConfigName() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "local"
	}
	return env
}

func callerDir() (string, bool) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", false
	}
	return filepath.Dir(filename), true
}

func setDefaults(v *viper.Viper, service Service) {
	v.SetDefault("service_name", service.Name)
	v.SetDefault("env", getEnv("ENV", "local"))
	v.SetDefault("debug", false)

	v.SetDefault("server.port", getEnv("PORT", service.Port))
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.kind", StoragePostgres)
	v.SetDefault("database.url", os.Getenv("DATABASE_URL"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "travel_booking")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 20)

	v.SetDefault("transport.kind", TransportSNSSQS)

	v.SetDefault("aws.region", getEnv("AWS_DEFAULT_REGION", "us-east-1"))
	v.SetDefault("aws.endpoint", getEnv("AWS_ENDPOINT_URL", "http://localhost:4566"))
	v.SetDefault("aws.sns_topic_arn", getEnv("SNS_TOPIC_ARN", "arn:aws:sns:us-east-1:000000000000:booking-saga-events"))
	v.SetDefault("aws.sqs_queue_url", service.DefaultSQSQueueURL)
	v.SetDefault("aws.workers", 30)
	v.SetDefault("aws.visibility_timeout", 30)

	v.SetDefault("redis.addr", getEnv("REDIS_ADDR", "localhost:6379"))
	v.SetDefault("redis.stream", "booking-saga-events")
	v.SetDefault("redis.group", service.ConsumerGroup)
	v.SetDefault("redis.consumer", hostname(service.Name))
	v.SetDefault("redis.workers", 8)
	v.SetDefault("redis.max_deliveries", 10)
	v.SetDefault("redis.claim_min_idle", 30*time.Second)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.otlp_endpoint", getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"))

	v.SetDefault("saga.watchdog_schedule", "@every 1m")
	v.SetDefault("saga.stuck_after", 15*time.Minute)
	v.SetDefault("saga.sweep_batch_size", 100)

	v.SetDefault("outcome.success_rate", service.SuccessRate)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func hostname(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}

// GetDatabaseURL constructs database URL from config
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}
