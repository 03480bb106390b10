package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Source kinds accepted in SOURCE_KIND.
const (
	SourceDir = "dir"
	SourceS3  = "s3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// InfluxDB sink.
	InfluxHost    string        `env:"INFLUX_HOST" validate:"required"`
	InfluxPort    int           `env:"INFLUX_PORT" validate:"min=1,max=65535"`
	InfluxToken   string        `env:"INFLUX_TOKEN" validate:"required"`
	InfluxOrg     string        `env:"INFLUX_ORG" validate:"required"`
	InfluxBucket  string        `env:"INFLUX_BUCKET" validate:"required"`
	InfluxTimeout time.Duration `env:"INFLUX_TIMEOUT" validate:"min=1s"`

	// Input files.
	SourceKind   string `env:"SOURCE_KIND" validate:"oneof=dir s3"`
	InputDir     string `env:"INPUT_DIR" validate:"required_if=SourceKind dir"`
	InputPattern string `env:"INPUT_PATTERN" validate:"required"`

	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION"`
	S3Bucket          string `env:"S3_BUCKET" validate:"required_if=SourceKind s3"`
	S3Prefix          string `env:"S3_PREFIX"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3UseSSL          bool   `env:"S3_USE_SSL"`

	// Optional record publishing to Kafka.
	KafkaBrokers []string `env:"KAFKA_BROKERS"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" validate:"required_if=KafkaEnabled true"`
	KafkaEnabled bool     `env:"KAFKA_ENABLED"`

	// Optional ingest ledger.
	DatabaseURL string `env:"DATABASE_URL"`

	ScheduleInterval time.Duration `env:"SCHEDULE_INTERVAL" validate:"gte=0"`
	HTTPAddr         string        `env:"HTTP_ADDR"`
	LogLevel         string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat        string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

var validate = validator.New()

// Load reads configuration from environment variables (optionally .env),
// applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	influxPort, err := parseInt("INFLUX_PORT", "8086")
	if err != nil {
		return nil, err
	}
	influxTimeout, err := parseDuration("INFLUX_TIMEOUT", "150s")
	if err != nil {
		return nil, err
	}
	interval, err := parseDuration("SCHEDULE_INTERVAL", "0s")
	if err != nil {
		return nil, err
	}
	useSSL, err := parseBool("S3_USE_SSL", true)
	if err != nil {
		return nil, err
	}

	kafkaTopic := os.Getenv("KAFKA_TOPIC")
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", kafkaTopic != "")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		InfluxHost:    sharedcfg.EnvOrDefault("INFLUX_HOST", "localhost"),
		InfluxPort:    influxPort,
		InfluxToken:   os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:     os.Getenv("INFLUX_ORG"),
		InfluxBucket:  os.Getenv("INFLUX_BUCKET"),
		InfluxTimeout: influxTimeout,

		SourceKind:   strings.ToLower(sharedcfg.EnvOrDefault("SOURCE_KIND", SourceDir)),
		InputDir:     sharedcfg.EnvOrDefault("INPUT_DIR", "data"),
		InputPattern: sharedcfg.EnvOrDefault("INPUT_PATTERN", "*.csv"),

		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          sharedcfg.EnvOrDefault("S3_REGION", "us-east-1"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Prefix:          os.Getenv("S3_PREFIX"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3UseSSL:          useSSL,

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   kafkaTopic,
		KafkaEnabled: kafkaEnabled,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		ScheduleInterval: interval,
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		ShutdownTimeout:  shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports violations by env var name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return c.validateCrossField()
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", envName(fe.StructField()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (c *Config) validateCrossField() error {
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	return nil
}

// InfluxURL is the base URL of the InfluxDB HTTP API.
func (c *Config) InfluxURL() string {
	return fmt.Sprintf("http://%s:%d", c.InfluxHost, c.InfluxPort)
}

// LedgerEnabled reports whether ingested files are tracked in Postgres.
func (c *Config) LedgerEnabled() bool {
	return c.DatabaseURL != ""
}

// envName resolves a Config field name to the variable it is read from.
func envName(field string) string {
	if f, ok := configFields[field]; ok {
		return f
	}
	return field
}

var configFields = func() map[string]string {
	t := reflect.TypeOf(Config{})
	m := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if env := f.Tag.Get("env"); env != "" {
			m[f.Name] = env
		}
	}
	return m
}()

func parseInt(key, def string) (int, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
