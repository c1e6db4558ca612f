// Package config loads service configuration from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"disputedesk/casenumber"
)

const envPrefix = "DISPUTEDESK"

type DatabaseConfig struct {
	URL              string        `mapstructure:"url"`
	MaxConns         int32         `mapstructure:"max_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

type CaseNumberConfig struct {
	Prefix      string `mapstructure:"prefix"`
	Length      int    `mapstructure:"length"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type AuditConfig struct {
	// Sink is one of "log", "kafka" or "none".
	Sink  string      `mapstructure:"sink"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the top-level service configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	CaseNumber CaseNumberConfig `mapstructure:"casenumber"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Log        LogConfig        `mapstructure:"log"`
}

// Allocator converts the case number section for casenumber.New.
func (c CaseNumberConfig) Allocator() casenumber.Config {
	return casenumber.Config{
		Prefix:      c.Prefix,
		Length:      c.Length,
		MaxAttempts: c.MaxAttempts,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 16)
	v.SetDefault("database.statement_timeout", 5*time.Second)
	v.SetDefault("casenumber.prefix", casenumber.DefaultPrefix)
	v.SetDefault("casenumber.length", casenumber.DefaultLength)
	v.SetDefault("casenumber.max_attempts", casenumber.DefaultMaxAttempts)
	v.SetDefault("audit.sink", "log")
	v.SetDefault("audit.kafka.brokers", []string{})
	v.SetDefault("audit.kafka.topic", "dispute.audit")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads path (when non-empty and present) and overlays DISPUTEDESK_*
// environment variables. DATABASE_URL is honoured for the database URL.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return Config{}, fmt.Errorf("config: bind database url: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	if c.CaseNumber.MaxAttempts < 1 {
		return fmt.Errorf("config: casenumber.max_attempts must be at least 1, got %d", c.CaseNumber.MaxAttempts)
	}
	if c.CaseNumber.Length < 4 || c.CaseNumber.Length > casenumber.MaxLength {
		return fmt.Errorf("config: casenumber.length must be within 4..%d, got %d", casenumber.MaxLength, c.CaseNumber.Length)
	}
	if strings.TrimSpace(c.CaseNumber.Prefix) == "" {
		return fmt.Errorf("config: casenumber.prefix must not be blank")
	}

	switch c.Audit.Sink {
	case "log", "none":
	case "kafka":
		if len(c.Audit.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: audit.kafka.brokers required for kafka sink")
		}
		if c.Audit.Kafka.Topic == "" {
			return fmt.Errorf("config: audit.kafka.topic required for kafka sink")
		}
	default:
		return fmt.Errorf("config: unknown audit.sink %q", c.Audit.Sink)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}

	return nil
}
