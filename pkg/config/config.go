// Package config loads worker configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Broker drivers.
const (
	DriverBeanstalk = "beanstalk"
	DriverSQL       = "sql"
)

// Environment variables read by LoadWithEnv.
const (
	EnvBeanstalkURL = "BEANSTALK_URL"
	EnvDriver       = "TUBEJOBS_DRIVER"
	EnvDSN          = "TUBEJOBS_DSN"
	EnvJobs         = "TUBEJOBS_JOBS"
	EnvMetricsAddr  = "TUBEJOBS_METRICS_ADDR"
	EnvLogLevel     = "TUBEJOBS_LOG_LEVEL"
)

var validate = validator.New()

// Config is the worker process configuration.
type Config struct {
	Broker struct {
		Driver string `yaml:"driver" default:"beanstalk" validate:"oneof=beanstalk sql"`
		URL    string `yaml:"url" default:"beanstalk://localhost:11300/" validate:"required_if=Driver beanstalk"`
		DSN    string `yaml:"dsn" default:"file:tubejobs.db?_busy_timeout=5000" validate:"required_if=Driver sql"`
	} `yaml:"broker"`
	Worker struct {
		Jobs           []string      `yaml:"jobs"`
		ReserveTimeout time.Duration `yaml:"reserve_timeout" default:"1s" validate:"gt=0"`
	} `yaml:"worker"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"text" validate:"oneof=text json"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr" default:":9090" validate:"required_if=Enabled true"`
		Path    string `yaml:"path" default:"/metrics" validate:"startswith=/"`
	} `yaml:"metrics"`
}

// Default returns a configuration holding only defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Load reads a YAML configuration file on top of the defaults. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvBeanstalkURL); v != "" {
		c.Broker.URL = v
	}
	if v := os.Getenv(EnvDriver); v != "" {
		c.Broker.Driver = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		c.Broker.DSN = v
	}
	if v := os.Getenv(EnvJobs); v != "" {
		c.Worker.Jobs = splitList(v)
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
		c.Metrics.Enabled = true
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// splitList splits a comma or space separated list.
func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' '
	})
}
