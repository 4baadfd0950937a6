package logger

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/determined-ai/gotp/pkg/check"
)

// DefaultConfig returns the default configuration of logger.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Color:  true,
		Format: "text",
	}
}

// Config is the configuration of logger.
type Config struct {
	Level  string `json:"level"`
	Color  bool   `json:"color"`
	Format string `json:"format"`
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	var errs []error
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, check.Contains(c.Format, []interface{}{"text", "json"},
		"log format must be text or json"))
	return errs
}

// SetLogrus sets logrus globally.
func SetLogrus(c Config) error {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level: %s", c.Level)
	}

	logrus.SetLevel(level)
	if c.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return nil
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   c.Color,
		DisableColors: !c.Color,
	})
	return nil
}
