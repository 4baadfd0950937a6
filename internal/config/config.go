package config

import (
	"encoding/json"
	"time"

	"github.com/determined-ai/gotp/pkg/actor"
	"github.com/determined-ai/gotp/pkg/check"
	"github.com/determined-ai/gotp/pkg/logger"
)

// DefaultConfig returns the default configuration of the gotp daemon.
func DefaultConfig() *Config {
	mailbox := actor.DefaultMailboxConfig()
	return &Config{
		ConfigFile: "",
		Log:        *logger.DefaultConfig(),
		Mailbox: MailboxConfig{
			Capacity:      mailbox.Capacity,
			Policy:        mailbox.Policy,
			BlockRetries:  mailbox.BlockRetries,
			BlockInterval: Duration(mailbox.BlockInterval),
		},
		Observability: ObservabilityConfig{
			EnablePrometheus: true,
		},
		DeadlockDetection: false,
		HTTP: HTTPConfig{
			Port: 8080,
		},
		ShutdownTimeout: Duration(10 * time.Second),
		Demo: DemoConfig{
			Enabled:     true,
			Workers:     4,
			FailEvery:   Duration(30 * time.Second),
			MaxRestarts: 3,
			Window:      Duration(time.Minute),
		},
	}
}

// Config is the configuration of the gotp daemon.
//
// It is populated, in the following order, by the configuration file, environment variables and
// command line arguments.
type Config struct {
	ConfigFile        string              `json:"config_file"`
	Log               logger.Config       `json:"log"`
	Mailbox           MailboxConfig       `json:"mailbox"`
	Observability     ObservabilityConfig `json:"observability"`
	DeadlockDetection bool                `json:"deadlock_detection"`
	HTTP              HTTPConfig          `json:"http"`
	ShutdownTimeout   Duration            `json:"shutdown_timeout"`
	Demo              DemoConfig          `json:"demo"`
}

// Printable returns a printable string.
func (c Config) Printable() ([]byte, error) {
	return json.Marshal(c)
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	return []error{
		check.GreaterThan(int64(c.ShutdownTimeout), 0, "shutdown_timeout must be positive"),
	}
}

// SystemOptions returns the actor system options the configuration selects. The monitor is
// chosen by the caller, since it depends on the metrics registry in use.
func (c Config) SystemOptions() []actor.Option {
	return []actor.Option{
		actor.WithMailbox(c.Mailbox.Actor()),
		actor.WithDeadlockDetection(c.DeadlockDetection),
		actor.WithLabels(logger.Context{"component": "actor"}),
	}
}

// MailboxConfig is the default mailbox configuration of the actors of the daemon.
type MailboxConfig struct {
	Capacity      int                  `json:"capacity"`
	Policy        actor.OverflowPolicy `json:"policy"`
	BlockRetries  uint64               `json:"block_retries"`
	BlockInterval Duration             `json:"block_interval"`
}

// Actor converts the configuration into an actor.MailboxConfig.
func (c MailboxConfig) Actor() actor.MailboxConfig {
	return actor.MailboxConfig{
		Capacity:      c.Capacity,
		Policy:        c.Policy,
		BlockRetries:  c.BlockRetries,
		BlockInterval: time.Duration(c.BlockInterval),
	}
}

// Validate implements the check.Validatable interface.
func (c MailboxConfig) Validate() []error {
	return c.Actor().Validate()
}

// ObservabilityConfig is the configuration for observability metrics.
type ObservabilityConfig struct {
	EnablePrometheus bool `json:"enable_prometheus"`
}

// HTTPConfig configures the HTTP server exposing metrics and the server routes.
type HTTPConfig struct {
	Port int `json:"port"`
}

// Validate implements the check.Validatable interface.
func (c HTTPConfig) Validate() []error {
	return []error{
		check.GreaterThan(c.Port, 0, "http port must be positive"),
		check.GreaterThan(65536, c.Port, "http port must be at most 65535"),
	}
}

// DemoConfig configures the demonstration supervision tree: a calculator server, an event source
// and a worker pool whose members fail periodically.
type DemoConfig struct {
	Enabled     bool     `json:"enabled"`
	Workers     int      `json:"workers"`
	FailEvery   Duration `json:"fail_every"`
	MaxRestarts int      `json:"max_restarts"`
	Window      Duration `json:"window"`
}

// Validate implements the check.Validatable interface.
func (c DemoConfig) Validate() []error {
	if !c.Enabled {
		return nil
	}
	return []error{
		check.GreaterThan(c.Workers, 0, "demo workers must be positive"),
		check.GreaterThanOrEqualTo(c.MaxRestarts, 0, "demo max_restarts must not be negative"),
		check.GreaterThan(int64(c.Window), 0, "demo window must be positive"),
		check.GreaterThan(int64(c.FailEvery), 0, "demo fail_every must be positive"),
	}
}
