package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/determined-ai/gotp/internal/config"
)

var v *viper.Viper

// viperKeyDelimiter marks nested values in the configuration. It is ".." rather than "." so that
// keys may contain dots.
const viperKeyDelimiter = ".."

//nolint:gochecknoinit
func init() {
	registerConfig()
}

type configKey []string

func (c configKey) EnvName() string {
	return "GOTP_" + strings.ReplaceAll(strings.ToUpper(c.FlagName()), "-", "_")
}

func (c configKey) AccessPath() string {
	return strings.ReplaceAll(strings.Join(c, viperKeyDelimiter), "-", "_")
}

func (c configKey) FlagName() string {
	return strings.Join(c, "-")
}

func registerString(flags *pflag.FlagSet, name configKey, value string, usage string) {
	flags.String(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerBool(flags *pflag.FlagSet, name configKey, value bool, usage string) {
	flags.Bool(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerInt(flags *pflag.FlagSet, name configKey, value int, usage string) {
	flags.Int(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerConfig() {
	v = viper.NewWithOptions(viper.KeyDelimiter(viperKeyDelimiter))
	v.SetTypeByDefaultValue(true)

	defaults := config.DefaultConfig()

	// Register flags and environment variables, and set default values for the flags.
	flags := rootCmd.Flags()
	name := func(components ...string) configKey { return components }

	registerString(flags, name("config-file"),
		defaults.ConfigFile, "location of config file")

	registerString(flags, name("log", "level"),
		defaults.Log.Level, "choose logging level from [trace, debug, info, warn, error, fatal]")
	registerBool(flags, name("log", "color"),
		defaults.Log.Color, "output logs in color")
	registerString(flags, name("log", "format"),
		defaults.Log.Format, "log format, text or json")

	registerInt(flags, name("mailbox", "capacity"),
		defaults.Mailbox.Capacity, "default mailbox capacity, 0 for unbounded")
	registerString(flags, name("mailbox", "policy"),
		defaults.Mailbox.Policy.String(),
		"mailbox overflow policy from [throw, block, drop_oldest, drop_newest]")

	registerBool(flags, name("observability", "enable-prometheus"),
		defaults.Observability.EnablePrometheus, "expose actor metrics on /metrics")
	registerBool(flags, name("deadlock-detection"),
		defaults.DeadlockDetection, "warn about call cycles between actors")

	registerInt(flags, name("http", "port"),
		defaults.HTTP.Port, "http server port")

	registerBool(flags, name("demo", "enabled"),
		defaults.Demo.Enabled, "run the demonstration supervision tree")
	registerInt(flags, name("demo", "workers"),
		defaults.Demo.Workers, "number of demo pool workers")
}
