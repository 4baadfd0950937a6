package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/determined-ai/gotp/internal/config"
	"github.com/determined-ai/gotp/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "gotp",
	Short: "run a supervised actor system",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRoot(); err != nil {
			log.Error(fmt.Sprintf("%+v", err))
			os.Exit(1)
		}
	},
}

func runRoot() error {
	cfg, err := initializeConfig()
	if err != nil {
		return err
	}

	printableConfig, err := cfg.Printable()
	if err != nil {
		return err
	}
	log.Infof("gotp configuration: %s", printableConfig)

	return run(context.Background(), cfg)
}

// initializeConfig returns the validated configuration populated from config file, environment
// variables, and command line flags, and also initializes global logging state based on those
// options.
func initializeConfig() (*config.Config, error) {
	// Fetch an initial config to get the config file path and read its settings into Viper.
	initialConfig, err := config.FromSettings(v.AllSettings())
	if err != nil {
		return nil, err
	}

	bs, err := readConfigFile(initialConfig.ConfigFile)
	if err != nil {
		return nil, err
	}
	if bs != nil {
		settings, err := config.ParseYAML(bs)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, errors.Wrap(err, "error merge configuration to viper")
		}
	}

	cfg, err := config.Load(v.AllSettings())
	if err != nil {
		return nil, err
	}
	if err := logger.SetLogrus(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(configPath string) ([]byte, error) {
	if configPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, errors.Wrap(err, "error finding configuration file")
	}
	bs, err := os.ReadFile(configPath) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "error reading configuration file")
	}
	return bs, nil
}
