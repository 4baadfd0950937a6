package config

import (
	"encoding/json"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/determined-ai/gotp/pkg/check"
)

// FromSettings builds a configuration from a settings map, such as the merged settings of flags,
// environment variables and the configuration file. Unset values keep their defaults and unknown
// keys are rejected.
func FromSettings(settings map[string]interface{}) (*Config, error) {
	config := DefaultConfig()
	bs, err := json.Marshal(settings)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal configuration map into json bytes")
	}
	if err = yaml.Unmarshal(bs, config, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}
	return config, nil
}

// ParseYAML parses a YAML configuration file into a settings map.
func ParseYAML(bs []byte) (map[string]interface{}, error) {
	var settings map[string]interface{}
	if err := yaml.Unmarshal(bs, &settings); err != nil {
		return nil, errors.Wrap(err, "error unmarshal yaml configuration file")
	}
	return settings, nil
}

// Load builds and validates a configuration from a settings map.
func Load(settings map[string]interface{}) (*Config, error) {
	config, err := FromSettings(settings)
	if err != nil {
		return nil, err
	}
	if err := check.Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}
