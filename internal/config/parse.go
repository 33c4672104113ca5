package config

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes YAML content over base and validates the result.
//
// Unknown keys are rejected so typos surface instead of silently using defaults.
func Parse(content []byte, base Config) (Config, []Warning, error) {
	cfg := base
	if strings.TrimSpace(string(content)) != "" {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, nil, err
		}
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}
