package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// config is durablevmctl's own small settings file — never the
// coordinator's. It is loaded once at startup from --config (default
// durablevmctl.yaml in the working directory, missing is not an error).
type config struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	FramesDir string `yaml:"framesDir"`
}

func defaultConfig() config {
	return config{LogLevel: "info", LogFormat: "text", FramesDir: "."}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("durablevmctl: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("durablevmctl: parse config %s: %w", path, err)
	}
	return cfg, nil
}
