// Package config loads the relay's ambient settings: everything the
// positional CLI in cmd/server does not already cover. Values load in
// three layers, each overriding the last: file defaults (YAML/TOML),
// then environment variables via struct tags, then CLI flags applied
// by the caller.
package config

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the relay's ambient configuration.
type Config struct {
	DataDir       string `yaml:"data_dir" toml:"data_dir" env:"RELAY_DATA_DIR"`
	OperatorsFile string `yaml:"operators_file" toml:"operators_file" env:"RELAY_OPERATORS_FILE"`
	LinkSecret    string `yaml:"link_secret" toml:"link_secret" env:"RELAY_LINK_SECRET"`
	MetricsAddr   string `yaml:"metrics_addr" toml:"metrics_addr" env:"RELAY_METRICS_ADDR"`
	LogLevel      string `yaml:"log_level" toml:"log_level" env:"RELAY_LOG_LEVEL"`
	NetworkName   string `yaml:"network_name" toml:"network_name" env:"RELAY_NETWORK_NAME"`

	Source string `yaml:"-" toml:"-"`
}

// Load builds a Config from optional defaults, an optional config
// file (YAML or TOML, local path or http(s) URL), a ".env" file in
// the working directory, and environment-variable overrides, in that
// order — mirroring the layered loader the rest of this codebase's
// server entrypoints use.
func Load(source string) (*Config, error) {
	cfg := &Config{
		DataDir:       "./data",
		OperatorsFile: "./data/server_opers.txt",
		LinkSecret:    "changeme",
		MetricsAddr:   ":9090",
		LogLevel:      "info",
		NetworkName:   "ChatRelay",
		Source:        source,
	}

	if source != "" {
		if err := cfg.loadFromSource(source); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load() // optional; missing .env is not an error

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromSource(source string) error {
	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return fmt.Errorf("config: fetch %s: %w", source, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("config: fetch %s: status %s", source, resp.Status)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", source, err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", source, err)
		}
	}

	switch {
	case strings.HasSuffix(source, ".toml"):
		err = toml.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", source, err)
	}
	return nil
}
