// Package config loads the optional server-identity overlay described in
// spec §4.I: ServerName and NetworkName only, since port and password are
// mandatory CLI positionals and everything else the original presbrey/pkg
// config supported (TLS, web portal, bot API, operators, plugins) is out of
// this server's scope.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Config is the file-loadable identity overlay. Server.Host/Port/Password
// stay CLI-only per spec §6 and are deliberately absent here.
type Config struct {
	Server struct {
		Name    string `yaml:"name" toml:"name" json:"name" env:"IRCD_SERVER_NAME"`
		Network string `yaml:"network" toml:"network" json:"network" env:"IRCD_NETWORK"`
	} `yaml:"server" toml:"server" json:"server"`
}

// Load reads an optional config file (format inferred from extension,
// defaulting to YAML) and layers IRCD_-prefixed environment overrides on
// top via caarlos0/env. An empty path skips the file, leaving the built-in
// defaults ("ircserv" / "ircserv-net") under the environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Server.Name = "ircserv"
	cfg.Server.Network = "ircserv-net"

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch {
	case strings.HasSuffix(path, ".toml"):
		err = toml.Unmarshal(data, c)
	case strings.HasSuffix(path, ".json"):
		err = json.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
