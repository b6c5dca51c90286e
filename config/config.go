// SPDX-License-Identifier: MIT

// Package config loads the stack configuration from YAML.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Interface describes one network interface to bring up.
type Interface struct {
	Name string `yaml:"name"`
	IP   string `yaml:"ip"`
	MTU  int    `yaml:"mtu"`
	Peer string `yaml:"peer"`
}

// Route describes one routing table entry. An empty gateway means the
// prefix is directly connected.
type Route struct {
	Prefix  string `yaml:"prefix"`
	Gateway string `yaml:"gateway"`
	Intf    string `yaml:"intf"`
}

// TCP tunes the connection engine.
type TCP struct {
	RTOMillis  int `yaml:"rto_ms"`
	MaxRetries int `yaml:"max_retries"`
	MSLMillis  int `yaml:"msl_ms"`
	TickMillis int `yaml:"tick_ms"`
}

// Config is the daemon configuration.
type Config struct {
	LogLevel    string      `yaml:"log_level"`
	MetricsAddr string      `yaml:"metrics_addr"`
	Interfaces  []Interface `yaml:"interfaces"`
	Routes      []Route     `yaml:"routes"`
	TCP         TCP         `yaml:"tcp"`
}

// Load reads and validates the YAML config at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Interfaces) == 0 {
		return fmt.Errorf("config: no interfaces defined")
	}
	names := make(map[string]bool, len(c.Interfaces))
	for _, i := range c.Interfaces {
		if i.Name == "" {
			return fmt.Errorf("config: interface without a name")
		}
		if _, err := netip.ParseAddr(i.IP); err != nil {
			return fmt.Errorf("config: interface %s: bad ip %q: %w", i.Name, i.IP, err)
		}
		names[i.Name] = true
	}
	for _, r := range c.Routes {
		if _, err := netip.ParsePrefix(r.Prefix); err != nil {
			return fmt.Errorf("config: route: bad prefix %q: %w", r.Prefix, err)
		}
		if r.Gateway != "" {
			if _, err := netip.ParseAddr(r.Gateway); err != nil {
				return fmt.Errorf("config: route %s: bad gateway %q: %w", r.Prefix, r.Gateway, err)
			}
		}
		if !names[r.Intf] {
			return fmt.Errorf("config: route %s references unknown interface %q", r.Prefix, r.Intf)
		}
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() logrus.Level {
	if c.LogLevel == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// RTO returns the configured retransmission timeout, or zero to select
// the engine default.
func (c *Config) RTO() time.Duration {
	return time.Duration(c.TCP.RTOMillis) * time.Millisecond
}

// MSL returns the configured maximum segment lifetime, or zero for the
// engine default.
func (c *Config) MSL() time.Duration {
	return time.Duration(c.TCP.MSLMillis) * time.Millisecond
}

// TickInterval returns the timer tick period for the run loop.
func (c *Config) TickInterval() time.Duration {
	if c.TCP.TickMillis <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.TCP.TickMillis) * time.Millisecond
}
