// Package config handles configuration for the admin CLI: defaults, an
// optional JSON file and command-line flags, in that order.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the admin CLI.
//
// SecretKey is the server's JWT secret. Left empty, the CLI prompts for it
// without echo.
type Config struct {
	ServerEndpointAddr string
	SecretKey          string
	TokenValidity      time.Duration
	RequestTimeout     time.Duration
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.TokenValidity = time.Minute
	c.RequestTimeout = 5 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, os.Args[1:])
	parseFlags(cfg, os.Args[1:])
	return cfg
}
