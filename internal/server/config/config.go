// Package config handles configuration for the development node,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the development node.
//
// Fields:
//   - ListenAddr: bind address for the JSON-RPC, admin and WebSocket endpoints.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Do not use test defaults in prod.
//   - AccessTokenValidityDuration / RefreshTokenValidityDuration: token lifetimes.
//   - ApplicationID / ContextID: the only application and context the node accepts.
//   - LogLevel / LogFormat: slog level and "text" or "json".
type Config struct {
	ListenAddr                   string
	SecretKey                    string
	AccessTokenValidityDuration  time.Duration
	RefreshTokenValidityDuration time.Duration
	ApplicationID                string
	ContextID                    string
	LogLevel                     string
	LogFormat                    string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":2428"
	c.SecretKey = "secretKey"
	c.AccessTokenValidityDuration = 5 * time.Minute
	c.RefreshTokenValidityDuration = 24 * time.Hour
	c.ApplicationID = "roomchat-app"
	c.ContextID = "roomchat-context"
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
