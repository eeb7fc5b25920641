package config

import (
	"os"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/common"
)

// DefaultUploadTimeout bounds attachment uploads, which outlast a JSON-RPC
// call by far.
const DefaultUploadTimeout = 5 * time.Minute

// S3Config addresses the S3-compatible bucket used to pin message attachments.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether attachments can be uploaded.
func (s S3Config) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// Config holds runtime settings for the roomchat CLI.
type Config struct {
	NodeURL       string
	RPCPath       string
	WSPath        string
	ContextID     string
	ApplicationID string

	CallTimeout          time.Duration
	UploadTimeout        time.Duration
	MaxCallsPerSecond    float64
	FeedPingInterval     time.Duration
	FeedRefreshPerSecond float64

	DatabasePath string
	RoomType     string

	LogLevel    string
	LogFormat   string
	MetricsAddr string

	S3 S3Config
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.NodeURL = "http://localhost:2428"
	c.RPCPath = "/jsonrpc"
	c.WSPath = "/ws"
	c.CallTimeout = common.DefaultCallTimeout
	c.UploadTimeout = DefaultUploadTimeout
	c.FeedPingInterval = 30 * time.Second
	c.FeedRefreshPerSecond = 4
	c.DatabasePath = "roomchat.db"
	c.RoomType = "chat"
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.S3.Region = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if given) and command-line flags. Later sources take
// precedence over earlier ones. Invalid input panics.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg, os.Args[1:])
	parseFlags(cfg, os.Args[1:])
	return cfg
}
