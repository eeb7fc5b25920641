package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/roomchat/internal/flagx"
	"github.com/dmitrijs2005/roomchat/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the DTO both JSON and YAML files decode into. Only fields
// present in the file override the current Config.
type FileConfig struct {
	NodeURL              *string         `json:"node_url" yaml:"node_url"`
	RPCPath              *string         `json:"rpc_path" yaml:"rpc_path"`
	WSPath               *string         `json:"ws_path" yaml:"ws_path"`
	ContextID            *string         `json:"context_id" yaml:"context_id"`
	ApplicationID        *string         `json:"application_id" yaml:"application_id"`
	CallTimeout          *timex.Duration `json:"call_timeout" yaml:"call_timeout"`
	UploadTimeout        *timex.Duration `json:"upload_timeout" yaml:"upload_timeout"`
	MaxCallsPerSecond    *float64        `json:"max_calls_per_second" yaml:"max_calls_per_second"`
	FeedPingInterval     *timex.Duration `json:"feed_ping_interval" yaml:"feed_ping_interval"`
	FeedRefreshPerSecond *float64        `json:"feed_refresh_per_second" yaml:"feed_refresh_per_second"`
	DatabasePath         *string         `json:"database_path" yaml:"database_path"`
	RoomType             *string         `json:"room_type" yaml:"room_type"`
	LogLevel             *string         `json:"log_level" yaml:"log_level"`
	LogFormat            *string         `json:"log_format" yaml:"log_format"`
	MetricsAddr          *string         `json:"metrics_addr" yaml:"metrics_addr"`
	S3                   *FileS3Config   `json:"s3" yaml:"s3"`
}

type FileS3Config struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Region    string `json:"region" yaml:"region"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
}

// parseFile overlays cfg with values from the file named by -c/-config.
// Read or decode errors panic; no flag means no changes.
func parseFile(cfg *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.NodeURL, fc.NodeURL)
	setString(&cfg.RPCPath, fc.RPCPath)
	setString(&cfg.WSPath, fc.WSPath)
	setString(&cfg.ContextID, fc.ContextID)
	setString(&cfg.ApplicationID, fc.ApplicationID)
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.RoomType, fc.RoomType)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)

	if fc.CallTimeout != nil {
		cfg.CallTimeout = fc.CallTimeout.Duration
	}
	if fc.UploadTimeout != nil {
		cfg.UploadTimeout = fc.UploadTimeout.Duration
	}
	if fc.FeedPingInterval != nil {
		cfg.FeedPingInterval = fc.FeedPingInterval.Duration
	}
	if fc.MaxCallsPerSecond != nil {
		cfg.MaxCallsPerSecond = *fc.MaxCallsPerSecond
	}
	if fc.FeedRefreshPerSecond != nil {
		cfg.FeedRefreshPerSecond = *fc.FeedRefreshPerSecond
	}

	if fc.S3 != nil {
		cfg.S3.Endpoint = fc.S3.Endpoint
		cfg.S3.Bucket = fc.S3.Bucket
		cfg.S3.AccessKey = fc.S3.AccessKey
		cfg.S3.SecretKey = fc.S3.SecretKey
		if fc.S3.Region != "" {
			cfg.S3.Region = fc.S3.Region
		}
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
