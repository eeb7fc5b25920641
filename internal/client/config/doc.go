// Package config loads runtime configuration for the roomchat CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file selected via -c, -config or --config. The
//     decoder is chosen by extension (.yaml/.yml → YAML, anything else → JSON).
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-u string   node URL (app endpoint key), e.g. http://localhost:2428
//	-x string   default context id
//	-p string   application id
//	-t int      per-call timeout (seconds)
//	-d string   local database file
//	-r string   room type shown by the client: chat or voice
//	-l string   log level (debug, info, warn, error)
//	-m string   address to expose Prometheus metrics on (empty disables)
//
// # File schema
//
// Durations may be strings like "10s" or integer nanoseconds:
//
//	{
//	  "node_url": "http://localhost:2428",
//	  "context_id": "9f2d...",
//	  "call_timeout": "10s",
//	  "upload_timeout": "5m",
//	  "feed_ping_interval": "30s",
//	  "s3": {"endpoint": "http://localhost:9000", "bucket": "attachments"}
//	}
package config
