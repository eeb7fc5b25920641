package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/roomchat/internal/flagx"
	"github.com/dmitrijs2005/roomchat/internal/timex"
)

// JsonConfig is the DTO a JSON config file decodes into. Durations accept
// strings such as "5m" or integer nanoseconds. Absent fields keep their
// current value.
type JsonConfig struct {
	ListenAddr                   *string         `json:"listen_addr"`
	SecretKey                    *string         `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	ApplicationID                *string         `json:"application_id"`
	ContextID                    *string         `json:"context_id"`
	LogLevel                     *string         `json:"log_level"`
	LogFormat                    *string         `json:"log_format"`
}

// parseJson loads the file named by -c or -config into config. No flag
// means no changes; unreadable or invalid files panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.ListenAddr, c.ListenAddr)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.ApplicationID, c.ApplicationID)
	setString(&config.ContextID, c.ContextID)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
}

func setString(dst, v *string) {
	if v != nil {
		*dst = *v
	}
}
