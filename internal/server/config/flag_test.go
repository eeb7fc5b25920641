package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	defaults := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", "127.0.0.1:9090", "-s", "secret", "-t", "1", "-r", "3",
				"-p", "app", "-x", "ctx", "-l", "debug",
			},
			expected: &Config{
				ListenAddr:                   "127.0.0.1:9090",
				SecretKey:                    "secret",
				AccessTokenValidityDuration:  1 * time.Minute,
				RefreshTokenValidityDuration: 3 * time.Minute,
				ApplicationID:                "app",
				ContextID:                    "ctx",
				LogLevel:                     "debug",
				LogFormat:                    "json",
			},
		},
		{
			name:     "no flags keep defaults",
			args:     []string{"cmd"},
			expected: defaults(),
		},
		{
			name:     "unknown flags are ignored",
			args:     []string{"cmd", "-u", "http://node", "-config", "x.json"},
			expected: defaults(),
		},
		{
			name:        "bad duration panics",
			args:        []string{"cmd", "-t", "soon"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := defaults()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
