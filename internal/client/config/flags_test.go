package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"-u", "http://node:9", "-x", "ctx", "-p", "app", "-t", "5", "-d", "x.db", "-r", "voice", "-l", "debug", "-m", ":9100"},
			expected: &Config{NodeURL: "http://node:9", ContextID: "ctx", ApplicationID: "app", CallTimeout: 5 * time.Second,
				DatabasePath: "x.db", RoomType: "voice", LogLevel: "debug", MetricsAddr: ":9100"},
		},
		{
			name:     "config file flag is not ours",
			args:     []string{"-c", "cfg.json", "-u", "http://node:9"},
			expected: &Config{NodeURL: "http://node:9"},
		},
		{name: "incorrect timeout", args: []string{"-t", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(cfg, tt.args) })
				return
			}
			require.NotPanics(t, func() { parseFlags(cfg, tt.args) })
			assert.Empty(t, cmp.Diff(tt.expected, cfg))
		})
	}
}

func TestParseFlags_TimeoutUntouchedWhenAbsent(t *testing.T) {
	cfg := &Config{CallTimeout: 1500 * time.Millisecond}
	parseFlags(cfg, []string{"-u", "http://node"})
	assert.Equal(t, 1500*time.Millisecond, cfg.CallTimeout)
}
