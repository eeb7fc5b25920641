package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/flagx"
)

var knownFlags = []string{"-u", "-x", "-p", "-t", "-d", "-r", "-l", "-m"}

// parseFlags populates selected Config fields from command-line flags.
// args are filtered with flagx.FilterArgs so -c/-config never reach this
// flag set. Parse errors panic.
func parseFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.NodeURL, "u", cfg.NodeURL, "node URL")
	fs.StringVar(&cfg.ContextID, "x", cfg.ContextID, "default context id")
	fs.StringVar(&cfg.ApplicationID, "p", cfg.ApplicationID, "application id")
	timeout := fs.Int("t", int(cfg.CallTimeout.Seconds()), "per-call timeout (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database file")
	fs.StringVar(&cfg.RoomType, "r", cfg.RoomType, "room type: chat or voice")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			cfg.CallTimeout = time.Duration(*timeout) * time.Second
		}
	})
}
