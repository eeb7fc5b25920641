package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/buildinfo"
	"github.com/dmitrijs2005/roomchat/internal/client/cli"
	"github.com/dmitrijs2005/roomchat/internal/client/client"
	"github.com/dmitrijs2005/roomchat/internal/client/config"
	"github.com/dmitrijs2005/roomchat/internal/client/metrics"
	"github.com/dmitrijs2005/roomchat/internal/logging"
	"github.com/gorilla/mux"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg := config.LoadConfig()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	var opts []client.Option
	if cfg.MetricsAddr != "" {
		m := metrics.New()
		opts = append(opts, client.WithMetrics(m))
		srv := serveMetrics(ctx, cfg.MetricsAddr, m, logger)
		defer shutdown(srv)
	}

	c, err := client.Build(ctx, cfg, logger, opts...)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}
	defer c.Close()

	app := cli.NewApp(c.Session, c.Identity, os.Stdin, os.Stdout)
	app.Run(ctx)

}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger logging.Logger) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics server stopped", "error", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
