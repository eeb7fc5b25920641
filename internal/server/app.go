// Package server runs a standalone development node: the in-memory node
// from devnode served over a real listener, so the CLI can be exercised
// without a remote deployment. It handles graceful shutdown on SIGINT,
// SIGTERM and SIGQUIT.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/devnode"
	"github.com/dmitrijs2005/roomchat/internal/logging"
	"github.com/dmitrijs2005/roomchat/internal/server/config"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	node   *devnode.Node
}

func NewApp(c *config.Config) (*App, error) {
	if c.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)

	node := devnode.New(
		devnode.WithSecret([]byte(c.SecretKey)),
		devnode.WithAccessTTL(c.AccessTokenValidityDuration),
		devnode.WithRefreshTTL(c.RefreshTokenValidityDuration),
		devnode.WithIDs(c.ApplicationID, c.ContextID),
		devnode.WithLogger(logger.With("module", "node")),
	)

	return &App{config: c, logger: logger, node: node}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Handler returns the node's routes wrapped in request logging.
func (app *App) Handler() http.Handler {
	return accessLog(app.logger.With("module", "http"), app.node.Handler())
}

// Serve accepts connections on l until ctx is done.
func (app *App) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: app.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping node...")
		app.node.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting node",
		"address", l.Addr().String(),
		"application_id", app.config.ApplicationID,
		"context_id", app.config.ContextID,
	)

	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	l, err := net.Listen("tcp", app.config.ListenAddr)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	if err := app.Serve(ctx, l); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

}
