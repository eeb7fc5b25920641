package client

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/roomchat/internal/client/auth"
	"github.com/dmitrijs2005/roomchat/internal/client/config"
	"github.com/dmitrijs2005/roomchat/internal/client/credentials"
	"github.com/dmitrijs2005/roomchat/internal/client/feed"
	"github.com/dmitrijs2005/roomchat/internal/client/identity"
	"github.com/dmitrijs2005/roomchat/internal/client/localdb"
	"github.com/dmitrijs2005/roomchat/internal/client/metrics"
	"github.com/dmitrijs2005/roomchat/internal/client/pinning"
	"github.com/dmitrijs2005/roomchat/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/roomchat/internal/client/retry"
	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
	"github.com/dmitrijs2005/roomchat/internal/client/rpc"
	"github.com/dmitrijs2005/roomchat/internal/client/session"
	"github.com/dmitrijs2005/roomchat/internal/filex"
	"github.com/dmitrijs2005/roomchat/internal/logging"
)

// Client is a fully wired client stack.
type Client struct {
	Session  *session.Machine
	Identity *identity.LocalProvider
	Metrics  *metrics.Metrics

	db *sql.DB
}

type options struct {
	httpClient   *http.Client
	uploadClient *http.Client
	metrics      *metrics.Metrics
}

type Option func(*options)

// WithHTTPClient replaces the client used for JSON-RPC and admin calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithUploadHTTPClient replaces the client used for attachment uploads.
func WithUploadHTTPClient(c *http.Client) Option {
	return func(o *options) { o.uploadClient = c }
}

// WithMetrics enables collection on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Build wires the client described by cfg.
func Build(ctx context.Context, cfg *config.Config, log logging.Logger, opts ...Option) (*Client, error) {
	o := resolveOptions(cfg, opts)
	if log == nil {
		log = logging.Discard()
	}

	roomType, err := rooms.ParseRoomType(cfg.RoomType)
	if err != nil {
		return nil, err
	}

	if err := filex.EnsureParentDir(cfg.DatabasePath); err != nil {
		return nil, err
	}
	db, err := localdb.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("local database: %w", err)
	}
	repo := metadata.NewSQLiteRepository(db)

	store := credentials.NewStore(repo, log)
	if err := store.Init(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("restore credential: %w", err)
	}

	gw := rpc.NewHTTPGateway(store,
		rpc.WithHTTPClient(o.httpClient),
		rpc.WithPath(cfg.RPCPath),
		rpc.WithTimeout(cfg.CallTimeout),
		rpc.WithRateLimit(cfg.MaxCallsPerSecond),
		rpc.WithMetrics(o.metrics),
		rpc.WithLogger(log),
	)
	authClient := auth.NewClient(store, o.httpClient, o.metrics, log)
	policy := retry.New(gw, authClient, store, o.metrics, log)
	svc := rooms.NewService(rpc.NewBuilder(store, cfg.ContextID), policy)
	provider := identity.NewLocalProvider(repo, log)

	deps := session.Deps{
		Rooms:       svc,
		Identity:    provider,
		Auth:        authClient,
		Credentials: store,
		AuthEvents:  policy,
		Feeds:       feedFactory(cfg, store, o.metrics, log),
		Logger:      log,
	}
	if cfg.S3.Enabled() {
		deps.Pinning = pinning.NewS3Service(cfg.S3, o.uploadClient, log)
	}

	m := session.New(session.Config{
		NodeURL:       cfg.NodeURL,
		ApplicationID: cfg.ApplicationID,
		ContextID:     cfg.ContextID,
		RoomType:      roomType,
	}, deps)

	return &Client{Session: m, Identity: provider, Metrics: o.metrics, db: db}, nil
}

// resolveOptions fills in the HTTP clients opts left unset. Uploads get a
// client of their own so the short per-call timeout never cuts off a
// transfer.
func resolveOptions(cfg *config.Config, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.CallTimeout}
	}
	if o.uploadClient == nil {
		o.uploadClient = &http.Client{Timeout: cfg.UploadTimeout}
	}
	return o
}

func feedFactory(cfg *config.Config, store *credentials.Store, m *metrics.Metrics, log logging.Logger) session.FeedFactory {
	tokens := feed.TokenFunc(func() string {
		c, _ := store.Read()
		return c.AccessToken
	})
	return func(room string) (session.Feed, error) {
		f, err := feed.New(feed.Options{
			NodeURL:          cfg.NodeURL,
			Path:             cfg.WSPath,
			PingInterval:     cfg.FeedPingInterval,
			RefreshPerSecond: cfg.FeedRefreshPerSecond,
			Tokens:           tokens,
			Metrics:          m,
			Logger:           log.With("room", room),
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

// Close stops the session and closes the local database.
func (c *Client) Close() error {
	c.Session.Close()
	return c.db.Close()
}
