package session

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/roomchat/internal/client/auth"
	"github.com/dmitrijs2005/roomchat/internal/client/credentials"
	"github.com/dmitrijs2005/roomchat/internal/client/feed"
	"github.com/dmitrijs2005/roomchat/internal/client/identity"
	"github.com/dmitrijs2005/roomchat/internal/client/localdb"
	"github.com/dmitrijs2005/roomchat/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/roomchat/internal/client/retry"
	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
	"github.com/dmitrijs2005/roomchat/internal/client/rpc"
	"github.com/dmitrijs2005/roomchat/internal/devnode"
	"github.com/dmitrijs2005/roomchat/internal/logging"
	"github.com/stretchr/testify/require"
)

// client is one user's full stack talking to a shared fake node.
type client struct {
	machine *Machine
	store   *credentials.Store
	rooms   *rooms.Service
}

type clientOption func(*Config, *Deps)

func withRoomType(t rooms.RoomType) clientOption {
	return func(c *Config, _ *Deps) { c.RoomType = t }
}

func withFeeds(f FeedFactory) clientOption {
	return func(_ *Config, d *Deps) { d.Feeds = f }
}

func withPinning(p Pinner) clientOption {
	return func(_ *Config, d *Deps) { d.Pinning = p }
}

func newClient(t *testing.T, node *devnode.Node, srv *httptest.Server, opts ...clientOption) *client {
	t.Helper()
	ctx := context.Background()
	log := logging.Discard()

	db, err := localdb.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := credentials.NewStore(nil, log)
	authClient := auth.NewClient(store, srv.Client(), nil, log)
	gw := rpc.NewHTTPGateway(store, rpc.WithHTTPClient(srv.Client()))
	policy := retry.New(gw, authClient, store, nil, log)
	svc := rooms.NewService(rpc.NewBuilder(store, node.ContextID), policy)

	cfg := Config{
		NodeURL:       srv.URL,
		ApplicationID: node.ApplicationID,
		ContextID:     node.ContextID,
	}
	deps := Deps{
		Rooms:       svc,
		Identity:    identity.NewLocalProvider(metadata.NewSQLiteRepository(db), log),
		Auth:        authClient,
		Credentials: store,
		AuthEvents:  policy,
		Feeds: func(string) (Feed, error) {
			f, err := feed.New(feed.Options{
				NodeURL: srv.URL,
				Tokens: feed.TokenFunc(func() string {
					c, _ := store.Read()
					return c.AccessToken
				}),
				Logger: log,
			})
			if err != nil {
				return nil, err
			}
			return f, nil
		},
		Logger: log,
	}
	for _, o := range opts {
		o(&cfg, &deps)
	}

	m := New(cfg, deps)
	t.Cleanup(m.Close)
	return &client{machine: m, store: store, rooms: svc}
}

// signup logs in with a fresh identity and registers username.
func signup(t *testing.T, c *client, passphrase, username string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.machine.Login(ctx, []byte(passphrase)))
	_, found, err := c.machine.ResolveUsername(ctx)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, c.machine.RegisterUsername(ctx, username))
	require.Equal(t, AuthenticatedNoRoom, c.machine.Snapshot().State)
}
