package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/client/config"
	"github.com/dmitrijs2005/roomchat/internal/client/metrics"
	"github.com/dmitrijs2005/roomchat/internal/client/session"
	"github.com/dmitrijs2005/roomchat/internal/devnode"
	"github.com/dmitrijs2005/roomchat/internal/devnode/devnodetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, node *devnode.Node, srv *httptest.Server) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.NodeURL = srv.URL
	cfg.ContextID = node.ContextID
	cfg.ApplicationID = node.ApplicationID
	cfg.DatabasePath = filepath.Join(t.TempDir(), "state", "roomchat.db")
	return cfg
}

func TestBuild_RejectsUnknownRoomType(t *testing.T) {
	node, srv := devnodetest.Start(t)
	cfg := testConfig(t, node, srv)
	cfg.RoomType = "video"

	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestBuild_EndToEnd(t *testing.T) {
	ctx := context.Background()
	node, srv := devnodetest.Start(t)
	cfg := testConfig(t, node, srv)
	m := metrics.New()

	c, err := Build(ctx, cfg, nil, WithHTTPClient(srv.Client()), WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	s := c.Session
	require.NoError(t, s.Login(ctx, []byte("pass")))
	require.NoError(t, s.RegisterUsername(ctx, "alice"))
	require.NoError(t, s.CreateRoom(ctx, "general", "pw"))
	require.NoError(t, s.JoinRoom(ctx, "general", "pw"))
	require.NoError(t, s.SendMessage(ctx, "hello"))

	snap := s.Snapshot()
	assert.Equal(t, session.InRoom, snap.State)
	assert.True(t, snap.IsCreator())
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "alice", snap.Messages[0].Sender)

	require.Eventually(t, func() bool { return s.Snapshot().Live }, 2*time.Second, 10*time.Millisecond)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["roomchat_client_rpc_calls_total"])
	assert.True(t, names["roomchat_client_feed_connected"])
}

func TestBuild_RestoresCredentialAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	node, srv := devnodetest.Start(t)
	cfg := testConfig(t, node, srv)

	first, err := Build(ctx, cfg, nil, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	require.NoError(t, first.Session.Login(ctx, []byte("pass")))
	require.NoError(t, first.Session.RegisterUsername(ctx, "bob"))
	principal := first.Session.Snapshot().Principal
	require.NoError(t, first.Close())

	second, err := Build(ctx, cfg, nil, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	refreshes := node.RefreshCount()
	require.NoError(t, second.Session.Login(ctx, []byte("pass")))
	name, found, err := second.Session.ResolveUsername(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "bob", name)
	assert.Equal(t, refreshes, node.RefreshCount())

	snap := second.Session.Snapshot()
	assert.Equal(t, principal, snap.Principal)
	assert.Equal(t, "bob", snap.Username)
	assert.Equal(t, session.AuthenticatedNoRoom, snap.State)
}

func TestResolveOptions_UploadsUseTheirOwnClient(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.CallTimeout = 2 * time.Second
	cfg.UploadTimeout = 3 * time.Minute

	o := resolveOptions(cfg, nil)
	require.NotSame(t, o.httpClient, o.uploadClient)
	assert.Equal(t, 2*time.Second, o.httpClient.Timeout)
	assert.Equal(t, 3*time.Minute, o.uploadClient.Timeout)

	calls := &http.Client{Timeout: time.Second}
	o = resolveOptions(cfg, []Option{WithHTTPClient(calls)})
	assert.Same(t, calls, o.httpClient)
	assert.Equal(t, 3*time.Minute, o.uploadClient.Timeout, "overriding the call client leaves uploads alone")

	uploads := &http.Client{}
	o = resolveOptions(cfg, []Option{WithUploadHTTPClient(uploads)})
	assert.Same(t, uploads, o.uploadClient)
}
