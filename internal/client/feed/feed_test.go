package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsNode is a minimal push endpoint: it records client frames and lets the
// test push frames to every connected client.
type wsNode struct {
	t        *testing.T
	srv      *httptest.Server
	upgrades int32
	auth     atomic.Value

	mu     sync.Mutex
	conns  []*websocket.Conn
	frames []frameOut
	gotSub chan frameOut
}

func newWSNode(t *testing.T) *wsNode {
	t.Helper()
	n := &wsNode{t: t, gotSub: make(chan frameOut, 16)}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&n.upgrades, 1)
		n.auth.Store(r.Header.Get("Authorization"))
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n.mu.Lock()
		n.conns = append(n.conns, c)
		n.mu.Unlock()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}
			var f frameOut
			if json.Unmarshal(raw, &f) == nil {
				n.mu.Lock()
				n.frames = append(n.frames, f)
				n.mu.Unlock()
				n.gotSub <- f
				_ = n.write(c, map[string]any{"id": f.ID, "result": map[string]any{"contextIds": f.Params.ContextIDs}})
			}
		}
	}))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *wsNode) write(c *websocket.Conn, v any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return c.WriteJSON(v)
}

func (n *wsNode) notify(contextID string) {
	n.mu.Lock()
	conns := append([]*websocket.Conn(nil), n.conns...)
	n.mu.Unlock()
	for _, c := range conns {
		_ = n.write(c, map[string]any{
			"id":     nil,
			"result": map[string]any{"contextId": contextID, "type": "StateMutation", "data": map[string]any{}},
		})
	}
}

// hangUp closes every client connection from the node's side.
func (n *wsNode) hangUp() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.conns {
		_ = c.Close()
	}
	n.conns = nil
}

func (n *wsNode) awaitFrame(t *testing.T) frameOut {
	t.Helper()
	select {
	case f := <-n.gotSub:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return frameOut{}
	}
}

func newFeed(t *testing.T, n *wsNode, opts Options) *Feed {
	t.Helper()
	opts.NodeURL = n.srv.URL
	f, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(f.Disconnect)
	return f
}

func connectAndSubscribe(t *testing.T, n *wsNode, f *Feed, ids ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.Connect(ctx))
	require.NoError(t, f.Subscribe(ctx, ids...))
	n.awaitFrame(t)
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		in, path, want string
		wantErr        bool
	}{
		{in: "http://localhost:2428", want: "ws://localhost:2428/ws"},
		{in: "https://node.example/", path: "/feed", want: "wss://node.example/feed"},
		{in: "ws://h:1/base", want: "ws://h:1/base/ws"},
		{in: "ftp://h", wantErr: true},
		{in: "not a url", wantErr: true},
	}

	for _, tt := range tests {
		got, err := wsURL(tt.in, tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestConnect_IsIdempotentAndSendsToken(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{Tokens: TokenFunc(func() string { return "tok" })})

	ctx := context.Background()
	require.NoError(t, f.Connect(ctx))
	require.NoError(t, f.Connect(ctx))

	assert.True(t, f.Connected())
	assert.EqualValues(t, 1, atomic.LoadInt32(&n.upgrades))
	assert.Equal(t, "Bearer tok", n.auth.Load())
}

func TestSubscribe_SendsFrame(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	ctx := context.Background()
	require.NoError(t, f.Connect(ctx))
	require.NoError(t, f.Subscribe(ctx, "ctx-1"))

	got := n.awaitFrame(t)
	assert.Equal(t, "subscribe", got.Method)
	assert.Equal(t, []string{"ctx-1"}, got.Params.ContextIDs)
	assert.Positive(t, got.ID)

	require.NoError(t, f.Unsubscribe(ctx, "ctx-1"))
	got = n.awaitFrame(t)
	assert.Equal(t, "unsubscribe", got.Method)
}

func TestSubscribe_RequiresConnection(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	assert.ErrorIs(t, f.Subscribe(context.Background(), "ctx"), ErrNotConnected)
}

func TestNotification_InvokesCallbacksForSubscribedContext(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	fired := make(chan struct{}, 8)
	f.OnNotification(func() { fired <- struct{}{} })
	connectAndSubscribe(t, n, f, "ctx-1")

	n.notify("other-ctx")
	select {
	case <-fired:
		t.Fatal("notification for an unsubscribed context must be ignored")
	case <-time.After(100 * time.Millisecond):
	}

	n.notify("ctx-1")
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestUnregister_StopsDelivery(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	var stale, live int32
	unregister := f.OnNotification(func() { atomic.AddInt32(&stale, 1) })
	liveFired := make(chan struct{}, 8)
	f.OnNotification(func() {
		atomic.AddInt32(&live, 1)
		liveFired <- struct{}{}
	})
	unregister()
	unregister()

	connectAndSubscribe(t, n, f, "ctx-1")
	n.notify("ctx-1")

	select {
	case <-liveFired:
	case <-time.After(2 * time.Second):
		t.Fatal("live callback not invoked")
	}
	assert.Zero(t, atomic.LoadInt32(&stale))
}

func TestNotifications_AreCoalesced(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var calls int32
	f.OnNotification(func() {
		if atomic.AddInt32(&calls, 1) == 1 {
			started <- struct{}{}
			<-release
		}
	})
	connectAndSubscribe(t, n, f, "ctx-1")

	n.notify("ctx-1")
	<-started
	for i := 0; i < 10; i++ {
		n.notify("ctx-1")
	}
	time.Sleep(100 * time.Millisecond)
	close(release)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "a burst collapses into one more dispatch")
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	f.Disconnect()
	require.NoError(t, f.Connect(context.Background()))
	f.Disconnect()
	f.Disconnect()

	assert.False(t, f.Connected())
	assert.ErrorIs(t, f.Subscribe(context.Background(), "ctx"), ErrNotConnected)
}

func TestDisconnect_FromCallbackDoesNotDeadlock(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	done := make(chan struct{})
	f.OnNotification(func() {
		f.Disconnect()
		close(done)
	})
	connectAndSubscribe(t, n, f, "ctx-1")
	n.notify("ctx-1")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect from a callback deadlocked")
	}
	assert.False(t, f.Connected())
}

func TestNoCallbacksAfterDisconnect(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	var calls int32
	f.OnNotification(func() { atomic.AddInt32(&calls, 1) })
	connectAndSubscribe(t, n, f, "ctx-1")

	f.Disconnect()
	n.notify("ctx-1")
	time.Sleep(100 * time.Millisecond)

	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRateLimitedDispatch(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{RefreshPerSecond: 2})

	var calls int32
	f.OnNotification(func() { atomic.AddInt32(&calls, 1) })
	connectAndSubscribe(t, n, f, "ctx-1")

	for i := 0; i < 5; i++ {
		n.notify("ctx-1")
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestOnDrop_FiresWhenNodeClosesConnection(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	dropped := make(chan struct{}, 1)
	f.OnDrop(func() { dropped <- struct{}{} })
	connectAndSubscribe(t, n, f, "ctx-1")

	n.hangUp()

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("drop handler not invoked")
	}
	assert.False(t, f.Connected())

	require.NoError(t, f.Connect(context.Background()))
	assert.True(t, f.Connected())
}

func TestOnDrop_NotCalledForDisconnect(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	var drops int32
	f.OnDrop(func() { atomic.AddInt32(&drops, 1) })
	unregistered := f.OnDrop(func() { atomic.AddInt32(&drops, 100) })
	unregistered()

	connectAndSubscribe(t, n, f, "ctx-1")
	f.Disconnect()
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&drops))

	connectAndSubscribe(t, n, f, "ctx-1")
	n.hangUp()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&drops) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestConnect_DoesNotBlockFeedWhileDialing(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	f, err := New(Options{NodeURL: srv.URL})
	require.NoError(t, err)
	t.Cleanup(f.Disconnect)

	connected := make(chan error, 1)
	go func() { connected <- f.Connect(context.Background()) }()
	<-entered

	done := make(chan struct{})
	go func() {
		f.Connected()
		f.OnNotification(func() {})()
		f.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		close(release)
		t.Fatal("feed blocked while a dial was in flight")
	}

	close(release)
	require.NoError(t, <-connected)
	assert.True(t, f.Connected())
}

func TestConnect_ConcurrentCallsKeepOneConnection(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.Connect(context.Background()))
		}()
	}
	wg.Wait()

	assert.True(t, f.Connected())
	require.NoError(t, f.Subscribe(context.Background(), "ctx-1"))
	n.awaitFrame(t)
}

func TestDisconnect_SkipsCallbacksNotYetStarted(t *testing.T) {
	n := newWSNode(t)
	f := newFeed(t, n, Options{})

	started := make(chan struct{})
	release := make(chan struct{})
	f.OnNotification(func() {
		close(started)
		<-release
	})
	var later int32
	f.OnNotification(func() { atomic.AddInt32(&later, 1) })
	connectAndSubscribe(t, n, f, "ctx-1")

	n.notify("ctx-1")
	<-started
	f.Disconnect()
	close(release)
	time.Sleep(100 * time.Millisecond)

	assert.Zero(t, atomic.LoadInt32(&later))
}
