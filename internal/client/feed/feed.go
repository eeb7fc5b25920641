// Package feed is the realtime change feed: a WebSocket subscription to one
// or more application contexts. A notification means "something in this
// context changed" and carries nothing the client relies on; registered
// callbacks decide what to re-fetch.
//
// Bursts of notifications are coalesced: while callbacks run, any number of
// new notifications collapse into a single further dispatch. An optional
// limiter caps how often callbacks fire.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/client/metrics"
	"github.com/dmitrijs2005/roomchat/internal/common"
	"github.com/dmitrijs2005/roomchat/internal/logging"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	DefaultPath         = "/ws"
	DefaultPingInterval = 30 * time.Second

	writeWait   = 10 * time.Second
	sendBacklog = 16
)

var ErrNotConnected = errors.New("feed is not connected")

// TokenSource supplies the bearer token presented when dialing.
type TokenSource interface {
	AccessToken() string
}

type TokenFunc func() string

func (f TokenFunc) AccessToken() string { return f() }

type Options struct {
	// NodeURL is the http(s) base URL of the node; the scheme is switched to ws(s).
	NodeURL string
	Path    string

	PingInterval time.Duration
	// RefreshPerSecond caps callback dispatches. Zero disables the cap.
	RefreshPerSecond float64

	Tokens  TokenSource
	Dialer  *websocket.Dialer
	Metrics *metrics.Metrics
	Logger  logging.Logger
}

type subscribeParams struct {
	ContextIDs []string `json:"contextIds"`
}

type frameOut struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params subscribeParams `json:"params"`
}

type frameIn struct {
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type notification struct {
	ContextID string `json:"contextId"`
	Type      string `json:"type"`
}

// conn is the state of one live connection.
type conn struct {
	ws    *websocket.Conn
	send  chan []byte
	dirty chan struct{}
	done  chan struct{}
	once  sync.Once
	// io covers the read and write loops.
	io sync.WaitGroup
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

type Feed struct {
	opts    Options
	url     string
	limiter *rate.Limiter
	log     logging.Logger

	mu         sync.Mutex
	cur        *conn
	callbacks  map[int]func()
	drops      map[int]func()
	nextCB     int
	nextReqID  int
	subscribed map[string]struct{}
}

func New(opts Options) (*Feed, error) {
	u, err := wsURL(opts.NodeURL, opts.Path)
	if err != nil {
		return nil, err
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	f := &Feed{
		opts:       opts,
		url:        u,
		log:        log.With("component", "feed"),
		callbacks:  make(map[int]func()),
		drops:      make(map[int]func()),
		subscribed: make(map[string]struct{}),
	}
	if opts.RefreshPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RefreshPerSecond), 1)
	}
	return f, nil
}

func wsURL(nodeURL, path string) (string, error) {
	u, err := url.Parse(nodeURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid node url %q", nodeURL)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported node url scheme %q", u.Scheme)
	}
	if path == "" {
		path = DefaultPath
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// Connect dials the node. Calling it on a connected feed is a no-op. The
// feed stays usable while the dial is in flight; if another Connect wins
// the race its connection is kept and this one is closed.
func (f *Feed) Connect(ctx context.Context) error {
	if f.Connected() {
		return nil
	}

	header := http.Header{}
	if f.opts.Tokens != nil {
		if tok := f.opts.Tokens.AccessToken(); tok != "" {
			header.Set(common.AuthorizationHeaderName, "Bearer "+tok)
		}
	}

	ws, _, err := f.opts.Dialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cur != nil {
		_ = ws.Close()
		return nil
	}

	c := &conn{
		ws:    ws,
		send:  make(chan []byte, sendBacklog),
		dirty: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	f.cur = c
	f.subscribed = make(map[string]struct{})

	c.io.Add(2)
	go f.readLoop(c)
	go f.writeLoop(c)
	go f.dispatchLoop(c)

	f.opts.Metrics.SetFeedConnected(true)
	f.log.Debug(ctx, "feed connected", "url", f.url)
	return nil
}

// Subscribe asks the node for notifications about contextIDs.
func (f *Feed) Subscribe(ctx context.Context, contextIDs ...string) error {
	if err := f.sendFrame(ctx, "subscribe", contextIDs); err != nil {
		return err
	}

	f.mu.Lock()
	for _, id := range contextIDs {
		f.subscribed[id] = struct{}{}
	}
	f.mu.Unlock()
	return nil
}

func (f *Feed) Unsubscribe(ctx context.Context, contextIDs ...string) error {
	f.mu.Lock()
	for _, id := range contextIDs {
		delete(f.subscribed, id)
	}
	f.mu.Unlock()

	return f.sendFrame(ctx, "unsubscribe", contextIDs)
}

func (f *Feed) sendFrame(ctx context.Context, method string, contextIDs []string) error {
	f.mu.Lock()
	c := f.cur
	f.nextReqID++
	id := f.nextReqID
	f.mu.Unlock()

	if c == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(frameOut{ID: id, Method: method, Params: subscribeParams{ContextIDs: contextIDs}})
	if err != nil {
		return err
	}

	select {
	case c.send <- raw:
		return nil
	case <-c.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnNotification registers cb and returns a function that unregisters it.
// Callbacks run on the feed's dispatch goroutine, one at a time.
func (f *Feed) OnNotification(cb func()) (unregister func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextCB
	f.nextCB++
	f.callbacks[id] = cb

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.callbacks, id)
			f.mu.Unlock()
		})
	}
}

// OnDrop registers cb to run when the node closes the connection or it
// fails. It is not called for Disconnect. cb runs on the read goroutine and
// must not block; after a drop the feed is disconnected and Connect may be
// called again.
func (f *Feed) OnDrop(cb func()) (unregister func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextCB
	f.nextCB++
	f.drops[id] = cb

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.drops, id)
			f.mu.Unlock()
		})
	}
}

// Disconnect closes the connection and waits for the read and write loops
// to exit. Disconnect does not wait for the dispatch goroutine, so it may be
// called from a callback; a callback that was already picked for dispatch
// when Disconnect began can still be running, or just starting, when it
// returns. Callers that must ignore such late calls check their own state in
// the callback. Safe to call more than once.
func (f *Feed) Disconnect() {
	f.mu.Lock()
	c := f.cur
	f.cur = nil
	f.mu.Unlock()

	if c == nil {
		return
	}

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.close()
	c.io.Wait()

	f.opts.Metrics.SetFeedConnected(false)
	f.log.Debug(context.Background(), "feed disconnected")
}

// Connected reports whether the feed holds a live connection.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur != nil
}

func (f *Feed) readLoop(c *conn) {
	defer c.io.Done()
	defer c.close()

	wait := 2 * f.opts.PingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				f.log.Warn(context.Background(), "feed read failed", "error", err)
			}
			f.dropConn(c)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(wait))
		f.handleFrame(c, raw)
	}
}

// dropConn forgets c if it is still current, after the node closed it,
// and tells the drop handlers.
func (f *Feed) dropConn(c *conn) {
	f.mu.Lock()
	if f.cur != c {
		f.mu.Unlock()
		return
	}
	f.cur = nil
	f.opts.Metrics.SetFeedConnected(false)
	ids := make([]int, 0, len(f.drops))
	for id := range f.drops {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, f.drops[id])
	}
	f.mu.Unlock()

	for _, cb := range handlers {
		cb()
	}
}

func (f *Feed) handleFrame(c *conn, raw []byte) {
	var in frameIn
	if err := json.Unmarshal(raw, &in); err != nil {
		f.log.Debug(context.Background(), "ignoring malformed frame", "error", err)
		return
	}
	if len(in.Error) > 0 && string(in.Error) != "null" {
		f.log.Warn(context.Background(), "feed error frame", "error", string(in.Error))
		return
	}
	if len(in.Result) == 0 {
		return
	}

	var n notification
	if err := json.Unmarshal(in.Result, &n); err != nil || n.ContextID == "" {
		// Subscription acks carry contextIds, not contextId.
		return
	}

	f.mu.Lock()
	_, ok := f.subscribed[n.ContextID]
	f.mu.Unlock()
	if !ok {
		return
	}

	f.opts.Metrics.ObserveNotification()
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

func (f *Feed) writeLoop(c *conn) {
	defer c.io.Done()

	ticker := time.NewTicker(f.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				f.log.Warn(context.Background(), "feed write failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (f *Feed) dispatchLoop(c *conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.done
		cancel()
	}()

	for {
		select {
		case <-c.done:
			return
		case <-c.dirty:
		}
		if closed(c.done) {
			return
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return
			}
		}

		f.mu.Lock()
		ids := make([]int, 0, len(f.callbacks))
		for id := range f.callbacks {
			ids = append(ids, id)
		}
		f.mu.Unlock()
		sort.Ints(ids)

		for _, id := range ids {
			// Skip callbacks unregistered since the snapshot, and stop once
			// c is no longer the feed's connection.
			f.mu.Lock()
			cb, ok := f.callbacks[id]
			current := f.cur == c
			f.mu.Unlock()
			if !current || closed(c.done) {
				return
			}
			if ok {
				cb()
			}
		}
	}
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
