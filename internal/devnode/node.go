// Package devnode is an in-memory application node for local development
// and tests. It speaks the same JSON-RPC, admin and WebSocket protocols
// the client uses and enforces the node's room, user and message rules,
// so client behavior can be exercised end to end.
//
// Test controls (ExpireTokens, ForbidNext, FailRefresh, Notify) let tests
// drive token expiry and push notifications deterministically.
package devnode

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
	"github.com/dmitrijs2005/roomchat/internal/logging"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	DefaultContextID     = "roomchat-context"
	DefaultApplicationID = "roomchat-app"
)

type room struct {
	name     string
	typ      rooms.RoomType
	password string
	creator  string
	users    []string
	messages []rooms.Message
}

func (r *room) member(user string) bool {
	for _, u := range r.users {
		if u == user {
			return true
		}
	}
	return false
}

// Signal is a relayed signaling payload, kept for inspection.
type Signal = rooms.Signal

type Option func(*Node)

func WithAccessTTL(d time.Duration) Option {
	return func(n *Node) { n.accessTTL = d }
}

func WithRefreshTTL(d time.Duration) Option {
	return func(n *Node) { n.refreshTTL = d }
}

// WithSecret sets the HMAC key tokens are signed with.
func WithSecret(secret []byte) Option {
	return func(n *Node) { n.secret = secret }
}

// WithIDs sets the application and context the node accepts.
func WithIDs(applicationID, contextID string) Option {
	return func(n *Node) {
		n.ApplicationID = applicationID
		n.ContextID = contextID
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(n *Node) { n.log = l }
}

type Node struct {
	ContextID     string
	ApplicationID string

	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	log        logging.Logger

	mu        sync.Mutex
	rooms     map[string]*room
	users     map[string]string // wallet -> username
	usernames map[string]string // username -> wallet
	signals   []Signal

	generation   int
	forbidNext   int
	failRefresh  bool
	usedRefresh  map[string]bool
	refreshCount int
	calls        map[string]int

	wsMu    sync.Mutex
	clients map[*wsClient]struct{}

	upgrader websocket.Upgrader
}

func New(opts ...Option) *Node {
	n := &Node{
		ContextID:     DefaultContextID,
		ApplicationID: DefaultApplicationID,
		secret:        []byte("devnode-secret"),
		accessTTL:     time.Hour,
		refreshTTL:    30 * 24 * time.Hour,
		now:           time.Now,
		log:           logging.Discard(),
		rooms:         make(map[string]*room),
		users:         make(map[string]string),
		usernames:     make(map[string]string),
		usedRefresh:   make(map[string]bool),
		calls:         make(map[string]int),
		clients:       make(map[*wsClient]struct{}),
		upgrader:      websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Handler routes the node's endpoints.
func (n *Node) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/jsonrpc", n.handleRPC).Methods(http.MethodPost)
	r.HandleFunc("/admin-api/request-token", n.handleRequestToken).Methods(http.MethodPost)
	r.HandleFunc("/admin-api/refresh-jwt-token", n.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/ws", n.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

// Close drops every WebSocket client.
func (n *Node) Close() {
	n.closeClients()
}

// ExpireTokens invalidates every access token issued so far. Refresh tokens
// stay valid.
func (n *Node) ExpireTokens() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.generation++
}

// ForbidNext rejects the next k JSON-RPC calls with HTTP 403.
func (n *Node) ForbidNext(k int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.forbidNext = k
}

// FailRefresh makes the refresh endpoint reject every request.
func (n *Node) FailRefresh(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failRefresh = fail
}

func (n *Node) RefreshCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.refreshCount
}

// Calls returns how many times method was executed (after auth).
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *Node) RoomNames() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.roomNamesLocked()
}

func (n *Node) roomNamesLocked() []string {
	names := make([]string, 0, len(n.rooms))
	for name := range n.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Node) Members(roomName string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.rooms[roomName]
	if !ok {
		return nil
	}
	return append([]string(nil), r.users...)
}

func (n *Node) Signals() []Signal {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Signal(nil), n.signals...)
}
