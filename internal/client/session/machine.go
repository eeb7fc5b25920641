// Package session owns the client's login and room lifecycle.
//
// A Machine moves through Unauthenticated, AuthenticatedNoUsername,
// AuthenticatedNoRoom and InRoom, with AuthError reachable from any state
// when the retry policy reports a terminal authentication failure. It is the
// only holder of the current room and of the change feed bound to it: a
// feed is started on entering a room and stopped, synchronously, before the
// room changes again, so at most one feed is ever delivering notifications.
//
// Operations leave state untouched when they fail. The machine's mutex is
// never held across a remote call; results of fetches that complete after
// the room or session changed are dropped.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/client/auth"
	"github.com/dmitrijs2005/roomchat/internal/client/credentials"
	"github.com/dmitrijs2005/roomchat/internal/client/identity"
	"github.com/dmitrijs2005/roomchat/internal/client/pinning"
	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
	"github.com/dmitrijs2005/roomchat/internal/common"
	"github.com/dmitrijs2005/roomchat/internal/logging"
)

type RoomOps interface {
	RegisterUser(ctx context.Context, username, walletAddress string) (bool, error)
	GetUsername(ctx context.Context, walletAddress string) (string, bool, error)
	CreateRoom(ctx context.Context, req rooms.CreateRoomRequest) (bool, error)
	JoinRoom(ctx context.Context, roomName, user, password string) (bool, error)
	LeaveRoom(ctx context.Context, roomName, user string) (bool, error)
	DeleteRoom(ctx context.Context, roomName, walletAddress string) error
	ListRooms(ctx context.Context) ([]string, error)
	GetRoomInfo(ctx context.Context, roomName string) (*rooms.Room, error)
	GetRoomUsers(ctx context.Context, roomName string) ([]string, error)
	SendMessage(ctx context.Context, roomName, sender, content string) (bool, error)
	GetRoomMessages(ctx context.Context, roomName, user string) ([]rooms.Message, error)
	SendSignaling(ctx context.Context, sig rooms.Signal) (bool, error)
	GetWalletAddress(ctx context.Context, username string) (string, bool, error)
}

type IdentityProvider interface {
	Login(ctx context.Context, passphrase []byte) (*identity.Identity, error)
	Logout()
}

type Authenticator interface {
	RequestToken(ctx context.Context, req auth.TokenRequest, signer auth.Signer) (credentials.Credential, error)
}

type CredentialStore interface {
	Read() (credentials.Credential, bool)
	Clear(ctx context.Context) error
}

// AuthEvents reports terminal authentication failures.
type AuthEvents interface {
	OnTerminalAuth(fn func(error)) (unregister func())
}

type Feed interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, contextIDs ...string) error
	OnNotification(cb func()) (unregister func())
	// OnDrop reports a connection the node closed; cb must not block.
	OnDrop(cb func()) (unregister func())
	Disconnect()
}

// FeedFactory builds a fresh, unconnected feed for one room visit.
type FeedFactory func(roomName string) (Feed, error)

type Pinner interface {
	Upload(ctx context.Context, filePath string) (pinning.Pinned, error)
	CreateSignedURL(ctx context.Context, contentID string, expiry time.Duration) (string, error)
}

type Config struct {
	NodeURL       string
	ApplicationID string
	ContextID     string
	// RoomType selects which rooms LoadRooms keeps and what CreateRoom
	// creates. Empty means Chat.
	RoomType rooms.RoomType
}

type Deps struct {
	Rooms       RoomOps
	Identity    IdentityProvider
	Auth        Authenticator
	Credentials CredentialStore
	AuthEvents  AuthEvents
	Feeds       FeedFactory
	// Pinning is optional; SendFile fails without it.
	Pinning Pinner
	Logger  logging.Logger
}

type Machine struct {
	cfg  Config
	deps Deps
	log  logging.Logger

	unregisterAuth func()

	mu   sync.Mutex
	snap Snapshot
	// session changes on login, logout and auth failure; gen additionally
	// changes whenever the current room does.
	session uint64
	gen     uint64
	// Fetches are numbered when they start; a result older than the last
	// applied one is dropped.
	fetchSeq, fetchApplied uint64
	roomsSeq, roomsApplied uint64

	feed           Feed
	unregisterFeed func()

	subs   map[int]chan Snapshot
	nextID int
	closed bool
}

func New(cfg Config, deps Deps) *Machine {
	if cfg.RoomType == "" {
		cfg.RoomType = rooms.Chat
	}
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	m := &Machine{
		cfg:  cfg,
		deps: deps,
		log:  log,
		subs: make(map[int]chan Snapshot),
	}
	if deps.AuthEvents != nil {
		m.unregisterAuth = deps.AuthEvents.OnTerminalAuth(m.onTerminalAuth)
	}
	return m
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.clone()
}

func (m *Machine) RoomType() rooms.RoomType { return m.cfg.RoomType }

// Subscribe returns a channel receiving a snapshot after every state change.
// The channel holds only the latest snapshot; a slow reader skips stale ones.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	ch <- m.snap.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
		})
	}
}

// publishLocked must be called with m.mu held.
func (m *Machine) publishLocked() {
	s := m.snap.clone()
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Close stops the feed, detaches from auth events and closes subscriber
// channels. The machine must not be used afterwards.
func (m *Machine) Close() {
	if m.unregisterAuth != nil {
		m.unregisterAuth()
	}

	m.mu.Lock()
	old := m.detachFeedLocked()
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()

	stopFeed(old)
}

// detachFeedLocked unbinds the current feed and returns it for stopping.
func (m *Machine) detachFeedLocked() Feed {
	if m.unregisterFeed != nil {
		m.unregisterFeed()
		m.unregisterFeed = nil
	}
	f := m.feed
	m.feed = nil
	m.snap.Live = false
	return f
}

func stopFeed(f Feed) {
	if f != nil {
		f.Disconnect()
	}
}

func (m *Machine) onTerminalAuth(err error) {
	m.mu.Lock()
	old := m.detachFeedLocked()
	m.session++
	m.gen++
	m.snap = Snapshot{State: AuthError, Err: err}
	m.publishLocked()
	m.mu.Unlock()

	stopFeed(old)
	if m.deps.Identity != nil {
		m.deps.Identity.Logout()
	}
	m.log.Warn(context.Background(), "session ended by authentication failure", "error", err)
}

// view is what an operation needs from the state, captured under the lock.
type view struct {
	principal string
	username  string
	room      string
	creator   string
	session   uint64
	gen       uint64
}

// require checks that the machine is in one of states and captures a view.
func (m *Machine) require(states ...State) (view, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.snap.State
	for _, s := range states {
		if s == cur {
			return view{
				principal: m.snap.Principal,
				username:  m.snap.Username,
				room:      m.snap.Room,
				creator:   m.snap.Creator,
				session:   m.session,
				gen:       m.gen,
			}, nil
		}
	}

	switch {
	case !cur.authenticated():
		return view{}, common.ErrNotLoggedIn
	case cur == AuthenticatedNoUsername:
		return view{}, common.ErrNoUsername
	case cur == AuthenticatedNoRoom && slices.Contains(states, InRoom):
		return view{}, common.ErrNotInRoom
	}
	return view{}, common.ErrInvalidState
}
