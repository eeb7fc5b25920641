package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/client/auth"
	"github.com/dmitrijs2005/roomchat/internal/client/pinning"
	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
	"github.com/dmitrijs2005/roomchat/internal/common"
	"golang.org/x/sync/errgroup"
)

var ErrNoPinning = errors.New("file attachments are not configured")

// roomInfoConcurrency bounds parallel get_room_info calls in LoadRooms.
const roomInfoConcurrency = 4

// Login unlocks the local identity and obtains node credentials for it. A
// stored credential issued to the same key on the same node is reused.
func (m *Machine) Login(ctx context.Context, passphrase []byte) error {
	if _, err := m.require(Unauthenticated, AuthError); err != nil {
		return fmt.Errorf("%w: already logged in", common.ErrInvalidState)
	}

	id, err := m.deps.Identity.Login(ctx, passphrase)
	if err != nil {
		return err
	}

	cred, ok := m.deps.Credentials.Read()
	reuse := ok && cred.Complete() &&
		cred.ExecutorPublicKey == id.PublicKey() &&
		cred.NodeURL == m.cfg.NodeURL
	if !reuse {
		_, err = m.deps.Auth.RequestToken(ctx, auth.TokenRequest{
			NodeURL:       m.cfg.NodeURL,
			ApplicationID: m.cfg.ApplicationID,
			ContextID:     m.cfg.ContextID,
		}, id)
		if err != nil {
			m.deps.Identity.Logout()
			return err
		}
	}

	m.mu.Lock()
	m.session++
	m.gen++
	m.snap = Snapshot{State: AuthenticatedNoUsername, Principal: id.Principal()}
	m.publishLocked()
	m.mu.Unlock()

	m.log.Info(ctx, "logged in", "principal", id.Principal(), "reused_credential", reuse)
	return nil
}

// Logout stops the feed, clears stored credentials and forgets the
// identity. It is valid in every state.
func (m *Machine) Logout(ctx context.Context) error {
	m.mu.Lock()
	old := m.detachFeedLocked()
	m.session++
	m.gen++
	m.snap = Snapshot{State: Unauthenticated}
	m.publishLocked()
	m.mu.Unlock()

	stopFeed(old)
	if m.deps.Identity != nil {
		m.deps.Identity.Logout()
	}
	if err := m.deps.Credentials.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ResolveUsername looks up the username registered for the current
// principal and, when one exists, moves past AuthenticatedNoUsername.
func (m *Machine) ResolveUsername(ctx context.Context) (string, bool, error) {
	v, err := m.require(AuthenticatedNoUsername, AuthenticatedNoRoom, InRoom)
	if err != nil {
		return "", false, err
	}
	if v.username != "" {
		return v.username, true, nil
	}

	name, found, err := m.deps.Rooms.GetUsername(ctx, v.principal)
	if err != nil || !found {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != v.session || m.snap.State != AuthenticatedNoUsername {
		return name, true, nil
	}
	m.snap.Username = name
	m.snap.State = AuthenticatedNoRoom
	m.publishLocked()
	return name, true, nil
}

// RegisterUsername claims name for the current principal. A taken name
// leaves state unchanged and returns common.ErrUsernameTaken.
func (m *Machine) RegisterUsername(ctx context.Context, name string) error {
	v, err := m.require(AuthenticatedNoUsername)
	if err != nil {
		if errors.Is(err, common.ErrInvalidState) {
			return fmt.Errorf("%w: username already set", common.ErrInvalidState)
		}
		return err
	}

	ok, err := m.deps.Rooms.RegisterUser(ctx, name, v.principal)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrUsernameTaken
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != v.session || m.snap.State != AuthenticatedNoUsername {
		return nil
	}
	m.snap.Username = name
	m.snap.State = AuthenticatedNoRoom
	m.publishLocked()
	return nil
}

// LoadRooms refreshes the list of rooms of the machine's room type.
func (m *Machine) LoadRooms(ctx context.Context) ([]string, error) {
	v, err := m.require(AuthenticatedNoRoom, InRoom)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.roomsSeq++
	seq := m.roomsSeq
	m.mu.Unlock()

	names, err := m.roomsOfType(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == v.session && seq > m.roomsApplied {
		m.roomsApplied = seq
		m.snap.Rooms = names
		m.publishLocked()
	}
	return slices.Clone(names), nil
}

func (m *Machine) roomsOfType(ctx context.Context) ([]string, error) {
	all, err := m.deps.Rooms.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]*rooms.Room, len(all))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(roomInfoConcurrency)
	for i, name := range all {
		g.Go(func() error {
			info, err := m.deps.Rooms.GetRoomInfo(gctx, name)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(all))
	for i, info := range infos {
		// nil means the room vanished between the two calls.
		if info != nil && info.Type == m.cfg.RoomType {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// CreateRoom creates a room owned by the current principal and reloads the
// room list. The existence pre-check is advisory: a collision between the
// check and the create surfaces as the node's error.
func (m *Machine) CreateRoom(ctx context.Context, name, password string) error {
	v, err := m.require(AuthenticatedNoRoom, InRoom)
	if err != nil {
		return err
	}

	existing, err := m.deps.Rooms.ListRooms(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(existing, name) {
		return common.ErrRoomExists
	}

	if _, err := m.deps.Rooms.CreateRoom(ctx, rooms.CreateRoomRequest{
		Name:     name,
		Password: password,
		Creator:  v.principal,
		RoomType: m.cfg.RoomType,
	}); err != nil {
		return err
	}
	m.log.Info(ctx, "room created", "room", name)

	if _, err := m.LoadRooms(ctx); err != nil {
		m.log.Warn(ctx, "reload rooms after create failed", "error", err)
	}
	return nil
}

// JoinRoom enters name. On success the previous room's feed is stopped
// before a feed for name is started, then room info, messages and members
// are fetched.
func (m *Machine) JoinRoom(ctx context.Context, name, password string) error {
	v, err := m.require(AuthenticatedNoRoom, InRoom)
	if err != nil {
		return err
	}

	ok, err := m.deps.Rooms.JoinRoom(ctx, name, v.username, password)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrWrongPassword
	}

	m.mu.Lock()
	if m.session != v.session {
		m.mu.Unlock()
		return common.ErrNotLoggedIn
	}
	old := m.detachFeedLocked()
	m.gen++
	gen := m.gen
	m.snap.State = InRoom
	m.snap.Room = name
	m.snap.Creator = ""
	m.snap.Messages = nil
	m.snap.Members = nil
	m.publishLocked()
	m.mu.Unlock()

	stopFeed(old)
	m.log.Info(ctx, "joined room", "room", name)

	m.startFeed(ctx, name, gen)
	if err := m.fetchRoom(ctx, gen, true); err != nil {
		return fmt.Errorf("joined %s, initial fetch: %w", name, err)
	}
	return nil
}

// startFeed binds a new feed to the room entered at gen. Failure leaves the
// machine in the room without live updates.
func (m *Machine) startFeed(ctx context.Context, name string, gen uint64) {
	if m.deps.Feeds == nil {
		return
	}

	f, err := m.deps.Feeds(name)
	if err == nil {
		err = f.Connect(ctx)
		if err == nil {
			err = f.Subscribe(ctx, m.cfg.ContextID)
		}
		if err != nil {
			f.Disconnect()
		}
	}
	if err != nil {
		m.log.Warn(ctx, "change feed unavailable", "room", name, "error", err)
		return
	}

	unNotify := f.OnNotification(func() { m.onNotification(gen) })
	unDrop := f.OnDrop(func() { m.onFeedDropped(f, gen) })
	unregister := func() {
		unNotify()
		unDrop()
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		unregister()
		f.Disconnect()
		return
	}
	m.feed = f
	m.unregisterFeed = unregister
	m.snap.Live = true
	m.publishLocked()
	m.mu.Unlock()
}

// onFeedDropped marks the room offline when its feed lost the node. The
// room stays joined; the next join or room change starts a fresh feed.
func (m *Machine) onFeedDropped(f Feed, gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.feed != f {
		m.mu.Unlock()
		return
	}
	old := m.detachFeedLocked()
	room := m.snap.Room
	m.publishLocked()
	m.mu.Unlock()

	stopFeed(old)
	m.log.Warn(context.Background(), "change feed dropped", "room", room)
}

func (m *Machine) onNotification(gen uint64) {
	m.mu.Lock()
	current := m.gen == gen
	m.mu.Unlock()
	if !current {
		return
	}
	if err := m.Refresh(context.Background()); err != nil {
		m.log.Debug(context.Background(), "feed refresh failed", "error", err)
	}
}

// Refresh refetches messages, members and the room list for the current
// room.
func (m *Machine) Refresh(ctx context.Context) error {
	v, err := m.require(InRoom)
	if err != nil {
		return err
	}
	if err := m.fetchRoom(ctx, v.gen, false); err != nil {
		return err
	}
	_, err = m.LoadRooms(ctx)
	return err
}

// fetchRoom loads messages and members (and room info when withInfo) for
// the room entered at gen, dropping the results if the room has changed.
func (m *Machine) fetchRoom(ctx context.Context, gen uint64, withInfo bool) error {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return nil
	}
	room, user := m.snap.Room, m.snap.Username
	m.fetchSeq++
	seq := m.fetchSeq
	m.mu.Unlock()

	var (
		info    *rooms.Room
		msgs    []rooms.Message
		members []string
		g, gctx = errgroup.WithContext(ctx)
	)
	if withInfo {
		g.Go(func() (err error) {
			info, err = m.deps.Rooms.GetRoomInfo(gctx, room)
			return err
		})
	}
	g.Go(func() (err error) {
		msgs, err = m.deps.Rooms.GetRoomMessages(gctx, room, user)
		return err
	})
	g.Go(func() (err error) {
		members, err = m.deps.Rooms.GetRoomUsers(gctx, room)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return nil
	}
	changed := false
	if info != nil {
		m.snap.Creator = info.Creator
		changed = true
	}
	// A fetch that started earlier than the last applied one is stale.
	if seq > m.fetchApplied {
		m.fetchApplied = seq
		m.snap.Messages = msgs
		m.snap.Members = members
		changed = true
	}
	if changed {
		m.publishLocked()
	}
	return nil
}

// LeaveRoom leaves the current room. The node reporting that the user was
// not a member still counts as having left.
func (m *Machine) LeaveRoom(ctx context.Context) error {
	v, err := m.require(InRoom)
	if err != nil {
		return err
	}

	ok, err := m.deps.Rooms.LeaveRoom(ctx, v.room, v.username)
	if err != nil {
		return err
	}
	if !ok {
		m.log.Debug(ctx, "leave: node reports not a member", "room", v.room)
	}

	m.exitRoom(v.gen)
	m.log.Info(ctx, "left room", "room", v.room)
	return nil
}

// DeleteRoom deletes the current room. Only its creator may do so; the node
// enforces the same rule.
func (m *Machine) DeleteRoom(ctx context.Context) error {
	v, err := m.require(InRoom)
	if err != nil {
		return err
	}

	creator := v.creator
	if creator == "" {
		info, err := m.deps.Rooms.GetRoomInfo(ctx, v.room)
		if err != nil {
			return err
		}
		if info != nil {
			creator = info.Creator
		}
	}
	if creator != v.principal {
		return common.ErrNotCreator
	}

	if err := m.deps.Rooms.DeleteRoom(ctx, v.room, v.principal); err != nil {
		return err
	}

	m.exitRoom(v.gen)
	m.log.Info(ctx, "deleted room", "room", v.room)

	if _, err := m.LoadRooms(ctx); err != nil {
		m.log.Warn(ctx, "reload rooms after delete failed", "error", err)
	}
	return nil
}

// exitRoom stops the feed and returns to AuthenticatedNoRoom, unless the
// room already changed since gen.
func (m *Machine) exitRoom(gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	old := m.detachFeedLocked()
	m.gen++
	m.snap.State = AuthenticatedNoRoom
	m.snap.Room = ""
	m.snap.Creator = ""
	m.snap.Messages = nil
	m.snap.Members = nil
	m.mu.Unlock()

	// The old feed is fully stopped before observers see the new state.
	stopFeed(old)

	m.mu.Lock()
	m.publishLocked()
	m.mu.Unlock()
}

// SendMessage posts text to the current room and refetches messages. On
// failure the message list is left as it was. Once the node accepted the
// message a failed refetch is only logged: the message is sent and the next
// refresh picks it up.
func (m *Machine) SendMessage(ctx context.Context, text string) error {
	v, err := m.require(InRoom)
	if err != nil {
		return err
	}
	if _, err := m.deps.Rooms.SendMessage(ctx, v.room, v.username, text); err != nil {
		return err
	}
	if err := m.fetchRoom(ctx, v.gen, false); err != nil {
		m.log.Warn(ctx, "refetch after send failed", "room", v.room, "error", err)
	}
	return nil
}

// SendFile pins the file at path and posts a message linking to it. The
// link stays valid for expiry.
func (m *Machine) SendFile(ctx context.Context, path string, expiry time.Duration) error {
	if _, err := m.require(InRoom); err != nil {
		return err
	}
	if m.deps.Pinning == nil {
		return ErrNoPinning
	}

	pinned, err := m.deps.Pinning.Upload(ctx, path)
	if err != nil {
		return err
	}
	url, err := m.deps.Pinning.CreateSignedURL(ctx, pinned.ContentID, expiry)
	if err != nil {
		return err
	}
	return m.SendMessage(ctx, pinning.MessageContent(pinned, url))
}

// SendSignal relays an opaque connection-negotiation payload to receiver,
// another member of the current room.
func (m *Machine) SendSignal(ctx context.Context, receiver, payload string) error {
	v, err := m.require(InRoom)
	if err != nil {
		return err
	}
	_, err = m.deps.Rooms.SendSignaling(ctx, rooms.Signal{
		RoomName: v.room,
		Sender:   v.username,
		Receiver: receiver,
		Content:  payload,
	})
	return err
}

// ResolveWallet returns the wallet address registered for username.
func (m *Machine) ResolveWallet(ctx context.Context, username string) (string, error) {
	if _, err := m.require(AuthenticatedNoUsername, AuthenticatedNoRoom, InRoom); err != nil {
		return "", err
	}
	wallet, found, err := m.deps.Rooms.GetWalletAddress(ctx, username)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", common.ErrUnknownUser, username)
	}
	return wallet, nil
}
