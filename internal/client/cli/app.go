package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
	"github.com/dmitrijs2005/roomchat/internal/client/session"
)

// Session is the part of session.Machine the client drives.
type Session interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
	RoomType() rooms.RoomType

	Login(ctx context.Context, passphrase []byte) error
	Logout(ctx context.Context) error
	ResolveUsername(ctx context.Context) (string, bool, error)
	RegisterUsername(ctx context.Context, name string) error

	LoadRooms(ctx context.Context) ([]string, error)
	CreateRoom(ctx context.Context, name, password string) error
	JoinRoom(ctx context.Context, name, password string) error
	LeaveRoom(ctx context.Context) error
	DeleteRoom(ctx context.Context) error
	Refresh(ctx context.Context) error

	SendMessage(ctx context.Context, text string) error
	SendFile(ctx context.Context, path string, expiry time.Duration) error
	SendSignal(ctx context.Context, receiver, payload string) error
	ResolveWallet(ctx context.Context, username string) (string, error)
}

// IdentityResetter forgets the identity stored on this device.
type IdentityResetter interface {
	Reset(ctx context.Context) error
}

type App struct {
	session  Session
	identity IdentityResetter
	reader   *bufio.Reader
	out      io.Writer
}

// NewApp builds a client reading commands from in and writing to out.
// identity may be nil, which disables reset-identity.
func NewApp(s Session, identity IdentityResetter, in io.Reader, out io.Writer) *App {
	return &App{
		session:  s,
		identity: identity,
		reader:   bufio.NewReader(in),
		out:      &syncWriter{w: out},
	}
}

// Run starts the session watcher and the REPL and blocks until the user
// exits or ctx is done.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintf(a.out, "Welcome to roomchat (%s rooms). Type 'help' for commands.\n", a.session.RoomType())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.watchSession(ctx)
	}()

	runREPL(ctx, a, a.getStatus, a.reader, a.out)
	cancel()
	wg.Wait()
}

func (a *App) state() session.State {
	return a.session.Snapshot().State
}

func (a *App) getStatus() string {
	s := a.session.Snapshot()
	status := ""
	switch {
	case s.State == session.AuthError:
		status = "expired"
	case s.Username != "":
		status = s.Username
	case s.State == session.AuthenticatedNoUsername:
		status = "unregistered"
	}
	if s.Room != "" {
		status += " @" + s.Room
		if !s.Live {
			status += " (offline)"
		}
	}
	if status != "" {
		status = "(" + status + ")"
	}
	return status
}

// watchSession prints messages that arrive for the current room and
// reports terminal authentication failures.
func (a *App) watchSession(ctx context.Context) {
	updates, cancel := a.session.Subscribe()
	defer cancel()

	var (
		last = a.session.Snapshot()
		// seen is how many messages of last.Room were already shown; -1
		// until the first fetch after entering a room.
		seen = -1
	)
	if last.Messages != nil {
		seen = len(last.Messages)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}

			if s.State == session.AuthError && last.State != session.AuthError {
				fmt.Fprintf(a.out, "\nSession expired (%v). Please log in again.\n", s.Err)
			}

			switch {
			case s.Room != last.Room:
				seen = -1
				if s.Messages != nil {
					seen = len(s.Messages)
				}
			case seen < 0:
				if s.Messages != nil {
					seen = len(s.Messages)
				}
			case len(s.Messages) > seen:
				for _, m := range s.Messages[seen:] {
					if m.Sender != s.Username {
						fmt.Fprintln(a.out, "\n"+formatMessage(m))
					}
				}
				seen = len(s.Messages)
			case len(s.Messages) < seen:
				seen = len(s.Messages)
			}
			last = s
		}
	}
}

// syncWriter serializes writes from the REPL and the watcher.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
