package session

import (
	"slices"

	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
)

type State int

const (
	Unauthenticated State = iota
	AuthenticatedNoUsername
	AuthenticatedNoRoom
	InRoom
	// AuthError follows a terminal authentication failure. The identity
	// and credential are already gone; Login starts over.
	AuthError
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case AuthenticatedNoUsername:
		return "authenticated (no username)"
	case AuthenticatedNoRoom:
		return "authenticated"
	case InRoom:
		return "in room"
	case AuthError:
		return "authentication error"
	}
	return "unknown"
}

func (s State) authenticated() bool {
	return s == AuthenticatedNoUsername || s == AuthenticatedNoRoom || s == InRoom
}

// Snapshot is an immutable copy of the machine's observable state.
type Snapshot struct {
	State     State
	Principal string
	Username  string

	// Rooms lists the rooms of the machine's room type.
	Rooms []string

	Room     string
	Creator  string
	Messages []rooms.Message
	Members  []string
	// Live reports whether the change feed for Room is connected.
	Live bool

	// Err is the terminal authentication failure that led to AuthError.
	Err error
}

func (s Snapshot) clone() Snapshot {
	s.Rooms = slices.Clone(s.Rooms)
	s.Messages = slices.Clone(s.Messages)
	s.Members = slices.Clone(s.Members)
	return s
}

// IsCreator reports whether the current identity created the current room.
func (s Snapshot) IsCreator() bool {
	return s.Room != "" && s.Creator != "" && s.Creator == s.Principal
}
