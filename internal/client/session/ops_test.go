package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyRooms accepts every message but fails to list them.
type flakyRooms struct {
	RoomOps
	sends atomic.Int32
}

func (r *flakyRooms) SendMessage(context.Context, string, string, string) (bool, error) {
	r.sends.Add(1)
	return true, nil
}

func (r *flakyRooms) GetRoomMessages(context.Context, string, string) ([]rooms.Message, error) {
	return nil, errors.New("node unavailable")
}

func (r *flakyRooms) GetRoomUsers(context.Context, string) ([]string, error) {
	return []string{"alice"}, nil
}

func TestSendMessage_RefetchFailureAfterSendIsNotAnError(t *testing.T) {
	stub := &flakyRooms{}
	m := New(Config{}, Deps{Rooms: stub})
	t.Cleanup(m.Close)

	before := []rooms.Message{{Sender: "bob", Content: "earlier", Timestamp: 1}}
	m.mu.Lock()
	m.snap = Snapshot{State: InRoom, Principal: "p", Username: "alice", Room: "general", Messages: before}
	m.mu.Unlock()

	err := m.SendMessage(context.Background(), "hello")

	require.NoError(t, err, "the message was accepted; a retry would post it twice")
	assert.EqualValues(t, 1, stub.sends.Load())
	snap := m.Snapshot()
	assert.Equal(t, InRoom, snap.State)
	assert.Equal(t, before, snap.Messages)
}
