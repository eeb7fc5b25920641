package session

import (
	"testing"

	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParseTransfer(t *testing.T) {
	tests := []struct {
		in     string
		want   Transfer
		wantOK bool
	}{
		{"/send 5 ICP to bob", Transfer{Amount: 5, Recipient: "bob"}, true},
		{"/send 0.25 icp to alice_2", Transfer{Amount: 0.25, Recipient: "alice_2"}, true},
		{"  /SEND 1 ICP TO carl  ", Transfer{Amount: 1, Recipient: "carl"}, true},
		{"/send five ICP to bob", Transfer{}, false},
		{"/send 5 BTC to bob", Transfer{}, false},
		{"/send 5 ICP to bob please", Transfer{}, false},
		{"hello", Transfer{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTransfer(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterMessages(t *testing.T) {
	msgs := []rooms.Message{
		{Sender: "alice", Content: "Hello there"},
		{Sender: "bob", Content: "hi alice"},
		{Sender: "carl", Content: "lunch?"},
	}

	tests := []struct {
		query string
		want  []rooms.Message
	}{
		{"", msgs},
		{"ALICE", msgs[:2]},
		{"lunch", msgs[2:]},
		{"nothing", []rooms.Message{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FilterMessages(msgs, tt.query)); diff != "" {
				t.Errorf("FilterMessages(%q) mismatch (-want +got):\n%s", tt.query, diff)
			}
		})
	}
}
