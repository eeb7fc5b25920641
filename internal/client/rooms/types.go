package rooms

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type RoomType string

const (
	Chat  RoomType = "Chat"
	Voice RoomType = "Voice"
)

// ParseRoomType accepts "chat"/"voice" in any case.
func ParseRoomType(s string) (RoomType, error) {
	switch {
	case strings.EqualFold(s, string(Chat)):
		return Chat, nil
	case strings.EqualFold(s, string(Voice)):
		return Voice, nil
	}
	return "", fmt.Errorf("unknown room type %q", s)
}

func (t RoomType) Valid() bool { return t == Chat || t == Voice }

// Room is what get_room_info reports. The password is write-only and never
// comes back.
type Room struct {
	Name    string
	Type    RoomType
	Creator string
}

// UnmarshalJSON decodes the node's [name, room_type, creator] tuple.
func (r *Room) UnmarshalJSON(b []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return fmt.Errorf("room info: %w", err)
	}
	if len(tuple) != 3 {
		return fmt.Errorf("room info: want 3 fields, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &r.Name); err != nil {
		return fmt.Errorf("room info name: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &r.Type); err != nil {
		return fmt.Errorf("room info type: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &r.Creator); err != nil {
		return fmt.Errorf("room info creator: %w", err)
	}
	return nil
}

// Message is one stored chat line. Timestamp is in Unix milliseconds as
// reported by the node; zero means the node did not record one.
type Message struct {
	Sender    string
	Content   string
	Timestamp int64
}

func (m Message) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.Timestamp)
}

// UnmarshalJSON decodes the node's [sender, content, timestamp] tuple.
func (m *Message) UnmarshalJSON(b []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	if len(tuple) != 3 {
		return fmt.Errorf("message: want 3 fields, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &m.Sender); err != nil {
		return fmt.Errorf("message sender: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &m.Content); err != nil {
		return fmt.Errorf("message content: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &m.Timestamp); err != nil {
		return fmt.Errorf("message timestamp: %w", err)
	}
	return nil
}

// MarshalJSON writes the tuple form. Used by test nodes.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.Sender, m.Content, m.Timestamp})
}

// MarshalJSON writes the tuple form. Used by test nodes.
func (r Room) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.Name, r.Type, r.Creator})
}
