package session

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
)

var transferRe = regexp.MustCompile(`(?i)^/send\s+(\d+(?:\.\d+)?)\s+ICP\s+to\s+(\w+)$`)

// Transfer is a "/send <amount> ICP to <user>" intent typed into the
// compose box. It is resolved, never posted as a message.
type Transfer struct {
	Amount    float64
	Recipient string
}

func ParseTransfer(text string) (Transfer, bool) {
	m := transferRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Transfer{}, false
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Transfer{}, false
	}
	return Transfer{Amount: amount, Recipient: m[2]}, true
}

// FilterMessages keeps messages whose content or sender contains query,
// ignoring case. An empty query keeps everything.
func FilterMessages(msgs []rooms.Message, query string) []rooms.Message {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]rooms.Message, 0, len(msgs))
	for _, m := range msgs {
		if q == "" ||
			strings.Contains(strings.ToLower(m.Content), q) ||
			strings.Contains(strings.ToLower(m.Sender), q) {
			out = append(out, m)
		}
	}
	return out
}
