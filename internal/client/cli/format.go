package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/roomchat/internal/client/identity"
	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
	"github.com/dmitrijs2005/roomchat/internal/client/rpc"
	"github.com/dmitrijs2005/roomchat/internal/common"
)

var errCancelled = errors.New("cancelled")

func usage(text string) error {
	return fmt.Errorf("usage: %s", text)
}

func formatMessage(m rooms.Message) string {
	ts := "--:--:--"
	if t := m.Time(); !t.IsZero() {
		ts = t.Local().Format("15:04:05")
	}
	return fmt.Sprintf("[%s] %s: %s", ts, m.Sender, m.Content)
}

func printMessages(w io.Writer, msgs []rooms.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages.")
		return
	}
	for _, m := range msgs {
		fmt.Fprintln(w, formatMessage(m))
	}
}

// describe turns an error into a line for the user.
func describe(err error) string {
	var rerr *rpc.Error
	var terr *rpc.TransportError
	switch {
	case errors.Is(err, common.ErrTerminalAuth):
		return "session expired, please log in again"
	case errors.Is(err, common.ErrNotLoggedIn):
		return "you are not logged in (use 'login')"
	case errors.Is(err, common.ErrNoUsername):
		return "register a username first (use 'register <name>')"
	case errors.Is(err, common.ErrNotInRoom):
		return "join a room first (use 'join <room>')"
	case errors.Is(err, identity.ErrWrongPassphrase):
		return "wrong passphrase for the identity on this device"
	case errors.As(err, &rerr):
		msg := rerr.Message
		if rerr.Data != "" {
			msg += ": " + rerr.Data
		}
		return "node rejected the request: " + msg
	case errors.As(err, &terr):
		return "cannot reach the node: " + terr.Err.Error()
	}
	return err.Error()
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
