package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/roomchat/internal/client/session"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	state() session.State

	Login(ctx context.Context, args []string) error
	Register(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
	ResetIdentity(ctx context.Context, args []string) error

	Rooms(ctx context.Context, args []string) error
	Create(ctx context.Context, args []string) error
	Join(ctx context.Context, args []string) error
	Leave(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Refresh(ctx context.Context, args []string) error

	Say(ctx context.Context, args []string) error
	Attach(ctx context.Context, args []string) error
	Signal(ctx context.Context, args []string) error
	Messages(ctx context.Context, args []string) error
	Members(ctx context.Context, args []string) error
	Search(ctx context.Context, args []string) error
	Whois(ctx context.Context, args []string) error
}

type command struct {
	name string
	help string
	run  func(execIface, context.Context, []string) error
}

var commands = []command{
	{"login", "log in with your passphrase", execIface.Login},
	{"register", "register <username>: claim a username", execIface.Register},
	{"logout", "log out and forget stored credentials", execIface.Logout},
	{"reset-identity", "delete the identity stored on this device", execIface.ResetIdentity},
	{"rooms", "list rooms", execIface.Rooms},
	{"create", "create <room>: create a room", execIface.Create},
	{"join", "join <room>: enter a room", execIface.Join},
	{"leave", "leave the current room", execIface.Leave},
	{"delete", "delete the current room (creator only)", execIface.Delete},
	{"refresh", "refetch the current room", execIface.Refresh},
	{"say", "say <text>: send a message", execIface.Say},
	{"attach", "attach <path> [expiry]: send a file link", execIface.Attach},
	{"signal", "signal <user> [payload]: relay a call signal", execIface.Signal},
	{"messages", "show the room's messages", execIface.Messages},
	{"members", "show the room's members", execIface.Members},
	{"search", "search <text>: filter messages", execIface.Search},
	{"whois", "whois <username>: show a user's wallet address", execIface.Whois},
}

// available lists the commands that make sense in state s.
func available(s session.State) []string {
	switch s {
	case session.Unauthenticated, session.AuthError:
		return []string{"login", "reset-identity"}
	case session.AuthenticatedNoUsername:
		return []string{"register", "whois", "logout"}
	case session.AuthenticatedNoRoom:
		return []string{"rooms", "create", "join", "whois", "logout"}
	}
	return []string{"say", "attach", "signal", "messages", "members", "search", "refresh",
		"leave", "delete", "join", "rooms", "create", "whois", "logout"}
}

func printHelp(w io.Writer, s session.State) {
	fmt.Fprintln(w, "Available commands:")
	for _, name := range available(s) {
		for _, c := range commands {
			if c.name == name {
				fmt.Fprintf(w, "  %-15s %s\n", c.name, c.help)
			}
		}
	}
	fmt.Fprintf(w, "  %-15s %s\n", "exit", "leave the program")
}

// runREPL starts a simple read–eval–print loop.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on a. A line starting with "/" while in a room is
// sent as typed, so "/send 5 ICP to bob" works as in the chat box. Command
// errors are printed and the loop continues. The loop exits on EOF, when
// ctx is done, or when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(w, "roomchat %s> ", statusFn())

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") && a.state() == session.InRoom {
			report(w, a.Say(ctx, strings.Fields(line)))
			continue
		}

		parts := strings.Fields(line)
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printHelp(w, a.state())
			continue
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		}

		found := false
		for _, c := range commands {
			if c.name == cmd {
				found = true
				report(w, c.run(a, ctx, args))
				break
			}
		}
		if !found {
			fmt.Fprintln(w, "Unknown command:", cmd)
		}
	}
}

func report(w io.Writer, err error) {
	if err == nil || errors.Is(err, errCancelled) {
		return
	}
	fmt.Fprintln(w, "Error:", describe(err))
}
