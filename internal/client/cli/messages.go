package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/roomchat/internal/client/pinning"
	"github.com/dmitrijs2005/roomchat/internal/client/session"
)

// Say sends a message. A "/send <amount> ICP to <user>" line is a transfer
// intent: the recipient's wallet is resolved and nothing is posted.
func (a *App) Say(ctx context.Context, args []string) error {
	text := joinArgs(args)
	if text == "" {
		return usage("say <text>")
	}

	if t, ok := session.ParseTransfer(text); ok {
		wallet, err := a.session.ResolveWallet(ctx, t.Recipient)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Transfer of %g ICP to %s: wallet %s. Confirm the transfer in your wallet.\n",
			t.Amount, t.Recipient, wallet)
		return nil
	}

	return a.session.SendMessage(ctx, text)
}

// Attach uploads a file and posts a link to it. The optional second
// argument picks how long the link stays valid (1m, 30m, 1h, 12h, 1d, 7d,
// 30d or 90d).
func (a *App) Attach(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return usage("attach <path> [expiry]")
	}

	expiry := pinning.DefaultExpiry
	if len(args) == 2 {
		var err error
		if expiry, err = pinning.ParseExpiry(args[1]); err != nil {
			return err
		}
	}

	if err := a.session.SendFile(ctx, args[0], expiry); err != nil {
		if errors.Is(err, session.ErrNoPinning) {
			return errors.New("file attachments need S3 settings in the configuration")
		}
		return err
	}
	fmt.Fprintln(a.out, "File sent.")
	return nil
}

// Signal relays a payload to another member; without an inline payload it
// is read as multiple lines.
func (a *App) Signal(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("signal <user> [payload]")
	}
	receiver := args[0]

	payload := joinArgs(args[1:])
	if payload == "" {
		var err error
		if payload, err = GetMultiline(a.reader, "Enter the signaling payload", a.out); err != nil {
			return err
		}
	}
	if payload == "" {
		return errCancelled
	}

	if err := a.session.SendSignal(ctx, receiver, payload); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signal sent to %s.\n", receiver)
	return nil
}

func (a *App) Messages(ctx context.Context, _ []string) error {
	if err := a.session.Refresh(ctx); err != nil {
		return err
	}
	printMessages(a.out, a.session.Snapshot().Messages)
	return nil
}

// Search filters the messages already loaded for the current room.
func (a *App) Search(_ context.Context, args []string) error {
	s := a.session.Snapshot()
	if s.State != session.InRoom {
		return errors.New("join a room to search its messages")
	}
	printMessages(a.out, session.FilterMessages(s.Messages, joinArgs(args)))
	return nil
}

func (a *App) Whois(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("whois <username>")
	}
	wallet, err := a.session.ResolveWallet(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s\n", args[0], wallet)
	return nil
}
