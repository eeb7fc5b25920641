package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/roomchat/internal/client/session"
	"github.com/dmitrijs2005/roomchat/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts for the identity passphrase, logs in and looks up the
// username registered for the identity. The passphrase is wiped before
// returning.
func (a *App) Login(ctx context.Context, _ []string) error {
	passphrase, err := getPassword(a.out, "Passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(passphrase)

	if err := a.session.Login(ctx, passphrase); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s\n", a.session.Snapshot().Principal)

	name, found, err := a.session.ResolveUsername(ctx)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(a.out, "No username is registered for this identity yet. Use 'register <username>'.")
		return nil
	}
	fmt.Fprintf(a.out, "Welcome back, %s!\n", name)
	return a.Rooms(ctx, nil)
}

// Register claims a username, prompting for one when none is given.
func (a *App) Register(ctx context.Context, args []string) error {
	name := joinArgs(args)
	if name == "" {
		var err error
		if name, err = getSimpleText(a.reader, "Choose a username", a.out); err != nil {
			return err
		}
	}
	if name == "" {
		return usage("register <username>")
	}

	if err := a.session.RegisterUsername(ctx, name); err != nil {
		if errors.Is(err, common.ErrUsernameTaken) {
			return fmt.Errorf("username %q is already taken", name)
		}
		return err
	}
	fmt.Fprintf(a.out, "Registered as %s\n", name)
	return a.Rooms(ctx, nil)
}

func (a *App) Logout(ctx context.Context, _ []string) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

// ResetIdentity deletes the local identity so the next login creates a new
// one. Only allowed while logged out.
func (a *App) ResetIdentity(ctx context.Context, _ []string) error {
	if a.identity == nil {
		return errors.New("identity reset is not available")
	}
	if st := a.session.Snapshot().State; st != session.Unauthenticated && st != session.AuthError {
		return errors.New("log out before resetting the identity")
	}
	if !confirm(a.reader, "This permanently forgets the identity on this device. Continue?", a.out) {
		return errCancelled
	}
	if err := a.identity.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Identity removed. The next login creates a new one.")
	return nil
}
