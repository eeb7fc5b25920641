package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/roomchat/internal/client/session"
	"github.com/dmitrijs2005/roomchat/internal/common"
)

func (a *App) Rooms(ctx context.Context, _ []string) error {
	names, err := a.session.LoadRooms(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintf(a.out, "No %s rooms yet. Use 'create <room>'.\n", a.session.RoomType())
		return nil
	}

	current := a.session.Snapshot().Room
	fmt.Fprintf(a.out, "%s rooms:\n", a.session.RoomType())
	for _, n := range names {
		marker := " "
		if n == current {
			marker = "*"
		}
		fmt.Fprintf(a.out, " %s %s\n", marker, n)
	}
	return nil
}

// Create makes a new room. Both a name and a password are required.
func (a *App) Create(ctx context.Context, args []string) error {
	name := joinArgs(args)
	if name == "" {
		return usage("create <room>")
	}

	password, err := getPassword(a.out, "Room password")
	if err != nil {
		return err
	}
	if len(password) == 0 {
		return errors.New("a room password is required")
	}

	if err := a.session.CreateRoom(ctx, name, string(password)); err != nil {
		if errors.Is(err, common.ErrRoomExists) {
			return fmt.Errorf("room %q already exists", name)
		}
		return err
	}
	fmt.Fprintf(a.out, "Room %s created. Use 'join %s' to enter it.\n", name, name)
	return nil
}

func (a *App) Join(ctx context.Context, args []string) error {
	name := joinArgs(args)
	if name == "" {
		return usage("join <room>")
	}

	password, err := getPassword(a.out, "Room password")
	if err != nil {
		return err
	}

	if err := a.session.JoinRoom(ctx, name, string(password)); err != nil {
		if errors.Is(err, common.ErrWrongPassword) {
			return errors.New("incorrect password")
		}
		return err
	}

	s := a.session.Snapshot()
	fmt.Fprintf(a.out, "Joined %s (created by %s).\n", s.Room, s.Creator)
	printMessages(a.out, s.Messages)
	return nil
}

func (a *App) Leave(ctx context.Context, _ []string) error {
	room := a.session.Snapshot().Room
	if err := a.session.LeaveRoom(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Left %s.\n", room)
	return nil
}

func (a *App) Delete(ctx context.Context, _ []string) error {
	s := a.session.Snapshot()
	if s.State != session.InRoom {
		return common.ErrNotInRoom
	}
	if s.Creator != "" && !s.IsCreator() {
		return common.ErrNotCreator
	}
	if !confirm(a.reader, fmt.Sprintf("Delete room %s for everyone?", s.Room), a.out) {
		return errCancelled
	}

	if err := a.session.DeleteRoom(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Room %s deleted.\n", s.Room)
	return nil
}

func (a *App) Refresh(ctx context.Context, _ []string) error {
	return a.session.Refresh(ctx)
}

func (a *App) Members(ctx context.Context, _ []string) error {
	if err := a.session.Refresh(ctx); err != nil {
		return err
	}
	s := a.session.Snapshot()
	fmt.Fprintf(a.out, "Members of %s:\n", s.Room)
	for _, m := range s.Members {
		fmt.Fprintln(a.out, "  "+m)
	}
	return nil
}
