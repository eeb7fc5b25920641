// Package rooms exposes the node's room operations as typed Go calls.
//
// Each method builds an authenticated request, dispatches it with the call
// shape the operation needs and decodes the result. A method returns either
// a value or an error, never both: on error the value is the zero value, and
// an empty result (no rooms, no messages, unknown user) is reported as an
// empty slice or found=false with a nil error.
package rooms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/roomchat/internal/client/rpc"
)

type RequestBuilder interface {
	Build(method string, args any) (rpc.Request, error)
}

type Service struct {
	builder RequestBuilder
	gw      rpc.Gateway
}

func NewService(builder RequestBuilder, gw rpc.Gateway) *Service {
	return &Service{builder: builder, gw: gw}
}

// RegisterUser reports false when the username or the wallet is already taken.
func (s *Service) RegisterUser(ctx context.Context, username, walletAddress string) (bool, error) {
	return s.mutateBool(ctx, MethodRegisterUser, RegisterUserRequest{
		Username:      username,
		WalletAddress: walletAddress,
	})
}

func (s *Service) GetUsername(ctx context.Context, walletAddress string) (string, bool, error) {
	return s.queryOptionalString(ctx, MethodGetUsername, GetUsernameRequest{WalletAddress: walletAddress})
}

// CreateRoom does not confirm creation; a name collision surfaces as
// whatever error the node returns.
func (s *Service) CreateRoom(ctx context.Context, req CreateRoomRequest) (bool, error) {
	return s.execute(ctx, MethodCreateRoom, req)
}

// JoinRoom reports false for a wrong password or a missing room.
func (s *Service) JoinRoom(ctx context.Context, roomName, user, password string) (bool, error) {
	return s.mutateBool(ctx, MethodJoinRoom, JoinRoomRequest{
		RoomName: roomName,
		User:     user,
		Password: password,
	})
}

// LeaveRoom reports false when user is not a member.
func (s *Service) LeaveRoom(ctx context.Context, roomName, user string) (bool, error) {
	return s.mutateBool(ctx, MethodLeaveRoom, LeaveRoomRequest{RoomName: roomName, User: user})
}

// DeleteRoom fails with the node's error unless walletAddress created the room.
func (s *Service) DeleteRoom(ctx context.Context, roomName, walletAddress string) error {
	_, err := s.execute(ctx, MethodDeleteRoom, DeleteRoomRequest{
		RoomName:      roomName,
		WalletAddress: walletAddress,
	})
	return err
}

func (s *Service) ListRooms(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, MethodListRooms, ListRoomsRequest{})
}

// GetRoomInfo returns nil when the room does not exist.
func (s *Service) GetRoomInfo(ctx context.Context, roomName string) (*Room, error) {
	raw, err := s.query(ctx, MethodGetRoomInfo, GetRoomInfoRequest{RoomName: roomName})
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}

	var room Room
	if err := decode(MethodGetRoomInfo, raw, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Service) GetRoomUsers(ctx context.Context, roomName string) ([]string, error) {
	return s.queryStrings(ctx, MethodGetRoomUsers, GetRoomUsersRequest{RoomName: roomName})
}

func (s *Service) SendMessage(ctx context.Context, roomName, sender, content string) (bool, error) {
	return s.execute(ctx, MethodSendMessage, SendMessageRequest{
		RoomName: roomName,
		Sender:   sender,
		Content:  content,
	})
}

// GetRoomMessages returns messages in storage order. The node answers with
// an empty list when user is not a member.
func (s *Service) GetRoomMessages(ctx context.Context, roomName, user string) ([]Message, error) {
	raw, err := s.query(ctx, MethodGetRoomMessages, GetRoomMessagesRequest{RoomName: roomName, User: user})
	if err != nil {
		return nil, err
	}

	msgs := []Message{}
	if isNull(raw) {
		return msgs, nil
	}
	if err := decode(MethodGetRoomMessages, raw, &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

func (s *Service) SendSignaling(ctx context.Context, sig Signal) (bool, error) {
	return s.execute(ctx, MethodSendSignaling, sig)
}

func (s *Service) GetWalletAddress(ctx context.Context, username string) (string, bool, error) {
	return s.queryOptionalString(ctx, MethodGetWalletAddress, GetWalletAddressRequest{Username: username})
}

func (s *Service) execute(ctx context.Context, method string, args any) (bool, error) {
	req, err := s.builder.Build(method, args)
	if err != nil {
		return false, err
	}
	if err := s.gw.Execute(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) mutateBool(ctx context.Context, method string, args any) (bool, error) {
	req, err := s.builder.Build(method, args)
	if err != nil {
		return false, err
	}
	raw, err := s.gw.Mutate(ctx, req)
	if err != nil {
		return false, err
	}
	if isNull(raw) {
		return false, nil
	}

	var ok bool
	if err := decode(method, raw, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Service) query(ctx context.Context, method string, args any) (json.RawMessage, error) {
	req, err := s.builder.Build(method, args)
	if err != nil {
		return nil, err
	}
	return s.gw.Query(ctx, req)
}

func (s *Service) queryStrings(ctx context.Context, method string, args any) ([]string, error) {
	raw, err := s.query(ctx, method, args)
	if err != nil {
		return nil, err
	}

	out := []string{}
	if isNull(raw) {
		return out, nil
	}
	if err := decode(method, raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *Service) queryOptionalString(ctx context.Context, method string, args any) (string, bool, error) {
	raw, err := s.query(ctx, method, args)
	if err != nil {
		return "", false, err
	}
	if isNull(raw) {
		return "", false, nil
	}

	var v string
	if err := decode(method, raw, &v); err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decode(method string, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &rpc.TransportError{Op: "decode " + method, Err: fmt.Errorf("unexpected output %s: %w", raw, err)}
	}
	return nil
}
