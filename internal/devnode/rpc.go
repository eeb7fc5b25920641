package devnode

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/roomchat/internal/client/rooms"
)

type rpcParams struct {
	ContextID         string          `json:"contextId"`
	Method            string          `json:"method"`
	ArgsJSON          json.RawMessage `json:"argsJson"`
	ExecutorPublicKey string          `json:"executorPublicKey"`
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// callError is an application-level rejection reported in the error member.
type callError struct {
	typ, msg string
}

func (e *callError) Error() string { return e.msg }

func rejected(msg string) *callError {
	return &callError{typ: "FunctionCallError", msg: msg}
}

func (n *Node) handleRPC(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	forbid := n.forbidNext > 0
	if forbid {
		n.forbidNext--
	}
	n.mu.Unlock()
	if forbid {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if _, ok := n.authorize(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"jsonrpc": "2.0",
			"id":      nil,
			"error":   rpcError{Code: -32700, Type: "ParseError", Message: err.Error()},
		})
		return
	}

	if req.Params.ContextID != n.ContextID {
		writeJSON(w, http.StatusOK, map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   rpcError{Type: "ContextNotFound", Data: req.Params.ContextID},
		})
		return
	}

	out, mutated, err := n.dispatch(req.Params.Method, req.Params.ArgsJSON)
	if err != nil {
		ce, ok := err.(*callError)
		if !ok {
			ce = &callError{typ: "InvalidArgs", msg: err.Error()}
		}
		n.log.Debug(r.Context(), "rejected call", "method", req.Params.Method, "reason", ce.msg)
		writeJSON(w, http.StatusOK, map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   rpcError{Type: ce.typ, Data: ce.msg},
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  map[string]any{"output": out},
	})
	if mutated {
		n.Notify()
	}
}

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// dispatch applies method to the node state and reports its output and
// whether state changed.
func (n *Node) dispatch(method string, args json.RawMessage) (any, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[method]++

	switch method {
	case rooms.MethodRegisterUser:
		a, err := decodeArgs[rooms.RegisterUserRequest](args)
		if err != nil {
			return nil, false, err
		}
		ok := n.registerUser(a.Username, a.WalletAddress)
		return ok, ok, nil

	case rooms.MethodGetUsername:
		a, err := decodeArgs[rooms.GetUsernameRequest](args)
		if err != nil {
			return nil, false, err
		}
		if name, ok := n.users[a.WalletAddress]; ok {
			return name, false, nil
		}
		return nil, false, nil

	case rooms.MethodGetWalletAddress:
		a, err := decodeArgs[rooms.GetWalletAddressRequest](args)
		if err != nil {
			return nil, false, err
		}
		if wallet, ok := n.usernames[a.Username]; ok {
			return wallet, false, nil
		}
		return nil, false, nil

	case rooms.MethodCreateRoom:
		a, err := decodeArgs[rooms.CreateRoomRequest](args)
		if err != nil {
			return nil, false, err
		}
		if _, exists := n.rooms[a.Name]; exists {
			return nil, false, rejected("room already exists")
		}
		typ := a.RoomType
		if !typ.Valid() {
			typ = rooms.Chat
		}
		n.rooms[a.Name] = &room{name: a.Name, typ: typ, password: a.Password, creator: a.Creator}
		return true, true, nil

	case rooms.MethodJoinRoom:
		a, err := decodeArgs[rooms.JoinRoomRequest](args)
		if err != nil {
			return nil, false, err
		}
		rm, ok := n.rooms[a.RoomName]
		if !ok || rm.password != a.Password {
			return false, false, nil
		}
		if rm.member(a.User) {
			return true, false, nil
		}
		rm.users = append(rm.users, a.User)
		return true, true, nil

	case rooms.MethodLeaveRoom:
		a, err := decodeArgs[rooms.LeaveRoomRequest](args)
		if err != nil {
			return nil, false, err
		}
		rm, ok := n.rooms[a.RoomName]
		if !ok || !rm.member(a.User) {
			return false, false, nil
		}
		kept := rm.users[:0]
		for _, u := range rm.users {
			if u != a.User {
				kept = append(kept, u)
			}
		}
		rm.users = kept
		return true, true, nil

	case rooms.MethodDeleteRoom:
		a, err := decodeArgs[rooms.DeleteRoomRequest](args)
		if err != nil {
			return nil, false, err
		}
		rm, ok := n.rooms[a.RoomName]
		if !ok {
			return nil, false, rejected("room not found")
		}
		if rm.creator != a.WalletAddress {
			return nil, false, rejected("only the room creator can delete the room")
		}
		delete(n.rooms, a.RoomName)
		return true, true, nil

	case rooms.MethodListRooms:
		return n.roomNamesLocked(), false, nil

	case rooms.MethodGetRoomInfo:
		a, err := decodeArgs[rooms.GetRoomInfoRequest](args)
		if err != nil {
			return nil, false, err
		}
		rm, ok := n.rooms[a.RoomName]
		if !ok {
			return nil, false, nil
		}
		return rooms.Room{Name: rm.name, Type: rm.typ, Creator: rm.creator}, false, nil

	case rooms.MethodGetRoomUsers:
		a, err := decodeArgs[rooms.GetRoomUsersRequest](args)
		if err != nil {
			return nil, false, err
		}
		rm, ok := n.rooms[a.RoomName]
		if !ok {
			return []string{}, false, nil
		}
		return append([]string{}, rm.users...), false, nil

	case rooms.MethodSendMessage:
		a, err := decodeArgs[rooms.SendMessageRequest](args)
		if err != nil {
			return nil, false, err
		}
		rm, ok := n.rooms[a.RoomName]
		if !ok || !rm.member(a.Sender) {
			return nil, false, rejected("sender is not a member of the room")
		}
		rm.messages = append(rm.messages, rooms.Message{
			Sender:    a.Sender,
			Content:   a.Content,
			Timestamp: n.now().UnixMilli(),
		})
		return true, true, nil

	case rooms.MethodGetRoomMessages:
		a, err := decodeArgs[rooms.GetRoomMessagesRequest](args)
		if err != nil {
			return nil, false, err
		}
		rm, ok := n.rooms[a.RoomName]
		if !ok || !rm.member(a.User) {
			return []rooms.Message{}, false, nil
		}
		return append([]rooms.Message{}, rm.messages...), false, nil

	case rooms.MethodSendSignaling:
		a, err := decodeArgs[rooms.Signal](args)
		if err != nil {
			return nil, false, err
		}
		rm, ok := n.rooms[a.RoomName]
		if !ok || !rm.member(a.Sender) || !rm.member(a.Receiver) {
			return nil, false, rejected("sender and receiver must both be members")
		}
		n.signals = append(n.signals, a)
		return true, true, nil
	}

	return nil, false, &callError{typ: "MethodNotFound", msg: method}
}

func (n *Node) registerUser(username, wallet string) bool {
	if _, taken := n.usernames[username]; taken {
		return false
	}
	if _, taken := n.users[wallet]; taken {
		return false
	}
	n.users[wallet] = username
	n.usernames[username] = wallet
	return true
}
