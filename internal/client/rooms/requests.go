package rooms

import "errors"

// Remote method names.
const (
	MethodCreateRoom       = "create_room"
	MethodJoinRoom         = "join_room"
	MethodSendMessage      = "send_message"
	MethodGetRoomMessages  = "get_room_messages"
	MethodGetRoomUsers     = "get_room_users"
	MethodListRooms        = "list_rooms"
	MethodLeaveRoom        = "leave_room"
	MethodDeleteRoom       = "delete_room"
	MethodRegisterUser     = "register_user"
	MethodGetUsername      = "get_username"
	MethodSendSignaling    = "send_signaling"
	MethodGetRoomInfo      = "get_room_info"
	MethodGetWalletAddress = "get_wallet_address"
)

var (
	errNoRoomName = errors.New("room name is required")
	errNoUser     = errors.New("user is required")
	errNoWallet   = errors.New("wallet address is required")
)

// Passwords are not checked here: an empty password is a valid secret as
// far as the node is concerned.

type CreateRoomRequest struct {
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Creator  string   `json:"creator"`
	RoomType RoomType `json:"room_type"`
}

func (r CreateRoomRequest) Validate() error {
	if r.Name == "" {
		return errNoRoomName
	}
	if r.Creator == "" {
		return errNoWallet
	}
	if !r.RoomType.Valid() {
		return errors.New("room type must be Chat or Voice")
	}
	return nil
}

type JoinRoomRequest struct {
	RoomName string `json:"room_name"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (r JoinRoomRequest) Validate() error {
	if r.RoomName == "" {
		return errNoRoomName
	}
	if r.User == "" {
		return errNoUser
	}
	return nil
}

type SendMessageRequest struct {
	RoomName string `json:"room_name"`
	Sender   string `json:"sender"`
	Content  string `json:"content"`
}

func (r SendMessageRequest) Validate() error {
	if r.RoomName == "" {
		return errNoRoomName
	}
	if r.Sender == "" {
		return errNoUser
	}
	if r.Content == "" {
		return errors.New("message content is empty")
	}
	return nil
}

type GetRoomMessagesRequest struct {
	RoomName string `json:"room_name"`
	User     string `json:"user"`
}

func (r GetRoomMessagesRequest) Validate() error {
	if r.RoomName == "" {
		return errNoRoomName
	}
	if r.User == "" {
		return errNoUser
	}
	return nil
}

type GetRoomUsersRequest struct {
	RoomName string `json:"room_name"`
}

func (r GetRoomUsersRequest) Validate() error {
	if r.RoomName == "" {
		return errNoRoomName
	}
	return nil
}

type ListRoomsRequest struct{}

type LeaveRoomRequest struct {
	RoomName string `json:"room_name"`
	User     string `json:"user"`
}

func (r LeaveRoomRequest) Validate() error {
	if r.RoomName == "" {
		return errNoRoomName
	}
	if r.User == "" {
		return errNoUser
	}
	return nil
}

type DeleteRoomRequest struct {
	RoomName      string `json:"room_name"`
	WalletAddress string `json:"wallet_address"`
}

func (r DeleteRoomRequest) Validate() error {
	if r.RoomName == "" {
		return errNoRoomName
	}
	if r.WalletAddress == "" {
		return errNoWallet
	}
	return nil
}

type RegisterUserRequest struct {
	Username      string `json:"username"`
	WalletAddress string `json:"wallet_address"`
}

func (r RegisterUserRequest) Validate() error {
	if r.Username == "" {
		return errors.New("username is required")
	}
	if r.WalletAddress == "" {
		return errNoWallet
	}
	return nil
}

type GetUsernameRequest struct {
	WalletAddress string `json:"wallet_address"`
}

func (r GetUsernameRequest) Validate() error {
	if r.WalletAddress == "" {
		return errNoWallet
	}
	return nil
}

// Signal relays an opaque WebRTC payload between two room participants.
type Signal struct {
	RoomName string `json:"room_name"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

func (r Signal) Validate() error {
	if r.RoomName == "" {
		return errNoRoomName
	}
	if r.Sender == "" || r.Receiver == "" {
		return errors.New("sender and receiver are required")
	}
	return nil
}

type GetRoomInfoRequest struct {
	RoomName string `json:"room_name"`
}

func (r GetRoomInfoRequest) Validate() error {
	if r.RoomName == "" {
		return errNoRoomName
	}
	return nil
}

type GetWalletAddressRequest struct {
	Username string `json:"username"`
}

func (r GetWalletAddressRequest) Validate() error {
	if r.Username == "" {
		return errors.New("username is required")
	}
	return nil
}
