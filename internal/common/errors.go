package common

import "errors"

var (
	// Local precondition failures.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidRequest       = errors.New("invalid request")

	// Token lifecycle errors.
	ErrTokenExpired   = errors.New("token expired")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrTerminalAuth   = errors.New("authentication expired, login required")
	ErrNoRefreshToken = errors.New("no refresh token")

	// Session flow errors.
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrNoUsername      = errors.New("username is not registered")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrRoomExists      = errors.New("room already exists")
	ErrWrongPassword   = errors.New("incorrect room password")
	ErrNotInRoom       = errors.New("not in a room")
	ErrNotCreator      = errors.New("only the room creator can delete the room")
	ErrUnknownUser     = errors.New("user not found")
	ErrInvalidState    = errors.New("operation not allowed in current state")
	ErrUnsupportedFile = errors.New("unsupported file type")
)
