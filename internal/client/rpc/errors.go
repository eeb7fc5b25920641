package rpc

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/roomchat/internal/common"
)

// RemoteErrorCode is used for node errors that carry no numeric code.
const RemoteErrorCode = -32000

// Error is an error reported by the remote node.
type Error struct {
	Code    int
	Message string
	Data    string

	err error
}

func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// Forbidden reports whether the node rejected the access token.
func (e *Error) Forbidden() bool { return e.Code == common.ForbiddenCode }

// AuthFailure is the local precondition failure returned when no request can
// be built from the stored credential.
func AuthFailure() *Error {
	return &Error{
		Code:    common.AuthFailureCode,
		Message: "Authentication failed",
		err:     common.ErrAuthenticationFailed,
	}
}

func forbidden(msg string) *Error {
	if msg == "" {
		msg = "forbidden"
	}
	return &Error{Code: common.ForbiddenCode, Message: msg}
}

// IsForbidden reports whether err is a remote 403.
func IsForbidden(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Forbidden()
}

// TransportError covers everything that is not a reply from the node:
// network failures, timeouts, unexpected HTTP statuses and malformed bodies.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
