package rpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dmitrijs2005/roomchat/internal/client/credentials"
	"github.com/dmitrijs2005/roomchat/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct {
	cred credentials.Credential
	ok   bool
}

func (s staticCreds) Read() (credentials.Credential, bool) { return s.cred, s.ok }

func validCred() credentials.Credential {
	return credentials.Credential{
		NodeURL:           "http://node",
		ApplicationID:     "app",
		ContextID:         "ctx-1",
		ExecutorPublicKey: "pk-1",
		AccessToken:       "access",
		RefreshToken:      "refresh",
	}
}

type joinArgs struct {
	RoomName string `json:"room_name"`
	User     string `json:"user"`
}

func (a joinArgs) Validate() error {
	if a.RoomName == "" {
		return errors.New("room name is required")
	}
	return nil
}

func TestBuild_AddressesRequest(t *testing.T) {
	b := NewBuilder(staticCreds{cred: validCred(), ok: true}, "default-ctx")

	req, err := b.Build("join_room", joinArgs{RoomName: "general", User: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "ctx-1", req.ContextID)
	assert.Equal(t, "join_room", req.Method)
	assert.Equal(t, "pk-1", req.ExecutorPublicKey)
	assert.JSONEq(t, `{"room_name":"general","user":"alice"}`, string(req.ArgsJSON))
}

func TestBuild_NilArgsIsEmptyObject(t *testing.T) {
	b := NewBuilder(staticCreds{cred: validCred(), ok: true}, "")

	req, err := b.Build("list_rooms", nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{}`), req.ArgsJSON)
}

func TestBuild_FallsBackToDefaultContext(t *testing.T) {
	c := validCred()
	c.ContextID = ""
	b := NewBuilder(staticCreds{cred: c, ok: true}, "default-ctx")

	req, err := b.Build("list_rooms", nil)
	require.NoError(t, err)
	assert.Equal(t, "default-ctx", req.ContextID)
}

func TestBuild_AuthFailure(t *testing.T) {
	noKey := validCred()
	noKey.ExecutorPublicKey = ""
	noCtx := validCred()
	noCtx.ContextID = ""

	tests := []struct {
		name  string
		creds staticCreds
		def   string
	}{
		{"no credential", staticCreds{}, "ctx"},
		{"empty executor key", staticCreds{cred: noKey, ok: true}, "ctx"},
		{"no context anywhere", staticCreds{cred: noCtx, ok: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(tt.creds, tt.def).Build("list_rooms", nil)
			require.Error(t, err)

			var re *Error
			require.ErrorAs(t, err, &re)
			assert.Equal(t, 500, re.Code)
			assert.Equal(t, "Authentication failed", re.Message)
			assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
		})
	}
}

func TestBuild_ValidatesArgs(t *testing.T) {
	b := NewBuilder(staticCreds{cred: validCred(), ok: true}, "")

	_, err := b.Build("join_room", joinArgs{User: "alice"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "room name is required")
}

func TestBuild_UnencodableArgs(t *testing.T) {
	b := NewBuilder(staticCreds{cred: validCred(), ok: true}, "")

	_, err := b.Build("x", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
}
