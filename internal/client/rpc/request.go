package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/roomchat/internal/client/credentials"
	"github.com/dmitrijs2005/roomchat/internal/common"
)

// Shape is the JSON-RPC method used to carry an application call.
type Shape string

const (
	ShapeExecute Shape = "execute"
	ShapeMutate  Shape = "mutate"
	ShapeQuery   Shape = "query"
)

// Request is a fully addressed application call.
type Request struct {
	ContextID         string          `json:"contextId"`
	Method            string          `json:"method"`
	ArgsJSON          json.RawMessage `json:"argsJson"`
	ExecutorPublicKey string          `json:"executorPublicKey"`
}

// CredentialSource is the read side of the credential store.
type CredentialSource interface {
	Read() (credentials.Credential, bool)
}

type validator interface {
	Validate() error
}

type Builder struct {
	creds            CredentialSource
	defaultContextID string
}

// NewBuilder returns a Builder. defaultContextID addresses calls when the
// stored credential carries no context id.
func NewBuilder(creds CredentialSource, defaultContextID string) *Builder {
	return &Builder{creds: creds, defaultContextID: defaultContextID}
}

// Build addresses method with args. Args that implement Validate are
// checked first. A nil args value is sent as an empty object.
func (b *Builder) Build(method string, args any) (Request, error) {
	cred, ok := b.creds.Read()
	if !ok || cred.ExecutorPublicKey == "" {
		return Request{}, AuthFailure()
	}

	contextID := cred.ContextID
	if contextID == "" {
		contextID = b.defaultContextID
	}
	if contextID == "" {
		return Request{}, AuthFailure()
	}

	if v, ok := args.(validator); ok {
		if err := v.Validate(); err != nil {
			return Request{}, fmt.Errorf("%s: %w: %w", method, common.ErrInvalidRequest, err)
		}
	}

	raw := json.RawMessage(`{}`)
	if args != nil {
		enc, err := json.Marshal(args)
		if err != nil {
			return Request{}, fmt.Errorf("%s: encode args: %w", method, err)
		}
		raw = enc
	}

	return Request{
		ContextID:         contextID,
		Method:            method,
		ArgsJSON:          raw,
		ExecutorPublicKey: cred.ExecutorPublicKey,
	}, nil
}
