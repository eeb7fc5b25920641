// Package auth talks to the node's admin API to obtain and refresh the
// session's JWT pair.
//
// RequestToken is the login handshake: the caller proves ownership of its
// identity key by signing the application and context ids, and the node
// answers with an access/refresh token pair bound to that key. Refresh
// trades the current pair for a new one without changing identity; it is
// the collaborator the retry policy invokes after a forbidden reply.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/client/credentials"
	"github.com/dmitrijs2005/roomchat/internal/client/metrics"
	"github.com/dmitrijs2005/roomchat/internal/common"
	"github.com/dmitrijs2005/roomchat/internal/logging"
)

const (
	RefreshPath = "/admin-api/refresh-jwt-token"
	TokenPath   = "/admin-api/request-token"
)

// TokenStore is the part of credentials.Store the client writes through.
type TokenStore interface {
	Read() (credentials.Credential, bool)
	Set(ctx context.Context, c credentials.Credential) error
	CompareAndSwap(ctx context.Context, old, next credentials.Credential) (bool, error)
}

// Signer proves ownership of the executor key.
type Signer interface {
	// PublicKey is the base58 executor public key.
	PublicKey() string
	Sign(msg []byte) []byte
}

// TokenRequest addresses the login handshake.
type TokenRequest struct {
	NodeURL       string
	ApplicationID string
	ContextID     string
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	Data  *tokenPair `json:"data"`
	Error string     `json:"error"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RequestTokenBody is the JSON body of the login handshake.
type RequestTokenBody struct {
	ApplicationID string `json:"application_id"`
	ContextID     string `json:"context_id"`
	PublicKey     string `json:"public_key"`
	Timestamp     int64  `json:"timestamp"`
	Signature     []byte `json:"signature"`
}

// SignedMessage is what the identity key signs during the handshake.
func SignedMessage(applicationID, contextID string, timestamp int64) []byte {
	return []byte(applicationID + "\n" + contextID + "\n" + strconv.FormatInt(timestamp, 10))
}

type Client struct {
	http    *http.Client
	store   TokenStore
	timeout time.Duration
	metrics *metrics.Metrics
	log     logging.Logger
	now     func() time.Time
}

func NewClient(store TokenStore, httpClient *http.Client, m *metrics.Metrics, log logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Client{
		http:    httpClient,
		store:   store,
		timeout: common.DefaultCallTimeout,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// RequestToken runs the login handshake and stores the resulting credential.
func (c *Client) RequestToken(ctx context.Context, req TokenRequest, signer Signer) (credentials.Credential, error) {
	ts := c.now().Unix()
	body := RequestTokenBody{
		ApplicationID: req.ApplicationID,
		ContextID:     req.ContextID,
		PublicKey:     signer.PublicKey(),
		Timestamp:     ts,
		Signature:     signer.Sign(SignedMessage(req.ApplicationID, req.ContextID, ts)),
	}

	pair, err := c.post(ctx, req.NodeURL, TokenPath, body)
	if err != nil {
		return credentials.Credential{}, fmt.Errorf("%w: %w", common.ErrAuthenticationFailed, err)
	}

	cred := credentials.Credential{
		NodeURL:           req.NodeURL,
		ApplicationID:     req.ApplicationID,
		ContextID:         req.ContextID,
		ExecutorPublicKey: signer.PublicKey(),
		AccessToken:       pair.AccessToken,
		RefreshToken:      pair.RefreshToken,
	}
	if err := c.store.Set(ctx, cred); err != nil {
		return credentials.Credential{}, err
	}

	if exp, ok := cred.AccessTokenExpiry(); ok {
		c.log.Info(ctx, "session token issued", "executor", cred.ExecutorPublicKey, "expires", exp)
	}
	return cred, nil
}

// Refresh replaces the stored token pair. Any failure is reported as
// common.ErrRefreshFailed (or ErrNotLoggedIn / ErrNoRefreshToken).
func (c *Client) Refresh(ctx context.Context) error {
	cred, ok := c.store.Read()
	if !ok {
		return common.ErrNotLoggedIn
	}
	if cred.RefreshToken == "" {
		return common.ErrNoRefreshToken
	}

	pair, err := c.post(ctx, cred.NodeURL, RefreshPath, refreshRequest{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
	})
	c.metrics.ObserveRefresh(err == nil)
	if err != nil {
		c.log.Warn(ctx, "token refresh failed", "error", err)
		return fmt.Errorf("%w: %w", common.ErrRefreshFailed, err)
	}

	swapped, err := c.store.CompareAndSwap(ctx, cred, cred.WithTokens(pair.AccessToken, pair.RefreshToken))
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrRefreshFailed, err)
	}
	if !swapped {
		// Logged out, or another writer already stored newer tokens.
		if _, still := c.store.Read(); !still {
			return common.ErrNotLoggedIn
		}
		c.log.Debug(ctx, "credential changed during refresh, keeping stored tokens")
		return nil
	}

	c.log.Debug(ctx, "token refreshed")
	return nil
}

func (c *Client) post(ctx context.Context, nodeURL, path string, body any) (tokenPair, error) {
	if nodeURL == "" {
		return tokenPair{}, errors.New("node url is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return tokenPair{}, err
	}

	url := strings.TrimRight(nodeURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return tokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return tokenPair{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokenPair{}, err
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(payload, &tr)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && tr.Error != "" {
			return tokenPair{}, fmt.Errorf("%s: %s", resp.Status, tr.Error)
		}
		return tokenPair{}, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if decodeErr != nil {
		return tokenPair{}, fmt.Errorf("decode token response: %w", decodeErr)
	}
	if tr.Data == nil || tr.Data.AccessToken == "" || tr.Data.RefreshToken == "" {
		return tokenPair{}, errors.New("token response carries no tokens")
	}
	return *tr.Data, nil
}
