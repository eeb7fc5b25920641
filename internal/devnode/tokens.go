package devnode

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/roomchat/internal/client/auth"
	"github.com/dmitrijs2005/roomchat/internal/client/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

type claims struct {
	jwt.RegisteredClaims
	Type       string `json:"typ"`
	Generation int    `json:"gen"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (n *Node) sign(subject, typ string, ttl time.Duration, gen int) (string, error) {
	now := n.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type:       typ,
		Generation: gen,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(n.secret)
}

// issue must be called with n.mu held.
func (n *Node) issue(subject string) (tokenPair, error) {
	access, err := n.sign(subject, tokenAccess, n.accessTTL, n.generation)
	if err != nil {
		return tokenPair{}, err
	}
	refresh, err := n.sign(subject, tokenRefresh, n.refreshTTL, 0)
	if err != nil {
		return tokenPair{}, err
	}
	return tokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (n *Node) parse(raw, wantType string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return n.secret, nil
	}, jwt.WithTimeFunc(n.now))
	if err != nil {
		return nil, err
	}
	if c.Type != wantType {
		return nil, errors.New("wrong token type")
	}
	return c, nil
}

// authorize validates the bearer access token and reports the subject.
func (n *Node) authorize(r *http.Request) (string, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	c, err := n.parse(raw, tokenAccess)
	if err != nil {
		return "", false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if c.Generation < n.generation {
		return "", false
	}
	return c.Subject, true
}

func (n *Node) handleRequestToken(w http.ResponseWriter, r *http.Request) {
	var body auth.RequestTokenBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAdminError(w, http.StatusBadRequest, "malformed request")
		return
	}

	if body.ApplicationID != n.ApplicationID || body.ContextID != n.ContextID {
		writeAdminError(w, http.StatusNotFound, "unknown application or context")
		return
	}
	msg := auth.SignedMessage(body.ApplicationID, body.ContextID, body.Timestamp)
	if !identity.Verify(body.PublicKey, msg, body.Signature) {
		writeAdminError(w, http.StatusUnauthorized, "bad signature")
		return
	}
	if d := n.now().Sub(time.Unix(body.Timestamp, 0)); d > 5*time.Minute || d < -5*time.Minute {
		writeAdminError(w, http.StatusUnauthorized, "stale timestamp")
		return
	}

	n.mu.Lock()
	pair, err := n.issue(body.PublicKey)
	n.mu.Unlock()
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": pair})
}

func (n *Node) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body tokenPair
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAdminError(w, http.StatusBadRequest, "malformed request")
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.refreshCount++
	if n.failRefresh {
		writeAdminError(w, http.StatusUnauthorized, "refresh rejected")
		return
	}

	c, err := n.parse(body.RefreshToken, tokenRefresh)
	if err != nil {
		writeAdminError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if n.usedRefresh[c.ID] {
		writeAdminError(w, http.StatusUnauthorized, "refresh token already used")
		return
	}
	n.usedRefresh[c.ID] = true

	pair, err := n.issue(c.Subject)
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": pair})
}

// IssueTokens mints a token pair for subject without the signed handshake.
func (n *Node) IssueTokens(subject string) (access, refresh string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, err := n.issue(subject)
	return p.AccessToken, p.RefreshToken, err
}

func writeAdminError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
