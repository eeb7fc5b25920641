// Package identity is the local wallet-style identity provider. A
// passphrase is stretched with argon2id into an ed25519 key; the principal
// (wallet address) and the executor public key are the base58 encoding of
// the public half. The salt and a verifier live in the local database, so
// the same passphrase always yields the same principal on this install and
// a mistyped one is rejected instead of silently creating a new identity.
package identity

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/roomchat/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/roomchat/internal/common"
	"github.com/dmitrijs2005/roomchat/internal/cryptox"
	"github.com/dmitrijs2005/roomchat/internal/logging"
	"github.com/mr-tron/base58"
)

const (
	saltKey     = "identity.salt"
	verifierKey = "identity.verifier"
)

var (
	ErrWrongPassphrase = errors.New("passphrase does not match the identity on this device")
	ErrEmptyPassphrase = errors.New("passphrase is empty")
)

type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	addr string
}

func fromSeed(seed []byte) *Identity {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{priv: priv, pub: pub, addr: base58.Encode(pub)}
}

// Principal is the stable account identifier, used as the wallet address.
func (i *Identity) Principal() string { return i.addr }

// PublicKey is the executor public key presented with every call.
func (i *Identity) PublicKey() string { return i.addr }

func (i *Identity) Sign(msg []byte) []byte { return ed25519.Sign(i.priv, msg) }

// Verify checks sig against a base58 public key.
func Verify(publicKey string, msg, sig []byte) bool {
	pub, err := base58.Decode(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

type LocalProvider struct {
	repo metadata.Repository
	log  logging.Logger

	mu      sync.RWMutex
	current *Identity
}

func NewLocalProvider(repo metadata.Repository, log logging.Logger) *LocalProvider {
	if log == nil {
		log = logging.Discard()
	}
	return &LocalProvider{repo: repo, log: log}
}

// Login derives the identity for passphrase. The first login on an install
// creates the salt and verifier.
func (p *LocalProvider) Login(ctx context.Context, passphrase []byte) (*Identity, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	salt, err := p.repo.Get(ctx, saltKey)
	if err != nil {
		return nil, fmt.Errorf("load salt: %w", err)
	}
	verifier, err := p.repo.Get(ctx, verifierKey)
	if err != nil {
		return nil, fmt.Errorf("load verifier: %w", err)
	}

	fresh := len(salt) == 0
	if fresh {
		salt = cryptox.NewSalt()
	}

	seed := cryptox.DeriveSeed(passphrase, salt)
	defer common.WipeByteArray(seed)

	if !fresh && len(verifier) > 0 && !cryptox.CheckVerifier(seed, verifier) {
		return nil, ErrWrongPassphrase
	}

	if fresh || len(verifier) == 0 {
		err := p.repo.SetMany(ctx, map[string][]byte{
			saltKey:     salt,
			verifierKey: cryptox.MakeVerifier(seed),
		})
		if err != nil {
			return nil, fmt.Errorf("save identity: %w", err)
		}
	}

	id := fromSeed(seed)

	p.mu.Lock()
	p.current = id
	p.mu.Unlock()

	p.log.Info(ctx, "identity unlocked", "principal", id.Principal(), "new", fresh)
	return id, nil
}

// Current returns the logged-in identity.
func (p *LocalProvider) Current() (*Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.current != nil
}

// Logout forgets the in-memory identity. Stored salt and verifier stay.
func (p *LocalProvider) Logout() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
}

// Reset logs out and removes the stored salt and verifier; the next Login
// creates a new identity.
func (p *LocalProvider) Reset(ctx context.Context) error {
	p.Logout()
	if err := p.repo.DeleteMany(ctx, saltKey, verifierKey); err != nil {
		return fmt.Errorf("reset identity: %w", err)
	}
	return nil
}
