package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/roomchat/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/roomchat/internal/logging"
)

const credentialKey = "session.credential"

type Store struct {
	mu   sync.RWMutex
	cred *Credential
	repo metadata.Repository
	log  logging.Logger
}

// NewStore returns a store persisted through repo. A nil repo keeps the
// credential in memory only.
func NewStore(repo metadata.Repository, log logging.Logger) *Store {
	if log == nil {
		log = logging.Discard()
	}
	return &Store{repo: repo, log: log}
}

// Init loads the persisted credential, if any.
func (s *Store) Init(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	raw, err := s.repo.Get(ctx, credentialKey)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if raw == nil {
		s.cred = nil
		return nil
	}

	var c Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		// A corrupt row is treated as a logged-out session.
		s.log.Warn(ctx, "discarding unreadable stored credential", "error", err)
		s.cred = nil
		return nil
	}
	s.cred = &c

	if exp, ok := c.AccessTokenExpiry(); ok {
		s.log.Debug(ctx, "credential loaded", "access_token_expiry", exp)
	}
	return nil
}

// Read returns a copy of the current credential and whether one is present.
func (s *Store) Read() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return Credential{}, false
	}
	return *s.cred, true
}

// Set replaces the credential.
func (s *Store) Set(ctx context.Context, c Credential) error {
	return s.Update(ctx, func(cur *Credential) { *cur = c })
}

// Update applies fn to a copy of the current credential (zero value when
// absent), persists the result and then publishes it. On a persistence
// error the previous credential stays in place.
func (s *Store) Update(ctx context.Context, fn func(*Credential)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next Credential
	if s.cred != nil {
		next = *s.cred
	}
	fn(&next)

	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.cred = &next
	return nil
}

// CompareAndSwap replaces the credential with next only while the stored one
// still equals old. It reports whether the swap happened.
func (s *Store) CompareAndSwap(ctx context.Context, old, next Credential) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred == nil || *s.cred != old {
		return false, nil
	}

	if err := s.persist(ctx, next); err != nil {
		return false, err
	}
	s.cred = &next
	return true, nil
}

func (s *Store) persist(ctx context.Context, c Credential) error {
	if s.repo == nil {
		return nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := s.repo.SetMany(ctx, map[string][]byte{credentialKey: raw}); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Clear forgets the credential in memory and on disk. The in-memory copy is
// dropped even when the delete fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = nil
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Delete(ctx, credentialKey); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}
