package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/example/expense-workflow/internal/identity"
	"github.com/example/expense-workflow/internal/models"
)

// SessionStore maps opaque cookie tokens to user ids. Sessions live in
// process memory; losing them on restart only forces a re-login, which is
// acceptable for this deployment.
type SessionStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]sessionEntry
}

type sessionEntry struct {
	userID    int64
	expiresAt time.Time
}

// NewSessionStore creates a session store with the given lifetime
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]sessionEntry),
	}
}

// Issue creates a new session for the user and returns its token
func (s *SessionStore) Issue(userID int64) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	token := hex.EncodeToString(raw)

	s.mu.Lock()
	s.sessions[token] = sessionEntry{
		userID:    userID,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return token, nil
}

// Lookup resolves a token to a user id. Expired sessions are dropped.
func (s *SessionStore) Lookup(token string) (int64, bool) {
	s.mu.RLock()
	entry, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return 0, false
	}
	if time.Now().After(entry.expiresAt) {
		s.Revoke(token)
		return 0, false
	}
	return entry.userID, true
}

// Revoke removes a session
func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// UserReader resolves session user ids to full users
type UserReader interface {
	GetByID(id int64) (*models.User, error)
}

// SessionProvider resolves session cookie tokens to caller identities. It
// is the only place the session machinery touches identity resolution; the
// engine and query service receive the resolved Identity.
type SessionProvider struct {
	store *SessionStore
	users UserReader
}

// NewSessionProvider creates an identity provider backed by the session
// store and the users table
func NewSessionProvider(store *SessionStore, users UserReader) *SessionProvider {
	return &SessionProvider{
		store: store,
		users: users,
	}
}

// Resolve implements identity.Provider
func (p *SessionProvider) Resolve(credential string) (identity.Identity, error) {
	userID, ok := p.store.Lookup(credential)
	if !ok {
		return identity.Identity{}, identity.ErrUnauthenticated
	}

	user, err := p.users.GetByID(userID)
	if err != nil {
		return identity.Identity{}, err
	}
	if user == nil || !user.Active {
		return identity.Identity{}, identity.ErrUnauthenticated
	}

	return identity.Identity{
		UserID:    user.ID,
		Name:      user.Name,
		Role:      user.Role,
		ManagerID: user.ManagerID,
	}, nil
}
