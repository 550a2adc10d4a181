package authority

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"minerva/internal/identity"
	"minerva/pkg/email"
	"minerva/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when the requested record does not exist
// - ErrAlreadyExists when a unique email, username or wallet is taken
// - ErrExpired when a nonce or refresh token is past its lifetime; the record
//   is consumed either way

type account struct {
	user         identity.User
	passwordHash []byte
}

type nonceRecord struct {
	nonce     string
	timestamp string
	expiresAt time.Time
}

type refreshRecord struct {
	userID    string
	expiresAt time.Time
}

// InMemoryStore holds accounts, outstanding nonces and refresh tokens.
type InMemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]*account
	byEmail    map[string]string
	byUsername map[string]string
	nonces     map[string]nonceRecord
	refresh    map[string]refreshRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts:   make(map[string]*account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		nonces:     make(map[string]nonceRecord),
		refresh:    make(map[string]refreshRecord),
	}
}

func (s *InMemoryStore) CreateAccount(_ context.Context, user identity.User, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	emailKey := email.Normalize(user.Email)
	usernameKey := strings.ToLower(user.Username)
	if _, ok := s.byEmail[emailKey]; ok {
		return fmt.Errorf("email %s: %w", emailKey, sentinel.ErrAlreadyExists)
	}
	if _, ok := s.byUsername[usernameKey]; ok {
		return fmt.Errorf("username %s: %w", user.Username, sentinel.ErrAlreadyExists)
	}
	s.accounts[user.ID] = &account{user: user, passwordHash: passwordHash}
	s.byEmail[emailKey] = user.ID
	s.byUsername[usernameKey] = user.ID
	return nil
}

// FindByEmail returns the user and password hash for an email.
func (s *InMemoryStore) FindByEmail(_ context.Context, address string) (identity.User, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email.Normalize(address)]
	if !ok {
		return identity.User{}, nil, fmt.Errorf("account %s: %w", address, sentinel.ErrNotFound)
	}
	acc := s.accounts[id]
	return acc.user, acc.passwordHash, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return identity.User{}, fmt.Errorf("account %s: %w", id, sentinel.ErrNotFound)
	}
	return acc.user, nil
}

// LinkWallet records address on the account. An address already linked to a
// different account is refused.
func (s *InMemoryStore) LinkWallet(_ context.Context, id, address string) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return identity.User{}, fmt.Errorf("account %s: %w", id, sentinel.ErrNotFound)
	}
	for otherID, other := range s.accounts {
		if otherID != id && strings.EqualFold(other.user.WalletPubkey, address) {
			return identity.User{}, fmt.Errorf("wallet %s: %w", address, sentinel.ErrAlreadyExists)
		}
	}
	acc.user.WalletPubkey = address
	acc.user.IsWalletConnected = true
	return acc.user, nil
}

// DisconnectWallet clears the connected flag but keeps the linked address.
func (s *InMemoryStore) DisconnectWallet(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, sentinel.ErrNotFound)
	}
	acc.user.IsWalletConnected = false
	return nil
}

// PutNonce replaces any outstanding nonce for address.
func (s *InMemoryStore) PutNonce(_ context.Context, address, nonce, timestamp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[strings.ToLower(address)] = nonceRecord{nonce: nonce, timestamp: timestamp, expiresAt: expiresAt}
}

// TakeNonce consumes the nonce for address and returns its timestamp.
func (s *InMemoryStore) TakeNonce(_ context.Context, address, nonce string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(address)
	rec, ok := s.nonces[key]
	if !ok || rec.nonce != nonce {
		return "", fmt.Errorf("nonce for %s: %w", address, sentinel.ErrNotFound)
	}
	delete(s.nonces, key)
	if !now.Before(rec.expiresAt) {
		return "", fmt.Errorf("nonce for %s: %w", address, sentinel.ErrExpired)
	}
	return rec.timestamp, nil
}

func (s *InMemoryStore) PutRefresh(_ context.Context, token, userID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[token] = refreshRecord{userID: userID, expiresAt: expiresAt}
}

// ConsumeRefresh removes token and returns its owner.
func (s *InMemoryStore) ConsumeRefresh(_ context.Context, token string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[token]
	if !ok {
		return "", fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	delete(s.refresh, token)
	if !now.Before(rec.expiresAt) {
		return "", fmt.Errorf("refresh token: %w", sentinel.ErrExpired)
	}
	return rec.userID, nil
}

// RevokeUser deletes every refresh token of userID and returns how many.
func (s *InMemoryStore) RevokeUser(_ context.Context, userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, rec := range s.refresh {
		if rec.userID == userID {
			delete(s.refresh, token)
			n++
		}
	}
	return n
}
