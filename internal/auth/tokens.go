// Package auth issues and validates short-lived publish tokens and
// wraps a handler.Handler with a gate that rejects publish attempts
// lacking a valid one.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"chunkcast/internal/registry"
)

// PublishToken authorizes one publish attempt to a specific stream key.
type PublishToken struct {
	Token       string
	Key         registry.Key
	CreatedAt   time.Time
	ExpiresAt   time.Time
	PublisherIP string
	Used        bool
}

func (t *PublishToken) valid() bool {
	return !t.Used && time.Now().Before(t.ExpiresAt)
}

// Manager issues and validates publish tokens in memory.
type Manager struct {
	mu     sync.RWMutex
	tokens map[string]*PublishToken

	defaultExpiration time.Duration
	maxExpiration     time.Duration
}

// New creates a Manager with the given default and maximum token
// lifetimes.
func New(defaultExpiration, maxExpiration time.Duration) *Manager {
	return &Manager{
		tokens:            make(map[string]*PublishToken),
		defaultExpiration: defaultExpiration,
		maxExpiration:     maxExpiration,
	}
}

// Issue creates and stores a new token for key. expiresIn <= 0 uses the
// manager's default; the result is always capped at maxExpiration.
func (m *Manager) Issue(key registry.Key, expiresIn time.Duration, publisherIP string) (*PublishToken, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate publish token: %w", err)
	}
	tokenString := hex.EncodeToString(tokenBytes)

	expiration := expiresIn
	if expiration <= 0 {
		expiration = m.defaultExpiration
	}
	if expiration > m.maxExpiration {
		expiration = m.maxExpiration
	}

	token := &PublishToken{
		Token:       tokenString,
		Key:         key,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(expiration),
		PublisherIP: publisherIP,
	}

	m.mu.Lock()
	m.tokens[tokenString] = token
	m.mu.Unlock()

	go m.expireAfter(tokenString, expiration)

	return token, nil
}

// Validate reports whether tokenString is a live, unused token issued
// for key.
func (m *Manager) Validate(tokenString string, key registry.Key) error {
	m.mu.RLock()
	token, ok := m.tokens[tokenString]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("invalid publish token")
	}
	if !token.valid() {
		return fmt.Errorf("publish token expired or already used")
	}
	if token.Key != key {
		return fmt.Errorf("publish token not valid for this stream")
	}
	return nil
}

// MarkUsed marks tokenString consumed so it cannot authorize a second
// publish.
func (m *Manager) MarkUsed(tokenString string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token, ok := m.tokens[tokenString]; ok {
		token.Used = true
	}
}

// Revoke removes tokenString immediately.
func (m *Manager) Revoke(tokenString string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tokenString)
}

func (m *Manager) expireAfter(tokenString string, expiration time.Duration) {
	time.Sleep(expiration + time.Minute)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tokenString)
}

// CleanupExpired removes every token past its expiration, returning the
// count removed. Safe to call periodically alongside the registry's
// cleanup sweep; expireAfter already does this per-token, so this only
// catches tokens whose goroutine hasn't fired yet.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	removed := 0
	for tokenString, token := range m.tokens {
		if now.After(token.ExpiresAt) {
			delete(m.tokens, tokenString)
			removed++
		}
	}
	return removed
}

// Count returns the number of tokens currently tracked.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
