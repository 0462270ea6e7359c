// Package snapstate persists the per-user credentials a wallet registers
// before screening is enabled: the recovered public key, the address it
// belongs to and the signature it was recovered from.
package snapstate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound       = errors.New("snapstate: credentials not found")
	ErrInvalidAddress = errors.New("snapstate: user address required")
)

// Credentials is the saved state for one user.
type Credentials struct {
	PublicKey        string    `json:"publicKey"` // uncompressed, hex without 0x
	UserAddress      string    `json:"userAddress"`
	MessageSignature string    `json:"messageSignature"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Store persists credentials keyed by user address.
type Store interface {
	Get(ctx context.Context, userAddress string) (*Credentials, error)
	Put(ctx context.Context, creds *Credentials) error
	Delete(ctx context.Context, userAddress string) error
}

// Key normalizes an address for use as a store key.
func Key(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Lookup returns the credentials for userAddress, or nil when none are
// saved. Only storage failures are errors.
func Lookup(ctx context.Context, s Store, userAddress string) (*Credentials, error) {
	c, err := s.Get(ctx, userAddress)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidAddress) {
		return nil, nil
	}
	return c, err
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]Credentials
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]Credentials), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, userAddress string) (*Credentials, error) {
	key := Key(userAddress)
	if key == "" {
		return nil, ErrInvalidAddress
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.creds[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) Put(_ context.Context, creds *Credentials) error {
	key := Key(creds.UserAddress)
	if key == "" {
		return ErrInvalidAddress
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := *creds
	c.UpdatedAt = m.now().UTC()
	m.creds[key] = c
	creds.UpdatedAt = c.UpdatedAt
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userAddress string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(userAddress)
	if _, ok := m.creds[key]; !ok {
		return ErrNotFound
	}
	delete(m.creds, key)
	return nil
}
