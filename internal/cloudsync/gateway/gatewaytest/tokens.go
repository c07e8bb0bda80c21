package gatewaytest

import (
	"context"
	"sync"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

var _ gateway.TokenStore = (*TokenStore)(nil)

type zoneKey struct {
	zone  record.ZoneID
	scope record.Scope
}

// TokenStore keeps tokens in memory and counts writes. It is safe for
// concurrent use.
type TokenStore struct {
	mu     sync.RWMutex
	db     map[record.Scope]record.Token
	zones  map[zoneKey]record.Token
	writes int
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		db:    make(map[record.Scope]record.Token),
		zones: make(map[zoneKey]record.Token),
	}
}

func (m *TokenStore) DatabaseToken(_ context.Context, scope record.Scope) (record.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db[scope], nil
}

func (m *TokenStore) SetDatabaseToken(_ context.Context, scope record.Scope, token record.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if token == nil {
		delete(m.db, scope)
		return nil
	}
	m.db[scope] = append(record.Token(nil), token...)
	return nil
}

func (m *TokenStore) ZoneToken(_ context.Context, zone record.ZoneID, scope record.Scope) (record.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zones[zoneKey{zone, scope}], nil
}

func (m *TokenStore) SetZoneToken(_ context.Context, zone record.ZoneID, scope record.Scope, token record.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if token == nil {
		delete(m.zones, zoneKey{zone, scope})
		return nil
	}
	m.zones[zoneKey{zone, scope}] = append(record.Token(nil), token...)
	return nil
}

// Writes returns how many set operations the store has received.
func (m *TokenStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
