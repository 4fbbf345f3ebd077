package app

import (
	"context"
	"sync"
	"time"

	"taskhub/api/internal/store"
)

// pgSessions stores refresh sessions in Postgres when Redis is not
// configured. It narrows the store's (tokenHash, userID) shape to the
// session interface the service works against.
type pgSessions struct {
	store *store.PostgresStore
}

func NewPGSessions(s *store.PostgresStore) *pgSessions {
	return &pgSessions{store: s}
}

func (p *pgSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p *pgSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p *pgSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

// memoryFlashes queues flash notices in process memory. Fine for a single
// instance without Redis; notices are lost on restart, which is acceptable
// for one-shot UI hints.
type memoryFlashes struct {
	mu      sync.Mutex
	notices map[int64][]string
}

func NewMemoryFlashes() *memoryFlashes {
	return &memoryFlashes{notices: make(map[int64][]string)}
}

func (m *memoryFlashes) PushFlash(_ context.Context, userID int64, notice string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices[userID] = append(m.notices[userID], notice)
	return nil
}

func (m *memoryFlashes) PopFlashes(_ context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	notices := m.notices[userID]
	delete(m.notices, userID)
	return notices, nil
}
