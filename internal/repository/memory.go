package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ivanoskov/payout_bot/internal/model"
)

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore - хранилище сессий в памяти процесса. Значения хранятся сериализованными,
// поэтому обработчики разных пользователей никогда не делят один объект сессии.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// WithClock подменяет часы (для тестов)
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Load(_ context.Context, key string) (*model.Session, bool, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(item.expiresAt) {
		m.mu.Lock()
		// запись могла обновиться между блокировками
		if cur, ok := m.items[key]; ok && !m.now().Before(cur.expiresAt) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}

	var sess model.Session
	if err := json.Unmarshal(item.data, &sess); err != nil {
		return nil, false, err
	}
	return &sess, true, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, session *model.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryItem{data: data, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
