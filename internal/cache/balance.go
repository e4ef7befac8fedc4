// Package cache кеширует балансы кошельков на короткое время.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/ivanoskov/payout_bot/internal/model"
)

type entry struct {
	Balances  []model.WalletBalance `json:"balances"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// BalanceCache - кеш балансов по пользователю. Срок жизни проверяется по
// инжектируемым часам, bigcache только вытесняет старые записи.
type BalanceCache struct {
	cache *bigcache.BigCache
	ttl   time.Duration
	now   func() time.Time
}

// NewBalanceCache создает кеш с заданным временем жизни записей
func NewBalanceCache(ctx context.Context, ttl time.Duration) (*BalanceCache, error) {
	// окно жизни bigcache берем с запасом, точный срок считаем сами
	cfg := bigcache.DefaultConfig(ttl * 2)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 10_000
	cfg.MaxEntrySize = 2048
	cfg.CleanWindow = time.Minute
	cfg.Verbose = false

	c, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create balance cache: %w", err)
	}
	return &BalanceCache{cache: c, ttl: ttl, now: time.Now}, nil
}

// WithClock подменяет часы (для тестов)
func (c *BalanceCache) WithClock(now func() time.Time) *BalanceCache {
	c.now = now
	return c
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Get возвращает балансы, если запись не истекла
func (c *BalanceCache) Get(userID int64) ([]model.WalletBalance, bool) {
	data, err := c.cache.Get(key(userID))
	if err != nil {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	if !c.now().Before(e.ExpiresAt) {
		_ = c.cache.Delete(key(userID))
		return nil, false
	}
	return e.Balances, true
}

// Put сохраняет балансы пользователя
func (c *BalanceCache) Put(userID int64, balances []model.WalletBalance) error {
	data, err := json.Marshal(entry{Balances: balances, ExpiresAt: c.now().Add(c.ttl)})
	if err != nil {
		return err
	}
	return c.cache.Set(key(userID), data)
}

// Invalidate удаляет запись (после любого перевода)
func (c *BalanceCache) Invalidate(userID int64) error {
	if err := c.cache.Delete(key(userID)); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (c *BalanceCache) Close() error {
	return c.cache.Close()
}
