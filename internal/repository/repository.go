package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ivanoskov/payout_bot/internal/model"
)

// DefaultTTL - время жизни неактивной сессии
const DefaultTTL = 24 * time.Hour

// Store - key-value хранилище сессий с истечением по TTL
type Store interface {
	// Load возвращает false, если ключа нет или он истек
	Load(ctx context.Context, key string) (*model.Session, bool, error)
	Save(ctx context.Context, key string, session *model.Session, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Sessions - хранилище сессий и шагов, адресуемое по пользователю.
// Ключ в хранилище - необратимый хеш id пользователя с секретом.
type Sessions struct {
	store  Store
	secret string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions создает хранилище сессий поверх бэкенда
func NewSessions(store Store, secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Sessions{
		store:  store,
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Key вычисляет ключ сессии пользователя
func (s *Sessions) Key(userID int64) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(userID, 10) + ":" + s.secret))
	return hex.EncodeToString(sum[:])
}

// Get возвращает сессию пользователя или новую сессию по умолчанию
func (s *Sessions) Get(ctx context.Context, userID int64) (*model.Session, error) {
	sess, ok, err := s.store.Load(ctx, s.Key(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !ok {
		return model.NewSession(userID), nil
	}
	sess.UserID = userID
	if sess.Scratch == nil {
		sess.Scratch = model.Scratch{}
	}
	return sess, nil
}

// Save сохраняет сессию, продлевая TTL
func (s *Sessions) Save(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, s.Key(sess.UserID), sess, s.ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear сбрасывает сессию к неавторизованному состоянию (используется при выходе)
func (s *Sessions) Clear(ctx context.Context, userID int64) error {
	if err := s.store.Delete(ctx, s.Key(userID)); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// SetField записывает значение в scratch сессии
func (s *Sessions) SetField(ctx context.Context, userID int64, key string, value any) error {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := sess.SetField(key, value); err != nil {
		return fmt.Errorf("failed to encode field %s: %w", key, err)
	}
	return s.Save(ctx, sess)
}

// GetField читает значение из scratch в dst
func (s *Sessions) GetField(ctx context.Context, userID int64, key string, dst any) (bool, error) {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return sess.Field(key, dst)
}

// ClearFields удаляет ключи scratch, без ключей - весь scratch
func (s *Sessions) ClearFields(ctx context.Context, userID int64, keys ...string) error {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	sess.ClearFields(keys...)
	return s.Save(ctx, sess)
}
