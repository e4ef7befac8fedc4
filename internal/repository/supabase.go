package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/ivanoskov/payout_bot/internal/model"
)

const sessionsTable = "bot_sessions"

// sessionRow - строка таблицы bot_sessions (key text primary key, data jsonb, expires_at timestamptz)
type sessionRow struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// SupabaseStore хранит сессии в Postgres через PostgREST
type SupabaseStore struct {
	client *supabase.Client
	now    func() time.Time
}

func NewSupabaseStore(url, key string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, err
	}

	return &SupabaseStore{
		client: client,
		now:    time.Now,
	}, nil
}

func (r *SupabaseStore) Load(ctx context.Context, key string) (*model.Session, bool, error) {
	data, _, err := r.client.From(sessionsTable).
		Select("key,data,expires_at", "", false).
		Eq("key", key).
		Gt("expires_at", r.now().UTC().Format(time.RFC3339)).
		Execute()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session: %w", err)
	}
	return decodeSessionRows(data, r.now())
}

func (r *SupabaseStore) Save(ctx context.Context, key string, session *model.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	row := sessionRow{
		Key:       key,
		Data:      payload,
		ExpiresAt: r.now().Add(ttl).UTC(),
	}
	// upsert по первичному ключу
	if _, _, err := r.client.From(sessionsTable).Insert(row, true, "key", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *SupabaseStore) Delete(ctx context.Context, key string) error {
	_, _, err := r.client.From(sessionsTable).
		Delete("minimal", "").
		Eq("key", key).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// decodeSessionRows разбирает ответ select. Истекшие строки игнорируются
// даже если их вернул сервер (часы сервера и бота могут расходиться).
func decodeSessionRows(data []byte, now time.Time) (*model.Session, bool, error) {
	var rows []sessionRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("failed to parse session rows: %w", err)
	}
	if len(rows) == 0 || !now.Before(rows[0].ExpiresAt) {
		return nil, false, nil
	}

	var sess model.Session
	if err := json.Unmarshal(rows[0].Data, &sess); err != nil {
		return nil, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, true, nil
}
