package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/payout_bot/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSessions(t *testing.T) (*Sessions, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore().WithClock(clock.Now)
	s := NewSessions(store, "secret", time.Hour)
	s.now = clock.Now
	return s, clock
}

func TestSessionsDefault(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()

	sess, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sess.UserID)
	assert.False(t, sess.Authenticated)
	assert.False(t, sess.InFlow())
	assert.Empty(t, sess.Scratch)
}

func TestSessionsKeyIsHashed(t *testing.T) {
	s, _ := newTestSessions(t)

	key := s.Key(42)
	assert.Len(t, key, 64)
	assert.NotContains(t, key, "42")
	assert.Equal(t, key, s.Key(42))
	assert.NotEqual(t, key, s.Key(43))

	other := NewSessions(NewMemoryStore(), "another", time.Hour)
	assert.NotEqual(t, key, other.Key(42))
}

func TestSessionsSlidingTTL(t *testing.T) {
	s, clock := newTestSessions(t)
	ctx := context.Background()

	sess, err := s.Get(ctx, 1)
	require.NoError(t, err)
	sess.Authenticated = true
	sess.Step = model.At(model.FlowSend, model.StepAmount)
	require.NoError(t, s.Save(ctx, sess))

	clock.Advance(50 * time.Minute)
	sess, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, sess.Authenticated)
	// запись продлевает жизнь сессии
	require.NoError(t, s.Save(ctx, sess))

	clock.Advance(50 * time.Minute)
	sess, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, sess.Authenticated)
	assert.Equal(t, model.At(model.FlowSend, model.StepAmount), sess.Step)

	clock.Advance(61 * time.Minute)
	sess, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated)
	assert.False(t, sess.InFlow())
}

func TestSessionsFields(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()

	require.NoError(t, s.SetField(ctx, 1, "recipient", "a@b.co"))
	require.NoError(t, s.SetField(ctx, 1, "entries", model.BatchEntries{{Email: "x@y.io", Amount: "5"}}))

	var recipient string
	ok, err := s.GetField(ctx, 1, "recipient", &recipient)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a@b.co", recipient)

	var entries model.BatchEntries
	ok, err = s.GetField(ctx, 1, "entries", &entries)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, entries.Index("X@Y.IO"))

	require.NoError(t, s.ClearFields(ctx, 1, "recipient"))
	ok, err = s.GetField(ctx, 1, "recipient", &recipient)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ClearFields(ctx, 1))
	ok, err = s.GetField(ctx, 1, "entries", &entries)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionsIsolation(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()

	require.NoError(t, s.SetField(ctx, 1, "amount", "5"))

	var v string
	ok, err := s.GetField(ctx, 2, "amount", &v)
	require.NoError(t, err)
	assert.False(t, ok)

	// изменение загруженной копии не влияет на хранилище без Save
	sess, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, sess.SetField("amount", "7"))
	ok, err = s.GetField(ctx, 1, "amount", &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5", v)
}

func TestSessionsClear(t *testing.T) {
	s, _ := newTestSessions(t)
	ctx := context.Background()

	sess, _ := s.Get(ctx, 7)
	sess.Login(&model.AuthResult{AccessToken: "tok", User: model.User{Email: "me@x.io", OrganizationID: "org"}})
	require.NoError(t, s.Save(ctx, sess))

	require.NoError(t, s.Clear(ctx, 7))
	sess, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, sess.Authenticated)
	assert.Empty(t, sess.Token)
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) (*model.Session, bool, error) {
	return nil, false, errors.New("boom")
}

func (failingStore) Save(context.Context, string, *model.Session, time.Duration) error {
	return errors.New("boom")
}

func (failingStore) Delete(context.Context, string) error { return errors.New("boom") }

func TestSessionsStoreErrors(t *testing.T) {
	s := NewSessions(failingStore{}, "secret", 0)
	ctx := context.Background()

	_, err := s.Get(ctx, 1)
	assert.ErrorContains(t, err, "failed to load session")
	assert.ErrorContains(t, s.Save(ctx, model.NewSession(1)), "failed to save session")
	assert.ErrorContains(t, s.Clear(ctx, 1), "failed to clear session")
	assert.Equal(t, DefaultTTL, s.ttl)
}
