package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atende-ai/internal/domain"
)

// mockRedis is an in-memory RedisClient with a controllable clock for
// deterministic expiry. failNext injects one transport error.
type mockRedis struct {
	mu       sync.Mutex
	data     map[string]string
	expiry   map[string]time.Time
	now      time.Time
	failNext error

	setNXCalls  int
	expireCalls int
}

func newMockRedis() *mockRedis {
	return &mockRedis{
		data:   make(map[string]string),
		expiry: make(map[string]time.Time),
		now:    time.Unix(1700000000, 0),
	}
}

func (m *mockRedis) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// purge drops lapsed keys. Caller holds m.mu.
func (m *mockRedis) purge() {
	for k, at := range m.expiry {
		if m.now.After(at) {
			delete(m.data, k)
			delete(m.expiry, k)
		}
	}
}

func (m *mockRedis) takeErr() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *mockRedis) SetNX(_ context.Context, key, value string, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setNXCalls++
	if err := m.takeErr(); err != nil {
		return false, err
	}
	m.purge()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	m.expiry[key] = m.now.Add(expiration)
	return true, nil
}

func (m *mockRedis) SetXX(_ context.Context, key, value string, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return false, err
	}
	m.purge()
	if _, ok := m.data[key]; !ok {
		return false, nil
	}
	m.data[key] = value
	m.expiry[key] = m.now.Add(expiration)
	return true, nil
}

func (m *mockRedis) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return "", false, err
	}
	m.purge()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockRedis) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireCalls++
	if err := m.takeErr(); err != nil {
		return false, err
	}
	m.purge()
	if _, ok := m.data[key]; !ok {
		return false, nil
	}
	m.expiry[key] = m.now.Add(expiration)
	return true, nil
}

func (m *mockRedis) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge()
	_, ok := m.data[key]
	return ok, nil
}

func (m *mockRedis) Del(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			delete(m.expiry, k)
			n++
		}
	}
	return n, nil
}

func (m *mockRedis) Close() error { return nil }

func newTestRedisStore(t *testing.T) (*RedisStore, *mockRedis) {
	t.Helper()
	mock := newMockRedis()
	s := NewRedisStore(mock, time.Hour, 0, testLogger())
	s.now = func() time.Time {
		mock.mu.Lock()
		defer mock.mu.Unlock()
		return mock.now
	}
	return s, mock
}

func TestRedisStoreCreate(t *testing.T) {
	s, mock := newTestRedisStore(t)
	ctx := context.Background()

	sess, err := s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.SessionID)
	assert.Equal(t, 1, mock.setNXCalls)

	raw, ok := mock.data[sessionKey("s1")]
	require.True(t, ok)
	var stored domain.Session
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "u1", stored.UserID)
}

func TestRedisStoreGetExistingRefreshesTTL(t *testing.T) {
	s, mock := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	mock.advance(45 * time.Minute)

	_, err = s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, mock.expireCalls, "existing session read slides the TTL")

	mock.advance(45 * time.Minute)
	ok, err := s.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok, "refresh kept the session alive past the original window")
}

func TestRedisStoreExpiredSessionRecreated(t *testing.T) {
	s, mock := newTestRedisStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(ctx, "s1", domain.RoleUser, "oi"))

	mock.advance(2 * time.Hour)

	fresh, err := s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Empty(t, fresh.History)
	assert.True(t, fresh.CreatedAt.After(first.CreatedAt))
}

func TestRedisStoreAppendTurnRoundTrip(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NoError(t, s.AppendTurn(ctx, "s1", domain.RoleUser, "oi"))
	require.NoError(t, s.AppendTurn(ctx, "s1", domain.RoleAssistant, "olá"))

	sess, err := s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	require.Len(t, sess.History, 2)
	assert.Equal(t, domain.RoleUser, sess.History[0].Role)
	assert.Equal(t, "olá", sess.History[1].Content)
}

func TestRedisStoreAppendTurnMissingSession(t *testing.T) {
	s, _ := newTestRedisStore(t)

	err := s.AppendTurn(context.Background(), "nope", domain.RoleUser, "oi")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRedisStoreSaveRace(t *testing.T) {
	s, mock := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)

	// Key vanishes between the store's load and save: SetXX declines and the
	// write surfaces as expiry rather than silently resurrecting the session.
	sess, err := s.load(ctx, "test", "s1")
	require.NoError(t, err)
	_, err = mock.Del(ctx, sessionKey("s1"))
	require.NoError(t, err)

	err = s.save(ctx, "test", sess)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestRedisStoreSetActiveAgent(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NoError(t, s.SetActiveAgent(ctx, "s1", "technical_support"))

	sess, err := s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "technical_support", sess.ActiveAgent)
}

func TestRedisStoreTransportError(t *testing.T) {
	s, mock := newTestRedisStore(t)
	mock.failNext = errors.New("connection refused")

	_, err := s.GetOrCreate(context.Background(), "s1", "u1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestRedisStoreDelete(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "s1", "u1")
	require.NoError(t, err)

	removed, err := s.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisStoreCorruptPayload(t *testing.T) {
	s, mock := newTestRedisStore(t)
	ctx := context.Background()

	mock.data[sessionKey("s1")] = "{not json"
	mock.expiry[sessionKey("s1")] = mock.now.Add(time.Hour)

	err := s.AppendTurn(ctx, "s1", domain.RoleUser, "oi")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
