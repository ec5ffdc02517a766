package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"atende-ai/internal/domain"
)

const sessionKeyPrefix = "atende:session:"

// RedisClient abstracts the Redis operations needed by RedisStore. This
// allows a real go-redis client or a mock to be used interchangeably.
type RedisClient interface {
	// SetNX sets key to value if it does not exist. Returns true if set.
	SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error)
	// SetXX sets key to value only if it exists. Returns true if set.
	SetXX(ctx context.Context, key, value string, expiration time.Duration) (bool, error)
	// Get retrieves the value of a key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Expire resets the key's TTL. Returns false when the key is absent.
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Del deletes keys and returns how many were removed.
	Del(ctx context.Context, keys ...string) (int64, error)
	// Close shuts down the client.
	Close() error
}

// goRedisClient adapts *redis.Client to the RedisClient interface.
type goRedisClient struct {
	rdb *redis.Client
}

// NewRedisClient connects to Redis using a redis:// URL.
func NewRedisClient(url string) (RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, domain.NewDomainError("store.NewRedisClient", domain.ErrInvalidInput, err.Error())
	}
	return &goRedisClient{rdb: redis.NewClient(opts)}, nil
}

func (c *goRedisClient) SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, expiration).Result()
}

func (c *goRedisClient) SetXX(ctx context.Context, key, value string, expiration time.Duration) (bool, error) {
	return c.rdb.SetXX(ctx, key, value, expiration).Result()
}

func (c *goRedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *goRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return c.rdb.Expire(ctx, key, expiration).Result()
}

func (c *goRedisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *goRedisClient) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.rdb.Del(ctx, keys...).Result()
}

func (c *goRedisClient) Close() error {
	return c.rdb.Close()
}

// RedisStore is a Redis-backed SessionStore. Sessions are stored as JSON
// values whose key TTL is the sliding idle window; Redis expiry is the
// source of truth, so expired sessions simply vanish.
type RedisStore struct {
	client     RedisClient
	ttl        time.Duration
	maxHistory int
	logger     *slog.Logger
	now        func() time.Time
}

// NewRedisStore creates a RedisStore on an established client. Zero ttl and
// maxHistory fall back to the domain defaults.
func NewRedisStore(client RedisClient, ttl time.Duration, maxHistory int, logger *slog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	if maxHistory <= 0 {
		maxHistory = domain.DefaultMaxHistory
	}
	return &RedisStore{
		client:     client,
		ttl:        ttl,
		maxHistory: maxHistory,
		logger:     logger,
		now:        time.Now,
	}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (s *RedisStore) load(ctx context.Context, op, sessionID string) (*domain.Session, error) {
	raw, ok, err := s.client.Get(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, domain.NewDomainError(op, domain.ErrStoreUnavailable, err.Error())
	}
	if !ok {
		return nil, domain.NewDomainError(op, domain.ErrSessionNotFound, sessionID)
	}
	var sess domain.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, domain.NewDomainError(op, domain.ErrStoreUnavailable, "corrupt session payload: "+err.Error())
	}
	return &sess, nil
}

// save writes the session back only while its key is still live. A session
// that expired between load and save surfaces as ErrSessionExpired.
func (s *RedisStore) save(ctx context.Context, op string, sess *domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return domain.NewDomainError(op, domain.ErrStoreUnavailable, err.Error())
	}
	set, err := s.client.SetXX(ctx, sessionKey(sess.SessionID), string(raw), s.ttl)
	if err != nil {
		return domain.NewDomainError(op, domain.ErrStoreUnavailable, err.Error())
	}
	if !set {
		return domain.NewDomainError(op, domain.ErrSessionExpired, sess.SessionID)
	}
	return nil
}

// GetOrCreate implements domain.SessionStore. SETNX makes the create
// atomic across nodes; concurrent first contact yields exactly one record.
func (s *RedisStore) GetOrCreate(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	const op = "RedisStore.GetOrCreate"
	if sessionID == "" {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "empty session id")
	}
	key := sessionKey(sessionID)

	// Two attempts cover the race where the key expires between the failed
	// SETNX and the Get.
	for attempt := 0; attempt < 2; attempt++ {
		sess := domain.NewSession(sessionID, userID, s.now())
		raw, err := json.Marshal(sess)
		if err != nil {
			return nil, domain.NewDomainError(op, domain.ErrStoreUnavailable, err.Error())
		}
		created, err := s.client.SetNX(ctx, key, string(raw), s.ttl)
		if err != nil {
			return nil, domain.NewDomainError(op, domain.ErrStoreUnavailable, err.Error())
		}
		if created {
			s.logger.Debug("session created", "session_id", sessionID, "user_id", userID)
			return sess, nil
		}

		existing, err := s.load(ctx, op, sessionID)
		if err != nil {
			if domain.ErrorCodeOf(err) == domain.CodeSessionNotFound {
				continue
			}
			return nil, err
		}
		// Slide the idle window on read. A vanished key here means the
		// session just expired; the retry recreates it.
		if _, err := s.client.Expire(ctx, key, s.ttl); err != nil {
			return nil, domain.NewDomainError(op, domain.ErrStoreUnavailable, err.Error())
		}
		return existing, nil
	}
	return nil, domain.NewDomainError(op, domain.ErrStoreUnavailable, "session create retry exhausted")
}

// AppendTurn implements domain.SessionStore.
func (s *RedisStore) AppendTurn(ctx context.Context, sessionID, role, content string) error {
	const op = "RedisStore.AppendTurn"
	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return err
	}
	sess.AppendTurn(role, content, s.now(), s.maxHistory)
	return s.save(ctx, op, sess)
}

// SetActiveAgent implements domain.SessionStore.
func (s *RedisStore) SetActiveAgent(ctx context.Context, sessionID, agentID string) error {
	const op = "RedisStore.SetActiveAgent"
	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return err
	}
	sess.ActiveAgent = agentID
	now := s.now()
	if now.After(sess.LastActivity) {
		sess.LastActivity = now
	}
	return s.save(ctx, op, sess)
}

// Exists implements domain.SessionStore. It does not refresh the TTL.
func (s *RedisStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.client.Exists(ctx, sessionKey(sessionID))
	if err != nil {
		return false, domain.NewDomainError("RedisStore.Exists", domain.ErrStoreUnavailable, err.Error())
	}
	return ok, nil
}

// Delete implements domain.SessionStore.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Del(ctx, sessionKey(sessionID))
	if err != nil {
		return false, domain.NewDomainError("RedisStore.Delete", domain.ErrStoreUnavailable, err.Error())
	}
	return n > 0, nil
}

// Close releases the underlying client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
