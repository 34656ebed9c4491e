package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection settings for RedisStore.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379/0).
	URL string

	PoolSize     int
	MinIdleConns int

	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string
}

// DefaultRedisConfig returns defaults for RedisStore.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          "redis://localhost:6379/0",
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "basecampy",
	}
}

// RedisStore implements Store on Redis.
//
// Each record is one JSON value; username and email are unique index keys
// pointing at the id. Writes run inside WATCH/MULTI so concurrent updates
// of one record surface as ErrVersionConflict.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

const redisCreateAttempts = 3

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("identity: redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("identity: redis ping: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client (tests, shared clients).
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRedisConfig().KeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) recordKey(id string) string {
	return fmt.Sprintf("%s:identity:%s", s.prefix, id)
}

func (s *RedisStore) usernameIndexKey(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", s.prefix, username)
}

func (s *RedisStore) emailIndexKey(email string) string {
	return fmt.Sprintf("%s:idx:email:%s", s.prefix, email)
}

func (s *RedisStore) Create(ctx context.Context, rec Record) (Record, error) {
	const op = "identity.RedisStore.Create"

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := rec.validateForStore(op); err != nil {
		return Record{}, err
	}
	rec = rec.Clone()
	rec.Version = 1

	data, err := json.Marshal(toRedisDoc(rec))
	if err != nil {
		return Record{}, err
	}

	rKey := s.recordKey(rec.ID)
	uKey := s.usernameIndexKey(rec.Username)
	eKey := s.emailIndexKey(rec.Email)

	txf := func(tx *redis.Tx) error {
		for _, c := range []struct{ key, field string }{
			{rKey, "id"},
			{uKey, "username"},
			{eKey, "email"},
		} {
			n, err := tx.Exists(ctx, c.key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return ConflictError{Op: op, Field: c.field}
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rKey, data, 0)
			pipe.Set(ctx, uKey, rec.ID, 0)
			pipe.Set(ctx, eKey, rec.ID, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisCreateAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, rKey, uKey, eKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return Record{}, ConflictError{Op: op, Field: "unique"}
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *RedisStore) GetByID(ctx context.Context, id string) (Record, error) {
	const op = "identity.RedisStore.GetByID"

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec, err := s.load(ctx, s.client, strings.TrimSpace(id))
	if errors.Is(err, redis.Nil) {
		return Record{}, notFound(op)
	}
	return rec, err
}

func (s *RedisStore) GetByUsername(ctx context.Context, username string) (Record, error) {
	return s.getByIndex(ctx, "identity.RedisStore.GetByUsername", s.usernameIndexKey(NormalizeUsername(username)))
}

func (s *RedisStore) GetByEmail(ctx context.Context, email string) (Record, error) {
	return s.getByIndex(ctx, "identity.RedisStore.GetByEmail", s.emailIndexKey(NormalizeEmail(email)))
}

func (s *RedisStore) getByIndex(ctx context.Context, op, indexKey string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	id, err := s.client.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, notFound(op)
		}
		return Record{}, err
	}

	rec, err := s.load(ctx, s.client, id)
	if errors.Is(err, redis.Nil) {
		return Record{}, notFound(op)
	}
	return rec, err
}

func (s *RedisStore) Update(ctx context.Context, rec Record) (Record, error) {
	const op = "identity.RedisStore.Update"

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := rec.validateForStore(op); err != nil {
		return Record{}, err
	}

	rKey := s.recordKey(rec.ID)
	var out Record

	txf := func(tx *redis.Tx) error {
		cur, err := s.load(ctx, tx, rec.ID)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return notFound(op)
			}
			return err
		}
		if cur.Version != rec.Version {
			return versionConflict(op)
		}
		if cur.Username != rec.Username || cur.Email != rec.Email {
			return invalid(op, "username and email are immutable")
		}

		next := rec.Clone()
		next.Version = cur.Version + 1
		next.CreatedAt = cur.CreatedAt
		if next.UpdatedAt.IsZero() {
			next.UpdatedAt = time.Now().UTC()
		}

		data, err := json.Marshal(toRedisDoc(next))
		if err != nil {
			return err
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rKey, data, 0)
			return nil
		}); err != nil {
			return err
		}
		out = next
		return nil
	}

	if err := s.client.Watch(ctx, txf, rKey); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return Record{}, versionConflict(op)
		}
		return Record{}, err
	}
	return out, nil
}

// redisGetter is satisfied by both *redis.Client and *redis.Tx.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c redisGetter, id string) (Record, error) {
	data, err := c.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		return Record{}, err
	}
	var doc redisDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Record{}, fmt.Errorf("identity: decode record %s: %w", id, err)
	}
	return doc.record(), nil
}

// redisDoc is the JSON shape stored under the record key.
type redisDoc struct {
	ID              string        `json:"id"`
	Username        string        `json:"username"`
	Email           string        `json:"email"`
	FullName        string        `json:"full_name,omitempty"`
	AvatarURL       string        `json:"avatar_url,omitempty"`
	AvatarLocalPath string        `json:"avatar_local_path,omitempty"`
	PasswordHash    string        `json:"password_hash"`
	RefreshHash     string        `json:"refresh_token_hash,omitempty"`
	EmailVerified   bool          `json:"email_verified"`
	EmailVerify     *PendingToken `json:"email_verification,omitempty"`
	PasswordReset   *PendingToken `json:"password_reset,omitempty"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func toRedisDoc(r Record) redisDoc {
	return redisDoc{
		ID:              r.ID,
		Username:        r.Username,
		Email:           r.Email,
		FullName:        r.FullName,
		AvatarURL:       r.Avatar.URL,
		AvatarLocalPath: r.Avatar.LocalPath,
		PasswordHash:    r.PasswordHash,
		RefreshHash:     r.RefreshTokenHash,
		EmailVerified:   r.EmailVerified,
		EmailVerify:     r.EmailVerification,
		PasswordReset:   r.PasswordReset,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (d redisDoc) record() Record {
	return Record{
		ID:                d.ID,
		Username:          d.Username,
		Email:             d.Email,
		FullName:          d.FullName,
		Avatar:            Avatar{URL: d.AvatarURL, LocalPath: d.AvatarLocalPath},
		PasswordHash:      d.PasswordHash,
		RefreshTokenHash:  d.RefreshHash,
		EmailVerified:     d.EmailVerified,
		EmailVerification: d.EmailVerify,
		PasswordReset:     d.PasswordReset,
		Version:           d.Version,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
