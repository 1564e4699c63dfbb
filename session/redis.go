package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openomni/omni/schema"
)

const redisTxRetries = 5

// RedisStore keeps sessions as JSON values in Redis. AddRun uses an
// optimistic WATCH transaction so concurrent writers never lose runs.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires sessions after d of inactivity. Zero disables expiry.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// WithKeyPrefix overrides the default "omni:session:" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithRedisLogger sets the logger used for maintenance operations.
func WithRedisLogger(log *slog.Logger) RedisOption {
	return func(s *RedisStore) { s.log = log }
}

// NewRedisStore connects to the given address.
func NewRedisStore(addr string, opts ...RedisOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	s := &RedisStore{
		client: client,
		prefix: "omni:session:",
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return s, nil
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %q", schema.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", id, err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("save session: missing id")
	}
	sess.UpdatedAt = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) AddRun(ctx context.Context, id string, run RunRecord) error {
	key := s.key(id)

	txn := func(tx *redis.Tx) error {
		var sess *Session
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			sess = NewSession(id)
		case err != nil:
			return fmt.Errorf("redis get: %w", err)
		default:
			sess = &Session{}
			if err := json.Unmarshal(data, sess); err != nil {
				return fmt.Errorf("decode session %q: %w", id, err)
			}
		}

		sess.Runs = append(sess.Runs, run)
		sess.UpdatedAt = time.Now()
		encoded, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisTxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redis add run: transaction contention on %q", id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return ids, nil
}

// CleanupExpired removes sessions idle past maxAge. With a TTL configured
// Redis already expires keys; this pass catches stores running without
// one.
func (s *RedisStore) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if sess.UpdatedAt.Before(cutoff) {
			if err := s.Delete(ctx, id); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		s.log.Debug("expired sessions removed", "count", removed)
	}
	return removed, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
