package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/verte-zerg/keyprint/internal/model"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "keyprint:"

// maxRedisAttempts caps each attempt list.
const maxRedisAttempts = 1000

// RedisStore keeps profiles and attempts in Redis so several processes can
// share one profile set. Values are JSON documents.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// RedisOptions configures OpenRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// OpenRedis connects to Redis and checks the connection.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		if cerr := rdb.Close(); cerr != nil {
			// Best-effort close on failed ping.
			_ = cerr
		}
		return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStore(rdb, opts.Prefix), nil
}

// NewRedisStore wraps an existing client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) profileKey(userID string) string {
	return s.prefix + "profile:" + userID
}

func (s *RedisStore) attemptsKey(userID string) string {
	if userID == "" {
		return s.prefix + "attempts"
	}
	return s.prefix + "attempts:" + userID
}

// GetProfile loads a user's profile. It returns nil, nil when none exists.
func (s *RedisStore) GetProfile(ctx context.Context, userID string) (*model.KeystrokeProfile, error) {
	raw, err := s.rdb.Get(ctx, s.profileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p model.KeystrokeProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", userID, err)
	}
	return &p, nil
}

// SaveProfile writes a user's profile.
func (s *RedisStore) SaveProfile(ctx context.Context, p model.KeystrokeProfile) error {
	if p.UserID == "" {
		return errors.New("profile has no user id")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.profileKey(p.UserID), raw, 0).Err()
}

// DeleteProfile removes a user's profile. Recorded attempts are kept.
func (s *RedisStore) DeleteProfile(ctx context.Context, userID string) error {
	n, err := s.rdb.Del(ctx, s.profileKey(userID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// ListProfiles returns all stored profiles ordered by user id.
func (s *RedisStore) ListProfiles(ctx context.Context) ([]model.KeystrokeProfile, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"profile:*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	profiles := make([]model.KeystrokeProfile, 0, len(keys))
	for _, key := range keys {
		p, err := s.GetProfile(ctx, strings.TrimPrefix(key, s.prefix+"profile:"))
		if err != nil {
			return nil, err
		}
		if p != nil {
			profiles = append(profiles, *p)
		}
	}
	return profiles, nil
}

// RecordAttempt prepends the attempt to the user list and the global list.
func (s *RedisStore) RecordAttempt(ctx context.Context, a model.Attempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range []string{s.attemptsKey(a.UserID), s.attemptsKey("")} {
			pipe.LPush(ctx, key, raw)
			pipe.LTrim(ctx, key, 0, maxRedisAttempts-1)
		}
		return nil
	})
	return err
}

// ListAttempts returns the most recent attempts, newest first. An empty userID
// lists every user; a non-positive limit returns everything kept.
func (s *RedisStore) ListAttempts(ctx context.Context, userID string, limit int) ([]model.Attempt, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	items, err := s.rdb.LRange(ctx, s.attemptsKey(userID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	attempts := make([]model.Attempt, 0, len(items))
	for _, item := range items {
		var a model.Attempt
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, fmt.Errorf("failed to decode attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}
