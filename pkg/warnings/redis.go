package warnings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures RedisStore.
type RedisConfig struct {
	// Prefix namespaces every key.
	// Default: "warden:"
	Prefix string

	// Retention is how long state outlives its expiry before Redis drops it,
	// covering a sweeper that is briefly down.
	// Default: 24 hours
	Retention time.Duration
}

// RedisStore keeps mute state in Redis.
//
// Layout per mute: a hash "<prefix>mute:<group>:<user>" with the expiry in
// unix milliseconds and a list "<prefix>mute:<group>:<user>:msgs" of prompt
// ids. The sorted set "<prefix>mute:due" indexes every mute by expiry.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a RedisStore on an existing client. Close does not
// close the client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "warden:"
	}
	if cfg.Retention == 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: cfg.Prefix, retention: cfg.Retention}
}

func (s *RedisStore) stateKey(k Key) string {
	return s.prefix + "mute:" + k.String()
}

func (s *RedisStore) msgsKey(k Key) string {
	return s.stateKey(k) + ":msgs"
}

func (s *RedisStore) dueKey() string {
	return s.prefix + "mute:due"
}

func parseKey(member string) (Key, error) {
	g, u, ok := strings.Cut(member, ":")
	if !ok {
		return Key{}, fmt.Errorf("malformed mute key %q", member)
	}
	gid, err := strconv.ParseInt(g, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("malformed mute key %q: %w", member, err)
	}
	uid, err := strconv.ParseInt(u, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("malformed mute key %q: %w", member, err)
	}
	return Key{GroupID: gid, UserID: uid}, nil
}

func parseIDs(raw []string) ([]int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ids := make([]int, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.Atoi(r)
		if err != nil {
			return nil, fmt.Errorf("malformed message id %q: %w", r, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *RedisStore) ttl(until time.Time) time.Duration {
	d := time.Until(until) + s.retention
	if d < s.retention {
		d = s.retention
	}
	return d
}

func (s *RedisStore) SetUntil(ctx context.Context, key Key, until time.Time) error {
	ttl := s.ttl(until)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.stateKey(key), "until", until.UnixMilli())
		pipe.Expire(ctx, s.stateKey(key), ttl)
		pipe.Expire(ctx, s.msgsKey(key), ttl)
		pipe.ZAdd(ctx, s.dueKey(), redis.Z{Score: float64(until.UnixMilli()), Member: key.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set until %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Record(ctx context.Context, key Key, messageID int) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.msgsKey(key), messageID)
		pipe.Expire(ctx, s.msgsKey(key), s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, key Key) ([]int, error) {
	var lr *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lr = pipe.LRange(ctx, s.msgsKey(key), 0, -1)
		pipe.Del(ctx, s.msgsKey(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis clear %s: %w", key, err)
	}
	return parseIDs(lr.Val())
}

func (s *RedisStore) Get(ctx context.Context, key Key) (State, bool, error) {
	var (
		hg *redis.StringCmd
		lr *redis.StringSliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		hg = pipe.HGet(ctx, s.stateKey(key), "until")
		lr = pipe.LRange(ctx, s.msgsKey(key), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return State{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	ids, err := parseIDs(lr.Val())
	if err != nil {
		return State{}, false, err
	}

	var st State
	found := len(ids) > 0
	if ms, err := hg.Int64(); err == nil {
		st.Until = time.UnixMilli(ms)
		found = true
	}
	st.MessageIDs = ids
	return st, found, nil
}

func (s *RedisStore) Remove(ctx context.Context, key Key) ([]int, error) {
	var lr *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lr = pipe.LRange(ctx, s.msgsKey(key), 0, -1)
		pipe.Del(ctx, s.msgsKey(key), s.stateKey(key))
		pipe.ZRem(ctx, s.dueKey(), key.String())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis remove %s: %w", key, err)
	}
	return parseIDs(lr.Val())
}

func (s *RedisStore) Due(ctx context.Context, now time.Time, limit int) ([]Key, error) {
	by := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		by.Count = int64(limit)
	}
	members, err := s.client.ZRangeByScore(ctx, s.dueKey(), by).Result()
	if err != nil {
		return nil, fmt.Errorf("redis due: %w", err)
	}

	keys := make([]Key, 0, len(members))
	for _, m := range members {
		k, err := parseKey(m)
		if err != nil {
			s.client.ZRem(ctx, s.dueKey(), m)
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.dueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis count: %w", err)
	}
	return int(n), nil
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
