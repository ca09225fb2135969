package lock

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// errNoClient makes an unconfigured store look unreachable, which sends the
// scanner mutex down its degraded in-process path.
var errNoClient = errors.New("lease store not configured")

// LeaseStore is the atomic set-if-absent-with-expiry/compare-then-delete
// primitive the scanner mutex runs on. ReleaseLease removes the key only
// while it still holds the given value, so a non-holder's delete is a no-op.
// Tests substitute an in-memory implementation of the same contract.
type LeaseStore interface {
	AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	GetLease(ctx context.Context, key string) (string, bool, error)
	ReleaseLease(ctx context.Context, key, value string) error
}

// leaseValue carries the acquire time so a stale lease can be detected
// without store-side TTL introspection.
type leaseValue struct {
	Holder     string `json:"holder"`
	AcquiredAt int64  `json:"acquired_at_ms"`
}

func encodeLease(holder string, acquiredAt time.Time) string {
	data, _ := json.Marshal(leaseValue{Holder: holder, AcquiredAt: acquiredAt.UnixMilli()})
	return string(data)
}

func decodeLease(value string) (leaseValue, bool) {
	var lease leaseValue
	if err := json.Unmarshal([]byte(value), &lease); err != nil {
		return leaseValue{}, false
	}
	return lease, true
}

type RedisLeaseStore struct {
	client *redis.Client
}

func NewRedisLeaseStore(client *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{client: client}
}

func (s *RedisLeaseStore) AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if s.client == nil {
		return false, errNoClient
	}
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisLeaseStore) GetLease(ctx context.Context, key string) (string, bool, error) {
	if s.client == nil {
		return "", false, errNoClient
	}
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// releaseScript deletes the lease only if it still carries the caller's
// value, so a release racing a re-acquire cannot take out the new holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (s *RedisLeaseStore) ReleaseLease(ctx context.Context, key, value string) error {
	if s.client == nil {
		return errNoClient
	}
	return releaseScript.Run(ctx, s.client, []string{key}, value).Err()
}
