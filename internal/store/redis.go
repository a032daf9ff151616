package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const statusTTL = 24 * time.Hour

// RedisStatus mirrors user presence into Redis so every worker process, and
// anything else reading presence, sees the same value.
type RedisStatus struct {
	client *redis.Client
	prefix string
}

// NewRedisStatus connects using a redis:// URL and pings the server.
func NewRedisStatus(ctx context.Context, redisURL string) (*RedisStatus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedisStatusFromClient(client), nil
}

// NewRedisStatusFromClient wraps an existing client.
func NewRedisStatusFromClient(client *redis.Client) *RedisStatus {
	return &RedisStatus{client: client, prefix: "presence"}
}

func (s *RedisStatus) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}

func (s *RedisStatus) onlineKey() string {
	return s.prefix + ":online"
}

func (s *RedisStatus) sessionsKey() string {
	return s.prefix + ":sessions"
}

var releaseScript = redis.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call("HDEL", KEYS[1], ARGV[1])
end
return n
`)

// SetUserStatus implements StatusStore.
func (s *RedisStatus) SetUserStatus(ctx context.Context, userID string, status Status) error {
	now := time.Now().UnixMilli()
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		key := s.userKey(userID)
		p.HSet(ctx, key, "status", string(status), "lastSeen", now)
		p.Expire(ctx, key, statusTTL)
		if status == StatusOnline {
			p.SAdd(ctx, s.onlineKey(), userID)
		} else {
			p.SRem(ctx, s.onlineKey(), userID)
		}
		return nil
	})
	return errors.Wrapf(err, "redis set status %s for %s", status, userID)
}

// Acquire counts one more worker holding userID online and returns the new
// count.
func (s *RedisStatus) Acquire(ctx context.Context, userID string) (int64, error) {
	n, err := s.client.HIncrBy(ctx, s.sessionsKey(), userID, 1).Result()
	return n, errors.Wrapf(err, "redis acquire %s", userID)
}

// Release counts one worker fewer and drops the field at zero so the hash
// does not keep users that left.
func (s *RedisStatus) Release(ctx context.Context, userID string) (int64, error) {
	n, err := releaseScript.Run(ctx, s.client, []string{s.sessionsKey()}, userID).Int64()
	return n, errors.Wrapf(err, "redis release %s", userID)
}

// OnlineUsers lists users whose last written status is online.
func (s *RedisStatus) OnlineUsers(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.onlineKey()).Result()
	return ids, errors.Wrap(err, "redis online users")
}

// Close closes the client.
func (s *RedisStatus) Close() error {
	return s.client.Close()
}
