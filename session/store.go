package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every store failure caused by the Redis backend
// rather than by the data itself.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Session records live at "<prefix>:<jti>" with the subject as value and the
// token lifetime as TTL. The per-subject index is a set at
// "<prefix>:u:<subject>" whose TTL is reset on every insertion; a subject
// who keeps logging in keeps the index alive indefinitely, which is the
// intended behavior.
type Store struct {
	redis  *redis.Client
	prefix string
}

// Logout removes the session record and its index membership in one script
// call so a half-logged-out session can never be observed.
const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// NewStore returns a registry over redisClient with all keys namespaced by
// prefix.
func NewStore(redisClient *redis.Client, prefix string) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(jti string) string {
	return s.prefix + ":" + jti
}

func (s *Store) userKey(subject string) string {
	return s.prefix + ":u:" + subject
}

// Register creates the liveness record for jti with TTL = the token
// lifetime.
func (s *Store) Register(ctx context.Context, jti, subject string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(jti), subject, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Live reports whether jti has a live session record.
func (s *Store) Live(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Delete removes the session record for jti. Deleting an absent record is
// not an error.
func (s *Store) Delete(ctx context.Context, jti string) error {
	if err := s.redis.Del(ctx, s.key(jti)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteWithIndex removes the session record for jti and its membership in
// subject's index as one atomic script call. It is the logout primitive.
func (s *Store) DeleteWithIndex(ctx context.Context, jti, subject string) error {
	err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(jti), s.userKey(subject)}, jti).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AddUserSession adds jti to subject's index and resets the index TTL to
// ttl.
func (s *Store) AddUserSession(ctx context.Context, subject, jti string, ttl time.Duration) error {
	key := s.userKey(subject)

	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, jti)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// UserSessions returns a point-in-time snapshot of subject's live jtis. An
// absent index yields an empty slice, not an error.
func (s *Store) UserSessions(ctx context.Context, subject string) ([]string, error) {
	members, err := s.redis.SMembers(ctx, s.userKey(subject)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return members, nil
}

// RemoveUserSession removes jti from subject's index.
func (s *Store) RemoveUserSession(ctx context.Context, subject, jti string) error {
	if err := s.redis.SRem(ctx, s.userKey(subject), jti).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser deletes every session record named in subject's index,
// then the index itself, and returns how many records the index named. The
// snapshot is taken once: sessions registered after the SMEMBERS read are
// not revoked. An empty or absent index is a successful no-op.
func (s *Store) DeleteAllForUser(ctx context.Context, subject string) (int, error) {
	jtis, err := s.UserSessions(ctx, subject)
	if err != nil {
		return 0, err
	}

	for _, jti := range jtis {
		if err := s.Delete(ctx, jti); err != nil {
			return 0, err
		}
	}

	if err := s.redis.Del(ctx, s.userKey(subject)).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return len(jtis), nil
}
