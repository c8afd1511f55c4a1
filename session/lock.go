package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Lock when another holder owns the subject lock.
var ErrLockHeld = errors.New("session: subject lock held")

const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLockLua = redis.NewScript(releaseLockScript)

// Unlock releases a lock obtained from Lock. It only deletes the key if the
// caller still owns it.
type Unlock func(ctx context.Context) error

func (s *Store) lockKey(subject string) string {
	return s.prefix + ":lock:" + subject
}

// Lock takes a per-subject advisory lock for at most ttl. It does not wait.
func (s *Store) Lock(ctx context.Context, subject string, ttl time.Duration) (Unlock, error) {
	if subject == "" || ttl <= 0 {
		return nil, fmt.Errorf("%w: lock needs subject and ttl", ErrInvalidRecord)
	}

	token := uuid.NewString()
	key := s.lockKey(subject)
	ok, err := s.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func(ctx context.Context) error {
		if err := releaseLockLua.Run(ctx, s.redis, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}, nil
}
