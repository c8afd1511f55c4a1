package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrStoreUnavailable wraps every Redis failure. Callers may retry.
	ErrStoreUnavailable = errors.New("session: store unavailable")
	// ErrSessionNotFound is returned by Get for missing or expired records.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrInvalidRecord is returned for records that cannot be stored.
	ErrInvalidRecord = errors.New("session: invalid record")
)

const maxSessionIDLen = 128

// createSessionScript writes the record and keeps the subject index alive
// at least as long as its longest-lived member.
const createSessionScript = `
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
local current = redis.call("PTTL", KEYS[2])
if current < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[2])
end
return 1
`

const invalidateSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

// revokeSessionScript deletes one session and bumps the subject's
// revocation epoch in the same step.
const revokeSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
redis.call("INCR", KEYS[3])
redis.call("PEXPIRE", KEYS[3], ARGV[2])
return existed
`

// restoreSessionScript re-creates a record only while the subject's
// revocation epoch still equals the value observed at snapshot time.
const restoreSessionScript = `
local epoch = tonumber(redis.call("GET", KEYS[3]) or "0")
if epoch ~= tonumber(ARGV[4]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
local current = redis.call("PTTL", KEYS[2])
if current < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[2])
end
return 1
`

var (
	createSessionLua     = redis.NewScript(createSessionScript)
	invalidateSessionLua = redis.NewScript(invalidateSessionScript)
	revokeSessionLua     = redis.NewScript(revokeSessionScript)
	restoreSessionLua    = redis.NewScript(restoreSessionScript)
)

// epochTTL bounds how long an idle revocation epoch is kept. It only has
// to outlive an in-flight role switch.
const epochTTL = 24 * time.Hour

// NewSessionID returns a random UUIDv4. It allocates an identifier only;
// nothing is persisted.
func NewSessionID() string {
	return uuid.NewString()
}

// Store is the Redis-backed session registry.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a Store. prefix namespaces every key.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ra"
	}
	return &Store{redis: rdb, prefix: prefix, now: time.Now}
}

// WithClock returns a copy of s that reads time from now.
func (s *Store) WithClock(now func() time.Time) *Store {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Store) key(subject, sessionID string) string {
	return s.prefix + ":s:" + subject + ":" + sessionID
}

func (s *Store) subjectKey(subject string) string {
	return s.prefix + ":u:" + subject
}

func (s *Store) epochKey(subject string) string {
	return s.prefix + ":e:" + subject
}

func validIDs(subject, sessionID string) error {
	if subject == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidRecord)
	}
	if sessionID == "" || len(sessionID) > maxSessionIDLen || strings.ContainsRune(sessionID, ':') {
		return fmt.Errorf("%w: bad session id", ErrInvalidRecord)
	}
	return nil
}

// Create stores rec with a TTL equal to rec.ExpiresAt minus now. Creating
// an existing session id overwrites the previous record.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	data, ttl, err := s.prepare(rec)
	if err != nil {
		return err
	}
	keys := []string{s.key(rec.Subject, rec.SessionID), s.subjectKey(rec.Subject)}
	if err := createSessionLua.Run(ctx, s.redis, keys, data, ttl.Milliseconds(), rec.SessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Restore re-creates rec only if no Revoke or InvalidateAll ran for its
// subject since Epoch returned epoch. It reports whether the record was
// written.
func (s *Store) Restore(ctx context.Context, rec *Record, epoch int64) (bool, error) {
	data, ttl, err := s.prepare(rec)
	if err != nil {
		return false, err
	}
	keys := []string{s.key(rec.Subject, rec.SessionID), s.subjectKey(rec.Subject), s.epochKey(rec.Subject)}
	n, err := restoreSessionLua.Run(ctx, s.redis, keys, data, ttl.Milliseconds(), rec.SessionID, epoch).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// Epoch returns the subject's revocation epoch. It increases on every
// Revoke and InvalidateAll.
func (s *Store) Epoch(ctx context.Context, subject string) (int64, error) {
	n, err := s.redis.Get(ctx, s.epochKey(subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *Store) prepare(rec *Record) ([]byte, time.Duration, error) {
	if rec == nil {
		return nil, 0, ErrInvalidRecord
	}
	if err := validIDs(rec.Subject, rec.SessionID); err != nil {
		return nil, 0, err
	}
	ttl := rec.TTL(s.now())
	if ttl < time.Millisecond {
		return nil, 0, fmt.Errorf("%w: record already expired", ErrInvalidRecord)
	}
	data, err := Encode(rec)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return data, ttl, nil
}

// Get returns the live record, or ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, subject, sessionID string) (*Record, error) {
	if err := validIDs(subject, sessionID); err != nil {
		return nil, ErrSessionNotFound
	}

	data, err := s.redis.Get(ctx, s.key(subject, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if rec.Subject != subject {
		return nil, ErrSessionNotFound
	}
	if !s.now().Before(rec.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	rec.SessionID = sessionID
	return rec, nil
}

// Invalidate deletes the session and its index entry. A missing session is
// not an error. The delete is applied on the primary before Invalidate
// returns, so a following Get observes it.
func (s *Store) Invalidate(ctx context.Context, subject, sessionID string) error {
	_, err := s.invalidate(ctx, subject, sessionID)
	return err
}

func (s *Store) invalidate(ctx context.Context, subject, sessionID string) (bool, error) {
	if err := validIDs(subject, sessionID); err != nil {
		return false, err
	}
	keys := []string{s.key(subject, sessionID), s.subjectKey(subject)}
	n, err := invalidateSessionLua.Run(ctx, s.redis, keys, sessionID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// Revoke is Invalidate for an explicit logout. It also bumps the subject's
// revocation epoch so a pending Restore of the session is refused.
func (s *Store) Revoke(ctx context.Context, subject, sessionID string) error {
	if err := validIDs(subject, sessionID); err != nil {
		return err
	}
	keys := []string{s.key(subject, sessionID), s.subjectKey(subject), s.epochKey(subject)}
	if err := revokeSessionLua.Run(ctx, s.redis, keys, sessionID, epochTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// InvalidateAll removes every session of subject and returns how many
// records were live. The revocation epoch is bumped first, so a role
// switch in flight cannot restore a session afterwards. Sessions created
// concurrently may survive; they expire on their own TTL.
func (s *Store) InvalidateAll(ctx context.Context, subject string) (int, error) {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, s.epochKey(subject))
		pipe.PExpire(ctx, s.epochKey(subject), epochTTL)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ids, err := s.redis.SMembers(ctx, s.subjectKey(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.key(subject, id))
	}

	var del *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, s.subjectKey(subject), toAny(ids)...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(del.Val()), nil
}

// ListForSubject returns the ids of the subject's live sessions and prunes
// index entries whose records have expired.
func (s *Store) ListForSubject(ctx context.Context, subject string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.subjectKey(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Exists(ctx, s.key(subject, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	live := make([]string, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		if cmd.Val() == 1 {
			live = append(live, ids[i])
		} else {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.subjectKey(subject), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return live, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func toAny(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
