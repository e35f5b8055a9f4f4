package registration

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// incrAttemptsScript bumps the counter only while the registration exists,
// so an expired key is never recreated without its fields or TTL.
var incrAttemptsScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

// RedisStore keeps pending registrations in a Redis hash per email, so that
// concurrent sign-ups for different addresses never share state.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func pendingKey(email string) string {
	return "registration:" + email
}

// Put replaces the pending registration for p.Email and resets its attempt
// counter.
func (s *RedisStore) Put(ctx context.Context, p Pending, ttl time.Duration) error {
	key := pendingKey(p.Email)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"name", p.Name,
			"email", p.Email,
			"phone", p.Phone,
			"password_hash", p.PasswordHash,
			"code", p.Code,
			"attempts", 0,
		)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "redis put pending")
	}
	return nil
}

// Get returns the pending registration or ErrNoPending.
func (s *RedisStore) Get(ctx context.Context, email string) (*Pending, error) {
	fields, err := s.client.HGetAll(ctx, pendingKey(email)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis get pending")
	}
	if fields["email"] == "" || fields["code"] == "" || fields["password_hash"] == "" {
		return nil, ErrNoPending
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, errors.Wrap(err, "parse attempts")
	}
	return &Pending{
		Name:         fields["name"],
		Email:        fields["email"],
		Phone:        fields["phone"],
		PasswordHash: fields["password_hash"],
		Code:         fields["code"],
		Attempts:     attempts,
	}, nil
}

// IncrAttempts records a failed verification and returns the new count. The
// key TTL is left unchanged. ErrNoPending is returned when the registration
// expired in the meantime.
func (s *RedisStore) IncrAttempts(ctx context.Context, email string) (int, error) {
	n, err := incrAttemptsScript.Run(ctx, s.client, []string{pendingKey(email)}).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "redis incr attempts")
	}
	if n < 0 {
		return 0, ErrNoPending
	}
	return int(n), nil
}

// Delete drops the pending registration.
func (s *RedisStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, pendingKey(email)).Err(); err != nil {
		return errors.Wrap(err, "redis delete pending")
	}
	return nil
}
