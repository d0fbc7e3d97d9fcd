package oauthstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "oauth_state:"

// RedisRepo stores states as JSON values whose Redis TTL matches the state's expiry.
type RedisRepo struct {
	client *redis.Client
	now    func() time.Time
}

var _ Repo = (*RedisRepo)(nil)

func NewRedisRepo(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client, now: time.Now}
}

func (r *RedisRepo) Create(ctx context.Context, s *State) error {
	if err := validate(s); err != nil {
		return err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := r.client.Set(ctx, redisKeyPrefix+s.State, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

func (r *RedisRepo) Get(ctx context.Context, state string) (*State, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}
	raw, err := r.client.Get(ctx, redisKeyPrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, interrors.ErrStateNotFound
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &s, nil
}

func (r *RedisRepo) Delete(ctx context.Context, state string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+state).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts keys when their TTL lapses.
func (r *RedisRepo) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
