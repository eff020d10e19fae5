package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arena2036/vec-aas-uploader/internal/service/status"
)

const (
	defaultSessionTTL = 24 * time.Hour
	maxCommitRetries  = 10
)

// RedisStore shares sessions between the API and queue workers.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func generationKey(sessionID string) string {
	return fmt.Sprintf("upload_session:%s:generation", sessionID)
}

func statusKey(sessionID string) string {
	return fmt.Sprintf("upload_session:%s:status", sessionID)
}

func (r *RedisStore) Advance(ctx context.Context, sessionID string) (uint64, error) {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, generationKey(sessionID))
		pipe.Expire(ctx, generationKey(sessionID), r.ttl)
		pipe.Del(ctx, statusKey(sessionID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment generation: %w", err)
	}
	return uint64(incr.Val()), nil
}

func (r *RedisStore) Current(ctx context.Context, sessionID string) (uint64, error) {
	return currentGeneration(ctx, r.client, sessionID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func currentGeneration(ctx context.Context, c getter, sessionID string) (uint64, error) {
	gen, err := c.Get(ctx, generationKey(sessionID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get generation: %w", err)
	}
	return gen, nil
}

// Commit watches the generation key, so an Advance between the check and the
// write aborts the transaction; the retry then sees the new generation.
func (r *RedisStore) Commit(ctx context.Context, token Token, fn FoldFunc) (bool, error) {
	if token.Generation == 0 {
		return false, nil
	}
	genKey := generationKey(token.SessionID)

	for i := 0; i < maxCommitRetries; i++ {
		applied := false
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			gen, err := currentGeneration(ctx, tx, token.SessionID)
			if err != nil {
				return err
			}
			if gen != token.Generation {
				return nil
			}

			p, err := loadProjection(ctx, tx, token.SessionID, gen)
			if err != nil {
				return err
			}
			next := fn(p)
			next.SessionID = token.SessionID
			next.Generation = token.Generation

			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to marshal status: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, statusKey(token.SessionID), data, r.ttl)
				pipe.Expire(ctx, genKey, r.ttl)
				return nil
			})
			if err == nil {
				applied = true
			}
			return err
		}, genKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, err
		}
		return applied, nil
	}

	return false, fmt.Errorf("failed to commit status after %d attempts", maxCommitRetries)
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) (status.Projection, error) {
	gen, err := r.Current(ctx, sessionID)
	if err != nil {
		return status.Projection{}, err
	}
	return loadProjection(ctx, r.client, sessionID, gen)
}

func loadProjection(ctx context.Context, c getter, sessionID string, gen uint64) (status.Projection, error) {
	data, err := c.Get(ctx, statusKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fresh(sessionID, gen), nil
	}
	if err != nil {
		return status.Projection{}, fmt.Errorf("failed to get status from redis: %w", err)
	}

	var p status.Projection
	if err := json.Unmarshal(data, &p); err != nil {
		return status.Projection{}, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return p, nil
}
