package slot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores each key as a plain string under prefix + "data:".
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps a Redis client. prefix namespaces every key.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) dataKey(key string) string {
	return r.prefix + "data:" + key
}

func (r *Redis) snapshotKey(label, key string) string {
	return r.prefix + "snapshot:" + label + ":" + key
}

func (r *Redis) Load(ctx context.Context, key string) ([]byte, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	value, err := r.client.Get(ctx, r.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("slot/redis: get %s: %w", key, err)
	}
	return value, nil
}

func (r *Redis) Save(ctx context.Context, key string, value []byte) error {
	if err := requireKey(key); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.dataKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("slot/redis: set %s: %w", key, err)
	}
	return nil
}

// Snapshot copies every data key under label in a single MULTI/EXEC.
func (r *Redis) Snapshot(ctx context.Context, label string) (int, error) {
	if err := requireKey(label); err != nil {
		return 0, err
	}
	dataPrefix := r.dataKey("")
	values := make(map[string]string)
	iter := r.client.Scan(ctx, 0, dataPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		value, err := r.client.Get(ctx, full).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("slot/redis: snapshot read %s: %w", full, err)
		}
		values[full[len(dataPrefix):]] = value
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("slot/redis: scan: %w", err)
	}
	if len(values) == 0 {
		return 0, nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range values {
			pipe.Set(ctx, r.snapshotKey(label, key), value, 0)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("slot/redis: snapshot write: %w", err)
	}
	return len(values), nil
}
