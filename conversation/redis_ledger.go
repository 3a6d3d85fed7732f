// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/redis/go-redis/v9"

	"github.com/go-a2a/a2akit"
)

// DefaultKeyPrefix prefixes the Redis keys of conversation histories.
const DefaultKeyPrefix = "a2a:conversation:"

// RedisLedgerConfig describes the Redis connection of a [RedisLedger].
type RedisLedgerConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisLedger stores each history as a Redis list of JSON encoded messages.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

var _ Ledger = (*RedisLedger)(nil)

// NewRedisLedger connects to Redis and returns a ledger using it.
func NewRedisLedger(ctx context.Context, cfg RedisLedgerConfig) (*RedisLedger, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisLedgerFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisLedgerFromClient wraps an existing client.
func NewRedisLedgerFromClient(client *redis.Client, keyPrefix string) *RedisLedger {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisLedger{client: client, prefix: keyPrefix}
}

func (l *RedisLedger) key(contextID string) string {
	return l.prefix + contextID
}

// Append implements [Ledger].
func (l *RedisLedger) Append(ctx context.Context, contextID string, msg *a2a.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := l.client.RPush(ctx, l.key(contextID), data).Err(); err != nil {
		return fmt.Errorf("append to context %s: %w", contextID, err)
	}
	return nil
}

// Messages implements [Ledger].
func (l *RedisLedger) Messages(ctx context.Context, contextID string) ([]a2a.Message, error) {
	values, err := l.client.LRange(ctx, l.key(contextID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read context %s: %w", contextID, err)
	}

	out := make([]a2a.Message, len(values))
	for i, v := range values {
		if err := json.Unmarshal([]byte(v), &out[i]); err != nil {
			return nil, fmt.Errorf("decode message %d of context %s: %w", i, contextID, err)
		}
	}
	return out, nil
}

// Delete implements [Ledger].
func (l *RedisLedger) Delete(ctx context.Context, contextID string) (bool, error) {
	n, err := l.client.Del(ctx, l.key(contextID)).Result()
	if err != nil {
		return false, fmt.Errorf("delete context %s: %w", contextID, err)
	}
	return n > 0, nil
}

// Close closes the Redis connection.
func (l *RedisLedger) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
