package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces registry keys.
const DefaultRedisPrefix = "riskoracle"

// RedisStore persists registry state in Redis:
//
//	<prefix>:admin        administrator address (SETNX)
//	<prefix>:last_update  unix nanoseconds of the last accepted write
//	<prefix>:scores       hash validator id -> score
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed registry store. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) adminKey() string      { return s.prefix + ":admin" }
func (s *RedisStore) lastUpdateKey() string { return s.prefix + ":last_update" }
func (s *RedisStore) scoresKey() string     { return s.prefix + ":scores" }

func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Scores: make(map[string]uint8)}

	admin, err := s.client.Get(ctx, s.adminKey()).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("failed to load admin: %w", err)
	default:
		snap.Admin = common.HexToAddress(admin)
		snap.HasAdmin = true
	}

	last, err := s.client.Get(ctx, s.lastUpdateKey()).Int64()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("failed to load last_update: %w", err)
	default:
		snap.LastUpdate = time.Unix(0, last).UTC()
	}

	raw, err := s.client.HGetAll(ctx, s.scoresKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load risk scores: %w", err)
	}
	for id, v := range raw {
		score, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("corrupt score for %q: %w", id, err)
		}
		snap.Scores[id] = uint8(score)
	}
	return snap, nil
}

func (s *RedisStore) SetAdmin(ctx context.Context, admin common.Address) error {
	ok, err := s.client.SetNX(ctx, s.adminKey(), admin.Hex(), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to record admin: %w", err)
	}
	if !ok {
		return ErrAlreadyInitialized
	}
	return nil
}

func (s *RedisStore) PutScore(ctx context.Context, validatorID string, score uint8, at time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.scoresKey(), validatorID, strconv.Itoa(int(score)))
		pipe.Set(ctx, s.lastUpdateKey(), at.UnixNano(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write risk score: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
