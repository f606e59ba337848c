package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
)

const nonceKeyPrefix = "flashloaner:nonce:"

// RedisStore persists nonce state in Redis, keyed by the owning
// address. Suitable when several hosts share one signing account.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a RedisStore for the given address.
func NewRedisStore(addr string, db int, owner common.Address) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
		key: nonceKeyPrefix + strings.ToLower(owner.Hex()),
	}
}

// Load reads the persisted state. A missing key returns (nil, nil).
func (s *RedisStore) Load(ctx context.Context) (*domain.NonceState, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperror.New(apperror.CodeNonceStoreCorrupt, apperror.WithCause(err))
	}

	var state domain.NonceState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, apperror.New(apperror.CodeNonceStoreCorrupt, apperror.WithCause(err))
	}
	return &state, nil
}

// Save overwrites the full state with no expiry.
func (s *RedisStore) Save(ctx context.Context, state *domain.NonceState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperror.New(apperror.CodeNoncePersistFailed, apperror.WithCause(err))
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return apperror.New(apperror.CodeNoncePersistFailed, apperror.WithCause(err))
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
