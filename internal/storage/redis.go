package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"xoranyx-bot/internal/models"
)

const (
	KeyLedgerUser  = "ledger:user:%d"
	KeyLedgerUsers = "ledger:users"

	defaultWatchRetries = 16
)

var errWatchRetries = errors.New("storage: too many optimistic lock retries")

// RedisStore keeps one JSON document per user. Writes use WATCH/MULTI/EXEC so
// another process touching the same key forces a retry instead of a lost
// update. Durability follows the server's AOF/RDB settings.
type RedisStore struct {
	client  *redis.Client
	locks   *keyedLock
	retries int
	opts    options
}

func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{
		client:  client,
		locks:   newKeyedLock(),
		retries: defaultWatchRetries,
		opts:    newOptions(opts),
	}
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func userKey(id int64) string {
	return fmt.Sprintf(KeyLedgerUser, id)
}

func (s *RedisStore) Get(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}

	u, err := s.read(ctx, s.client, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, persistenceError(err)
	}

	return s.Mutate(ctx, id, nil)
}

func (s *RedisStore) read(ctx context.Context, c stringGetter, id int64) (*models.User, error) {
	data, err := c.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		return nil, err
	}

	var u models.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user %d: %w", id, err)
	}
	return &u, nil
}

func (s *RedisStore) Mutate(ctx context.Context, id int64, fn MutateFunc) (*models.User, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	wctx := context.WithoutCancel(ctx)
	key := userKey(id)

	var (
		committed *models.User
		fnErr     error
	)

	txf := func(tx *redis.Tx) error {
		current, err := s.read(wctx, tx, id)
		exists := err == nil
		switch {
		case errors.Is(err, redis.Nil):
			current = models.NewUser(id, s.opts.now())
		case err != nil:
			return err
		}

		next := current.Clone()
		if fn != nil {
			if fnErr = fn(next); fnErr != nil {
				return fnErr
			}
			if fnErr = validateMutation(current, next); fnErr != nil {
				return fnErr
			}
			next.UpdatedAt = s.opts.now()
		} else if exists {
			committed = next
			return nil
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode user %d: %w", id, err)
		}

		_, err = tx.TxPipelined(wctx, func(pipe redis.Pipeliner) error {
			pipe.Set(wctx, key, data, 0)
			pipe.SAdd(wctx, KeyLedgerUsers, id)
			return nil
		})
		if err != nil {
			return err
		}
		committed = next
		return nil
	}

	for attempt := 0; attempt < s.retries; attempt++ {
		fnErr = nil
		err = s.client.Watch(wctx, txf, key)
		if fnErr != nil {
			return nil, fnErr
		}
		if err == nil {
			return committed.Clone(), nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.opts.logger.Debug("Ledger record changed concurrently, retrying", zap.Int64("user_id", id), zap.Int("attempt", attempt+1))
			continue
		}
		s.opts.logger.Error("Failed to commit ledger record", zap.Int64("user_id", id), zap.Error(err))
		return nil, persistenceError(err)
	}

	return nil, persistenceError(errWatchRetries)
}

func (s *RedisStore) Range(ctx context.Context, fn func(u *models.User) bool) error {
	members, err := s.client.SMembers(ctx, KeyLedgerUsers).Result()
	if err != nil {
		return persistenceError(err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.opts.logger.Warn("Skipping malformed ledger member", zap.String("member", m))
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		u, err := s.read(ctx, s.client, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return persistenceError(err)
		}
		if !fn(u) {
			return nil
		}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
