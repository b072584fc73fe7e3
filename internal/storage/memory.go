package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"xoranyx-bot/internal/models"
)

const snapshotVersion = 1

type snapshot struct {
	Version int                    `json:"version"`
	Users   map[int64]*models.User `json:"users"`
	SavedAt time.Time              `json:"saved_at"`
}

// MemoryStore keeps records in a map. When path is set every commit first
// rewrites a JSON snapshot of the whole map through a temp file and rename,
// so readers of the file never see a partial write.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[int64]*models.User

	locks *keyedLock

	path      string
	persistMu sync.Mutex
	write     func(path string, data []byte) error

	opts options
}

// NewMemoryStore returns a store without durability, for tests and dry runs.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]*models.User),
		locks: newKeyedLock(),
		opts:  newOptions(opts),
	}
}

// NewFileStore loads path if it exists and persists every commit to it.
func NewFileStore(path string, opts ...Option) (*MemoryStore, error) {
	s := NewMemoryStore(opts...)
	s.path = path
	s.write = func(path string, data []byte) error {
		return renameio.WriteFile(path, data, 0o600)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.opts.logger.Info("Ledger file not found, starting empty", zap.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode ledger file: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported ledger file version %d", snap.Version)
	}
	for id, u := range snap.Users {
		s.users[id] = u
	}

	s.opts.logger.Info("Ledger file loaded", zap.String("path", path), zap.Int("users", len(s.users)))
	return s, nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()
	if ok {
		return u.Clone(), nil
	}

	return s.Mutate(ctx, id, nil)
}

func (s *MemoryStore) Mutate(ctx context.Context, id int64, fn MutateFunc) (*models.User, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.RLock()
	current, exists := s.users[id]
	s.mu.RUnlock()

	if !exists {
		current = models.NewUser(id, s.opts.now())
	}

	next := current.Clone()
	if fn != nil {
		if err := fn(next); err != nil {
			return nil, err
		}
		if err := validateMutation(current, next); err != nil {
			return nil, err
		}
		next.UpdatedAt = s.opts.now()
	} else if exists {
		return next, nil
	}

	if err := s.commit(next); err != nil {
		s.opts.logger.Error("Failed to persist ledger record", zap.Int64("user_id", id), zap.Error(err))
		return nil, persistenceError(err)
	}

	return next.Clone(), nil
}

// commit installs u only after the snapshot containing it is on disk.
func (s *MemoryStore) commit(u *models.User) error {
	if s.path == "" {
		s.mu.Lock()
		s.users[u.ID] = u
		s.mu.Unlock()
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	users := make(map[int64]*models.User, len(s.users)+1)
	for id, existing := range s.users {
		users[id] = existing
	}
	s.mu.RUnlock()
	users[u.ID] = u

	data, err := json.Marshal(snapshot{
		Version: snapshotVersion,
		Users:   users,
		SavedAt: s.opts.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode ledger snapshot: %w", err)
	}
	if err := s.write(s.path, data); err != nil {
		return fmt.Errorf("failed to write ledger snapshot: %w", err)
	}

	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Range(ctx context.Context, fn func(u *models.User) bool) error {
	s.mu.RLock()
	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(u) {
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
