package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xoranyx-bot/internal/models"
	"xoranyx-bot/internal/storage"
)

var errDiskFull = errors.New("disk full")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// faultyStore fails the write half of Mutate for selected ids: fn runs on
// the copy, then nothing is committed and a persistence error comes back.
type faultyStore struct {
	storage.Store

	mu     sync.Mutex
	failed map[int64]bool
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: storage.NewMemoryStore(), failed: make(map[int64]bool)}
}

func (f *faultyStore) failWrites(id int64, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = fail
}

func (f *faultyStore) Mutate(ctx context.Context, id int64, fn storage.MutateFunc) (*models.User, error) {
	f.mu.Lock()
	fail := f.failed[id]
	f.mu.Unlock()
	if !fail {
		return f.Store.Mutate(ctx, id, fn)
	}

	_, err := f.Store.Mutate(ctx, id, func(u *models.User) error {
		if fn != nil {
			if err := fn(u); err != nil {
				return err
			}
		}
		return errDiskFull
	})
	if errors.Is(err, errDiskFull) {
		return nil, fmt.Errorf("%w: %w", storage.ErrPersistence, err)
	}
	return nil, err
}

type recordedAction struct {
	action ActionType
	status ActionStatus
	reward int64
}

type fakeRecorder struct {
	mu        sync.Mutex
	actions   []recordedAction
	referrals []AttributionStatus
}

func (r *fakeRecorder) ActionCompleted(action ActionType, status ActionStatus, reward int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, recordedAction{action, status, reward})
}

func (r *fakeRecorder) ReferralCompleted(status AttributionStatus, _ SkipReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.referrals = append(r.referrals, status)
}

// assertBalanced checks the balance identities and the transaction
// ordering of one record.
func assertBalanced(t *testing.T, u *models.User) {
	t.Helper()

	var sum, earned int64
	for i, tx := range u.Transactions {
		sum += tx.Amount
		if tx.Amount > 0 {
			earned += tx.Amount
		}
		assert.Equal(t, int64(i+1), tx.Seq, "seq of entry %d", i)
		if i > 0 {
			assert.True(t, tx.CreatedAt.After(u.Transactions[i-1].CreatedAt), "created_at of entry %d", i)
		}
	}
	assert.Equal(t, sum, u.Coins, "coins")
	assert.Equal(t, earned, u.TotalEarned, "total_earned")
	assert.GreaterOrEqual(t, u.TotalEarned, u.Coins)
	assert.GreaterOrEqual(t, u.Coins, int64(0))
}

func mustGet(t *testing.T, s storage.Store, id int64) *models.User {
	t.Helper()
	u, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

// slowStore delays reads so that concurrent callers act on the same
// snapshot before any of them mutates.
type slowStore struct {
	storage.Store
	delay time.Duration
}

func (s *slowStore) Get(ctx context.Context, id int64) (*models.User, error) {
	time.Sleep(s.delay)
	return s.Store.Get(ctx, id)
}
