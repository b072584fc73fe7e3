package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"xoranyx-bot/internal/models"
	"xoranyx-bot/internal/storage"
)

var day1 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestCheckAndReserve(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		calls   int
		allowed int
	}{
		{name: "limited", limit: 3, calls: 4, allowed: 3},
		{name: "zero limit", limit: 0, calls: 2, allowed: 0},
		{name: "unlimited", limit: Unlimited, calls: 25, allowed: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			q := NewQuota(store, time.UTC, newFakeClock(day1).Now)

			allowed := 0
			var last Reservation
			for i := 0; i < tt.calls; i++ {
				r, err := q.CheckAndReserve(context.Background(), 1, CounterAds, tt.limit)
				require.NoError(t, err)
				if r.Allowed {
					allowed++
					assert.Equal(t, allowed, r.Count)
				}
				last = r
			}

			assert.Equal(t, tt.allowed, allowed)
			assert.Equal(t, tt.limit, last.Limit)
			assert.Equal(t, tt.allowed, mustGet(t, store, 1).DailyStats.AdsWatched)
		})
	}
}

func TestCheckAndReserveRejectedDoesNotIncrement(t *testing.T) {
	store := storage.NewMemoryStore()
	q := NewQuota(store, time.UTC, newFakeClock(day1).Now)

	for i := 0; i < 2; i++ {
		_, err := q.CheckAndReserve(context.Background(), 1, CounterTasks, 2)
		require.NoError(t, err)
	}

	r, err := q.CheckAndReserve(context.Background(), 1, CounterTasks, 2)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, 2, r.Count)
	assert.Equal(t, 2, mustGet(t, store, 1).DailyStats.TasksCompleted)
}

func TestCheckAndReserveUnknownCounter(t *testing.T) {
	q := NewQuota(storage.NewMemoryStore(), time.UTC, nil)

	_, err := q.CheckAndReserve(context.Background(), 1, Counter("spins"), 3)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckAndReserveInvalidID(t *testing.T) {
	q := NewQuota(storage.NewMemoryStore(), time.UTC, nil)

	_, err := q.CheckAndReserve(context.Background(), 0, CounterAds, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckAndReserveRollover(t *testing.T) {
	store := storage.NewMemoryStore()
	clock := newFakeClock(day1)
	q := NewQuota(store, time.UTC, clock.Now)

	_, err := store.Mutate(context.Background(), 1, func(u *models.User) error {
		u.DailyStats = models.DailyStats{AdsWatched: 5, TasksCompleted: 2, LoginBonus: 1, LastResetDate: "2024-04-30"}
		return nil
	})
	require.NoError(t, err)

	r, err := q.CheckAndReserve(context.Background(), 1, CounterAds, 5)
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, 1, r.Count)

	stats := mustGet(t, store, 1).DailyStats
	assert.Equal(t, models.DailyStats{AdsWatched: 1, LastResetDate: "2024-05-01"}, stats)
}

func TestCheckAndReserveRolloverPersistsOnRejection(t *testing.T) {
	store := storage.NewMemoryStore()
	q := NewQuota(store, time.UTC, newFakeClock(day1).Now)

	_, err := store.Mutate(context.Background(), 1, func(u *models.User) error {
		u.DailyStats = models.DailyStats{AdsWatched: 9, LastResetDate: "2024-04-28"}
		return nil
	})
	require.NoError(t, err)

	r, err := q.CheckAndReserve(context.Background(), 1, CounterAds, 0)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, 0, r.Count)
	assert.Equal(t, models.DailyStats{LastResetDate: "2024-05-01"}, mustGet(t, store, 1).DailyStats)
}

func TestCheckAndReserveFutureDateIsKept(t *testing.T) {
	store := storage.NewMemoryStore()
	q := NewQuota(store, time.UTC, newFakeClock(day1).Now)

	_, err := store.Mutate(context.Background(), 1, func(u *models.User) error {
		u.DailyStats = models.DailyStats{AdsWatched: 3, LastResetDate: "2024-05-02"}
		return nil
	})
	require.NoError(t, err)

	r, err := q.CheckAndReserve(context.Background(), 1, CounterAds, 3)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, "2024-05-02", mustGet(t, store, 1).DailyStats.LastResetDate)
}

func TestCheckAndReserveUsesCanonicalZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	late := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	q := NewQuota(store, tokyo, newFakeClock(late).Now)

	_, err = q.CheckAndReserve(context.Background(), 1, CounterAds, 3)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", mustGet(t, store, 1).DailyStats.LastResetDate)
}

func TestCheckAndReserveConcurrent(t *testing.T) {
	store := storage.NewMemoryStore()
	q := NewQuota(store, time.UTC, newFakeClock(day1).Now)
	const limit = 5

	results := make([]Reservation, 3*limit)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			r, err := q.CheckAndReserve(context.Background(), 1, CounterAds, limit)
			results[i] = r
			return err
		})
	}
	require.NoError(t, g.Wait())

	allowed := 0
	for _, r := range results {
		if r.Allowed {
			allowed++
		}
	}
	assert.Equal(t, limit, allowed)
	assert.Equal(t, limit, mustGet(t, store, 1).DailyStats.AdsWatched)
}
