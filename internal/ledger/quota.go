package ledger

import (
	"context"
	"fmt"
	"time"

	"xoranyx-bot/internal/models"
	"xoranyx-bot/internal/storage"
)

const dateLayout = "2006-01-02"

type Counter string

const (
	CounterAds   Counter = "ads_watched"
	CounterTasks Counter = "tasks_completed"
	CounterLogin Counter = "login_bonus"
)

type Reservation struct {
	Allowed bool
	Count   int
	Limit   int
}

// Quota enforces per-day caps. Day boundaries are computed in one canonical
// location for every user.
type Quota struct {
	store storage.Store
	loc   *time.Location
	now   func() time.Time
}

func NewQuota(store storage.Store, loc *time.Location, now func() time.Time) *Quota {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Quota{store: store, loc: loc, now: now}
}

// CheckAndReserve rolls the day over if needed and takes one slot of counter
// when fewer than limit are used, all in a single store mutation.
func (q *Quota) CheckAndReserve(ctx context.Context, id int64, counter Counter, limit int) (Reservation, error) {
	if _, err := counterField(&models.DailyStats{}, counter); err != nil {
		return Reservation{}, err
	}

	var res Reservation
	_, err := q.store.Mutate(ctx, id, func(u *models.User) error {
		var err error
		res, err = q.reserve(u, counter, limit)
		return err
	})
	if err != nil {
		return Reservation{}, translate(err)
	}
	return res, nil
}

func (q *Quota) today() string {
	return q.now().In(q.loc).Format(dateLayout)
}

// stale reports whether stats belong to a day strictly before today.
func (q *Quota) stale(stats models.DailyStats) bool {
	return stats.LastResetDate < q.today()
}

// rollover zeroes the counters once per calendar day. A stored date later
// than today (clock moved back, zone changed) is left alone.
func (q *Quota) rollover(u *models.User) {
	if !q.stale(u.DailyStats) {
		return
	}
	u.DailyStats = models.DailyStats{LastResetDate: q.today()}
}

func (q *Quota) reserve(u *models.User, counter Counter, limit int) (Reservation, error) {
	q.rollover(u)

	field, err := counterField(&u.DailyStats, counter)
	if err != nil {
		return Reservation{}, err
	}

	res := Reservation{Count: *field, Limit: limit}
	if limit != Unlimited && *field >= limit {
		return res, nil
	}

	*field++
	res.Allowed = true
	res.Count = *field
	return res, nil
}

func counterField(stats *models.DailyStats, counter Counter) (*int, error) {
	switch counter {
	case CounterAds:
		return &stats.AdsWatched, nil
	case CounterTasks:
		return &stats.TasksCompleted, nil
	case CounterLogin:
		return &stats.LoginBonus, nil
	default:
		return nil, fmt.Errorf("%w: unknown counter %q", ErrInvalidInput, counter)
	}
}
