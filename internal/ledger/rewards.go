package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"xoranyx-bot/internal/models"
	"xoranyx-bot/internal/storage"
)

// Applier is the only path that changes coins, total_earned and the
// transaction log.
type Applier struct {
	store storage.Store
	now   func() time.Time
}

func NewApplier(store storage.Store, now func() time.Time) *Applier {
	if now == nil {
		now = time.Now
	}
	return &Applier{store: store, now: now}
}

// Credit adds a positive amount and returns the new balance.
func (a *Applier) Credit(ctx context.Context, id int64, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit amount must be positive, got %d", ErrInvalidInput, amount)
	}

	u, err := a.store.Mutate(ctx, id, func(u *models.User) error {
		return a.apply(u, amount, reason, "")
	})
	if err != nil {
		return 0, translate(err)
	}
	return u.Coins, nil
}

// CreditOnce credits at most once per (id, ref). applied is false when an
// entry with ref already exists.
func (a *Applier) CreditOnce(ctx context.Context, id int64, amount int64, reason, ref string) (balance int64, applied bool, err error) {
	if amount <= 0 {
		return 0, false, fmt.Errorf("%w: credit amount must be positive, got %d", ErrInvalidInput, amount)
	}
	if ref == "" {
		return 0, false, fmt.Errorf("%w: empty idempotency ref", ErrInvalidInput)
	}

	u, err := a.store.Mutate(ctx, id, func(u *models.User) error {
		applied = false
		if u.HasRef(ref) {
			return nil
		}
		applied = true
		return a.apply(u, amount, reason, ref)
	})
	if err != nil {
		return 0, false, translate(err)
	}
	return u.Coins, applied, nil
}

// Debit removes a positive amount, refusing to take the balance below zero.
func (a *Applier) Debit(ctx context.Context, id int64, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: debit amount must be positive, got %d", ErrInvalidInput, amount)
	}

	u, err := a.store.Mutate(ctx, id, func(u *models.User) error {
		return a.apply(u, -amount, reason, "")
	})
	if err != nil {
		return 0, translate(err)
	}
	return u.Coins, nil
}

// apply changes u in place. Callers run it inside a store mutation.
func (a *Applier) apply(u *models.User, amount int64, reason, ref string) error {
	if amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrInvalidInput)
	}
	if amount > 0 && amount > math.MaxInt64-u.TotalEarned {
		return fmt.Errorf("%w: credit %d overflows total earned %d", ErrInvalidInput, amount, u.TotalEarned)
	}
	if u.Coins+amount < 0 {
		return fmt.Errorf("%w: balance %d, debit %d", ErrInsufficientBalance, u.Coins, -amount)
	}

	ts := a.now().UTC().Truncate(time.Microsecond)
	seq := int64(1)
	if last := u.LastTransaction(); last != nil {
		seq = last.Seq + 1
		if !ts.After(last.CreatedAt) {
			ts = last.CreatedAt.Add(time.Microsecond)
		}
	}

	u.Coins += amount
	if amount > 0 {
		u.TotalEarned += amount
	}
	u.Transactions = append(u.Transactions, models.Transaction{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Seq:       seq,
		Amount:    amount,
		Reason:    reason,
		Ref:       ref,
		CreatedAt: ts,
	})
	return nil
}
