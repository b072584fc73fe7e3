// Package storage implements the ledger store: a durable mapping from user id
// to models.User with an exclusive per-record critical section.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"xoranyx-bot/internal/models"
)

var (
	ErrPersistence     = errors.New("storage: persistence failure")
	ErrInvalidID       = errors.New("storage: invalid user id")
	ErrInvalidMutation = errors.New("storage: invalid mutation")
)

// MutateFunc transforms a private copy of the record. Returning an error
// aborts the mutation and nothing is written.
type MutateFunc func(u *models.User) error

// Store is the ledger store contract shared by all backends.
//
// Get creates the default record durably when it is absent. Mutate runs fn
// under the record's critical section and persists the result before
// returning; mutations on different ids never wait on each other. Once the
// critical section is entered the mutation runs to completion regardless of
// ctx cancellation.
type Store interface {
	Get(ctx context.Context, id int64) (*models.User, error)
	Mutate(ctx context.Context, id int64, fn MutateFunc) (*models.User, error)
	Range(ctx context.Context, fn func(u *models.User) bool) error
	Close() error
}

type Option func(*options)

type options struct {
	now    func() time.Time
	logger *zap.Logger
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func persistenceError(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// validateMutation rejects transformations that break the record's
// structural rules: the id, the transaction prefix and invited_by are
// write-once, and an invitee appears at most once in invites.
func validateMutation(before, after *models.User) error {
	if after.ID != before.ID {
		return fmt.Errorf("%w: id changed from %d to %d", ErrInvalidMutation, before.ID, after.ID)
	}
	if after.Coins < 0 {
		return fmt.Errorf("%w: negative balance %d", ErrInvalidMutation, after.Coins)
	}
	if len(after.Transactions) < len(before.Transactions) {
		return fmt.Errorf("%w: transaction log truncated", ErrInvalidMutation)
	}
	for i := range before.Transactions {
		if after.Transactions[i] != before.Transactions[i] {
			return fmt.Errorf("%w: transaction %d rewritten", ErrInvalidMutation, before.Transactions[i].Seq)
		}
	}
	if before.InvitedBy != nil && (after.InvitedBy == nil || *after.InvitedBy != *before.InvitedBy) {
		return fmt.Errorf("%w: invited_by is write-once", ErrInvalidMutation)
	}
	if after.InvitedBy != nil && *after.InvitedBy == after.ID {
		return fmt.Errorf("%w: self referral", ErrInvalidMutation)
	}
	seen := make(map[int64]bool, len(after.Invites))
	for _, inv := range after.Invites {
		if seen[inv.InviteeID] {
			return fmt.Errorf("%w: duplicate invite %d", ErrInvalidMutation, inv.InviteeID)
		}
		seen[inv.InviteeID] = true
	}
	return nil
}
