package ledger

import (
	"errors"
	"fmt"

	"xoranyx-bot/internal/storage"
)

var (
	ErrNotFound            = errors.New("ledger: user not found")
	ErrInvalidInput        = errors.New("ledger: invalid input")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrPersistence is the storage failure sentinel, so errors.Is works
	// across both layers.
	ErrPersistence = storage.ErrPersistence
)

// PendingRewardError reports an attribution whose invitee side committed but
// whose inviter reward did not. Settle pays it later; attribution itself is
// final.
type PendingRewardError struct {
	InviteeID int64
	InviterID int64
	Err       error
}

func (e *PendingRewardError) Error() string {
	return fmt.Sprintf("ledger: invite reward for %d owed to %d: %v", e.InviteeID, e.InviterID, e.Err)
}

func (e *PendingRewardError) Unwrap() error {
	return e.Err
}

// translate maps storage sentinels onto the ledger taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrInvalidID):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, storage.ErrInvalidMutation):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		return err
	}
}
