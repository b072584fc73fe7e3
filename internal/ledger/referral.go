package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"xoranyx-bot/internal/models"
	"xoranyx-bot/internal/storage"
)

const refWelcome = "referral:welcome"

type AttributionStatus string

const (
	StatusAttributed    AttributionStatus = "attributed"
	StatusSkipped       AttributionStatus = "skipped"
	StatusRewardPending AttributionStatus = "reward_pending"
)

type SkipReason string

const (
	SkipSelfReferral      SkipReason = "self_referral"
	SkipUnknownInviter    SkipReason = "unknown_inviter"
	SkipAlreadyAttributed SkipReason = "already_attributed"
	SkipInviteCapReached  SkipReason = "invite_cap_reached"
)

type AttributionResult struct {
	Status         AttributionStatus
	Reason         SkipReason
	InviterID      int64
	InviteeBalance int64
	InviterBalance int64
	WelcomeGift    int64
}

func (r AttributionResult) Skipped() bool {
	return r.Status == StatusSkipped
}

var (
	errAlreadyAttributed = errors.New("ledger: already attributed")
	errInviteCapReached  = errors.New("ledger: invite cap reached")
)

// Referrals attributes a new user to an inviter once and pays both sides.
type Referrals struct {
	store   storage.Store
	applier *Applier
	rewards Rewards
	limits  Limits
	now     func() time.Time
	logger  *zap.Logger
}

func NewReferrals(store storage.Store, applier *Applier, settings Settings, now func() time.Time, logger *zap.Logger) *Referrals {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Referrals{
		store:   store,
		applier: applier,
		rewards: settings.Rewards,
		limits:  settings.Limits,
		now:     now,
		logger:  logger,
	}
}

func inviteRef(inviteeID int64) string {
	return fmt.Sprintf("referral:invite:%d", inviteeID)
}

// Attribute records inviterID as the referrer of newID. The invitee side
// (invited_by plus welcome gift) commits in one mutation and is final; the
// inviter side (invites entry plus reward) follows. When that fails the
// result is StatusRewardPending with a *PendingRewardError and Settle
// completes it.
//
// With an enforced invite cap the inviter's entry is reserved under the cap
// before the invitee commits, and released again if the invitee went to
// someone else in the meantime.
func (r *Referrals) Attribute(ctx context.Context, newID, inviterID int64) (AttributionResult, error) {
	if newID <= 0 {
		return AttributionResult{}, fmt.Errorf("%w: user id %d", ErrNotFound, newID)
	}
	if inviterID == newID {
		return AttributionResult{Status: StatusSkipped, Reason: SkipSelfReferral}, nil
	}
	if inviterID <= 0 {
		return AttributionResult{Status: StatusSkipped, Reason: SkipUnknownInviter}, nil
	}

	if _, err := r.store.Get(ctx, inviterID); err != nil {
		return AttributionResult{}, translate(err)
	}

	reserved := false
	if r.limits.EnforceMaxInvites {
		invitee, err := r.store.Get(ctx, newID)
		if err != nil {
			return AttributionResult{}, translate(err)
		}
		if invitee.InvitedBy != nil {
			return r.skipAttributed(ctx, newID, inviterID, *invitee.InvitedBy), nil
		}

		_, added, err := r.addInvite(ctx, inviterID, newID, true)
		if errors.Is(err, errInviteCapReached) {
			return AttributionResult{Status: StatusSkipped, Reason: SkipInviteCapReached, InviterID: inviterID}, nil
		}
		if err != nil {
			return AttributionResult{}, translate(err)
		}
		reserved = added
	}

	var prior int64
	invitee, err := r.store.Mutate(ctx, newID, func(u *models.User) error {
		if u.InvitedBy != nil {
			prior = *u.InvitedBy
			return errAlreadyAttributed
		}
		id := inviterID
		u.InvitedBy = &id
		if r.rewards.WelcomeGift > 0 {
			return r.applier.apply(u, r.rewards.WelcomeGift, "Welcome gift for joining via referral", refWelcome)
		}
		return nil
	})
	if errors.Is(err, errAlreadyAttributed) {
		if reserved && prior != inviterID {
			r.releaseInvite(ctx, inviterID, newID)
		}
		return r.skipAttributed(ctx, newID, inviterID, prior), nil
	}
	if err != nil {
		if reserved {
			r.releaseInvite(ctx, inviterID, newID)
		}
		return AttributionResult{}, translate(err)
	}

	res := AttributionResult{
		Status:         StatusAttributed,
		InviterID:      inviterID,
		InviteeBalance: invitee.Coins,
		WelcomeGift:    r.rewards.WelcomeGift,
	}

	balance, err := r.payInviter(ctx, inviterID, newID)
	if err != nil {
		r.logger.Error("Invite reward not paid", zap.Int64("user_id", newID), zap.Int64("inviter_id", inviterID), zap.Error(err))
		res.Status = StatusRewardPending
		return res, &PendingRewardError{InviteeID: newID, InviterID: inviterID, Err: translate(err)}
	}
	res.InviterBalance = balance

	r.logger.Info("Referral attributed", zap.Int64("user_id", newID), zap.Int64("inviter_id", inviterID))
	return res, nil
}

// skipAttributed answers a second attribution attempt. A repeat from the
// same inviter finishes a reward that may still be owed.
func (r *Referrals) skipAttributed(ctx context.Context, newID, inviterID, prior int64) AttributionResult {
	if prior == inviterID {
		if _, err := r.Settle(ctx, newID); err != nil {
			r.logger.Warn("Failed to settle repeated referral", zap.Int64("user_id", newID), zap.Int64("inviter_id", inviterID), zap.Error(err))
		}
	}
	return AttributionResult{Status: StatusSkipped, Reason: SkipAlreadyAttributed, InviterID: prior}
}

// Settle pays the inviter side of an existing attribution if it is still
// owed. It reports whether anything was written.
func (r *Referrals) Settle(ctx context.Context, newID int64) (bool, error) {
	invitee, err := r.store.Get(ctx, newID)
	if err != nil {
		return false, translate(err)
	}
	if invitee.InvitedBy == nil {
		return false, nil
	}
	inviterID := *invitee.InvitedBy

	inviter, err := r.store.Get(ctx, inviterID)
	if err != nil {
		return false, translate(err)
	}
	if r.settled(inviter, newID) {
		return false, nil
	}

	if _, err := r.payInviter(ctx, inviterID, newID); err != nil {
		return false, translate(err)
	}
	r.logger.Info("Owed invite reward settled", zap.Int64("user_id", newID), zap.Int64("inviter_id", inviterID))
	return true, nil
}

func (r *Referrals) settled(inviter *models.User, newID int64) bool {
	if !inviter.HasInvite(newID) {
		return false
	}
	return r.rewards.Invite <= 0 || inviter.HasRef(inviteRef(newID))
}

// payInviter adds newID to the inviter's invites and credits the invite
// reward once. Both steps can be repeated safely.
func (r *Referrals) payInviter(ctx context.Context, inviterID, newID int64) (int64, error) {
	u, _, err := r.addInvite(ctx, inviterID, newID, false)
	if err != nil {
		return 0, err
	}
	if r.rewards.Invite <= 0 {
		return u.Coins, nil
	}

	balance, _, err := r.applier.CreditOnce(ctx, inviterID, r.rewards.Invite, fmt.Sprintf("Invite reward from user %d", newID), inviteRef(newID))
	return balance, err
}

// addInvite appends newID to the inviter's invites unless it is already
// there. With capped set a full list fails with errInviteCapReached.
func (r *Referrals) addInvite(ctx context.Context, inviterID, newID int64, capped bool) (*models.User, bool, error) {
	var added bool
	u, err := r.store.Mutate(ctx, inviterID, func(u *models.User) error {
		added = false
		if u.HasInvite(newID) {
			return nil
		}
		if capped && r.limits.MaxInvites != Unlimited && len(u.Invites) >= r.limits.MaxInvites {
			return errInviteCapReached
		}
		u.Invites = append(u.Invites, models.Invite{
			InviterID: u.ID,
			InviteeID: newID,
			CreatedAt: r.now().UTC().Truncate(time.Microsecond),
		})
		added = true
		return nil
	})
	return u, added, err
}

// releaseInvite drops a reserved entry whose attribution did not happen.
// An entry that already carries its reward stays.
func (r *Referrals) releaseInvite(ctx context.Context, inviterID, newID int64) {
	_, err := r.store.Mutate(ctx, inviterID, func(u *models.User) error {
		if u.HasRef(inviteRef(newID)) {
			return nil
		}
		u.Invites = slices.DeleteFunc(u.Invites, func(inv models.Invite) bool {
			return inv.InviteeID == newID
		})
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to release reserved invite", zap.Int64("user_id", newID), zap.Int64("inviter_id", inviterID), zap.Error(err))
	}
}
