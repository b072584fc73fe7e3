package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"xoranyx-bot/internal/ledger"
	"xoranyx-bot/internal/models"
	"xoranyx-bot/internal/storage"
)

const (
	KeySettleLock     = "ledger:settle:lock"
	KeySettleNotified = "ledger:settle:notified:%d"
)

// Notifier delivers a text to a user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Settler is what the checker needs from the ledger.
type Settler interface {
	SettleReferral(ctx context.Context, id int64) (bool, error)
	Settings() ledger.Settings
}

type SettledHook func()

// Checker periodically pays invite rewards whose first attempt failed.
type Checker struct {
	Store    storage.Store
	Ledger   Settler
	Redis    *redis.Client
	Notifier Notifier
	Logger   *zap.Logger
	Interval time.Duration
	Message  func(inviteeID, reward int64) string
	OnSettle SettledHook
}

func NewChecker(store storage.Store, settler Settler, rdb *redis.Client, notifier Notifier, interval time.Duration, logger *zap.Logger) *Checker {
	return &Checker{
		Store:    store,
		Ledger:   settler,
		Redis:    rdb,
		Notifier: notifier,
		Logger:   logger,
		Interval: interval,
		Message: func(inviteeID, reward int64) string {
			return fmt.Sprintf("🎉 User %d joined with your invite link! +%d coins", inviteeID, reward)
		},
	}
}

// Start runs one cycle immediately and then one per interval until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	c.Logger.Info("Referral settlement worker started", zap.Duration("interval", c.Interval))

	c.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			c.Logger.Info("Referral settlement worker stopped")
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce settles every owed invite reward. It returns how many were paid.
func (c *Checker) RunOnce(ctx context.Context) int {
	if !c.acquire(ctx) {
		c.Logger.Debug("Settlement cycle already running elsewhere, skipping")
		return 0
	}
	defer c.release(ctx)

	var invitees []int64
	err := c.Store.Range(ctx, func(u *models.User) bool {
		if u.InvitedBy != nil {
			invitees = append(invitees, u.ID)
		}
		return true
	})
	if err != nil {
		c.Logger.Error("Failed to scan users for settlement", zap.Error(err))
		return 0
	}

	settled := 0
	for _, id := range invitees {
		if ctx.Err() != nil {
			break
		}
		paid, err := c.Ledger.SettleReferral(ctx, id)
		if err != nil {
			c.Logger.Warn("Failed to settle invite reward", zap.Int64("user_id", id), zap.Error(err))
			continue
		}
		if !paid {
			continue
		}
		settled++
		if c.OnSettle != nil {
			c.OnSettle()
		}
		c.notify(ctx, id)
	}

	if settled > 0 {
		c.Logger.Info("Settlement cycle finished", zap.Int("settled", settled), zap.Int("scanned", len(invitees)))
	}
	return settled
}

func (c *Checker) acquire(ctx context.Context) bool {
	if c.Redis == nil {
		return true
	}
	ok, err := c.Redis.SetNX(ctx, KeySettleLock, "1", c.Interval).Result()
	if err != nil {
		c.Logger.Warn("Failed to take settlement lock", zap.Error(err))
		return false
	}
	return ok
}

func (c *Checker) release(ctx context.Context) {
	if c.Redis == nil {
		return
	}
	if err := c.Redis.Del(context.WithoutCancel(ctx), KeySettleLock).Err(); err != nil {
		c.Logger.Warn("Failed to release settlement lock", zap.Error(err))
	}
}

func (c *Checker) notify(ctx context.Context, inviteeID int64) {
	if c.Notifier == nil {
		return
	}
	u, err := c.Store.Get(ctx, inviteeID)
	if err != nil || u.InvitedBy == nil {
		return
	}
	inviterID := *u.InvitedBy

	if c.Redis != nil {
		key := fmt.Sprintf(KeySettleNotified, inviteeID)
		fresh, err := c.Redis.SetNX(ctx, key, inviterID, 7*24*time.Hour).Result()
		if err != nil || !fresh {
			return
		}
	}

	reward := c.Ledger.Settings().Rewards.Invite
	if err := c.Notifier.Notify(ctx, inviterID, c.Message(inviteeID, reward)); err != nil {
		c.Logger.Warn("Failed to notify inviter", zap.Int64("inviter_id", inviterID), zap.Error(err))
		return
	}
	c.Logger.Info("Inviter notified about settled reward", zap.Int64("inviter_id", inviterID), zap.Int64("user_id", inviteeID))
}
