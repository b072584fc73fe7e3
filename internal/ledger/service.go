// Package ledger holds the coin ledger core: daily quotas, the reward
// applier and referral attribution, on top of a storage.Store.
package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"xoranyx-bot/internal/models"
	"xoranyx-bot/internal/storage"
)

type ActionType string

const (
	ActionWatchAd      ActionType = "watch_ad"
	ActionCompleteTask ActionType = "complete_task"
	ActionDailyLogin   ActionType = "daily_login"
)

type Action struct {
	Type   ActionType
	TaskID int
}

func WatchAd() Action {
	return Action{Type: ActionWatchAd}
}

func CompleteTask(taskID int) Action {
	return Action{Type: ActionCompleteTask, TaskID: taskID}
}

func DailyLogin() Action {
	return Action{Type: ActionDailyLogin}
}

type ActionStatus string

const (
	ActionCredited     ActionStatus = "credited"
	ActionLimitReached ActionStatus = "limit_reached"
)

// ActionResult is Credited(NewBalance, Count) or LimitReached(Count, Limit).
type ActionResult struct {
	Status     ActionStatus
	NewBalance int64
	Count      int
	Limit      int
	Reward     int64
	Reason     string
}

type UserView struct {
	ID                 int64
	Coins              int64
	TotalEarned        int64
	DailyStats         models.DailyStats
	InvitesCount       int
	InvitedBy          *int64
	RecentTransactions []models.Transaction
}

type Totals struct {
	Users       int
	Coins       int64
	TotalEarned int64
	Invites     int
}

// Recorder receives ledger outcomes, e.g. for metrics.
type Recorder interface {
	ActionCompleted(action ActionType, status ActionStatus, reward int64)
	ReferralCompleted(status AttributionStatus, reason SkipReason)
}

type nopRecorder struct{}

func (nopRecorder) ActionCompleted(ActionType, ActionStatus, int64)   {}
func (nopRecorder) ReferralCompleted(AttributionStatus, SkipReason) {}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service is the surface the chat layer talks to.
type Service struct {
	store     storage.Store
	settings  Settings
	quota     *Quota
	applier   *Applier
	referrals *Referrals
	recorder  Recorder
	now       func() time.Time
	logger    *zap.Logger
}

func NewService(store storage.Store, settings Settings, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    store,
		settings: settings,
		recorder: nopRecorder{},
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.quota = NewQuota(store, settings.location(), s.now)
	s.applier = NewApplier(store, s.now)
	s.referrals = NewReferrals(store, s.applier, settings, s.now, logger)
	return s
}

func (s *Service) Settings() Settings {
	return s.settings
}

func (s *Service) Tasks() []Task {
	return append([]Task(nil), s.settings.Tasks...)
}

// GetUser returns the user's view, creating the record on first contact.
// Counters from a previous day read as zero without being written back.
func (s *Service) GetUser(ctx context.Context, id int64) (UserView, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return UserView{}, translate(err)
	}

	stats := u.DailyStats
	if s.quota.stale(stats) {
		stats = models.DailyStats{LastResetDate: s.quota.today()}
	}

	return UserView{
		ID:                 u.ID,
		Coins:              u.Coins,
		TotalEarned:        u.TotalEarned,
		DailyStats:         stats,
		InvitesCount:       len(u.Invites),
		InvitedBy:          u.InvitedBy,
		RecentTransactions: recent(u.Transactions, s.settings.RecentWindow),
	}, nil
}

// recent returns the last n transactions, newest first.
func recent(txs []models.Transaction, n int) []models.Transaction {
	if n <= 0 || n > len(txs) {
		n = len(txs)
	}
	out := make([]models.Transaction, 0, n)
	for i := len(txs) - 1; i >= len(txs)-n; i-- {
		out = append(out, txs[i])
	}
	return out
}

// PerformDailyCappedAction reserves a quota slot and credits the reward in
// one store mutation, so the counter and the balance never diverge.
func (s *Service) PerformDailyCappedAction(ctx context.Context, id int64, action Action) (ActionResult, error) {
	counter, limit, reward, reason, err := s.resolve(action)
	if err != nil {
		return ActionResult{}, err
	}

	var res ActionResult
	u, err := s.store.Mutate(ctx, id, func(u *models.User) error {
		res = ActionResult{Limit: limit, Reward: reward, Reason: reason}

		r, err := s.quota.reserve(u, counter, limit)
		if err != nil {
			return err
		}
		res.Count = r.Count
		if !r.Allowed {
			res.Status = ActionLimitReached
			return nil
		}

		res.Status = ActionCredited
		return s.applier.apply(u, reward, reason, "")
	})
	if err != nil {
		s.logger.Error("Daily action failed", zap.Int64("user_id", id), zap.String("action", string(action.Type)), zap.Error(err))
		return ActionResult{}, translate(err)
	}
	res.NewBalance = u.Coins

	s.recorder.ActionCompleted(action.Type, res.Status, reward)
	s.logger.Debug("Daily action",
		zap.Int64("user_id", id),
		zap.String("action", string(action.Type)),
		zap.String("status", string(res.Status)),
		zap.Int("count", res.Count),
	)
	return res, nil
}

func (s *Service) resolve(action Action) (Counter, int, int64, string, error) {
	switch action.Type {
	case ActionWatchAd:
		return CounterAds, s.settings.Limits.MaxAdsPerDay, s.settings.Rewards.AdWatch, "Watched ad", nil
	case ActionDailyLogin:
		return CounterLogin, s.settings.Limits.MaxLoginsPerDay, s.settings.Rewards.DailyLogin, "Daily login bonus", nil
	case ActionCompleteTask:
		task, ok := s.settings.task(action.TaskID)
		if !ok {
			return "", 0, 0, "", fmt.Errorf("%w: unknown task %d", ErrInvalidInput, action.TaskID)
		}
		reward := task.Reward
		if reward <= 0 {
			reward = s.settings.Rewards.MicroTask
		}
		return CounterTasks, s.settings.Limits.MaxTasksPerDay, reward, "Completed task: " + task.Title, nil
	default:
		return "", 0, 0, "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action.Type)
	}
}

func (s *Service) CheckAndReserve(ctx context.Context, id int64, counter Counter, limit int) (Reservation, error) {
	return s.quota.CheckAndReserve(ctx, id, counter, limit)
}

func (s *Service) Credit(ctx context.Context, id int64, amount int64, reason string) (int64, error) {
	return s.applier.Credit(ctx, id, amount, reason)
}

func (s *Service) Debit(ctx context.Context, id int64, amount int64, reason string) (int64, error) {
	return s.applier.Debit(ctx, id, amount, reason)
}

func (s *Service) AttributeReferral(ctx context.Context, id, inviterCandidate int64) (AttributionResult, error) {
	res, err := s.referrals.Attribute(ctx, id, inviterCandidate)
	if res.Status != "" {
		s.recorder.ReferralCompleted(res.Status, res.Reason)
	}
	return res, err
}

func (s *Service) SettleReferral(ctx context.Context, id int64) (bool, error) {
	return s.referrals.Settle(ctx, id)
}

// Stats sums every record in the store.
func (s *Service) Stats(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.store.Range(ctx, func(u *models.User) bool {
		t.Users++
		t.Coins += u.Coins
		t.TotalEarned += u.TotalEarned
		t.Invites += len(u.Invites)
		return true
	})
	if err != nil {
		return Totals{}, translate(err)
	}
	return t, nil
}
