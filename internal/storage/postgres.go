package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"xoranyx-bot/internal/models"
)

const rangeBatchSize = 200

var errStopRange = errors.New("storage: stop range")

// PostgresStore keeps users, invites and transactions in three tables.
// A mutation runs in one database transaction holding the user row with
// SELECT ... FOR UPDATE; the in-process keyed lock keeps same-id callers of
// this process from queueing on the row lock.
type PostgresStore struct {
	db    *gorm.DB
	locks *keyedLock
	opts  options
}

func NewPostgresStore(db *gorm.DB, opts ...Option) *PostgresStore {
	return &PostgresStore{
		db:    db,
		locks: newKeyedLock(),
		opts:  newOptions(opts),
	}
}

// Migrate creates or updates the ledger tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Invite{}, &models.Transaction{})
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}

	var u models.User
	err := withRelations(s.db.WithContext(ctx)).First(&u, id).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persistenceError(err)
	}

	return s.Mutate(ctx, id, nil)
}

func (s *PostgresStore) Mutate(ctx context.Context, id int64, fn MutateFunc) (*models.User, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		committed *models.User
		fnErr     error
	)

	err = s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		current, err := s.lockRecord(tx, id)
		if err != nil {
			return err
		}

		next := current.Clone()
		if fn == nil {
			committed = next
			return nil
		}

		if fnErr = fn(next); fnErr != nil {
			return fnErr
		}
		if fnErr = validateMutation(current, next); fnErr != nil {
			return fnErr
		}
		next.UpdatedAt = s.opts.now()

		if err := s.persist(tx, current, next); err != nil {
			return err
		}
		committed = next
		return nil
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		s.opts.logger.Error("Failed to commit ledger record", zap.Int64("user_id", id), zap.Error(err))
		return nil, persistenceError(err)
	}

	return committed.Clone(), nil
}

// lockRecord inserts the default row if it is missing and reads the record
// back under a row lock.
func (s *PostgresStore) lockRecord(tx *gorm.DB, id int64) (*models.User, error) {
	seed := models.NewUser(id, s.opts.now())
	if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %d: %w", id, err)
	}

	var u models.User
	if err := withRelations(tx.Clauses(clause.Locking{Strength: "UPDATE"})).First(&u, id).Error; err != nil {
		return nil, fmt.Errorf("failed to lock user %d: %w", id, err)
	}
	return &u, nil
}

func (s *PostgresStore) persist(tx *gorm.DB, before, after *models.User) error {
	err := tx.Model(&models.User{}).Where("id = ?", after.ID).Updates(map[string]interface{}{
		"coins":                 after.Coins,
		"total_earned":          after.TotalEarned,
		"invited_by":            after.InvitedBy,
		"daily_ads_watched":     after.DailyStats.AdsWatched,
		"daily_tasks_completed": after.DailyStats.TasksCompleted,
		"daily_login_bonus":     after.DailyStats.LoginBonus,
		"daily_last_reset_date": after.DailyStats.LastResetDate,
		"updated_at":            after.UpdatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", after.ID, err)
	}

	var removed []int64
	for _, inv := range before.Invites {
		if !after.HasInvite(inv.InviteeID) {
			removed = append(removed, inv.InviteeID)
		}
	}
	if len(removed) > 0 {
		err := tx.Where("inviter_id = ? AND invitee_id IN ?", after.ID, removed).Delete(&models.Invite{}).Error
		if err != nil {
			return fmt.Errorf("failed to delete invites for user %d: %w", after.ID, err)
		}
	}

	var invites []models.Invite
	for i := range after.Invites {
		if before.HasInvite(after.Invites[i].InviteeID) {
			continue
		}
		after.Invites[i].InviterID = after.ID
		invites = append(invites, after.Invites[i])
	}
	if len(invites) > 0 {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&invites).Error; err != nil {
			return fmt.Errorf("failed to insert invites for user %d: %w", after.ID, err)
		}
	}

	fresh := after.Transactions[len(before.Transactions):]
	if len(fresh) > 0 {
		for i := range fresh {
			fresh[i].UserID = after.ID
		}
		if err := tx.Create(&fresh).Error; err != nil {
			return fmt.Errorf("failed to append transactions for user %d: %w", after.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) Range(ctx context.Context, fn func(u *models.User) bool) error {
	var batch []models.User
	err := withRelations(s.db.WithContext(ctx)).
		FindInBatches(&batch, rangeBatchSize, func(tx *gorm.DB, n int) error {
			for i := range batch {
				if !fn(&batch[i]) {
					return errStopRange
				}
			}
			return nil
		}).Error
	if err != nil && !errors.Is(err, errStopRange) {
		return persistenceError(err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Invites", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, invitee_id ASC")
		}).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		})
}
