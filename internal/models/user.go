package models

import (
	"time"
)

// User is the ledger record for one external (Telegram) user id.
type User struct {
	ID           int64         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Coins        int64         `gorm:"not null;default:0" json:"coins"`
	TotalEarned  int64         `gorm:"not null;default:0" json:"total_earned"`
	InvitedBy    *int64        `gorm:"index" json:"invited_by"`
	DailyStats   DailyStats    `gorm:"embedded;embeddedPrefix:daily_" json:"daily_stats"`
	Invites      []Invite      `gorm:"foreignKey:InviterID" json:"invites"`
	Transactions []Transaction `gorm:"foreignKey:UserID" json:"transactions"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// DailyStats holds the per-day counters. LastResetDate is a YYYY-MM-DD date
// in the ledger's canonical time zone.
type DailyStats struct {
	AdsWatched     int    `gorm:"not null;default:0" json:"ads_watched"`
	TasksCompleted int    `gorm:"not null;default:0" json:"tasks_completed"`
	LoginBonus     int    `gorm:"not null;default:0" json:"login_bonus"`
	LastResetDate  string `gorm:"size:10" json:"last_reset_date"`
}

func NewUser(id int64, now time.Time) *User {
	return &User{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so a mutation can be discarded without touching
// the committed value.
func (u *User) Clone() *User {
	c := *u
	if u.InvitedBy != nil {
		v := *u.InvitedBy
		c.InvitedBy = &v
	}
	if u.Invites != nil {
		c.Invites = append([]Invite(nil), u.Invites...)
	}
	if u.Transactions != nil {
		c.Transactions = append([]Transaction(nil), u.Transactions...)
	}
	return &c
}

func (u *User) HasInvite(inviteeID int64) bool {
	for _, inv := range u.Invites {
		if inv.InviteeID == inviteeID {
			return true
		}
	}
	return false
}

func (u *User) HasRef(ref string) bool {
	if ref == "" {
		return false
	}
	for _, tx := range u.Transactions {
		if tx.Ref == ref {
			return true
		}
	}
	return false
}

func (u *User) LastTransaction() *Transaction {
	if len(u.Transactions) == 0 {
		return nil
	}
	return &u.Transactions[len(u.Transactions)-1]
}
