package models

import (
	"time"
)

// Transaction is one entry of a user's append-only coin log.
// Seq starts at 1 and grows by one per entry; CreatedAt is strictly increasing.
type Transaction struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_tx_user_seq,priority:1;index:idx_tx_user_ref,priority:1" json:"user_id"`
	Seq       int64     `gorm:"not null;uniqueIndex:idx_tx_user_seq,priority:2" json:"seq"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Reason    string    `gorm:"size:255" json:"reason"`
	Ref       string    `gorm:"size:64;index:idx_tx_user_ref,priority:2" json:"ref,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
