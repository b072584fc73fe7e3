package models

import (
	"time"
)

// Invite records that InviterID successfully referred InviteeID.
// An invitee appears at most once per inviter.
type Invite struct {
	InviterID int64     `gorm:"primaryKey;autoIncrement:false" json:"inviter_id"`
	InviteeID int64     `gorm:"primaryKey;autoIncrement:false" json:"invitee_id"`
	CreatedAt time.Time `json:"created_at"`
}
