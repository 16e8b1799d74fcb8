package model

import (
	"time"

	"gorm.io/datatypes"
)

// DailyBonus is a profile's daily bonus cycle. ClaimedMask bit i marks
// day i+1 of the active week as claimed.
type DailyBonus struct {
	ProfileID   int64      `gorm:"primaryKey" json:"profile_id"`
	CurrentDay  int        `gorm:"default:0" json:"current_day"`
	ClaimedMask uint8      `gorm:"default:0" json:"claimed_mask"`
	LastClaimAt *time.Time `json:"last_claim_at"`
	TotalClaims int        `gorm:"default:0" json:"total_claims"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// XP sources recorded in the ledger.
const (
	XPSourceManual    = "manual"
	XPSourceQuest     = "quest"
	XPSourceMilestone = "milestone"
	XPSourceDaily     = "daily_bonus"
	XPSourceFreeze    = "freeze_purchase"
	XPSourcePrestige  = "prestige"
)

// XPEvent is an append-only ledger row. Amount is the XP actually credited
// (after the prestige multiplier); negative amounts are debits.
type XPEvent struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID    string         `gorm:"uniqueIndex;size:36;not null" json:"event_id"`
	ProfileID  int64          `gorm:"index:idx_xp_profile;not null" json:"profile_id"`
	Source     string         `gorm:"size:32;not null" json:"source"`
	Reason     string         `gorm:"size:255" json:"reason"`
	BaseAmount int64          `json:"base_amount"`
	Multiplier float64        `json:"multiplier"`
	Amount     int64          `json:"amount"`
	Metadata   datatypes.JSON `json:"metadata"`
	CreatedAt  time.Time      `gorm:"index:idx_xp_profile;autoCreateTime" json:"created_at"`
}
