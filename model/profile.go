package model

import "time"

// Profile is a user's progression aggregate. Level is a cache of the
// level derived from CycleXP and is rewritten in every update that
// touches CycleXP. Version guards optimistic writes.
type Profile struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrgID  string `gorm:"uniqueIndex:idx_profile_org_user;index:idx_profile_org_xp,priority:1;size:64;not null" json:"org_id"`
	UserID string `gorm:"uniqueIndex:idx_profile_org_user;size:64;not null" json:"user_id"`

	LifetimeXP   int64 `gorm:"default:0;index:idx_profile_org_xp,priority:2" json:"lifetime_xp"`
	CycleXP      int64 `gorm:"default:0" json:"cycle_xp"`
	SpentXP      int64 `gorm:"default:0" json:"spent_xp"`
	Level        int   `gorm:"default:1" json:"level"`
	PrestigeTier int   `gorm:"default:0" json:"prestige_tier"`

	LoginStreak        int        `gorm:"default:0" json:"login_streak"`
	LoginStreakBest    int        `gorm:"default:0" json:"login_streak_best"`
	LastLoginDay       *time.Time `json:"last_login_day"`
	DeliveryStreak     int        `gorm:"default:0" json:"delivery_streak"`
	DeliveryStreakBest int        `gorm:"default:0" json:"delivery_streak_best"`
	LastDeliveryDay    *time.Time `json:"last_delivery_day"`

	FreezesAvailable int        `gorm:"default:0" json:"freezes_available"`
	FreezesUsed      int        `gorm:"default:0" json:"freezes_used"`
	FreezeLastUsed   *time.Time `json:"freeze_last_used"`

	SkillPointsGranted int `gorm:"default:0" json:"skill_points_granted"`
	SkillPointsSpent   int `gorm:"default:0" json:"skill_points_spent"`

	Version   int64     `gorm:"default:0;not null" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Balance is the XP available for purchases.
func (p *Profile) Balance() int64 { return p.LifetimeXP - p.SpentXP }

// StatCounter is a per-profile running total for one stat category.
type StatCounter struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID int64     `gorm:"uniqueIndex:idx_stat_profile_cat;not null" json:"profile_id"`
	Category  string    `gorm:"uniqueIndex:idx_stat_profile_cat;size:32;not null" json:"category"`
	Value     int64     `gorm:"default:0" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
