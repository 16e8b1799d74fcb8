package model

import "time"

// SkillUnlock records one unlocked skill for a profile.
type SkillUnlock struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID int64     `gorm:"uniqueIndex:idx_profile_skill;not null" json:"profile_id"`
	SkillID   string    `gorm:"uniqueIndex:idx_profile_skill;size:64;not null" json:"skill_id"`
	Tree      string    `gorm:"size:32" json:"tree"`
	Cost      int       `json:"cost"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// MilestoneRecord marks a milestone as awarded. The unique index is the
// once-per-user guard.
type MilestoneRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID   int64     `gorm:"uniqueIndex:idx_profile_milestone;not null" json:"profile_id"`
	MilestoneID string    `gorm:"uniqueIndex:idx_profile_milestone;size:64;not null" json:"milestone_id"`
	Category    string    `gorm:"size:32" json:"category"`
	Threshold   int64     `json:"threshold"`
	RewardXP    int64     `json:"reward_xp"`
	AwardedAt   time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}
