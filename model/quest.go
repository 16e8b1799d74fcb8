package model

import (
	"time"

	"gorm.io/datatypes"
)

// QuestProgress tracks a profile's state for one quest.
type QuestProgress struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID   int64          `gorm:"uniqueIndex:idx_profile_quest;not null" json:"profile_id"`
	QuestID     string         `gorm:"uniqueIndex:idx_profile_quest;size:64;not null" json:"quest_id"`
	Status      string         `gorm:"size:16;index;not null" json:"status"`
	Progress    datatypes.JSON `json:"progress"` // {"objective_id": count, ...}
	StartedAt   *time.Time     `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	AvailableAt *time.Time     `gorm:"index" json:"available_at"`
	Completions int            `gorm:"default:0" json:"completions"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
