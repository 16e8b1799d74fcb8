package model

import (
	"fmt"

	"gorm.io/gorm"
)

// Tables lists the models owned by the engagement service, profiles first
// since every other table hangs off a profile id.
func Tables() []interface{} {
	return []interface{}{
		&Profile{},
		&StatCounter{},
		&QuestProgress{},
		&SkillUnlock{},
		&MilestoneRecord{},
		&DailyBonus{},
		&XPEvent{},
		&AuditLog{},
	}
}

// AutoMigrate brings the schema up to date one table at a time so a failure
// names the table that broke.
func AutoMigrate(db *gorm.DB) error {
	for _, m := range Tables() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
	}
	return nil
}
