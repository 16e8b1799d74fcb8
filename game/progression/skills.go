package progression

import (
	"context"
	"fmt"

	"github.com/framecraft/engagement/game/skill"
	"github.com/framecraft/engagement/model"
	"github.com/framecraft/engagement/plugin/hook"
	"gorm.io/gorm"
)

// SkillUnlock is the result of unlocking one skill.
type SkillUnlock struct {
	Skill           skill.NodeView `json:"skill"`
	Available       int            `json:"available_points"`
	NewlyUnlockable []string       `json:"newly_unlockable,omitempty"`
}

// SkillReset is the result of a respec.
type SkillReset struct {
	Refunded  int `json:"refunded"`
	Available int `json:"available_points"`
}

func loadSkillState(db *gorm.DB, p *model.Profile) (skill.State, error) {
	st := skill.State{
		Unlocked: map[string]bool{},
		Granted:  p.SkillPointsGranted,
		Spent:    p.SkillPointsSpent,
	}
	if p.ID == 0 {
		return st, nil
	}
	var ids []string
	if err := db.Model(&model.SkillUnlock{}).Where("profile_id = ?", p.ID).Pluck("skill_id", &ids).Error; err != nil {
		return st, fmt.Errorf("progression: load skills: %w", err)
	}
	for _, id := range ids {
		st.Unlocked[id] = true
	}
	return st, nil
}

// SkillTree returns the user's skill forest view.
func (s *Service) SkillTree(ctx context.Context, id Identity) (*skill.View, error) {
	p, err := s.readProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := loadSkillState(s.db.WithContext(ctx), p)
	if err != nil {
		return nil, err
	}
	v := s.opts.Catalog.Skills.View(st)
	return &v, nil
}

// UnlockSkill spends skill points on one skill.
func (s *Service) UnlockSkill(ctx context.Context, id Identity, skillID string) (*SkillUnlock, error) {
	var out *SkillUnlock
	err := s.mutate(ctx, id, func(t *txn) error {
		st, err := loadSkillState(t.tx, t.p)
		if err != nil {
			return err
		}
		res, err := s.opts.Catalog.Skills.Unlock(st, skillID)
		if err != nil {
			return err
		}
		sk := res.Skill
		row := &model.SkillUnlock{ProfileID: t.p.ID, SkillID: sk.ID, Tree: sk.Tree, Cost: sk.Cost}
		if err := t.tx.Create(row).Error; err != nil {
			return fmt.Errorf("progression: record skill: %w", err)
		}
		t.p.SkillPointsSpent = res.State.Spent
		t.emit(hook.OnSkillUnlocked, map[string]interface{}{
			"skill_id": sk.ID, "name": sk.Name, "tree": sk.Tree, "cost": sk.Cost,
		})
		out = &SkillUnlock{
			Skill: skill.NodeView{
				ID: sk.ID, Name: sk.Name, Description: sk.Description, Cost: sk.Cost,
				Prerequisites: sk.Prerequisites, Unlocked: true,
			},
			Available:       res.State.Available(),
			NewlyUnlockable: res.NewlyUnlockable,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResetSkills refunds every spent point and clears the unlocked set.
func (s *Service) ResetSkills(ctx context.Context, id Identity) (*SkillReset, error) {
	var out *SkillReset
	err := s.mutate(ctx, id, func(t *txn) error {
		st, err := loadSkillState(t.tx, t.p)
		if err != nil {
			return err
		}
		next, refunded, err := skill.Reset(st)
		if err != nil {
			return err
		}
		if err := t.tx.Where("profile_id = ?", t.p.ID).Delete(&model.SkillUnlock{}).Error; err != nil {
			return fmt.Errorf("progression: clear skills: %w", err)
		}
		t.p.SkillPointsSpent = next.Spent
		t.emit(hook.OnSkillsReset, map[string]interface{}{"refunded": refunded})
		out = &SkillReset{Refunded: refunded, Available: next.Available()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
