package progression

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/framecraft/engagement/game"
	"github.com/framecraft/engagement/game/level"
	"github.com/framecraft/engagement/game/milestone"
	"github.com/framecraft/engagement/game/streak"
	"github.com/framecraft/engagement/model"
	"github.com/framecraft/engagement/plugin/hook"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// Award is the result of crediting XP.
type Award struct {
	BaseAmount   int64              `json:"base_amount"`
	Multiplier   float64            `json:"multiplier"`
	Amount       int64              `json:"amount"`
	LevelBefore  int                `json:"level_before"`
	LevelAfter   int                `json:"level_after"`
	PointsEarned int                `json:"points_earned"`
	Progress     level.Progress     `json:"progress"`
	Milestones   []AwardedMilestone `json:"milestones,omitempty"`
}

// LeveledUp reports whether the award crossed at least one level.
func (a Award) LeveledUp() bool { return a.LevelAfter > a.LevelBefore }

// AwardedMilestone is a milestone reached during a request.
type AwardedMilestone struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Title     string `json:"title"`
	Threshold int64  `json:"threshold"`
	RewardXP  int64  `json:"reward_xp"`
}

// AwardXP credits a positive base amount, scaled by the prestige multiplier.
func (s *Service) AwardXP(ctx context.Context, id Identity, amount int64, source, reason string) (*Award, error) {
	if amount <= 0 || (s.opts.MaxAward > 0 && amount > s.opts.MaxAward) {
		return nil, game.ErrInvalidAmount
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = model.XPSourceManual
	}
	var out *Award
	err := s.mutate(ctx, id, func(t *txn) error {
		a, err := t.credit(amount, source, reason)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// credit adds XP to the profile, records the ledger row, grants skill
// points for new levels and awards level milestones. Milestone rewards
// are credited recursively; each milestone pays once, so it terminates.
func (t *txn) credit(base int64, source, reason string) (*Award, error) {
	p := t.p
	opts := t.svc.opts
	amount := opts.Prestige.Apply(base, p.PrestigeTier)
	a := &Award{
		BaseAmount:  base,
		Multiplier:  opts.Prestige.Multiplier(p.PrestigeTier),
		Amount:      amount,
		LevelBefore: opts.Curve.Level(p.CycleXP),
	}

	p.LifetimeXP += amount
	p.CycleXP += amount
	p.Level = opts.Curve.Level(p.CycleXP)
	a.LevelAfter = p.Level

	if err := t.ledger(source, reason, base, a.Multiplier, amount, nil); err != nil {
		return nil, err
	}
	t.emit(hook.OnXPAwarded, map[string]interface{}{
		"amount": amount, "source": source, "lifetime_xp": p.LifetimeXP,
	})

	if gained := a.LevelAfter - a.LevelBefore; gained > 0 {
		a.PointsEarned = gained * opts.PointsPerLevel
		p.SkillPointsGranted += a.PointsEarned
		t.emit(hook.OnLevelUp, map[string]interface{}{
			"from": a.LevelBefore, "to": a.LevelAfter, "skill_points": a.PointsEarned,
		})
		ms, err := t.milestones(milestone.CategoryLevel, int64(a.LevelBefore), int64(a.LevelAfter))
		if err != nil {
			return nil, err
		}
		a.Milestones = ms
		// a milestone reward may have moved the level again
		a.LevelAfter = p.Level
	}
	a.Progress = opts.Curve.ProgressAt(p.CycleXP, p.Level)
	return a, nil
}

func (t *txn) ledger(source, reason string, base int64, mult float64, amount int64, meta map[string]interface{}) error {
	ev := &model.XPEvent{
		EventID:    uuid.NewString(),
		ProfileID:  t.p.ID,
		Source:     source,
		Reason:     reason,
		BaseAmount: base,
		Multiplier: mult,
		Amount:     amount,
	}
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("progression: encode ledger metadata: %w", err)
		}
		ev.Metadata = datatypes.JSON(raw)
	}
	if err := t.tx.Create(ev).Error; err != nil {
		return fmt.Errorf("progression: write ledger: %w", err)
	}
	return nil
}

// milestones awards every milestone in c crossed by before → after that
// the user does not hold yet, and credits its reward.
func (t *txn) milestones(c milestone.Category, before, after int64) ([]AwardedMilestone, error) {
	if after <= before {
		return nil, nil
	}
	if t.awarded == nil {
		var ids []string
		if err := t.tx.Model(&model.MilestoneRecord{}).
			Where("profile_id = ?", t.p.ID).Pluck("milestone_id", &ids).Error; err != nil {
			return nil, fmt.Errorf("progression: load milestones: %w", err)
		}
		t.awarded = make(map[string]bool, len(ids))
		for _, id := range ids {
			t.awarded[id] = true
		}
	}

	var out []AwardedMilestone
	for _, m := range t.svc.opts.Catalog.Milestones.Crossed(c, before, after, t.awarded) {
		rec := &model.MilestoneRecord{
			ProfileID:   t.p.ID,
			MilestoneID: m.ID,
			Category:    string(m.Category),
			Threshold:   m.Threshold,
			RewardXP:    m.RewardXP,
		}
		res := t.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
		if res.Error != nil {
			return nil, fmt.Errorf("progression: record milestone: %w", res.Error)
		}
		t.awarded[m.ID] = true
		if res.RowsAffected == 0 {
			continue
		}
		out = append(out, AwardedMilestone{
			ID: m.ID, Category: string(m.Category), Title: m.Title,
			Threshold: m.Threshold, RewardXP: m.RewardXP,
		})
		t.emit(hook.OnMilestoneReached, map[string]interface{}{
			"milestone_id": m.ID, "title": m.Title, "category": string(m.Category), "reward_xp": m.RewardXP,
		})
		if m.RewardXP > 0 {
			a, err := t.credit(m.RewardXP, model.XPSourceMilestone, m.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, a.Milestones...)
		}
	}
	return out, nil
}

// FreezePurchase is the result of buying a streak freeze.
type FreezePurchase struct {
	Cost      int64 `json:"cost"`
	Available int   `json:"available"`
	Max       int   `json:"max"`
	Balance   int64 `json:"balance"`
}

// PurchaseFreeze spends XP balance on one streak freeze.
func (s *Service) PurchaseFreeze(ctx context.Context, id Identity) (*FreezePurchase, error) {
	var out *FreezePurchase
	err := s.mutate(ctx, id, func(t *txn) error {
		p := t.p
		fz, cost, err := streak.PurchaseFreeze(p.Balance(), freezeState(p), s.opts.Freeze)
		if err != nil {
			return err
		}
		p.FreezesAvailable = fz.Available
		p.SpentXP += cost
		if err := t.ledger(model.XPSourceFreeze, "streak freeze", -cost, 1, -cost, nil); err != nil {
			return err
		}
		t.emit(hook.OnFreezePurchased, map[string]interface{}{"cost": cost, "available": fz.Available})
		out = &FreezePurchase{Cost: cost, Available: fz.Available, Max: s.opts.Freeze.MaxFreezes, Balance: p.Balance()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PrestigeResult is the outcome of a prestige.
type PrestigeResult struct {
	Tier       int            `json:"tier"`
	Multiplier float64        `json:"multiplier"`
	Progress   level.Progress `json:"progress"`
}

// Prestige resets the cycle at max level in exchange for a permanent
// XP multiplier. Lifetime XP and skill points are kept.
func (s *Service) Prestige(ctx context.Context, id Identity) (*PrestigeResult, error) {
	var out *PrestigeResult
	err := s.mutate(ctx, id, func(t *txn) error {
		p := t.p
		lvl := s.opts.Curve.Level(p.CycleXP)
		tier, err := s.opts.Prestige.Prestige(lvl, s.opts.Curve.MaxLevel(), p.PrestigeTier)
		if err != nil {
			return err
		}
		p.PrestigeTier = tier
		p.CycleXP = 0
		p.Level = 1
		mult := s.opts.Prestige.Multiplier(tier)
		if err := t.ledger(model.XPSourcePrestige, fmt.Sprintf("prestige tier %d", tier), 0, mult, 0,
			map[string]interface{}{"tier": tier}); err != nil {
			return err
		}
		t.emit(hook.OnPrestige, map[string]interface{}{"tier": tier, "multiplier": mult})
		out = &PrestigeResult{Tier: tier, Multiplier: mult, Progress: s.opts.Curve.Progress(0)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func freezeState(p *model.Profile) streak.FreezeState {
	return streak.FreezeState{
		Available: p.FreezesAvailable,
		TotalUsed: p.FreezesUsed,
		LastUsed:  p.FreezeLastUsed,
	}
}
