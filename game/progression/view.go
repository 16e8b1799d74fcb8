package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/framecraft/engagement/game/level"
	"github.com/framecraft/engagement/game/milestone"
	"github.com/framecraft/engagement/game/streak"
	"github.com/framecraft/engagement/model"
)

// StreakView is one streak as shown on the dashboard.
type StreakView struct {
	Current      int        `json:"current"`
	Longest      int        `json:"longest"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	AtRisk       bool       `json:"at_risk"`
}

// FreezeView is the shared freeze pool.
type FreezeView struct {
	Available int        `json:"available"`
	Max       int        `json:"max"`
	Used      int        `json:"used"`
	Cost      int64      `json:"cost"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	CanBuy    bool       `json:"can_buy"`
}

// PointsView is the skill point balance.
type PointsView struct {
	Available int `json:"available"`
	Spent     int `json:"spent"`
	Granted   int `json:"granted"`
}

// ProfileView is the progression dashboard.
type ProfileView struct {
	OrgID        string                `json:"org_id"`
	UserID       string                `json:"user_id"`
	Progress     level.Progress        `json:"progress"`
	LifetimeXP   int64                 `json:"lifetime_xp"`
	CycleXP      int64                 `json:"cycle_xp"`
	Balance      int64                 `json:"balance"`
	PrestigeTier int                   `json:"prestige_tier"`
	Multiplier   float64               `json:"multiplier"`
	CanPrestige  bool                  `json:"can_prestige"`
	Streaks      map[string]StreakView `json:"streaks"`
	Freezes      FreezeView            `json:"freezes"`
	SkillPoints  PointsView            `json:"skill_points"`
}

// GetProfile returns the user's dashboard. A user with no activity yet
// sees a level 1 profile; nothing is written.
func (s *Service) GetProfile(ctx context.Context, id Identity) (*ProfileView, error) {
	p, err := s.readProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.profileView(p, s.now()), nil
}

func (s *Service) profileView(p *model.Profile, now time.Time) *ProfileView {
	lvl := s.opts.Curve.Level(p.CycleXP)
	fz := freezeState(p)
	v := &ProfileView{
		OrgID:        p.OrgID,
		UserID:       p.UserID,
		Progress:     s.opts.Curve.ProgressAt(p.CycleXP, lvl),
		LifetimeXP:   p.LifetimeXP,
		CycleXP:      p.CycleXP,
		Balance:      p.Balance(),
		PrestigeTier: p.PrestigeTier,
		Multiplier:   s.opts.Prestige.Multiplier(p.PrestigeTier),
		CanPrestige:  s.opts.Prestige.CanPrestige(lvl, s.opts.Curve.MaxLevel(), p.PrestigeTier) == nil,
		Streaks:      make(map[string]StreakView, len(streak.Kinds)),
		Freezes: FreezeView{
			Available: p.FreezesAvailable,
			Max:       s.opts.Freeze.MaxFreezes,
			Used:      p.FreezesUsed,
			Cost:      s.opts.Freeze.FreezeCost,
			LastUsed:  p.FreezeLastUsed,
		},
		SkillPoints: PointsView{
			Available: p.SkillPointsGranted - p.SkillPointsSpent,
			Spent:     p.SkillPointsSpent,
			Granted:   p.SkillPointsGranted,
		},
	}
	_, _, buyErr := streak.PurchaseFreeze(p.Balance(), fz, s.opts.Freeze)
	v.Freezes.CanBuy = buyErr == nil

	today := streak.Day(now, s.opts.Location)
	for _, k := range streak.Kinds {
		st := streakState(p, k)
		sv := StreakView{
			Current:      streak.Current(st, fz, now, s.opts.Location),
			Longest:      st.Longest,
			LastActivity: st.LastActivity,
		}
		// no activity yet today on a live streak
		sv.AtRisk = sv.Current > 0 && st.LastActivity != nil && st.LastActivity.Before(today)
		v.Streaks[string(k)] = sv
	}
	return v
}

// MilestoneView is one catalog milestone with the user's standing.
type MilestoneView struct {
	ID        string     `json:"id"`
	Category  string     `json:"category"`
	Title     string     `json:"title"`
	Threshold int64      `json:"threshold"`
	RewardXP  int64      `json:"reward_xp"`
	Current   int64      `json:"current"`
	Awarded   bool       `json:"awarded"`
	AwardedAt *time.Time `json:"awarded_at,omitempty"`
}

var milestoneOrder = []milestone.Category{
	milestone.CategoryDeliveries,
	milestone.CategoryBookings,
	milestone.CategoryClients,
	milestone.CategoryInvoicesPaid,
	milestone.CategoryContractsSigned,
	milestone.CategoryLoginStreak,
	milestone.CategoryDeliveryStreak,
	milestone.CategoryLevel,
}

// ListMilestones returns every milestone grouped by category, marking
// those already awarded.
func (s *Service) ListMilestones(ctx context.Context, id Identity) ([]MilestoneView, error) {
	p, err := s.readProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	awarded := map[string]time.Time{}
	values := map[milestone.Category]int64{
		milestone.CategoryLoginStreak:    int64(p.LoginStreakBest),
		milestone.CategoryDeliveryStreak: int64(p.DeliveryStreakBest),
		milestone.CategoryLevel:          int64(s.opts.Curve.Level(p.CycleXP)),
	}
	if p.ID != 0 {
		var recs []model.MilestoneRecord
		if err := db.Where("profile_id = ?", p.ID).Find(&recs).Error; err != nil {
			return nil, fmt.Errorf("progression: load milestones: %w", err)
		}
		for _, r := range recs {
			awarded[r.MilestoneID] = r.AwardedAt
		}
		var counters []model.StatCounter
		if err := db.Where("profile_id = ?", p.ID).Find(&counters).Error; err != nil {
			return nil, fmt.Errorf("progression: load counters: %w", err)
		}
		for _, c := range counters {
			values[milestone.Category(c.Category)] = c.Value
		}
	}

	out := make([]MilestoneView, 0, s.opts.Catalog.Milestones.Len())
	for _, c := range milestoneOrder {
		for _, m := range s.opts.Catalog.Milestones.All(c) {
			v := MilestoneView{
				ID: m.ID, Category: string(m.Category), Title: m.Title,
				Threshold: m.Threshold, RewardXP: m.RewardXP, Current: values[c],
			}
			if at, ok := awarded[m.ID]; ok {
				at := at
				v.Awarded = true
				v.AwardedAt = &at
			}
			out = append(out, v)
		}
	}
	return out, nil
}
