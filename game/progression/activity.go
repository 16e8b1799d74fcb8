package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/framecraft/engagement/game"
	"github.com/framecraft/engagement/game/milestone"
	"github.com/framecraft/engagement/game/quest"
	"github.com/framecraft/engagement/game/streak"
	"github.com/framecraft/engagement/model"
	"github.com/framecraft/engagement/plugin/hook"
	"gorm.io/gorm"
)

// ActivityResult is the effect of one login or delivery activity.
type ActivityResult struct {
	Kind        streak.Kind        `json:"kind"`
	Outcome     streak.Outcome     `json:"outcome"`
	Streak      streak.State       `json:"streak"`
	Freeze      streak.FreezeState `json:"freeze"`
	FreezesUsed int                `json:"freezes_used"`
	Milestones  []AwardedMilestone `json:"milestones,omitempty"`
}

// RecordActivity applies a login or delivery activity happening now to the
// matching streak. The day is always taken from the service clock.
func (s *Service) RecordActivity(ctx context.Context, id Identity, kind string) (*ActivityResult, error) {
	return s.applyActivity(ctx, id, kind, time.Time{})
}

// BackfillActivity replays an activity that happened at `at`, for imports
// from the studio backend. `at` may not lie in the future nor before the
// streak's last recorded day.
func (s *Service) BackfillActivity(ctx context.Context, id Identity, kind string, at time.Time) (*ActivityResult, error) {
	if at.IsZero() {
		return nil, game.ErrInvalidActivityTime
	}
	return s.applyActivity(ctx, id, kind, at)
}

func (s *Service) applyActivity(ctx context.Context, id Identity, kind string, at time.Time) (*ActivityResult, error) {
	k, err := streak.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	var out *ActivityResult
	err = s.mutate(ctx, id, func(t *txn) error {
		when := at
		if when.IsZero() {
			when = t.now
		} else if when.After(t.now) {
			return game.ErrInvalidActivityTime
		}
		p := t.p
		st := streakState(p, k)
		res, err := streak.Advance(st, freezeState(p), when, s.opts.Location)
		if err != nil {
			return err
		}
		setStreak(p, k, res.Streak)
		p.FreezesAvailable = res.Freeze.Available
		p.FreezesUsed = res.Freeze.TotalUsed
		p.FreezeLastUsed = res.Freeze.LastUsed

		out = &ActivityResult{
			Kind: k, Outcome: res.Outcome, Streak: res.Streak,
			Freeze: res.Freeze, FreezesUsed: res.FreezesUsed,
		}
		data := map[string]interface{}{"kind": string(k), "current": res.Streak.Current, "longest": res.Streak.Longest}
		switch res.Outcome {
		case streak.OutcomeUnchanged:
			return nil
		case streak.OutcomeExtended:
			t.emit(hook.OnStreakExtended, data)
		case streak.OutcomeFrozen:
			data["freezes_used"] = res.FreezesUsed
			data["freezes_left"] = res.Freeze.Available
			t.emit(hook.OnStreakFrozen, data)
		case streak.OutcomeReset:
			data["previous"] = st.Current
			t.emit(hook.OnStreakReset, data)
		}
		ms, err := t.milestones(streakCategory(k), int64(st.Current), int64(res.Streak.Current))
		if err != nil {
			return err
		}
		out.Milestones = ms
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StatResult is the effect of a stat update.
type StatResult struct {
	Category       string             `json:"category"`
	Value          int64              `json:"value"`
	Milestones     []AwardedMilestone `json:"milestones,omitempty"`
	Quest          *quest.View        `json:"quest,omitempty"`
	QuestCompleted bool               `json:"quest_completed"`
}

// RecordStat adds delta to a counter category, awards crossed milestones
// and advances the active quest's objectives bound to the same action.
func (s *Service) RecordStat(ctx context.Context, id Identity, category string, delta int64) (*StatResult, error) {
	c := milestone.Category(category)
	if !c.Counter() {
		return nil, game.ErrInvalidCategory
	}
	if delta <= 0 || (s.opts.MaxAward > 0 && delta > s.opts.MaxAward) {
		return nil, game.ErrInvalidAmount
	}
	var out *StatResult
	err := s.mutate(ctx, id, func(t *txn) error {
		before, after, err := t.bumpCounter(category, delta)
		if err != nil {
			return err
		}
		out = &StatResult{Category: category, Value: after}
		ms, err := t.milestones(c, before, after)
		if err != nil {
			return err
		}
		out.Milestones = ms

		row, err := t.activeQuest()
		if err != nil || row == nil {
			return err
		}
		def, err := s.opts.Catalog.Quests.Get(row.QuestID)
		if err != nil {
			// quest removed from the catalog; leave the row alone
			return nil
		}
		inst, err := instanceFromRow(row)
		if err != nil {
			return err
		}
		res, matched := quest.AdvanceAction(def, inst, category, delta, t.now)
		if !matched {
			return nil
		}
		if err := t.saveQuest(row, inst); err != nil {
			return err
		}
		if res.Completed {
			out.QuestCompleted = true
			if _, err := t.completeQuest(def, res); err != nil {
				return err
			}
		}
		v := quest.NewView(def, inst)
		out.Quest = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *txn) bumpCounter(category string, delta int64) (before, after int64, err error) {
	var sc model.StatCounter
	err = t.tx.Where("profile_id = ? AND category = ?", t.p.ID, category).First(&sc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		sc = model.StatCounter{ProfileID: t.p.ID, Category: category, Value: delta}
		if err := t.tx.Create(&sc).Error; err != nil {
			return 0, 0, fmt.Errorf("progression: create counter: %w", err)
		}
		return 0, delta, nil
	case err != nil:
		return 0, 0, fmt.Errorf("progression: load counter: %w", err)
	}
	before = sc.Value
	if err := t.tx.Model(&sc).Update("value", before+delta).Error; err != nil {
		return 0, 0, fmt.Errorf("progression: update counter: %w", err)
	}
	return before, before + delta, nil
}

func streakState(p *model.Profile, k streak.Kind) streak.State {
	if k == streak.KindDelivery {
		return streak.State{Current: p.DeliveryStreak, Longest: p.DeliveryStreakBest, LastActivity: p.LastDeliveryDay}
	}
	return streak.State{Current: p.LoginStreak, Longest: p.LoginStreakBest, LastActivity: p.LastLoginDay}
}

func setStreak(p *model.Profile, k streak.Kind, st streak.State) {
	if k == streak.KindDelivery {
		p.DeliveryStreak, p.DeliveryStreakBest, p.LastDeliveryDay = st.Current, st.Longest, st.LastActivity
		return
	}
	p.LoginStreak, p.LoginStreakBest, p.LastLoginDay = st.Current, st.Longest, st.LastActivity
}

func streakCategory(k streak.Kind) milestone.Category {
	if k == streak.KindDelivery {
		return milestone.CategoryDeliveryStreak
	}
	return milestone.CategoryLoginStreak
}
