package progression

import (
	"context"
	"errors"
	"fmt"

	"github.com/framecraft/engagement/game/reward"
	"github.com/framecraft/engagement/model"
	"github.com/framecraft/engagement/plugin/hook"
	"gorm.io/gorm"
)

// DailyClaim is the result of claiming the daily bonus.
type DailyClaim struct {
	Day        int    `json:"day"`
	XP         int64  `json:"xp"`
	Bonus      bool   `json:"bonus"`
	CycleReset bool   `json:"cycle_reset"`
	Award      *Award `json:"award"`
}

func loadDaily(db *gorm.DB, profileID int64) (*model.DailyBonus, bool, error) {
	row := &model.DailyBonus{ProfileID: profileID}
	if profileID == 0 {
		return row, false, nil
	}
	err := db.Where("profile_id = ?", profileID).First(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.DailyBonus{ProfileID: profileID}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("progression: load daily bonus: %w", err)
	}
	return row, true, nil
}

func dailyState(row *model.DailyBonus) reward.DailyState {
	return reward.DailyState{
		CurrentDay:  row.CurrentDay,
		Mask:        row.ClaimedMask,
		LastClaim:   row.LastClaimAt,
		TotalClaims: row.TotalClaims,
	}
}

// DailyStatus reports the bonus week and whether today can be claimed.
func (s *Service) DailyStatus(ctx context.Context, id Identity) (*reward.Status, error) {
	p, err := s.readProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	row, _, err := loadDaily(s.db.WithContext(ctx), p.ID)
	if err != nil {
		return nil, err
	}
	st := s.opts.Schedule.Status(dailyState(row), s.now(), s.opts.Location)
	return &st, nil
}

// ClaimDaily pays today's bonus. A second claim on the same calendar day
// fails with game.ErrAlreadyClaimed, including concurrent claims.
func (s *Service) ClaimDaily(ctx context.Context, id Identity) (*DailyClaim, error) {
	var out *DailyClaim
	err := s.mutate(ctx, id, func(t *txn) error {
		row, found, err := loadDaily(t.tx, t.p.ID)
		if err != nil {
			return err
		}
		res, err := s.opts.Schedule.Claim(dailyState(row), t.now, s.opts.Location)
		if err != nil {
			return err
		}
		row.CurrentDay = res.State.CurrentDay
		row.ClaimedMask = res.State.Mask
		row.LastClaimAt = res.State.LastClaim
		row.TotalClaims = res.State.TotalClaims
		if found {
			err = t.tx.Save(row).Error
		} else {
			err = t.tx.Create(row).Error
		}
		if err != nil {
			return fmt.Errorf("progression: save daily bonus: %w", err)
		}

		out = &DailyClaim{Day: res.Day, XP: res.XP, Bonus: res.Bonus, CycleReset: res.CycleReset}
		if res.XP > 0 {
			if out.Award, err = t.credit(res.XP, model.XPSourceDaily, fmt.Sprintf("day %d", res.Day)); err != nil {
				return err
			}
		}
		t.emit(hook.OnDailyBonus, map[string]interface{}{"day": res.Day, "xp": res.XP, "bonus": res.Bonus})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
