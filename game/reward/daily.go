// Package reward holds the daily login bonus cycle and the prestige rules.
package reward

import (
	"fmt"
	"time"

	"github.com/framecraft/engagement/game"
	"github.com/framecraft/engagement/game/streak"
)

// CycleLength is the number of days in a bonus week.
const CycleLength = 7

// Schedule is the XP paid on each day of the cycle. The last day is the
// bonus day.
type Schedule [CycleLength]int64

// DefaultSchedule is used when no schedule is configured.
var DefaultSchedule = Schedule{10, 15, 20, 25, 30, 40, 100}

// NewSchedule builds a schedule from a config list.
func NewSchedule(amounts []int64) (Schedule, error) {
	var s Schedule
	if len(amounts) != CycleLength {
		return s, fmt.Errorf("reward: daily schedule needs %d entries, got %d", CycleLength, len(amounts))
	}
	for i, a := range amounts {
		if a < 0 {
			return s, fmt.Errorf("reward: daily schedule day %d is negative", i+1)
		}
		s[i] = a
	}
	return s, nil
}

// DailyState is the persisted bonus cycle. CurrentDay is 0 before the
// first claim and 1..7 afterwards. Bit i of Mask marks day i+1 claimed.
type DailyState struct {
	CurrentDay  int        `json:"current_day"`
	Mask        uint8      `json:"-"`
	LastClaim   *time.Time `json:"last_claim,omitempty"`
	TotalClaims int        `json:"total_claims"`
}

// Claimed returns the per-day claimed flags for the active week.
func (d DailyState) Claimed() [CycleLength]bool {
	var out [CycleLength]bool
	for i := range out {
		out[i] = d.Mask&(1<<uint(i)) != 0
	}
	return out
}

// ClaimResult is the outcome of a successful claim.
type ClaimResult struct {
	State      DailyState `json:"state"`
	Day        int        `json:"day"`
	XP         int64      `json:"xp"`
	Bonus      bool       `json:"bonus"`
	CycleReset bool       `json:"cycle_reset"`
}

// nextDay returns the cycle day a claim at today would land on, and
// whether the week restarts.
func nextDay(st DailyState, today time.Time) (day int, restart bool, err error) {
	if st.LastClaim == nil || st.CurrentDay == 0 {
		return 1, true, nil
	}
	diff := streak.DaysBetween(streak.Day(*st.LastClaim, time.UTC), today)
	switch {
	case diff <= 0:
		return 0, false, game.ErrAlreadyClaimed
	case diff == 1 && st.CurrentDay < CycleLength:
		return st.CurrentDay + 1, false, nil
	default:
		// completed week or a missed day
		return 1, true, nil
	}
}

// Claim pays today's bonus. At most one claim per calendar day in loc.
func (s Schedule) Claim(st DailyState, now time.Time, loc *time.Location) (ClaimResult, error) {
	today := streak.Day(now, loc)
	day, restart, err := nextDay(st, today)
	if err != nil {
		return ClaimResult{}, err
	}
	out := st
	if restart {
		out.Mask = 0
	}
	out.CurrentDay = day
	out.Mask |= 1 << uint(day-1)
	out.LastClaim = &today
	out.TotalClaims++
	return ClaimResult{
		State:      out,
		Day:        day,
		XP:         s[day-1],
		Bonus:      day == CycleLength,
		CycleReset: restart && st.CurrentDay != 0,
	}, nil
}

// Status describes the bonus screen at now.
type Status struct {
	CurrentDay   int                `json:"current_day"`
	Claimed      [CycleLength]bool  `json:"claimed"`
	CanClaim     bool               `json:"can_claim"`
	NextDay      int                `json:"next_day"`
	NextXP       int64              `json:"next_xp"`
	Schedule     [CycleLength]int64 `json:"schedule"`
	TotalClaims  int                `json:"total_claims"`
	LastClaimDay *time.Time         `json:"last_claim,omitempty"`
}

// Status reports what a claim at now would pay, without changing state.
// A week that would restart is shown with its flags cleared.
func (s Schedule) Status(st DailyState, now time.Time, loc *time.Location) Status {
	today := streak.Day(now, loc)
	out := Status{
		CurrentDay:   st.CurrentDay,
		Claimed:      st.Claimed(),
		Schedule:     s,
		TotalClaims:  st.TotalClaims,
		LastClaimDay: st.LastClaim,
	}
	day, restart, err := nextDay(st, today)
	if err != nil {
		// already claimed today: show tomorrow's reward
		out.NextDay = st.CurrentDay%CycleLength + 1
		out.NextXP = s[out.NextDay-1]
		return out
	}
	if restart {
		out.Claimed = [CycleLength]bool{}
		out.CurrentDay = 0
	}
	out.CanClaim = true
	out.NextDay = day
	out.NextXP = s[day-1]
	return out
}
