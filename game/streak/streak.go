// Package streak tracks consecutive-day activity streaks and the freeze
// pool that forgives missed days.
//
// Days are calendar days in the user's location. A gap of k missed days is
// bridged when at least k freezes are available; all k are consumed at once.
// Otherwise the streak restarts at 1 and no freeze is spent.
package streak

import (
	"time"

	"github.com/framecraft/engagement/game"
)

// Kind names a streak family.
type Kind string

const (
	KindLogin    Kind = "login"
	KindDelivery Kind = "delivery"
)

// Kinds lists every tracked streak kind.
var Kinds = []Kind{KindLogin, KindDelivery}

// ParseKind validates a kind received from a caller.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLogin, KindDelivery:
		return Kind(s), nil
	}
	return "", game.ErrInvalidStreakKind
}

// State is one streak as persisted on the profile.
type State struct {
	Current      int        `json:"current"`
	Longest      int        `json:"longest"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// FreezeState is the shared freeze pool.
type FreezeState struct {
	Available int        `json:"available"`
	TotalUsed int        `json:"total_used"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// Policy configures freeze purchases.
type Policy struct {
	MaxFreezes int
	FreezeCost int64
}

// Outcome says what an activity did to the streak.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeExtended  Outcome = "extended"
	OutcomeFrozen    Outcome = "frozen"
	OutcomeReset     Outcome = "reset"
)

// Result is the new streak and freeze state after one activity.
type Result struct {
	Streak      State       `json:"streak"`
	Freeze      FreezeState `json:"freeze"`
	Outcome     Outcome     `json:"outcome"`
	FreezesUsed int         `json:"freezes_used"`
}

// Day truncates t to its calendar date in loc. The result is midnight UTC
// of that date so day arithmetic never sees DST shifts.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b. Both must
// come from Day.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// Advance applies an activity at `at` to the streak.
// Activity on an earlier day than the last recorded one fails with
// game.ErrStaleActivity and changes nothing.
func Advance(st State, fz FreezeState, at time.Time, loc *time.Location) (Result, error) {
	today := Day(at, loc)
	res := Result{Streak: st, Freeze: fz}

	if st.LastActivity == nil || st.Current == 0 {
		res.Streak.Current = 1
		res.Outcome = OutcomeStarted
	} else {
		last := Day(*st.LastActivity, time.UTC)
		diff := DaysBetween(last, today)
		switch {
		case diff < 0:
			return Result{}, game.ErrStaleActivity
		case diff == 0:
			res.Outcome = OutcomeUnchanged
			return res, nil
		case diff == 1:
			res.Streak.Current++
			res.Outcome = OutcomeExtended
		default:
			missed := diff - 1
			if fz.Available >= missed {
				res.Freeze.Available -= missed
				res.Freeze.TotalUsed += missed
				used := today
				res.Freeze.LastUsed = &used
				res.FreezesUsed = missed
				res.Streak.Current++
				res.Outcome = OutcomeFrozen
			} else {
				res.Streak.Current = 1
				res.Outcome = OutcomeReset
			}
		}
	}

	if res.Streak.Current > res.Streak.Longest {
		res.Streak.Longest = res.Streak.Current
	}
	res.Streak.LastActivity = &today
	return res, nil
}

// Current returns the streak as it stands at `now` without recording
// activity: a streak whose gap can no longer be bridged reads as 0.
func Current(st State, fz FreezeState, now time.Time, loc *time.Location) int {
	if st.LastActivity == nil {
		return 0
	}
	diff := DaysBetween(Day(*st.LastActivity, time.UTC), Day(now, loc))
	if diff <= 1 {
		return st.Current
	}
	// today's activity would still be bridged if every missed day is covered
	if fz.Available >= diff-1 {
		return st.Current
	}
	return 0
}

// PurchaseFreeze adds one freeze to the pool if the cap allows and the
// balance covers the cost. It returns the new pool and the XP to debit.
func PurchaseFreeze(balance int64, fz FreezeState, p Policy) (FreezeState, int64, error) {
	if fz.Available >= p.MaxFreezes {
		return fz, 0, game.ErrFreezeCapReached
	}
	if balance < p.FreezeCost {
		return fz, 0, game.ErrInsufficientFunds
	}
	fz.Available++
	return fz, p.FreezeCost, nil
}
