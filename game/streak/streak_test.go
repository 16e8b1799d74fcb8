package streak

import (
	"testing"
	"time"

	"github.com/framecraft/engagement/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func activeOn(n, current, longest int) State {
	d := Day(day(n), time.UTC)
	return State{Current: current, Longest: longest, LastActivity: &d}
}

// ---- Advance ----

func TestAdvance_FirstActivity(t *testing.T) {
	res, err := Advance(State{}, FreezeState{}, day(0), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, res.Outcome)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, 1, res.Streak.Longest)
	require.NotNil(t, res.Streak.LastActivity)
	assert.Equal(t, Day(day(0), time.UTC), *res.Streak.LastActivity)
}

func TestAdvance_SameDayIdempotent(t *testing.T) {
	st := activeOn(0, 4, 6)
	first, err := Advance(st, FreezeState{Available: 1}, day(0).Add(3*time.Hour), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, first.Outcome)

	second, err := Advance(first.Streak, first.Freeze, day(0).Add(5*time.Hour), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 4, second.Streak.Current)
	assert.Equal(t, 1, second.Freeze.Available)
}

func TestAdvance_NextDayExtends(t *testing.T) {
	res, err := Advance(activeOn(0, 5, 5), FreezeState{}, day(1), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExtended, res.Outcome)
	assert.Equal(t, 6, res.Streak.Current)
	assert.Equal(t, 6, res.Streak.Longest)
}

func TestAdvance_LongestKeptWhenBelow(t *testing.T) {
	res, err := Advance(activeOn(0, 2, 9), FreezeState{}, day(1), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Streak.Current)
	assert.Equal(t, 9, res.Streak.Longest)
}

func TestAdvance_GapWithoutFreezeResets(t *testing.T) {
	res, err := Advance(activeOn(0, 5, 5), FreezeState{}, day(2), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReset, res.Outcome)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, 5, res.Streak.Longest)
}

func TestAdvance_StaleActivityRejected(t *testing.T) {
	_, err := Advance(activeOn(3, 2, 2), FreezeState{}, day(1), time.UTC)
	assert.ErrorIs(t, err, game.ErrStaleActivity)
}

func TestAdvance_UsesLocationForCalendarDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	last := Day(time.Date(2026, 3, 1, 10, 0, 0, 0, tokyo), tokyo)
	st := State{Current: 1, Longest: 1, LastActivity: &last}
	// 2026-03-01 20:00 UTC is already 2026-03-02 in Tokyo
	res, err := Advance(st, FreezeState{}, time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC), tokyo)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExtended, res.Outcome)
	assert.Equal(t, 2, res.Streak.Current)
}

// Two freezes, one missed day: one freeze spent and the streak continues.
// A later two-day gap with only one freeze left resets and spends nothing.
func TestAdvance_FreezeScenario(t *testing.T) {
	st := activeOn(0, 10, 10)
	fz := FreezeState{Available: 2}

	res, err := Advance(st, fz, day(2), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFrozen, res.Outcome)
	assert.Equal(t, 11, res.Streak.Current)
	assert.Equal(t, 1, res.Freeze.Available)
	assert.Equal(t, 1, res.Freeze.TotalUsed)
	assert.Equal(t, 1, res.FreezesUsed)
	require.NotNil(t, res.Freeze.LastUsed)
	assert.Equal(t, Day(day(2), time.UTC), *res.Freeze.LastUsed)

	res, err = Advance(res.Streak, res.Freeze, day(5), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReset, res.Outcome)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, 1, res.Freeze.Available)
	assert.Equal(t, 1, res.Freeze.TotalUsed)
	assert.Equal(t, 11, res.Streak.Longest)
}

func TestAdvance_FreezesStackAcrossMultiDayGap(t *testing.T) {
	res, err := Advance(activeOn(0, 3, 3), FreezeState{Available: 2}, day(3), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFrozen, res.Outcome)
	assert.Equal(t, 4, res.Streak.Current)
	assert.Equal(t, 0, res.Freeze.Available)
	assert.Equal(t, 2, res.Freeze.TotalUsed)
	assert.Equal(t, 2, res.FreezesUsed)
}

// ---- Current ----

func TestCurrent(t *testing.T) {
	st := activeOn(0, 7, 7)
	assert.Equal(t, 0, Current(State{}, FreezeState{}, day(0), time.UTC))
	assert.Equal(t, 7, Current(st, FreezeState{}, day(1), time.UTC))
	assert.Equal(t, 0, Current(st, FreezeState{}, day(2), time.UTC))
	assert.Equal(t, 7, Current(st, FreezeState{Available: 1}, day(2), time.UTC))
}

// ---- PurchaseFreeze ----

func TestPurchaseFreeze(t *testing.T) {
	p := Policy{MaxFreezes: 2, FreezeCost: 50}

	fz, cost, err := PurchaseFreeze(120, FreezeState{}, p)
	require.NoError(t, err)
	assert.Equal(t, 1, fz.Available)
	assert.Equal(t, int64(50), cost)

	_, _, err = PurchaseFreeze(49, fz, p)
	assert.ErrorIs(t, err, game.ErrInsufficientFunds)

	_, _, err = PurchaseFreeze(1000, FreezeState{Available: 2}, p)
	assert.ErrorIs(t, err, game.ErrFreezeCapReached)
}

// Any interleaving of purchases and gap bridging keeps the pool in [0, max].
func TestFreezeInvariant(t *testing.T) {
	p := Policy{MaxFreezes: 3, FreezeCost: 10}
	st := State{}
	fz := FreezeState{}
	balance := int64(1000)
	gaps := []int{1, 3, 1, 2, 4, 1, 1, 5, 2, 3}
	n := 0
	for i, g := range gaps {
		for j := 0; j <= i%4; j++ {
			next, cost, err := PurchaseFreeze(balance, fz, p)
			if err == nil {
				balance -= cost
				fz = next
			}
			assert.LessOrEqual(t, fz.Available, p.MaxFreezes)
		}
		n += g
		res, err := Advance(st, fz, day(n), time.UTC)
		require.NoError(t, err)
		st, fz = res.Streak, res.Freeze
		assert.GreaterOrEqual(t, fz.Available, 0)
		assert.LessOrEqual(t, fz.Available, p.MaxFreezes)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("delivery")
	require.NoError(t, err)
	assert.Equal(t, KindDelivery, k)
	_, err = ParseKind("bogus")
	assert.ErrorIs(t, err, game.ErrInvalidStreakKind)
}
