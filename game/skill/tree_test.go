package skill

import (
	"testing"

	"github.com/framecraft/engagement/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func abForest(t *testing.T) *Forest {
	t.Helper()
	f, err := NewForest([]*Skill{
		{ID: "A", Tree: "business", Name: "Invoicing basics", Cost: 1},
		{ID: "B", Tree: "business", Name: "Payment plans", Cost: 2, Prerequisites: []string{"A"}},
		{ID: "C", Tree: "craft", Name: "Presets", Cost: 1},
	})
	require.NoError(t, err)
	return f
}

func nodeByID(v View, id string) NodeView {
	for _, tr := range v.Trees {
		for _, n := range tr.Skills {
			if n.ID == id {
				return n
			}
		}
	}
	return NodeView{}
}

func TestNewForest_Invalid(t *testing.T) {
	cases := map[string][]*Skill{
		"missing tree":   {{ID: "a", Cost: 1}},
		"zero cost":      {{ID: "a", Tree: "t"}},
		"duplicate":      {{ID: "a", Tree: "t", Cost: 1}, {ID: "a", Tree: "t", Cost: 1}},
		"unknown prereq": {{ID: "a", Tree: "t", Cost: 1, Prerequisites: []string{"z"}}},
		"cycle": {
			{ID: "a", Tree: "t", Cost: 1, Prerequisites: []string{"c"}},
			{ID: "b", Tree: "t", Cost: 1, Prerequisites: []string{"a"}},
			{ID: "c", Tree: "t", Cost: 1, Prerequisites: []string{"b"}},
		},
	}
	for name, skills := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewForest(skills)
			assert.Error(t, err)
		})
	}
}

func TestForest_Trees(t *testing.T) {
	f := abForest(t)
	assert.Equal(t, []string{"business", "craft"}, f.Trees())
	assert.Equal(t, 3, f.Len())
}

// A(1) then B(2, needs A) with 3 points; reset refunds all 3 and B is
// no longer unlockable.
func TestUnlockThenReset_Scenario(t *testing.T) {
	f := abForest(t)
	st := Grant(State{}, 3)

	res, err := f.Unlock(st, "A")
	require.NoError(t, err)
	assert.Contains(t, res.NewlyUnlockable, "B")
	st = res.State

	res, err = f.Unlock(st, "B")
	require.NoError(t, err)
	st = res.State
	assert.Equal(t, 0, st.Available())
	assert.Equal(t, 3, st.Spent)

	st, refunded, err := Reset(st)
	require.NoError(t, err)
	assert.Equal(t, 3, refunded)
	assert.Equal(t, 3, st.Available())
	assert.Equal(t, 0, st.Spent)
	assert.Empty(t, st.Unlocked)

	v := f.View(st)
	assert.False(t, nodeByID(v, "B").CanUnlock)
	assert.True(t, nodeByID(v, "A").CanUnlock)
	for _, tr := range v.Trees {
		assert.Equal(t, 0, tr.Percent)
	}
}

func TestUnlock_ErrorOrder(t *testing.T) {
	f := abForest(t)

	_, err := f.Unlock(Grant(State{}, 5), "nope")
	assert.ErrorIs(t, err, game.ErrSkillNotFound)
	assert.Equal(t, game.KindNotFound, game.KindOf(err))

	// prerequisite unmet and unaffordable: prerequisites reported first
	_, err = f.Unlock(State{}, "B")
	assert.ErrorIs(t, err, game.ErrPrerequisitesNotMet)

	_, err = f.Unlock(State{}, "A")
	assert.ErrorIs(t, err, game.ErrInsufficientPoints)

	res, err := f.Unlock(Grant(State{}, 5), "A")
	require.NoError(t, err)
	_, err = f.Unlock(res.State, "A")
	assert.ErrorIs(t, err, game.ErrAlreadyUnlocked)
	assert.Equal(t, game.KindStateConflict, game.KindOf(err))
}

func TestUnlock_DoesNotMutateInput(t *testing.T) {
	f := abForest(t)
	st := Grant(State{Unlocked: map[string]bool{}}, 2)
	_, err := f.Unlock(st, "A")
	require.NoError(t, err)
	assert.Empty(t, st.Unlocked)
	assert.Equal(t, 0, st.Spent)
}

func TestReset_NothingSpent(t *testing.T) {
	_, _, err := Reset(Grant(State{}, 4))
	assert.ErrorIs(t, err, game.ErrNothingToReset)
}

func TestView_Completion(t *testing.T) {
	f := abForest(t)
	res, err := f.Unlock(Grant(State{}, 1), "C")
	require.NoError(t, err)
	v := f.View(res.State)
	require.Len(t, v.Trees, 2)
	assert.Equal(t, 0, v.Trees[0].Percent)
	assert.Equal(t, 100, v.Trees[1].Percent)
	assert.True(t, nodeByID(v, "C").Unlocked)
	assert.False(t, nodeByID(v, "A").CanUnlock, "no points left")
}

func TestPointConservation(t *testing.T) {
	f := abForest(t)
	st := State{}
	ops := []string{"grant2", "A", "B", "grant3", "B", "C", "reset", "A", "grant1", "B", "reset", "reset", "C"}
	for _, op := range ops {
		switch op {
		case "grant1":
			st = Grant(st, 1)
		case "grant2":
			st = Grant(st, 2)
		case "grant3":
			st = Grant(st, 3)
		case "reset":
			if next, _, err := Reset(st); err == nil {
				st = next
			}
		default:
			if res, err := f.Unlock(st, op); err == nil {
				st = res.State
			}
		}
		assert.Equal(t, st.Granted, st.Spent+st.Available(), "after %s", op)
		assert.GreaterOrEqual(t, st.Available(), 0, "after %s", op)
		spent := 0
		for id := range st.Unlocked {
			sk, _ := f.Get(id)
			spent += sk.Cost
		}
		assert.Equal(t, st.Spent, spent, "after %s", op)
	}
}
