package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/framecraft/engagement/api/ws"
	"github.com/framecraft/engagement/game/progression"
	"github.com/framecraft/engagement/plugin/hook"
	"github.com/framecraft/engagement/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestFlow_NewPhotographerFirstWeek(t *testing.T) {
	ts := NewTestServer(t, monday)
	alice := ts.Token(t, "studio-1", "alice")

	live := ts.ConnectWS(t, alice)
	require.Equal(t, ws.TypeConnected, live.Next(3*time.Second).Type)

	// day one: log in, first level, onboarding quest
	code, env := ts.PostJSON(t, "/api/v1/progression/activity", map[string]string{"kind": "login"}, alice)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = ts.PostJSON(t, "/api/v1/progression/xp", map[string]interface{}{"amount": 150, "source": "manual"}, alice)
	require.Equal(t, http.StatusOK, code, env.Error)
	ev := live.WaitFor(hook.OnLevelUp, 3*time.Second)
	assert.Equal(t, "studio-1", ev.OrgID)

	code, env = ts.PostJSON(t, "/api/v1/quests/welcome_aboard/start", nil, alice)
	require.Equal(t, http.StatusOK, code, env.Error)
	for _, obj := range []string{"add_client", "book_session"} {
		code, env = ts.PostJSON(t, "/api/v1/quests/welcome_aboard/progress",
			map[string]string{"objective": obj}, alice)
		require.Equal(t, http.StatusOK, code, env.Error)
	}
	var up progression.QuestUpdate
	env.Decode(t, &up)
	require.True(t, up.Completed)
	ev = live.WaitFor(hook.OnQuestCompleted, 3*time.Second)
	assert.Equal(t, "alice", ev.UserID)

	code, env = ts.PostJSON(t, "/api/v1/skills/smart_invoicing/unlock", nil, alice)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = ts.PostJSON(t, "/api/v1/daily-bonus/claim", nil, alice)
	require.Equal(t, http.StatusOK, code, env.Error)
	var claim progression.DailyClaim
	env.Decode(t, &claim)
	assert.Equal(t, 1, claim.Day)

	// day two: the streak and the daily cycle both advance
	ts.Clock.Advance(24 * time.Hour)
	code, env = ts.PostJSON(t, "/api/v1/progression/activity", map[string]string{"kind": "login"}, alice)
	require.Equal(t, http.StatusOK, code, env.Error)
	var act progression.ActivityResult
	env.Decode(t, &act)
	assert.Equal(t, 2, act.Streak.Current)

	code, env = ts.PostJSON(t, "/api/v1/daily-bonus/claim", nil, alice)
	require.Equal(t, http.StatusOK, code, env.Error)
	env.Decode(t, &claim)
	assert.Equal(t, 2, claim.Day)

	code, env = ts.Get(t, "/api/v1/progression", alice)
	require.Equal(t, http.StatusOK, code, env.Error)
	var view progression.ProfileView
	env.Decode(t, &view)
	assert.GreaterOrEqual(t, view.Progress.Level, 2)
	assert.Equal(t, 2, view.Streaks["login"].Current)
	assert.Equal(t, 1, view.SkillPoints.Spent)
}

func TestFlow_LeaderboardIsolationAndAdmin(t *testing.T) {
	ts := NewTestServer(t, monday)
	for user, amt := range map[string]int{"alice": 300, "bob": 700} {
		code, env := ts.PostJSON(t, "/api/v1/progression/xp", map[string]int{"amount": amt}, ts.Token(t, "studio-1", user))
		require.Equal(t, http.StatusOK, code, env.Error)
	}
	code, env := ts.PostJSON(t, "/api/v1/progression/xp", map[string]int{"amount": 5000}, ts.Token(t, "studio-2", "zed"))
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = ts.Get(t, "/api/v1/leaderboard", ts.Token(t, "studio-1", "alice"))
	require.Equal(t, http.StatusOK, code, env.Error)
	var board progression.Leaderboard
	env.Decode(t, &board)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "bob", board.Entries[0].UserID)
	assert.Equal(t, int64(2), board.MyRank)

	code, _ = ts.Get(t, "/api/admin/metrics", ts.Token(t, "studio-1", "alice"))
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = ts.Admin(t, http.MethodPost, "/api/admin/scheduler/quest_rearm/run")
	require.Equal(t, http.StatusOK, code, env.Error)
	var info scheduler.TaskInfo
	env.Decode(t, &info)
	assert.Equal(t, int64(1), info.Runs)
	assert.Empty(t, info.LastError)

	code, env = ts.Admin(t, http.MethodPost, "/api/admin/leaderboard/refresh")
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.JSONEq(t, `{"profiles":3}`, string(env.Data))
}

func TestFlow_RevokedTokenLosesAccess(t *testing.T) {
	ts := NewTestServer(t, monday)
	tok := ts.Token(t, "studio-1", "alice")

	code, _ := ts.Get(t, "/api/v1/progression", tok)
	require.Equal(t, http.StatusOK, code)

	code, env := ts.send(t, http.MethodPost, "/api/admin/tokens/revoke", map[string]string{"token": tok}, "X-Admin-Key", AdminKey)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = ts.Get(t, "/api/v1/progression", tok)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "session_expired", env.Code)
}
