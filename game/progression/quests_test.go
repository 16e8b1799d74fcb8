package progression

import (
	"context"
	"testing"
	"time"

	"github.com/framecraft/engagement/game"
	"github.com/framecraft/engagement/game/quest"
	"github.com/framecraft/engagement/model"
	"github.com/framecraft/engagement/plugin/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func questStatus(t *testing.T, views []quest.View, id string) quest.Status {
	t.Helper()
	for _, v := range views {
		if v.ID == id {
			return v.Status
		}
	}
	t.Fatalf("quest %s not listed", id)
	return ""
}

func TestQuest_TwoObjectivesAwardOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	up, err := f.svc.StartQuest(ctx, alice, "welcome_aboard")
	require.NoError(t, err)
	assert.Equal(t, quest.StatusInProgress, up.Quest.Status)

	up, err = f.svc.ProgressQuest(ctx, alice, "welcome_aboard", "add_client", 1)
	require.NoError(t, err)
	assert.False(t, up.Completed)
	assert.Equal(t, 50, up.Quest.Percent)

	up, err = f.svc.ProgressQuest(ctx, alice, "welcome_aboard", "book_session", 1)
	require.NoError(t, err)
	assert.True(t, up.Completed)
	require.NotNil(t, up.Reward)
	assert.Equal(t, int64(100), up.Reward.Amount)
	assert.Equal(t, quest.StatusCompleted, up.Quest.Status)

	_, err = f.svc.ProgressQuest(ctx, alice, "welcome_aboard", "book_session", 1)
	assert.ErrorIs(t, err, game.ErrQuestNotInProgress)

	p := f.profile(t, alice)
	assert.Equal(t, int64(100), p.LifetimeXP)
	assert.Equal(t, 1, f.fired(hook.OnQuestCompleted))

	var row model.QuestProgress
	require.NoError(t, f.db.Where("profile_id = ? AND quest_id = ?", p.ID, "welcome_aboard").First(&row).Error)
	assert.Equal(t, 1, row.Completions)
	assert.Nil(t, row.AvailableAt, "one-shot quests never re-arm")
}

func TestQuest_RecordStatAdvancesActiveQuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartQuest(ctx, alice, "welcome_aboard")
	require.NoError(t, err)

	res, err := f.svc.RecordStat(ctx, alice, "clients", 1)
	require.NoError(t, err)
	require.NotNil(t, res.Quest)
	assert.False(t, res.QuestCompleted)

	res, err = f.svc.RecordStat(ctx, alice, "bookings", 1)
	require.NoError(t, err)
	assert.True(t, res.QuestCompleted)
	require.Len(t, res.Milestones, 1)
	assert.Equal(t, "bookings_1", res.Milestones[0].ID)

	// 50 for the milestone, 100 for the quest
	assert.Equal(t, int64(150), f.profile(t, alice).LifetimeXP)

	// no active quest: stats still count, nothing else moves
	res, err = f.svc.RecordStat(ctx, alice, "clients", 1)
	require.NoError(t, err)
	assert.Nil(t, res.Quest)
}

func TestQuest_SingleActiveQuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AwardXP(ctx, alice, 300, "manual", "")
	require.NoError(t, err)
	_, err = f.svc.StartQuest(ctx, alice, "welcome_aboard")
	require.NoError(t, err)

	_, err = f.svc.StartQuest(ctx, alice, "paperwork_pro")
	assert.ErrorIs(t, err, game.ErrAlreadyInProgress)
	_, err = f.svc.StartQuest(ctx, alice, "welcome_aboard")
	assert.ErrorIs(t, err, game.ErrAlreadyInProgress)

	views, err := f.svc.ListQuests(ctx, alice)
	require.NoError(t, err)
	inProgress := 0
	for _, v := range views {
		if v.Status == quest.StatusInProgress {
			inProgress++
		}
	}
	assert.Equal(t, 1, inProgress)
	assert.Equal(t, quest.StatusAvailable, questStatus(t, views, "paperwork_pro"))
}

func TestQuest_StartGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartQuest(ctx, alice, "first_delivery")
	assert.ErrorIs(t, err, game.ErrQuestLocked)

	_, err = f.svc.StartQuest(ctx, alice, "paperwork_pro")
	assert.ErrorIs(t, err, game.ErrQuestNotAvailable, "level gate")

	_, err = f.svc.StartQuest(ctx, alice, "no_such_quest")
	assert.ErrorIs(t, err, game.ErrQuestNotFound)

	views, err := f.svc.ListQuests(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, views, f.svc.Catalog().Quests.Len())
	assert.Equal(t, quest.StatusAvailable, questStatus(t, views, "welcome_aboard"))
	assert.Equal(t, quest.StatusLocked, questStatus(t, views, "first_delivery"))
	assert.Equal(t, quest.StatusLocked, questStatus(t, views, "paperwork_pro"))
}

func TestQuest_PrerequisiteUnlocksNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartQuest(ctx, alice, "welcome_aboard")
	require.NoError(t, err)
	_, err = f.svc.ProgressQuest(ctx, alice, "welcome_aboard", "add_client", 1)
	require.NoError(t, err)
	_, err = f.svc.ProgressQuest(ctx, alice, "welcome_aboard", "book_session", 1)
	require.NoError(t, err)

	up, err := f.svc.StartQuest(ctx, alice, "first_delivery")
	require.NoError(t, err)
	assert.Equal(t, quest.StatusInProgress, up.Quest.Status)

	_, err = f.svc.ProgressQuest(ctx, alice, "first_delivery", "nope", 1)
	assert.ErrorIs(t, err, game.ErrObjectiveNotFound)
}

func TestQuest_AbandonAndRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AbandonQuest(ctx, alice, "welcome_aboard")
	assert.ErrorIs(t, err, game.ErrQuestNotInProgress)

	_, err = f.svc.StartQuest(ctx, alice, "welcome_aboard")
	require.NoError(t, err)
	_, err = f.svc.ProgressQuest(ctx, alice, "welcome_aboard", "add_client", 1)
	require.NoError(t, err)

	up, err := f.svc.AbandonQuest(ctx, alice, "welcome_aboard")
	require.NoError(t, err)
	assert.Equal(t, quest.StatusAbandoned, up.Quest.Status)
	assert.Equal(t, 0, up.Quest.Percent)

	_, err = f.svc.RetryQuest(ctx, alice, "welcome_aboard")
	assert.ErrorIs(t, err, game.ErrQuestNotRetryable)

	// repeatable quest at level 5
	_, err = f.svc.AwardXP(ctx, alice, 900, "manual", "")
	require.NoError(t, err)
	_, err = f.svc.StartQuest(ctx, alice, "weekly_hustle")
	require.NoError(t, err)
	_, err = f.svc.AbandonQuest(ctx, alice, "weekly_hustle")
	require.NoError(t, err)

	up, err = f.svc.RetryQuest(ctx, alice, "weekly_hustle")
	require.NoError(t, err)
	assert.Equal(t, quest.StatusAvailable, up.Quest.Status)
	_, err = f.svc.StartQuest(ctx, alice, "weekly_hustle")
	require.NoError(t, err)
	assert.Equal(t, 2, f.fired(hook.OnQuestAbandoned))
}

func TestQuest_CooldownRearm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AwardXP(ctx, alice, 900, "manual", "")
	require.NoError(t, err)
	_, err = f.svc.StartQuest(ctx, alice, "weekly_hustle")
	require.NoError(t, err)
	up, err := f.svc.ProgressQuest(ctx, alice, "weekly_hustle", "book_sessions", 5)
	require.NoError(t, err)
	require.True(t, up.Completed)
	require.NotNil(t, up.Quest.AvailableAt)
	assert.Equal(t, day1.Add(168*time.Hour), up.Quest.AvailableAt.UTC())

	_, err = f.svc.StartQuest(ctx, alice, "weekly_hustle")
	assert.ErrorIs(t, err, game.ErrQuestNotAvailable)

	n, err := f.svc.RearmSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "cooldown not elapsed")

	f.now = day1.Add(169 * time.Hour)
	views, err := f.svc.ListQuests(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusAvailable, questStatus(t, views, "weekly_hustle"))

	n, err = f.svc.RearmSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	var row model.QuestProgress
	require.NoError(t, f.db.Where("quest_id = ?", "weekly_hustle").First(&row).Error)
	assert.Equal(t, string(quest.StatusAvailable), row.Status)
	assert.Nil(t, row.AvailableAt)
	assert.Contains(t, string(row.Progress), `"book_sessions":0`)
	n, err = f.svc.RearmSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	up, err = f.svc.StartQuest(ctx, alice, "weekly_hustle")
	require.NoError(t, err)
	assert.Equal(t, 1, up.Quest.Completions)
	assert.Equal(t, int64(0), up.Quest.Objectives[0].Current)
}
