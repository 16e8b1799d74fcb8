package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/framecraft/engagement/game/progression"
	"github.com/framecraft/engagement/resource"
	"github.com/framecraft/engagement/scheduler"
	"github.com/framecraft/engagement/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCatalogValidate_Builtin(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"catalog", "validate"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())

	var sum resource.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &sum))
	assert.Equal(t, "builtin", sum.Source)
	assert.Positive(t, sum.Quests)
	assert.Positive(t, sum.Skills)
	assert.Positive(t, sum.Milestones)
}

func TestCatalogValidate_BadDir(t *testing.T) {
	rootCmd.SetArgs([]string{"catalog", "validate", t.TempDir()})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	assert.Error(t, rootCmd.Execute())
}

func TestRegisterJobs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	svc := progression.NewService(db, c, nil, progression.DefaultOptions(), zap.NewNop())

	sched := scheduler.New(zap.NewNop())
	defer sched.Stop()
	require.NoError(t, registerJobs(sched, svc, time.Hour, "0 3 * * *", zap.NewNop()))
	assert.Equal(t, []string{"leaderboard_rebuild", "quest_rearm"}, sched.ListTickers())

	for _, name := range sched.ListTickers() {
		info, err := sched.RunNow(name)
		require.NoError(t, err)
		assert.Empty(t, info.LastError, name)
	}

	bad := scheduler.New(zap.NewNop())
	defer bad.Stop()
	assert.Error(t, registerJobs(bad, svc, 0, "every tuesday", zap.NewNop()))
}
