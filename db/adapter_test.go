package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/framecraft/engagement/config"
	"github.com/framecraft/engagement/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestOpen_Memory_Isolated(t *testing.T) {
	a, err := Open(config.DatabaseConfig{Mode: ModeMemory}, nil)
	require.NoError(t, err)
	b, err := Open(config.DatabaseConfig{Mode: ModeMemory}, nil)
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(a))
	require.NoError(t, model.AutoMigrate(b))

	require.NoError(t, a.Create(&model.Profile{OrgID: "o", UserID: "u"}).Error)
	var n int64
	require.NoError(t, b.Model(&model.Profile{}).Count(&n).Error)
	assert.Equal(t, int64(0), n)
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engage.db")
	db, err := Open(config.DatabaseConfig{Mode: ModeSQLite, SQLitePath: path}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(db))
	assert.FileExists(t, path)
}

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "embedded_xml"}, nil)
	assert.Error(t, err)
}

func TestLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLogger(zap.New(core), 50*time.Millisecond)
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), sql, nil)
	l.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "fast and not-found statements are quiet")

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	l.Trace(ctx, time.Now(), sql, errors.New("deadlock"))
	entries := logs.TakeAll()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "slow query", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)

	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), sql, errors.New("deadlock"))
	assert.Zero(t, logs.Len())
}
