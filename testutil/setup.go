// Package testutil builds throwaway backends for tests: an in-memory SQLite
// database, the local cache and broker, and a controllable clock.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/framecraft/engagement/cache"
	"github.com/framecraft/engagement/config"
	dbadapter "github.com/framecraft/engagement/db"
	"github.com/framecraft/engagement/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB opens a private in-memory database with every table migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{Mode: dbadapter.ModeMemory}, nil)
	require.NoError(t, err, "open memory db")
	require.NoError(t, model.AutoMigrate(db), "migrate memory db")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache returns the local cache and broker. No Redis is needed.
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := config.CacheConfig{LocalGCInterval: time.Minute, LocalPubSubBuf: 64}
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "local cache")
	if closer, ok := c.(interface{ Close() }); ok {
		t.Cleanup(closer.Close)
	}
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "local broker")
	return c, ps
}

// Clock is a manually advanced time source, safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a Clock at start.
func NewClock(start time.Time) *Clock { return &Clock{now: start} }

// Now returns the current reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
