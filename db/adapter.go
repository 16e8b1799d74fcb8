// Package db opens the progression store. SQLite (file or private
// in-memory) serves single-node installs and tests; MySQL and PostgreSQL
// serve replicated deployments.
package db

import (
	"fmt"
	"time"

	"github.com/framecraft/engagement/config"
	dbmysql "github.com/framecraft/engagement/db/mysql"
	dbpostgres "github.com/framecraft/engagement/db/postgres"
	dbsqlite "github.com/framecraft/engagement/db/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModeMySQL    = "mysql"
	ModePostgres = "postgres"
)

// SlowQuery is the duration above which statements are logged at warn.
const SlowQuery = 200 * time.Millisecond

type pool struct {
	maxOpen, maxIdle int
	maxLife          time.Duration
}

// Open connects to the configured store. A nil log silences gorm.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		p         pool
		err       error
	)
	switch cfg.Mode {
	case ModeMemory:
		dialector = dbsqlite.Memory()
		p = pool{maxOpen: 1}
	case ModeSQLite:
		dialector, err = dbsqlite.File(cfg.SQLitePath)
		p = pool{maxOpen: 1}
	case ModeMySQL:
		dialector = dbmysql.Dialector(cfg.MySQLDSN)
		p = pool{cfg.MaxOpen, cfg.MaxIdle, cfg.MaxLife}
	case ModePostgres:
		dialector = dbpostgres.Dialector(cfg.PostgresDSN)
		p = pool{cfg.MaxOpen, cfg.MaxIdle, cfg.MaxLife}
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:  NewLogger(log, SlowQuery),
		NowFunc: func() time.Time { return time.Now().UTC() },
		// unique violations surface as gorm.ErrDuplicatedKey on every driver
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", cfg.Mode, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if p.maxOpen > 0 {
		sqlDB.SetMaxOpenConns(p.maxOpen)
	}
	if p.maxIdle > 0 {
		sqlDB.SetMaxIdleConns(p.maxIdle)
	}
	if p.maxLife > 0 {
		sqlDB.SetConnMaxLifetime(p.maxLife)
	}
	return gdb, nil
}
