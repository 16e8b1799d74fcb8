package db

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Logger routes gorm's output through zap. Failed statements log at
// error, statements slower than the threshold at warn; everything else is
// dropped. Record-not-found is an expected outcome and is never logged.
type Logger struct {
	log   *zap.Logger
	slow  time.Duration
	level logger.LogLevel
}

// NewLogger creates a Logger at the Warn level.
func NewLogger(log *zap.Logger, slow time.Duration) *Logger {
	return &Logger{log: log.Named("gorm"), slow: slow, level: logger.Warn}
}

func (l *Logger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *Logger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.log.Sugar().Infof(msg, args...)
	}
}

func (l *Logger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Sugar().Warnf(msg, args...)
	}
}

func (l *Logger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.log.Sugar().Errorf(msg, args...)
	}
}

func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	took := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		l.log.Error("query failed",
			zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("took", took), zap.Error(err))
	case l.slow > 0 && took > l.slow && l.level >= logger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query",
			zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("took", took))
	case l.level >= logger.Info:
		sql, rows := fc()
		l.log.Debug("query", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("took", took))
	}
}
