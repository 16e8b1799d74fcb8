package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/framecraft/engagement/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is one mutating request to record.
type Entry struct {
	TraceID    string
	OrgID      string
	UserID     string
	Action     string
	Request    interface{}
	Response   interface{}
	Status     int
	Code       string
	IP         string
	DurationMs int
}

// Options tunes the batching worker. Zero fields take defaults.
type Options struct {
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
}

func (o *Options) defaults() {
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
}

// Service writes audit entries asynchronously in batches.
type Service struct {
	db      *gorm.DB
	opts    Options
	ch      chan *model.AuditLog
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	dropped int64
	mu      sync.Mutex
	logger  *zap.Logger
}

// New creates a Service with default options and starts its worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	return NewWithOptions(db, Options{}, logger)
}

// NewWithOptions creates a Service and starts its worker.
func NewWithOptions(db *gorm.DB, opts Options, logger *zap.Logger) *Service {
	opts.defaults()
	svc := &Service{
		db:     db,
		opts:   opts,
		ch:     make(chan *model.AuditLog, opts.Buffer),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an entry. It never blocks; entries are dropped when the
// buffer is full or the service has stopped.
func (svc *Service) Log(e Entry) {
	record := &model.AuditLog{
		TraceID:    e.TraceID,
		OrgID:      e.OrgID,
		UserID:     e.UserID,
		Action:     e.Action,
		Request:    encode(e.Request),
		Response:   encode(e.Response),
		Status:     e.Status,
		Code:       e.Code,
		IP:         e.IP,
		DurationMs: e.DurationMs,
	}
	select {
	case <-svc.stopCh:
		svc.drop(e.Action, "stopped")
		return
	default:
	}
	select {
	case svc.ch <- record:
	default:
		svc.drop(e.Action, "buffer full")
	}
}

func encode(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func (svc *Service) drop(action, reason string) {
	svc.mu.Lock()
	svc.dropped++
	svc.mu.Unlock()
	svc.logger.Warn("audit entry dropped",
		zap.String("action", action), zap.String("reason", reason))
}

// Dropped reports how many entries were discarded.
func (svc *Service) Dropped() int64 {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.dropped
}

// Stop flushes pending entries and waits for the worker, or for ctx.
func (svc *Service) Stop(ctx context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		svc.logger.Warn("audit stop timed out", zap.Error(ctx.Err()))
	}
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(batch, svc.opts.BatchSize).Error; err != nil {
			svc.logger.Error("audit batch write failed",
				zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= svc.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Query filters audit rows. Empty fields match everything.
type Query struct {
	OrgID  string
	UserID string
	Action string
	// FailedOnly keeps only rejected requests.
	FailedOnly bool
	Limit      int
}

// Recent returns matching audit rows, newest first. Limit defaults to 50
// and is capped at 500.
func (svc *Service) Recent(ctx context.Context, q Query) ([]model.AuditLog, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	tx := svc.db.WithContext(ctx).Model(&model.AuditLog{})
	if q.OrgID != "" {
		tx = tx.Where("org_id = ?", q.OrgID)
	}
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Action != "" {
		tx = tx.Where("action = ?", q.Action)
	}
	if q.FailedOnly {
		tx = tx.Where("code <> '' OR status >= 400")
	}
	var rows []model.AuditLog
	err := tx.Order("created_at DESC").Order("id DESC").Limit(q.Limit).Find(&rows).Error
	return rows, err
}
