// Package progression loads a user's progression state, applies one rule
// evaluation, persists the result and reports what changed. Every mutation
// runs in a transaction that ends with a compare-and-swap on the profile
// version, so concurrent requests for the same user serialize across
// replicas. Events are dispatched only after commit.
package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/framecraft/engagement/cache"
	"github.com/framecraft/engagement/config"
	"github.com/framecraft/engagement/game"
	"github.com/framecraft/engagement/game/level"
	"github.com/framecraft/engagement/game/reward"
	"github.com/framecraft/engagement/game/streak"
	"github.com/framecraft/engagement/model"
	"github.com/framecraft/engagement/plugin/hook"
	"github.com/framecraft/engagement/resource"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errVersionConflict aborts a transaction whose profile changed underneath it.
var errVersionConflict = errors.New("progression: profile version conflict")

// conflicted reports whether err means another writer got there first: a
// stale version, or a row (first daily claim, skill unlock, milestone)
// inserted by a concurrent transaction. Rerunning the evaluation on fresh
// state turns the latter into the matching rule error.
func conflicted(err error) bool {
	return errors.Is(err, errVersionConflict) || errors.Is(err, gorm.ErrDuplicatedKey)
}

// Identity addresses one user's profile.
type Identity struct {
	OrgID  string
	UserID string
}

// Options are the rule parameters the service evaluates with.
type Options struct {
	Curve           *level.Curve
	Catalog         *resource.Catalog
	Location        *time.Location
	PointsPerLevel  int
	Freeze          streak.Policy
	Schedule        reward.Schedule
	Prestige        reward.PrestigePolicy
	MaxWriteRetries int
	MaxAward        int64
	Clock           func() time.Time
}

// DefaultOptions returns the built-in rules and catalog.
func DefaultOptions() Options {
	return Options{
		Curve:           level.DefaultCurve(),
		Catalog:         resource.Default(),
		Location:        time.UTC,
		PointsPerLevel:  1,
		Freeze:          streak.Policy{MaxFreezes: 2, FreezeCost: 200},
		Schedule:        reward.DefaultSchedule,
		Prestige:        reward.DefaultPrestigePolicy(),
		MaxWriteRetries: 5,
		MaxAward:        100000,
	}
}

// OptionsFromConfig builds Options from the gamification config section.
func OptionsFromConfig(g config.GamificationConfig, cat *resource.Catalog) (Options, error) {
	curve, err := level.NewCurve(g.CurveBase, g.CurveExponent, g.MaxLevel)
	if err != nil {
		return Options{}, err
	}
	loc, err := g.Location()
	if err != nil {
		return Options{}, fmt.Errorf("progression: timezone %q: %w", g.Timezone, err)
	}
	sched, err := reward.NewSchedule(g.DailySchedule)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Curve:           curve,
		Catalog:         cat,
		Location:        loc,
		PointsPerLevel:  g.PointsPerLevel,
		Freeze:          streak.Policy{MaxFreezes: g.MaxFreezes, FreezeCost: g.FreezeCost},
		Schedule:        sched,
		Prestige:        reward.PrestigePolicy{MaxPrestige: g.MaxPrestige, MultiplierStep: g.PrestigeStep},
		MaxWriteRetries: g.MaxWriteRetries,
		MaxAward:        g.MaxAward,
	}, nil
}

// Service orchestrates the rule engines over persisted state.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	hooks  *hook.HookCenter
	opts   Options
	logger *zap.Logger
}

// NewService creates a Service. hooks may be nil.
func NewService(db *gorm.DB, c cache.Cache, hooks *hook.HookCenter, opts Options, logger *zap.Logger) *Service {
	if opts.Curve == nil {
		opts.Curve = level.DefaultCurve()
	}
	if opts.Catalog == nil {
		opts.Catalog = resource.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxWriteRetries <= 0 {
		opts.MaxWriteRetries = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if hooks == nil {
		hooks = hook.NewHookCenter()
	}
	return &Service{db: db, cache: c, hooks: hooks, opts: opts, logger: logger}
}

// Catalog returns the rule catalog in use.
func (s *Service) Catalog() *resource.Catalog { return s.opts.Catalog }

func (s *Service) now() time.Time { return s.opts.Clock() }

// txn is one attempt at a mutation: the locked-in profile plus the
// events to dispatch once the attempt commits.
type txn struct {
	svc     *Service
	tx      *gorm.DB
	p       *model.Profile
	id      Identity
	now     time.Time
	events  []*hook.Event
	awarded map[string]bool
}

func (t *txn) emit(name string, data map[string]interface{}) {
	t.events = append(t.events, &hook.Event{
		Name:   name,
		OrgID:  t.id.OrgID,
		UserID: t.id.UserID,
		At:     t.now,
		Data:   data,
	})
}

// mutate runs fn against a fresh copy of the profile and writes it back
// only if no other writer bumped the version in between. Conflicts rerun
// the whole evaluation up to MaxWriteRetries times.
func (s *Service) mutate(ctx context.Context, id Identity, fn func(t *txn) error) error {
	for attempt := 0; attempt < s.opts.MaxWriteRetries; attempt++ {
		var t *txn
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, err := loadProfile(tx, id)
			if err != nil {
				return err
			}
			t = &txn{svc: s, tx: tx, p: p, id: id, now: s.now()}
			before := p.Version
			beforeXP := p.LifetimeXP
			if err := fn(t); err != nil {
				return err
			}
			p.Level = s.opts.Curve.Level(p.CycleXP)
			res := tx.Model(&model.Profile{}).
				Where("id = ? AND version = ?", p.ID, before).
				Updates(profileColumns(p, before+1))
			if res.Error != nil {
				return fmt.Errorf("progression: save profile: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return errVersionConflict
			}
			p.Version = before + 1
			if p.LifetimeXP != beforeXP {
				t.emitRanking()
			}
			return nil
		})
		if conflicted(err) {
			s.logger.Debug("profile write conflict, retrying",
				zap.String("user_id", id.UserID), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		if err != nil {
			return err
		}
		s.dispatch(ctx, t)
		return nil
	}
	s.logger.Warn("profile write retries exhausted",
		zap.String("org_id", id.OrgID), zap.String("user_id", id.UserID))
	return game.ErrConcurrentUpdate
}

// rankingEvent is internal: it refreshes the leaderboard after commit and
// is not dispatched to hooks.
const rankingEvent = "ranking"

func (t *txn) emitRanking() {
	t.events = append(t.events, &hook.Event{
		Name: rankingEvent, OrgID: t.id.OrgID, UserID: t.id.UserID, At: t.now,
		Data: map[string]interface{}{"lifetime_xp": t.p.LifetimeXP},
	})
}

func (s *Service) dispatch(ctx context.Context, t *txn) {
	for _, ev := range t.events {
		if ev.Name == rankingEvent {
			s.updateRanking(ctx, t.id, t.p.LifetimeXP)
			continue
		}
		if err := s.hooks.Trigger(ctx, ev); err != nil {
			s.logger.Warn("hook dispatch failed",
				zap.String("event", ev.Name), zap.String("user_id", ev.UserID), zap.Error(err))
		}
	}
}

// loadProfile reads the profile inside tx, creating it on first use.
func loadProfile(tx *gorm.DB, id Identity) (*model.Profile, error) {
	var p model.Profile
	err := tx.Where("org_id = ? AND user_id = ?", id.OrgID, id.UserID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("progression: load profile: %w", err)
	}
	fresh := &model.Profile{OrgID: id.OrgID, UserID: id.UserID, Level: 1}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(fresh).Error; err != nil {
		return nil, fmt.Errorf("progression: create profile: %w", err)
	}
	err = tx.Where("org_id = ? AND user_id = ?", id.OrgID, id.UserID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// created by a transaction our snapshot predates
		return nil, errVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("progression: load profile: %w", err)
	}
	return &p, nil
}

// readProfile returns the stored profile or an unsaved blank one.
func (s *Service) readProfile(ctx context.Context, id Identity) (*model.Profile, error) {
	var p model.Profile
	err := s.db.WithContext(ctx).Where("org_id = ? AND user_id = ?", id.OrgID, id.UserID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.Profile{OrgID: id.OrgID, UserID: id.UserID, Level: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progression: load profile: %w", err)
	}
	return &p, nil
}

func profileColumns(p *model.Profile, version int64) map[string]interface{} {
	return map[string]interface{}{
		"lifetime_xp":          p.LifetimeXP,
		"cycle_xp":             p.CycleXP,
		"spent_xp":             p.SpentXP,
		"level":                p.Level,
		"prestige_tier":        p.PrestigeTier,
		"login_streak":         p.LoginStreak,
		"login_streak_best":    p.LoginStreakBest,
		"last_login_day":       p.LastLoginDay,
		"delivery_streak":      p.DeliveryStreak,
		"delivery_streak_best": p.DeliveryStreakBest,
		"last_delivery_day":    p.LastDeliveryDay,
		"freezes_available":    p.FreezesAvailable,
		"freezes_used":         p.FreezesUsed,
		"freeze_last_used":     p.FreezeLastUsed,
		"skill_points_granted": p.SkillPointsGranted,
		"skill_points_spent":   p.SkillPointsSpent,
		"version":              version,
	}
}
