// Package hook dispatches progression events to registered handlers in
// priority order. Handlers run after the state change is committed.
package hook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrInterrupt signals that a Hook handler wants to stop further processing.
var ErrInterrupt = errors.New("hook interrupted")

// Event is one committed progression change.
type Event struct {
	Name   string                 `json:"event"`
	OrgID  string                 `json:"org_id"`
	UserID string                 `json:"user_id"`
	At     time.Time              `json:"at"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// HookFn is a hook handler function. Return ErrInterrupt to stop the
// chain; any other error is collected and the chain continues.
type HookFn func(ctx context.Context, ev *Event) error

type hookEntry struct {
	priority int
	fn       HookFn
	name     string
}

// HookCenter manages event hook registrations.
type HookCenter struct {
	mu    sync.RWMutex
	hooks map[string][]*hookEntry
}

// NewHookCenter creates a new HookCenter.
func NewHookCenter() *HookCenter {
	return &HookCenter{hooks: make(map[string][]*hookEntry)}
}

// Register adds a HookFn for the given event with the given priority (lower runs first).
// name is used for Unregister. Equal priorities run in registration order.
func (hc *HookCenter) Register(event string, priority int, name string, fn HookFn) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	entries := hc.hooks[event]
	entries = append(entries, &hookEntry{priority: priority, fn: fn, name: name})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	hc.hooks[event] = entries
}

// RegisterAll adds fn for every event in events.
func (hc *HookCenter) RegisterAll(events []string, priority int, name string, fn HookFn) {
	for _, ev := range events {
		hc.Register(ev, priority, name, fn)
	}
}

// Unregister removes all hooks with the given name for the given event.
func (hc *HookCenter) Unregister(event, name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.hooks[event] = without(hc.hooks[event], name)
}

// UnregisterAll removes all hooks registered with the given name across all events.
func (hc *HookCenter) UnregisterAll(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for event, entries := range hc.hooks {
		hc.hooks[event] = without(entries, name)
	}
}

func without(entries []*hookEntry, name string) []*hookEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.name != name {
			out = append(out, e)
		}
	}
	return out
}

// Trigger runs all hooks for ev.Name in priority order. A panicking
// handler is converted to an error and does not stop the chain.
// Errors other than ErrInterrupt are joined and returned at the end.
func (hc *HookCenter) Trigger(ctx context.Context, ev *Event) error {
	hc.mu.RLock()
	entries := make([]*hookEntry, len(hc.hooks[ev.Name]))
	copy(entries, hc.hooks[ev.Name])
	hc.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		err := safeCall(ctx, e, ev)
		if errors.Is(err, ErrInterrupt) {
			return err
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeCall(ctx context.Context, e *hookEntry, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %s: panic: %v", e.name, r)
		}
	}()
	if err := e.fn(ctx, ev); err != nil && !errors.Is(err, ErrInterrupt) {
		return fmt.Errorf("hook %s: %w", e.name, err)
	} else if err != nil {
		return err
	}
	return nil
}

// ---- Hook event name constants ----

const (
	OnXPAwarded        = "on_xp_awarded"
	OnLevelUp          = "on_level_up"
	OnMilestoneReached = "on_milestone_reached"
	OnQuestStarted     = "on_quest_started"
	OnQuestCompleted   = "on_quest_completed"
	OnQuestAbandoned   = "on_quest_abandoned"
	OnSkillUnlocked    = "on_skill_unlocked"
	OnSkillsReset      = "on_skills_reset"
	OnStreakExtended   = "on_streak_extended"
	OnStreakFrozen     = "on_streak_frozen"
	OnStreakReset      = "on_streak_reset"
	OnFreezePurchased  = "on_freeze_purchased"
	OnDailyBonus       = "on_daily_bonus"
	OnPrestige         = "on_prestige"
)

// AllEvents lists every event the progression service emits.
var AllEvents = []string{
	OnXPAwarded, OnLevelUp, OnMilestoneReached,
	OnQuestStarted, OnQuestCompleted, OnQuestAbandoned,
	OnSkillUnlocked, OnSkillsReset,
	OnStreakExtended, OnStreakFrozen, OnStreakReset,
	OnFreezePurchased, OnDailyBonus, OnPrestige,
}

// Celebrations are the events worth pushing to the user's live stream.
var Celebrations = []string{
	OnLevelUp, OnMilestoneReached, OnQuestCompleted,
	OnSkillUnlocked, OnStreakFrozen, OnDailyBonus, OnPrestige,
}
