// Package quest implements the per-user quest lifecycle:
// locked -> available -> in_progress -> completed | abandoned.
// Abandoned quests can be retried and repeatable quests re-arm after their
// cooldown, unless the definition is one-shot.
package quest

import (
	"fmt"
	"time"

	"github.com/framecraft/engagement/game"
)

// Status is the lifecycle state of a quest instance.
type Status string

const (
	StatusLocked     Status = "locked"
	StatusAvailable  Status = "available"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Objective describes one requirement within a quest. Action ties the
// objective to a recorded stat category so activity advances it.
type Objective struct {
	ID     string `json:"id" toml:"id"`
	Action string `json:"action,omitempty" toml:"action"`
	Target int64  `json:"target" toml:"target"`
	Label  string `json:"label,omitempty" toml:"label"`
}

// Definition is a quest catalog entry.
type Definition struct {
	ID            string      `json:"id" toml:"id"`
	Title         string      `json:"title" toml:"title"`
	Description   string      `json:"description,omitempty" toml:"description"`
	Objectives    []Objective `json:"objectives" toml:"objectives"`
	RewardXP      int64       `json:"reward_xp" toml:"reward_xp"`
	UnlockLevel   int         `json:"unlock_level" toml:"unlock_level"`
	Prerequisites []string    `json:"prerequisites,omitempty" toml:"prerequisites"`
	OneShot       bool        `json:"one_shot" toml:"one_shot"`
	CooldownHours int         `json:"cooldown_hours,omitempty" toml:"cooldown_hours"`
}

// Cooldown returns the re-arm delay after a repeatable completion.
func (d *Definition) Cooldown() time.Duration {
	return time.Duration(d.CooldownHours) * time.Hour
}

func (d *Definition) objective(id string) (*Objective, bool) {
	for i := range d.Objectives {
		if d.Objectives[i].ID == id {
			return &d.Objectives[i], true
		}
	}
	return nil, false
}

// Instance is a user's state for one quest.
type Instance struct {
	QuestID     string           `json:"quest_id"`
	Status      Status           `json:"status"`
	Progress    map[string]int64 `json:"progress"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	AvailableAt *time.Time       `json:"available_at,omitempty"`
	Completions int              `json:"completions"`
}

// NewInstance returns a fresh locked instance for def.
func NewInstance(def *Definition) *Instance {
	return &Instance{QuestID: def.ID, Status: StatusLocked, Progress: zeroProgress(def)}
}

func zeroProgress(def *Definition) map[string]int64 {
	p := make(map[string]int64, len(def.Objectives))
	for _, o := range def.Objectives {
		p[o.ID] = 0
	}
	return p
}

// PrerequisitesMet reports whether every prerequisite quest is completed.
func PrerequisitesMet(def *Definition, completed map[string]bool) bool {
	for _, id := range def.Prerequisites {
		if !completed[id] {
			return false
		}
	}
	return true
}

// Unlock moves a locked instance to available once the level gate and the
// prerequisite quests are satisfied. It reports whether the status changed.
func Unlock(def *Definition, inst *Instance, level int, completed map[string]bool) bool {
	if inst.Status != StatusLocked {
		return false
	}
	if level < def.UnlockLevel || !PrerequisitesMet(def, completed) {
		return false
	}
	inst.Status = StatusAvailable
	return true
}

// Start begins the quest. active is the id of the user's current
// in-progress quest, or "" if there is none.
func Start(def *Definition, inst *Instance, active string, completed map[string]bool, now time.Time) error {
	if active != "" || inst.Status == StatusInProgress {
		return game.ErrAlreadyInProgress
	}
	if inst.Status == StatusLocked && !PrerequisitesMet(def, completed) {
		return game.ErrQuestLocked
	}
	if inst.Status != StatusAvailable {
		return game.ErrQuestNotAvailable
	}
	inst.Status = StatusInProgress
	inst.Progress = zeroProgress(def)
	inst.StartedAt = &now
	inst.CompletedAt = nil
	return nil
}

// Result reports the effect of an objective update.
type Result struct {
	Completed bool  `json:"completed"`
	RewardXP  int64 `json:"reward_xp"`
}

// Advance adds delta to one objective counter.
func Advance(def *Definition, inst *Instance, objectiveID string, delta int64, now time.Time) (Result, error) {
	if delta <= 0 {
		return Result{}, game.ErrInvalidAmount
	}
	if inst.Status != StatusInProgress {
		return Result{}, game.ErrQuestNotInProgress
	}
	obj, ok := def.objective(objectiveID)
	if !ok {
		return Result{}, game.ErrObjectiveNotFound
	}
	bump(inst, obj, inst.Progress[obj.ID]+delta)
	return settle(def, inst, now), nil
}

// Record sets one objective counter to value if that moves it forward.
// Counters never go down.
func Record(def *Definition, inst *Instance, objectiveID string, value int64, now time.Time) (Result, error) {
	if value < 0 {
		return Result{}, game.ErrInvalidAmount
	}
	if inst.Status != StatusInProgress {
		return Result{}, game.ErrQuestNotInProgress
	}
	obj, ok := def.objective(objectiveID)
	if !ok {
		return Result{}, game.ErrObjectiveNotFound
	}
	bump(inst, obj, value)
	return settle(def, inst, now), nil
}

// AdvanceAction adds delta to every objective whose action matches.
// It reports matched=false when the quest is not in progress or has no
// such objective; that is not an error for activity-driven updates.
func AdvanceAction(def *Definition, inst *Instance, action string, delta int64, now time.Time) (res Result, matched bool) {
	if delta <= 0 || inst.Status != StatusInProgress {
		return Result{}, false
	}
	for i := range def.Objectives {
		obj := &def.Objectives[i]
		if obj.Action != action {
			continue
		}
		matched = true
		bump(inst, obj, inst.Progress[obj.ID]+delta)
	}
	if !matched {
		return Result{}, false
	}
	return settle(def, inst, now), true
}

func bump(inst *Instance, obj *Objective, v int64) {
	if inst.Progress == nil {
		inst.Progress = make(map[string]int64)
	}
	if v > obj.Target {
		v = obj.Target
	}
	if v > inst.Progress[obj.ID] {
		inst.Progress[obj.ID] = v
	}
}

// settle completes the quest when every objective reached its target.
// Only an in-progress instance can complete, so the reward is paid once.
func settle(def *Definition, inst *Instance, now time.Time) Result {
	for _, o := range def.Objectives {
		if inst.Progress[o.ID] < o.Target {
			return Result{}
		}
	}
	inst.Status = StatusCompleted
	inst.CompletedAt = &now
	inst.Completions++
	inst.AvailableAt = nil
	if !def.OneShot {
		at := now.Add(def.Cooldown())
		inst.AvailableAt = &at
	}
	return Result{Completed: true, RewardXP: def.RewardXP}
}

// Abandon stops an in-progress quest and discards its progress.
func Abandon(def *Definition, inst *Instance) error {
	if inst.Status != StatusInProgress {
		return game.ErrQuestNotInProgress
	}
	inst.Status = StatusAbandoned
	inst.Progress = zeroProgress(def)
	inst.StartedAt = nil
	return nil
}

// Retry returns an abandoned quest to available.
func Retry(def *Definition, inst *Instance) error {
	if def.OneShot {
		return game.ErrQuestNotRetryable
	}
	if inst.Status != StatusAbandoned {
		return game.ErrQuestNotAvailable
	}
	inst.Status = StatusAvailable
	return nil
}

// Rearm returns a completed repeatable quest to available once its
// cooldown has elapsed. It reports whether the status changed.
func Rearm(def *Definition, inst *Instance, now time.Time) bool {
	if def.OneShot || inst.Status != StatusCompleted || inst.AvailableAt == nil {
		return false
	}
	if now.Before(*inst.AvailableAt) {
		return false
	}
	inst.Status = StatusAvailable
	inst.Progress = zeroProgress(def)
	inst.AvailableAt = nil
	return true
}

// ObjectiveView is one objective as shown to the user.
type ObjectiveView struct {
	ID      string `json:"id"`
	Label   string `json:"label,omitempty"`
	Current int64  `json:"current"`
	Target  int64  `json:"target"`
	Done    bool   `json:"done"`
}

// View is a quest with the user's progress.
type View struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      Status          `json:"status"`
	RewardXP    int64           `json:"reward_xp"`
	OneShot     bool            `json:"one_shot"`
	Objectives  []ObjectiveView `json:"objectives"`
	Percent     int             `json:"percent"`
	Completions int             `json:"completions"`
	AvailableAt *time.Time      `json:"available_at,omitempty"`
}

// NewView renders def with inst's progress.
func NewView(def *Definition, inst *Instance) View {
	v := View{
		ID:          def.ID,
		Title:       def.Title,
		Description: def.Description,
		Status:      inst.Status,
		RewardXP:    def.RewardXP,
		OneShot:     def.OneShot,
		Completions: inst.Completions,
		AvailableAt: inst.AvailableAt,
	}
	var cur, total int64
	for _, o := range def.Objectives {
		c := inst.Progress[o.ID]
		if inst.Status == StatusCompleted {
			c = o.Target
		}
		v.Objectives = append(v.Objectives, ObjectiveView{
			ID: o.ID, Label: o.Label, Current: c, Target: o.Target, Done: c >= o.Target,
		})
		cur += c
		total += o.Target
	}
	if total > 0 {
		v.Percent = int(cur * 100 / total)
	}
	return v
}

// ---- Catalog ----

// Catalog is the validated set of quest definitions.
type Catalog struct {
	defs  map[string]*Definition
	order []string
}

// NewCatalog validates defs: unique ids, objectives with positive targets,
// known and acyclic prerequisites.
func NewCatalog(defs []*Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if d == nil {
			continue
		}
		if d.ID == "" {
			return nil, fmt.Errorf("quest: empty id")
		}
		if _, dup := c.defs[d.ID]; dup {
			return nil, fmt.Errorf("quest %q: duplicate id", d.ID)
		}
		if len(d.Objectives) == 0 {
			return nil, fmt.Errorf("quest %q: no objectives", d.ID)
		}
		seen := make(map[string]bool, len(d.Objectives))
		for _, o := range d.Objectives {
			if o.ID == "" || seen[o.ID] {
				return nil, fmt.Errorf("quest %q: objective id %q empty or duplicated", d.ID, o.ID)
			}
			if o.Target <= 0 {
				return nil, fmt.Errorf("quest %q: objective %q target must be positive", d.ID, o.ID)
			}
			seen[o.ID] = true
		}
		if d.RewardXP < 0 || d.CooldownHours < 0 {
			return nil, fmt.Errorf("quest %q: negative reward or cooldown", d.ID)
		}
		c.defs[d.ID] = d
		c.order = append(c.order, d.ID)
	}
	for _, id := range c.order {
		for _, p := range c.defs[id].Prerequisites {
			if _, ok := c.defs[p]; !ok {
				return nil, fmt.Errorf("quest %q: unknown prerequisite %q", id, p)
			}
		}
	}
	if err := c.checkCycles(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) checkCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(c.defs))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return fmt.Errorf("quest %q: prerequisite cycle", id)
		case black:
			return nil
		}
		color[id] = grey
		for _, p := range c.defs[id].Prerequisites {
			if err := visit(p); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for _, id := range c.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the definition for id or game.ErrQuestNotFound.
func (c *Catalog) Get(id string) (*Definition, error) {
	d, ok := c.defs[id]
	if !ok {
		return nil, game.ErrQuestNotFound
	}
	return d, nil
}

// All returns definitions in catalog order.
func (c *Catalog) All() []*Definition {
	out := make([]*Definition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.defs[id])
	}
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.order) }
