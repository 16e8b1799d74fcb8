// Package skill implements the skill-tree unlock engine. Skills form a
// forest of prerequisite DAGs grouped into named trees and are paid for
// with skill points granted on level-up.
package skill

import (
	"fmt"
	"math"
	"sort"

	"github.com/framecraft/engagement/game"
)

// Skill is a catalog entry.
type Skill struct {
	ID            string   `json:"id" toml:"id"`
	Tree          string   `json:"tree" toml:"tree"`
	Name          string   `json:"name" toml:"name"`
	Description   string   `json:"description,omitempty" toml:"description"`
	Cost          int      `json:"cost" toml:"cost"`
	Prerequisites []string `json:"prerequisites,omitempty" toml:"prerequisites"`
}

// Forest is the validated skill catalog.
type Forest struct {
	skills map[string]*Skill
	order  []string
	trees  []string
	byTree map[string][]*Skill
}

// NewForest validates skills and indexes them by tree. Prerequisites must
// exist and the prerequisite graph must be acyclic.
func NewForest(skills []*Skill) (*Forest, error) {
	f := &Forest{skills: make(map[string]*Skill, len(skills)), byTree: make(map[string][]*Skill)}
	for _, s := range skills {
		if s == nil {
			continue
		}
		if s.ID == "" || s.Tree == "" {
			return nil, fmt.Errorf("skill %q: id and tree are required", s.ID)
		}
		if s.Cost <= 0 {
			return nil, fmt.Errorf("skill %q: cost must be positive", s.ID)
		}
		if _, dup := f.skills[s.ID]; dup {
			return nil, fmt.Errorf("skill %q: duplicate id", s.ID)
		}
		f.skills[s.ID] = s
		f.order = append(f.order, s.ID)
		if _, ok := f.byTree[s.Tree]; !ok {
			f.trees = append(f.trees, s.Tree)
		}
		f.byTree[s.Tree] = append(f.byTree[s.Tree], s)
	}
	for _, id := range f.order {
		for _, p := range f.skills[id].Prerequisites {
			if _, ok := f.skills[p]; !ok {
				return nil, fmt.Errorf("skill %q: unknown prerequisite %q", id, p)
			}
		}
	}
	// Kahn's algorithm; anything left unvisited sits on a cycle
	indeg := make(map[string]int, len(f.order))
	next := make(map[string][]string)
	for _, id := range f.order {
		for _, p := range f.skills[id].Prerequisites {
			indeg[id]++
			next[p] = append(next[p], id)
		}
	}
	var queue []string
	for _, id := range f.order {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	seen := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		seen++
		for _, n := range next[id] {
			indeg[n]--
			if indeg[n] == 0 {
				queue = append(queue, n)
			}
		}
	}
	if seen != len(f.order) {
		var stuck []string
		for _, id := range f.order {
			if indeg[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("skill: prerequisite cycle among %v", stuck)
	}
	return f, nil
}

// Get returns the skill for id or game.ErrSkillNotFound.
func (f *Forest) Get(id string) (*Skill, error) {
	s, ok := f.skills[id]
	if !ok {
		return nil, game.ErrSkillNotFound
	}
	return s, nil
}

// Trees returns tree names in catalog order.
func (f *Forest) Trees() []string { return f.trees }

// Len returns the number of skills.
func (f *Forest) Len() int { return len(f.order) }

// State is a user's skill allocation. Available points are always
// Granted - Spent.
type State struct {
	Unlocked map[string]bool
	Granted  int
	Spent    int
}

// Available returns the unspent points.
func (s State) Available() int { return s.Granted - s.Spent }

func (s State) clone() State {
	u := make(map[string]bool, len(s.Unlocked)+1)
	for k, v := range s.Unlocked {
		if v {
			u[k] = true
		}
	}
	return State{Unlocked: u, Granted: s.Granted, Spent: s.Spent}
}

// Grant adds points earned from level-ups.
func Grant(s State, n int) State {
	if n <= 0 {
		return s
	}
	out := s.clone()
	out.Granted += n
	return out
}

// CanUnlock reports whether sk is not yet unlocked, all its prerequisites
// are, and available covers its cost.
func CanUnlock(sk *Skill, unlocked map[string]bool, available int) bool {
	return check(sk, unlocked, available) == nil
}

func check(sk *Skill, unlocked map[string]bool, available int) error {
	if unlocked[sk.ID] {
		return game.ErrAlreadyUnlocked
	}
	for _, p := range sk.Prerequisites {
		if !unlocked[p] {
			return game.ErrPrerequisitesNotMet
		}
	}
	if available < sk.Cost {
		return game.ErrInsufficientPoints
	}
	return nil
}

// UnlockResult is the state after an unlock plus the skills it opened up.
type UnlockResult struct {
	State           State
	Skill           *Skill
	NewlyUnlockable []string
}

// Unlock spends points on skill id. Failures are checked in order:
// not found, already unlocked, prerequisites, points.
func (f *Forest) Unlock(s State, id string) (UnlockResult, error) {
	sk, err := f.Get(id)
	if err != nil {
		return UnlockResult{}, err
	}
	if err := check(sk, s.Unlocked, s.Available()); err != nil {
		return UnlockResult{}, err
	}
	before := f.unlockable(s)
	out := s.clone()
	out.Unlocked[sk.ID] = true
	out.Spent += sk.Cost

	var opened []string
	for _, cand := range f.unlockable(out) {
		if !contains(before, cand) {
			opened = append(opened, cand)
		}
	}
	return UnlockResult{State: out, Skill: sk, NewlyUnlockable: opened}, nil
}

// Reset refunds every spent point and clears the unlocked set.
// It returns the refunded amount.
func Reset(s State) (State, int, error) {
	if s.Spent == 0 {
		return s, 0, game.ErrNothingToReset
	}
	refund := s.Spent
	return State{Unlocked: map[string]bool{}, Granted: s.Granted, Spent: 0}, refund, nil
}

func (f *Forest) unlockable(s State) []string {
	var out []string
	avail := s.Available()
	for _, id := range f.order {
		if CanUnlock(f.skills[id], s.Unlocked, avail) {
			out = append(out, id)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ---- Views ----

// NodeView is one skill as shown to the user.
type NodeView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Cost          int      `json:"cost"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	Unlocked      bool     `json:"unlocked"`
	CanUnlock     bool     `json:"can_unlock"`
}

// TreeView is one tree with its completion.
type TreeView struct {
	Tree     string     `json:"tree"`
	Unlocked int        `json:"unlocked"`
	Total    int        `json:"total"`
	Percent  int        `json:"percent"`
	Skills   []NodeView `json:"skills"`
}

// View is the full skill screen for a user.
type View struct {
	Available int        `json:"available_points"`
	Spent     int        `json:"spent_points"`
	Granted   int        `json:"granted_points"`
	Trees     []TreeView `json:"trees"`
}

// View renders every tree with per-skill can_unlock flags and completion.
func (f *Forest) View(s State) View {
	v := View{Available: s.Available(), Spent: s.Spent, Granted: s.Granted}
	for _, tree := range f.trees {
		tv := TreeView{Tree: tree}
		for _, sk := range f.byTree[tree] {
			unlocked := s.Unlocked[sk.ID]
			if unlocked {
				tv.Unlocked++
			}
			tv.Skills = append(tv.Skills, NodeView{
				ID:            sk.ID,
				Name:          sk.Name,
				Description:   sk.Description,
				Cost:          sk.Cost,
				Prerequisites: sk.Prerequisites,
				Unlocked:      unlocked,
				CanUnlock:     CanUnlock(sk, s.Unlocked, v.Available),
			})
		}
		tv.Total = len(tv.Skills)
		if tv.Total > 0 {
			tv.Percent = int(math.Round(float64(tv.Unlocked) / float64(tv.Total) * 100))
		}
		v.Trees = append(v.Trees, tv)
	}
	return v
}
