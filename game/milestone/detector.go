// Package milestone detects one-time thresholds crossed by tracked stats.
package milestone

import (
	"fmt"
	"sort"
)

// Category names a tracked stat.
type Category string

const (
	CategoryDeliveries      Category = "deliveries"
	CategoryBookings        Category = "bookings"
	CategoryClients         Category = "clients"
	CategoryInvoicesPaid    Category = "invoices_paid"
	CategoryContractsSigned Category = "contracts_signed"
	CategoryLoginStreak     Category = "login_streak"
	CategoryDeliveryStreak  Category = "delivery_streak"
	CategoryLevel           Category = "level"
)

var categories = map[Category]bool{
	CategoryDeliveries:      true,
	CategoryBookings:        true,
	CategoryClients:         true,
	CategoryInvoicesPaid:    true,
	CategoryContractsSigned: true,
	CategoryLoginStreak:     true,
	CategoryDeliveryStreak:  true,
	CategoryLevel:           true,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return categories[c] }

// Counter reports whether the category is a stat users record directly
// rather than one derived from streaks or level.
func (c Category) Counter() bool {
	switch c {
	case CategoryLoginStreak, CategoryDeliveryStreak, CategoryLevel:
		return false
	}
	return c.Valid()
}

// Milestone is one catalog entry.
type Milestone struct {
	ID        string   `json:"id" toml:"id"`
	Category  Category `json:"category" toml:"category"`
	Threshold int64    `json:"threshold" toml:"threshold"`
	Title     string   `json:"title" toml:"title"`
	RewardXP  int64    `json:"reward_xp" toml:"reward_xp"`
}

// Detector indexes a milestone catalog by category.
type Detector struct {
	byID       map[string]*Milestone
	byCategory map[Category][]*Milestone
}

// NewDetector validates the catalog and builds the index.
func NewDetector(defs []*Milestone) (*Detector, error) {
	d := &Detector{
		byID:       make(map[string]*Milestone, len(defs)),
		byCategory: make(map[Category][]*Milestone),
	}
	for _, m := range defs {
		if m == nil {
			continue
		}
		if m.ID == "" {
			return nil, fmt.Errorf("milestone: empty id")
		}
		if !m.Category.Valid() {
			return nil, fmt.Errorf("milestone %q: unknown category %q", m.ID, m.Category)
		}
		if m.Threshold <= 0 {
			return nil, fmt.Errorf("milestone %q: threshold must be positive", m.ID)
		}
		if _, dup := d.byID[m.ID]; dup {
			return nil, fmt.Errorf("milestone %q: duplicate id", m.ID)
		}
		d.byID[m.ID] = m
		d.byCategory[m.Category] = append(d.byCategory[m.Category], m)
	}
	for _, list := range d.byCategory {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Threshold < list[j].Threshold })
	}
	return d, nil
}

// Get looks up a milestone by id.
func (d *Detector) Get(id string) (*Milestone, bool) {
	m, ok := d.byID[id]
	return m, ok
}

// Len returns the catalog size.
func (d *Detector) Len() int { return len(d.byID) }

// All returns every milestone of a category in ascending threshold order.
func (d *Detector) All(c Category) []*Milestone {
	return d.byCategory[c]
}

// Crossed returns every milestone in category c with before < threshold <= after
// that is not yet in awarded, ascending by threshold.
func (d *Detector) Crossed(c Category, before, after int64, awarded map[string]bool) []*Milestone {
	if after <= before {
		return nil
	}
	var out []*Milestone
	for _, m := range d.byCategory[c] {
		if m.Threshold > after {
			break
		}
		if m.Threshold <= before || awarded[m.ID] {
			continue
		}
		out = append(out, m)
	}
	return out
}
