// Package level maps cumulative XP to a level on a fixed, strictly
// increasing curve and reports progress within the current level band.
package level

import (
	"fmt"
	"math"
	"sort"
)

const (
	DefaultBase     = 100.0
	DefaultExponent = 1.5
	DefaultMaxLevel = 50
)

// Curve holds the cumulative XP required to reach each level.
// thresholds[i] is the XP needed for level i+1, so thresholds[0] is always 0.
type Curve struct {
	thresholds []int64
}

// Progress describes where an XP total sits inside its level band.
type Progress struct {
	Level    int   `json:"level"`
	Current  int64 `json:"current"`
	Required int64 `json:"required"`
	Percent  int   `json:"percent"`
	Max      bool  `json:"max"`
}

// NewCurve builds a curve where level L needs ceil(base*(L-1)^exponent)
// cumulative XP. Rounding collisions are pushed up by one so every level
// needs strictly more XP than the level below it.
func NewCurve(base, exponent float64, maxLevel int) (*Curve, error) {
	if maxLevel < 1 {
		return nil, fmt.Errorf("level: max level must be >= 1, got %d", maxLevel)
	}
	if base <= 0 || exponent <= 0 {
		return nil, fmt.Errorf("level: base and exponent must be positive (base=%v exponent=%v)", base, exponent)
	}
	th := make([]int64, maxLevel)
	for l := 2; l <= maxLevel; l++ {
		need := int64(math.Ceil(base * math.Pow(float64(l-1), exponent)))
		if need <= th[l-2] {
			need = th[l-2] + 1
		}
		th[l-1] = need
	}
	return &Curve{thresholds: th}, nil
}

// DefaultCurve returns the curve built from the package defaults.
func DefaultCurve() *Curve {
	c, _ := NewCurve(DefaultBase, DefaultExponent, DefaultMaxLevel)
	return c
}

// MaxLevel returns the highest reachable level.
func (c *Curve) MaxLevel() int { return len(c.thresholds) }

// XPForLevel returns the cumulative XP required to reach level l.
// Levels outside [1, MaxLevel] are clamped.
func (c *Curve) XPForLevel(l int) int64 {
	if l <= 1 {
		return 0
	}
	if l > len(c.thresholds) {
		l = len(c.thresholds)
	}
	return c.thresholds[l-1]
}

// Level returns the level reached with totalXP. Negative totals map to 1.
func (c *Curve) Level(totalXP int64) int {
	if totalXP <= 0 {
		return 1
	}
	// first index whose threshold exceeds totalXP
	i := sort.Search(len(c.thresholds), func(i int) bool { return c.thresholds[i] > totalXP })
	return i
}

// Progress reports progress for totalXP at its derived level.
func (c *Curve) Progress(totalXP int64) Progress {
	return c.ProgressAt(totalXP, c.Level(totalXP))
}

// ProgressAt reports progress for totalXP within the band of level lvl.
// At MaxLevel the band has no upper edge and the max sentinel is returned.
func (c *Curve) ProgressAt(totalXP int64, lvl int) Progress {
	if lvl < 1 {
		lvl = 1
	}
	if lvl >= c.MaxLevel() {
		return Progress{Level: c.MaxLevel(), Current: totalXP - c.XPForLevel(c.MaxLevel()), Required: 0, Percent: 100, Max: true}
	}
	floor := c.XPForLevel(lvl)
	required := c.XPForLevel(lvl+1) - floor
	current := totalXP - floor
	if current < 0 {
		current = 0
	}
	pct := int(math.Round(float64(current) / float64(required) * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return Progress{Level: lvl, Current: current, Required: required, Percent: pct}
}

// LevelsGained returns how many levels are crossed moving from before to after.
func (c *Curve) LevelsGained(before, after int64) int {
	d := c.Level(after) - c.Level(before)
	if d < 0 {
		return 0
	}
	return d
}
