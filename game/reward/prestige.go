package reward

import (
	"math"

	"github.com/framecraft/engagement/game"
)

const (
	DefaultMaxPrestige    = 10
	DefaultMultiplierStep = 0.1
)

// PrestigePolicy bounds the prestige ladder.
type PrestigePolicy struct {
	MaxPrestige    int
	MultiplierStep float64
}

// DefaultPrestigePolicy returns the package defaults.
func DefaultPrestigePolicy() PrestigePolicy {
	return PrestigePolicy{MaxPrestige: DefaultMaxPrestige, MultiplierStep: DefaultMultiplierStep}
}

// CanPrestige reports nil when a user at level with tier may prestige.
func (p PrestigePolicy) CanPrestige(level, maxLevel, tier int) error {
	if level < maxLevel || tier >= p.MaxPrestige {
		return game.ErrNotEligible
	}
	return nil
}

// Prestige returns the new tier. The caller resets cycle XP to zero.
func (p PrestigePolicy) Prestige(level, maxLevel, tier int) (int, error) {
	if err := p.CanPrestige(level, maxLevel, tier); err != nil {
		return tier, err
	}
	return tier + 1, nil
}

// Multiplier is the permanent XP multiplier for a tier.
func (p PrestigePolicy) Multiplier(tier int) float64 {
	if tier <= 0 {
		return 1
	}
	return 1 + float64(tier)*p.MultiplierStep
}

// Apply scales a base award by the tier multiplier, rounding to the
// nearest point.
func (p PrestigePolicy) Apply(amount int64, tier int) int64 {
	if amount <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * p.Multiplier(tier)))
}
