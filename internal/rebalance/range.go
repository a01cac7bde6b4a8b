package rebalance

import (
	"math"

	"github.com/trogers1052/positions-dashboard/internal/models"
)

// DeltaPercent converts a signed delta fraction to its percentage magnitude, e.g. -0.25 → 25
func DeltaPercent(delta float64) float64 {
	return math.Abs(delta) * 100
}

// IsDeltaInRange reports whether delta lies inside the configured delta range.
// A position without settings has no restriction and is always in range.
func IsDeltaInRange(settings *models.RebalanceSettings, delta float64) bool {
	if settings == nil {
		return true
	}
	return settings.DeltaRange().Contains(DeltaPercent(delta))
}
