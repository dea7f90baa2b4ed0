package signal

import "github.com/mcdev12/signalboard/go/internal/models"

// AdjustmentTables maps a congestion level to the timing applied to auto-controlled lights.
type AdjustmentTables map[models.CongestionLevel]models.Timing

// DefaultAdjustments returns the reference duration tables.
func DefaultAdjustments() AdjustmentTables {
	return AdjustmentTables{
		models.CongestionLow:      {Green: 20, Yellow: 5, Red: 50},
		models.CongestionMedium:   {Green: 30, Yellow: 5, Red: 40},
		models.CongestionHigh:     {Green: 45, Yellow: 5, Red: 30},
		models.CongestionVeryHigh: {Green: 60, Yellow: 5, Red: 20},
	}
}

// Lookup returns the table for level and the level it was taken from.
// Unknown and unrecognized levels fall back to medium.
func (t AdjustmentTables) Lookup(level models.CongestionLevel) (models.Timing, models.CongestionLevel) {
	if level != models.CongestionUnknown {
		if timing, ok := t[level]; ok {
			return timing, level
		}
	}
	return t[models.CongestionMedium], models.CongestionMedium
}
