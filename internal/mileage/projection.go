package mileage

import (
	"fmt"
	"strings"
	"time"
)

// Projection extrapolates a vehicle's odometer from its last visit.
type Projection struct {
	DaysElapsed         int     `json:"days_elapsed"`
	EstimatedOdometerKM float64 `json:"estimated_odometer_km"`
	DistanceSinceLastKM float64 `json:"distance_since_last_km"`
}

// Project estimates where the odometer stands at now, assuming the vehicle
// kept driving avgDailyKM per day since its last visit.
func Project(avgDailyKM float64, last Visit, now time.Time) Projection {
	days := wholeDays(now.Sub(last.FinishedAt))
	estimated := float64(last.OdometerKM) + float64(days)*avgDailyKM
	return Projection{
		DaysElapsed:         days,
		EstimatedOdometerKM: estimated,
		DistanceSinceLastKM: estimated - float64(last.OdometerKM),
	}
}

// Mode selects which trigger a DueRule evaluates.
type Mode string

const (
	// ModeDistance flags vehicles by projected distance since the last visit.
	ModeDistance Mode = "distance"
	// ModeElapsed flags vehicles by days since the last visit.
	ModeElapsed Mode = "elapsed"
)

// ParseMode accepts the two trigger modes by name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDistance:
		return ModeDistance, nil
	case ModeElapsed:
		return ModeElapsed, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// DueRule decides whether a projection warrants contacting the vehicle.
// Only the threshold matching Mode is consulted.
type DueRule struct {
	Mode          Mode
	ThresholdKM   float64
	ThresholdDays int
}

// Due reports whether p exceeds the rule's threshold.
func (r DueRule) Due(p Projection) bool {
	switch r.Mode {
	case ModeDistance:
		return p.DistanceSinceLastKM > r.ThresholdKM
	case ModeElapsed:
		return p.DaysElapsed > r.ThresholdDays
	default:
		return false
	}
}

// Metric is the value the rule's mode sorts by.
func (r DueRule) Metric(p Projection) float64 {
	if r.Mode == ModeElapsed {
		return float64(p.DaysElapsed)
	}
	return p.DistanceSinceLastKM
}

// DaysPerMonth is the month length used for elapsed-time thresholds.
const DaysPerMonth = 30

// MaxThresholdDays caps elapsed-time thresholds at roughly ten years.
const MaxThresholdDays = 3650

// ThresholdDaysFor converts a threshold expressed in days or months to days.
// The result never exceeds MaxThresholdDays.
func ThresholdDaysFor(value int, unit string) (int, error) {
	if value <= 0 {
		return 0, fmt.Errorf("threshold must be positive, got %d", value)
	}
	perUnit := 1
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "months", "month":
		perUnit = DaysPerMonth
	case "days", "day", "":
	default:
		return 0, fmt.Errorf("unknown time unit %q", unit)
	}
	if value > MaxThresholdDays/perUnit {
		return 0, fmt.Errorf("threshold exceeds %d days", MaxThresholdDays)
	}
	return value * perUnit, nil
}
