// Package mileage estimates how far a vehicle travels per day from the
// odometer readings taken at its finalized service visits, and projects
// that estimate forward to decide when a vehicle is due for contact.
package mileage

import (
	"sort"
	"time"
)

// Visit is one finalized service visit with its odometer reading.
type Visit struct {
	ID         int64     `json:"id"`
	FinishedAt time.Time `json:"finished_at"`
	OdometerKM int64     `json:"odometer_km"`
}

// Profile is the derived mileage state persisted on a vehicle.
type Profile struct {
	VehicleID  int64    `json:"vehicle_id"`
	AvgDailyKM *float64 `json:"avg_daily_km"`
}

const day = 24 * time.Hour

// wholeDays returns the number of whole days in d, rounding toward negative
// infinity so that a reading a few hours in the future counts as -1.
func wholeDays(d time.Duration) int {
	days := int(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}

// SortByFinish orders visits by finish time, keeping the original order for ties.
func SortByFinish(visits []Visit) []Visit {
	out := make([]Visit, len(visits))
	copy(out, visits)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.Before(out[j].FinishedAt)
	})
	return out
}
