package mileage

// MinVisits is the smallest valid group that yields an estimate.
const MinVisits = 2

// Reason explains the outcome of an estimate.
type Reason string

const (
	ReasonOK                 Reason = "ok"
	ReasonNoVisits           Reason = "no_visits"
	ReasonInsufficientVisits Reason = "insufficient_visits"
	ReasonZeroDays           Reason = "zero_days"
)

// Estimate is the result of running the filter and the rate calculation
// over one vehicle's history.
type Estimate struct {
	Valid      []Visit  `json:"valid"`
	DeltaKM    int64    `json:"delta_km"`
	DeltaDays  int      `json:"delta_days"`
	AvgDailyKM *float64 `json:"avg_daily_km"`
	Reason     Reason   `json:"reason"`
}

// Present reports whether an average is available.
func (e Estimate) Present() bool {
	return e.AvgDailyKM != nil
}

// AverageDailyKM computes the distance per day between the first and last
// visits of a valid group. It reports false when the group has fewer than
// two visits or both ends fall within the same whole day.
func AverageDailyKM(valid []Visit) (float64, bool) {
	e := estimateGroup(valid, len(valid))
	if e.AvgDailyKM == nil {
		return 0, false
	}
	return *e.AvgDailyKM, true
}

// EstimateHistory filters a sorted visit history and estimates its average.
func EstimateHistory(visits []Visit) Estimate {
	return estimateGroup(ValidGroup(visits), len(visits))
}

func estimateGroup(valid []Visit, raw int) Estimate {
	e := Estimate{Valid: valid}
	switch {
	case raw == 0:
		e.Reason = ReasonNoVisits
		return e
	case len(valid) < MinVisits:
		e.Reason = ReasonInsufficientVisits
		return e
	}

	first, last := valid[0], valid[len(valid)-1]
	e.DeltaKM = last.OdometerKM - first.OdometerKM
	e.DeltaDays = wholeDays(last.FinishedAt.Sub(first.FinishedAt))
	if e.DeltaDays <= 0 {
		e.Reason = ReasonZeroDays
		return e
	}

	avg := float64(e.DeltaKM) / float64(e.DeltaDays)
	e.AvgDailyKM = &avg
	e.Reason = ReasonOK
	return e
}
