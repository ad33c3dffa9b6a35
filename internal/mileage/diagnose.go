package mileage

// Check records the decision taken for one visit during the monotonic scan.
type Check struct {
	Visit       Visit `json:"visit"`
	LastValidKM int64 `json:"last_valid_km"`
	Accepted    bool  `json:"accepted"`
}

// Diagnosis is a step-by-step account of how an estimate was reached.
type Diagnosis struct {
	Raw          []Visit  `json:"raw"`
	Deduplicated []Visit  `json:"deduplicated"`
	Checks       []Check  `json:"checks"`
	Estimate     Estimate `json:"estimate"`
}

// Diagnose runs the same steps as EstimateHistory while keeping every
// intermediate result, for operators chasing an unexpected average.
func Diagnose(visits []Visit) Diagnosis {
	d := Diagnosis{Raw: visits, Deduplicated: DedupeOdometer(visits)}

	valid := make([]Visit, 0, len(d.Deduplicated))
	lastValid := int64(-1)
	for _, v := range d.Deduplicated {
		c := Check{Visit: v, LastValidKM: lastValid}
		if v.OdometerKM > lastValid {
			c.Accepted = true
			valid = append(valid, v)
			lastValid = v.OdometerKM
		}
		d.Checks = append(d.Checks, c)
	}

	d.Estimate = estimateGroup(valid, len(visits))
	return d
}
