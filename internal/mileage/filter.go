package mileage

// DedupeOdometer drops every visit whose odometer reading appears again later
// in the sequence, so only the last occurrence of each reading survives.
func DedupeOdometer(visits []Visit) []Visit {
	lastIndex := make(map[int64]int, len(visits))
	for i, v := range visits {
		lastIndex[v.OdometerKM] = i
	}

	out := make([]Visit, 0, len(lastIndex))
	for i, v := range visits {
		if lastIndex[v.OdometerKM] == i {
			out = append(out, v)
		}
	}
	return out
}

// ValidGroup returns the plausible mileage progression of a vehicle.
//
// Visits must be sorted by finish time and carry positive readings. After
// duplicate readings are collapsed, a single left-to-right pass keeps a visit
// only when its reading is strictly greater than the highest reading kept so
// far. The pass is greedy: one early reading that is too high hides every
// later visit below it until the history is corrected by hand.
func ValidGroup(visits []Visit) []Visit {
	deduped := DedupeOdometer(visits)

	valid := make([]Visit, 0, len(deduped))
	lastValid := int64(-1)
	for _, v := range deduped {
		if v.OdometerKM > lastValid {
			valid = append(valid, v)
			lastValid = v.OdometerKM
		}
	}
	return valid
}
