// Package plate normalizes Brazilian license plates and pairs legacy plates
// with the Mercosul plates they were converted to.
package plate

import (
	"sort"
	"strings"
)

const plateLen = 7

// Clean uppercases p and strips everything except letters and digits.
func Clean(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	for _, r := range strings.ToUpper(p) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsLegacy reports whether a cleaned plate uses the pre-Mercosul layout (AAA9999).
func IsLegacy(cleaned string) bool {
	return len(cleaned) == plateLen && isDigit(cleaned[4])
}

// IsMercosul reports whether a cleaned plate uses the Mercosul layout (AAA9A99).
func IsMercosul(cleaned string) bool {
	return len(cleaned) == plateLen && isLetter(cleaned[4])
}

// Normalize renders legacy plates as AAA-9999; Mercosul and unrecognised
// plates are returned cleaned with no separator.
func Normalize(p string) string {
	cleaned := Clean(p)
	if IsLegacy(cleaned) {
		return cleaned[:3] + "-" + cleaned[3:]
	}
	return cleaned
}

// ToMercosul converts a legacy plate to its Mercosul form by replacing the
// fifth character, a digit d, with the letter 'A'+d.
func ToMercosul(p string) (string, bool) {
	cleaned := Clean(p)
	if !IsLegacy(cleaned) {
		return "", false
	}
	letter := 'A' + rune(cleaned[4]-'0')
	return cleaned[:4] + string(letter) + cleaned[5:], true
}

// Vehicle is the minimal view of a vehicle needed for pairing.
type Vehicle struct {
	ID    int64  `json:"id"`
	Plate string `json:"plate"`
}

// Pair links a vehicle registered under a legacy plate with the vehicle
// registered under its Mercosul conversion.
type Pair struct {
	Old Vehicle `json:"old"`
	New Vehicle `json:"new"`
}

// Pairs finds every legacy/Mercosul pair among vehicles, ordered by the old
// vehicle's plate.
func Pairs(vehicles []Vehicle) []Pair {
	byPlate := make(map[string][]Vehicle, len(vehicles))
	for _, v := range vehicles {
		cleaned := Clean(v.Plate)
		if IsMercosul(cleaned) {
			byPlate[cleaned] = append(byPlate[cleaned], v)
		}
	}

	pairs := make([]Pair, 0)
	for _, v := range vehicles {
		converted, ok := ToMercosul(v.Plate)
		if !ok {
			continue
		}
		for _, nv := range byPlate[converted] {
			pairs = append(pairs, Pair{Old: v, New: nv})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return Clean(pairs[i].Old.Plate) < Clean(pairs[j].Old.Plate)
	})
	return pairs
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }
