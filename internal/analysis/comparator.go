package analysis

import "sort"

// MatchStatus is one of the five terminal classification labels.
type MatchStatus string

const (
	StatusMatch            MatchStatus = "match"
	StatusMismatchDistrict MatchStatus = "mismatch-district"
	StatusMismatchPrecinct MatchStatus = "mismatch-precinct"
	StatusMismatchBoth     MatchStatus = "mismatch-both"
	StatusUnableToAnalyze  MatchStatus = "unable-to-analyze"
)

// MismatchDetail describes one differing boundary type. DeterminedValue is
// nil when no boundary of that type contained the voter's point (boundary
// data gap), which still counts as a mismatch.
type MismatchDetail struct {
	Type            string  `json:"type"`
	RegisteredValue string  `json:"registered_value"`
	DeterminedValue *string `json:"determined_value"`
}

// Comparator classifies a voter's registered assignments against the
// assignments determined from geometry. Pure function of its inputs.
type Comparator struct {
	Classes *ClassTable
}

// Classify returns exactly one of the five statuses plus per-type mismatch
// details ordered by boundary type name, so identical inputs always produce
// byte-identical output. An empty determined map means the voter had no
// usable point and is unable-to-analyze; types missing from determined while
// others are present are mismatches with a nil determined value.
func (c *Comparator) Classify(registered, determined map[string]string) (MatchStatus, []MismatchDetail) {
	if len(determined) == 0 {
		return StatusUnableToAnalyze, nil
	}

	types := make([]string, 0, len(registered))
	for t := range registered {
		types = append(types, t)
	}
	sort.Strings(types)

	var (
		details          []MismatchDetail
		districtMismatch bool
		precinctMismatch bool
	)
	for _, t := range types {
		regVal := registered[t]
		detVal, ok := determined[t]
		if ok && detVal == regVal {
			continue
		}

		d := MismatchDetail{Type: t, RegisteredValue: regVal}
		if ok {
			v := detVal
			d.DeterminedValue = &v
		}
		details = append(details, d)

		switch c.Classes.ClassOf(t) {
		case ClassPrecinct:
			precinctMismatch = true
		default:
			districtMismatch = true
		}
	}

	switch {
	case len(details) == 0:
		return StatusMatch, nil
	case districtMismatch && precinctMismatch:
		return StatusMismatchBoth, details
	case precinctMismatch:
		return StatusMismatchPrecinct, details
	default:
		return StatusMismatchDistrict, details
	}
}
