package state

import "fmt"

// Pattern names a behavioral tendency inferred from the player's choices.
type Pattern string

const (
	PatternAnalytical Pattern = "analytical"
	PatternPatience   Pattern = "patience"
	PatternExploring  Pattern = "exploring"
	PatternHelping    Pattern = "helping"
	PatternBuilding   Pattern = "building"
)

// AllPatterns lists every pattern in display order.
var AllPatterns = []Pattern{
	PatternAnalytical,
	PatternPatience,
	PatternExploring,
	PatternHelping,
	PatternBuilding,
}

// ParsePattern validates a pattern name.
func ParsePattern(name string) (Pattern, error) {
	for _, p := range AllPatterns {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown pattern %q", name)
}

// Patterns holds the accumulator for each pattern. Values only grow.
type Patterns struct {
	Analytical int `json:"analytical"`
	Patience   int `json:"patience"`
	Exploring  int `json:"exploring"`
	Helping    int `json:"helping"`
	Building   int `json:"building"`
}

// Get returns the score for p, or 0 for an unknown pattern.
func (ps Patterns) Get(p Pattern) int {
	switch p {
	case PatternAnalytical:
		return ps.Analytical
	case PatternPatience:
		return ps.Patience
	case PatternExploring:
		return ps.Exploring
	case PatternHelping:
		return ps.Helping
	case PatternBuilding:
		return ps.Building
	}
	return 0
}

// add returns a copy with delta added to p. Unknown patterns and
// non-positive deltas leave the scores unchanged.
func (ps Patterns) add(p Pattern, delta int) Patterns {
	if delta <= 0 {
		return ps
	}
	switch p {
	case PatternAnalytical:
		ps.Analytical += delta
	case PatternPatience:
		ps.Patience += delta
	case PatternExploring:
		ps.Exploring += delta
	case PatternHelping:
		ps.Helping += delta
	case PatternBuilding:
		ps.Building += delta
	}
	return ps
}

// Dominant returns the highest-scoring pattern, breaking ties by display
// order. ok is false when every score is zero.
func (ps Patterns) Dominant() (p Pattern, ok bool) {
	best := 0
	for _, candidate := range AllPatterns {
		if v := ps.Get(candidate); v > best {
			best = v
			p = candidate
			ok = true
		}
	}
	return p, ok
}
