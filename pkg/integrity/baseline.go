package integrity

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"
)

const BaselineVersion = 1

// Baseline is the stored list of known issues. Only issues missing from it
// fail a run.
type Baseline struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Issues    []string  `json:"issues"`
}

// NewBaseline captures the issues of r.
func NewBaseline(r *Report, now time.Time) *Baseline {
	issues := r.Issues()
	if issues == nil {
		issues = []string{}
	}
	return &Baseline{Version: BaselineVersion, CreatedAt: now.UTC(), Issues: issues}
}

// LoadBaseline reads a baseline file. A missing file is reported with an
// error satisfying errors.Is(err, os.ErrNotExist).
func LoadBaseline(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse baseline %s: %w", path, err)
	}
	sort.Strings(b.Issues)
	return &b, nil
}

// Save writes the baseline as indented JSON.
func (b *Baseline) Save(path string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write baseline: %w", err)
	}
	return nil
}

// Diff compares current issues with the baseline. Added issues are
// regressions; resolved ones are baseline entries that no longer occur.
type Diff struct {
	Added    []string `json:"added"`
	Resolved []string `json:"resolved"`
}

// Regressed reports whether any new issue appeared.
func (d Diff) Regressed() bool { return len(d.Added) > 0 }

func Compare(current []string, baseline *Baseline) Diff {
	known := make(map[string]bool, len(baseline.Issues))
	for _, issue := range baseline.Issues {
		known[issue] = true
	}
	seen := make(map[string]bool, len(current))
	d := Diff{Added: []string{}, Resolved: []string{}}
	for _, issue := range current {
		seen[issue] = true
		if !known[issue] {
			d.Added = append(d.Added, issue)
		}
	}
	for _, issue := range baseline.Issues {
		if !seen[issue] {
			d.Resolved = append(d.Resolved, issue)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Resolved)
	d.Added = slices.Compact(d.Added)
	d.Resolved = slices.Compact(d.Resolved)
	return d
}
