package state

import "sort"

// StringSet is a set of unique strings. Insertion is idempotent.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given values, dropping duplicates.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order. Never nil.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// with returns s unchanged when every value is already a member, otherwise a
// copy with the values added. changed reports which case applied.
func (s StringSet) with(values ...string) (out StringSet, changed bool) {
	missing := false
	for _, v := range values {
		if v != "" && !s.Has(v) {
			missing = true
			break
		}
	}
	if !missing {
		return s, false
	}
	out = make(StringSet, len(s)+len(values))
	for v := range s {
		out[v] = struct{}{}
	}
	for _, v := range values {
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out, true
}

// without returns s unchanged when no value is a member, otherwise a copy
// with the values removed. changed reports which case applied.
func (s StringSet) without(values ...string) (out StringSet, changed bool) {
	present := false
	for _, v := range values {
		if s.Has(v) {
			present = true
			break
		}
	}
	if !present {
		return s, false
	}
	out = make(StringSet, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	for _, v := range values {
		delete(out, v)
	}
	return out, true
}
