// Package integrity checks a set of dialogue graphs for content that no
// player can reach and for links that point nowhere.
package integrity

import (
	"fmt"
	"slices"
	"sort"

	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
)

// DefaultMaxIterations bounds the cross-graph fixed point.
const DefaultMaxIterations = 64

type Options struct {
	EntryPoints   []string // Extra roots, e.g. nodes the application routes to directly
	MaxIterations int
}

// BrokenLink is an edge whose target is not defined in any graph.
type BrokenLink struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// Report is the result of Analyze. Every list is sorted; maps are keyed by
// graph ID and omit graphs without entries.
type Report struct {
	Graphs       []string                `json:"graphs"`
	Roots        map[string][]string     `json:"roots"`
	Reachable    map[string][]string     `json:"reachable"`
	Unreachable  map[string][]string     `json:"unreachable"`
	Unreferenced map[string][]string     `json:"unreferenced"`
	BrokenLinks  map[string][]BrokenLink `json:"broken_links"`
	Iterations   int                     `json:"iterations"`
	Converged    bool                    `json:"converged"`
}

type set map[string]struct{}

func (s set) add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s set) has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Analyze computes per-graph reachability, unreferenced nodes and broken
// links. Edges are structural only: conditions on choices are ignored.
//
// A node reached in one graph that links into another graph makes the
// target an extra root of that graph; this repeats until no graph gains a
// root or MaxIterations is hit.
func Analyze(graphs []*dialogue.Graph, opts Options) *Report {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	owner := make(map[string]string)
	nodes := make(map[string]*dialogue.Node)
	for _, g := range graphs {
		for _, n := range g.Nodes {
			if n == nil {
				continue
			}
			if _, dup := owner[n.ID]; dup {
				continue
			}
			owner[n.ID] = g.ID
			nodes[n.ID] = n
		}
	}

	declared := declaredRoots(graphs, owner, opts.EntryPoints)
	roots := make(map[string]set, len(graphs))
	for _, g := range graphs {
		roots[g.ID] = set{}
		for id := range declared[g.ID] {
			roots[g.ID].add(id)
		}
	}

	r := &Report{
		Roots:        map[string][]string{},
		Reachable:    map[string][]string{},
		Unreachable:  map[string][]string{},
		Unreferenced: map[string][]string{},
		BrokenLinks:  map[string][]BrokenLink{},
	}

	var reached map[string]set
	for r.Iterations < maxIter {
		r.Iterations++
		reached = make(map[string]set, len(graphs))
		for _, g := range graphs {
			reached[g.ID] = reach(g.ID, roots[g.ID], nodes, owner)
		}

		grew := false
		for _, g := range graphs {
			for id := range reached[g.ID] {
				for _, e := range nodes[id].Edges() {
					target, ok := owner[e.To]
					if ok && target != g.ID && roots[target].add(e.To) {
						grew = true
					}
				}
			}
		}
		if !grew {
			r.Converged = true
			break
		}
	}

	referenced := set{}
	for _, g := range graphs {
		for _, n := range g.Nodes {
			if n == nil || owner[n.ID] != g.ID {
				continue
			}
			for _, e := range n.Edges() {
				referenced.add(e.To)
				if _, ok := owner[e.To]; !ok {
					r.BrokenLinks[g.ID] = append(r.BrokenLinks[g.ID], BrokenLink{From: e.From, To: e.To, Reason: e.Reason})
				}
			}
		}
	}

	for _, g := range graphs {
		r.Graphs = append(r.Graphs, g.ID)
		r.Roots[g.ID] = roots[g.ID].sorted()
		r.Reachable[g.ID] = reached[g.ID].sorted()

		var unreachable, unreferenced []string
		for _, n := range g.Nodes {
			if n == nil || owner[n.ID] != g.ID {
				continue
			}
			if !reached[g.ID].has(n.ID) {
				unreachable = append(unreachable, n.ID)
			}
			if !referenced.has(n.ID) && !declared[g.ID].has(n.ID) {
				unreferenced = append(unreferenced, n.ID)
			}
		}
		if len(unreachable) > 0 {
			sort.Strings(unreachable)
			r.Unreachable[g.ID] = unreachable
		}
		if len(unreferenced) > 0 {
			sort.Strings(unreferenced)
			r.Unreferenced[g.ID] = unreferenced
		}
		if links := r.BrokenLinks[g.ID]; len(links) > 0 {
			sort.Slice(links, func(i, j int) bool {
				if links[i].From != links[j].From {
					return links[i].From < links[j].From
				}
				if links[i].To != links[j].To {
					return links[i].To < links[j].To
				}
				return links[i].Reason < links[j].Reason
			})
		}
	}
	sort.Strings(r.Graphs)
	return r
}

// AnalyzeLibrary analyzes every graph mounted in lib.
func AnalyzeLibrary(lib *dialogue.Library, opts Options) *Report {
	return Analyze(lib.Graphs(), opts)
}

// declaredRoots collects, per graph, the start node, declared and extra
// entry points, pattern-unlock nodes and simulation hosts.
func declaredRoots(graphs []*dialogue.Graph, owner map[string]string, extra []string) map[string]set {
	out := make(map[string]set, len(graphs))
	for _, g := range graphs {
		out[g.ID] = set{}
	}
	addOwned := func(graphID, id string) {
		if owner[id] == graphID {
			out[graphID].add(id)
		}
	}
	for _, g := range graphs {
		addOwned(g.ID, g.StartNode)
		for _, id := range g.EntryPoints {
			addOwned(g.ID, id)
		}
		for _, n := range g.Nodes {
			if n != nil && (n.PatternUnlock != nil || n.Simulation != nil) {
				addOwned(g.ID, n.ID)
			}
		}
	}
	for _, id := range extra {
		if graphID, ok := owner[id]; ok {
			out[graphID].add(id)
		}
	}
	return out
}

// reach runs a breadth-first walk within one graph. Edges leaving the graph
// are not followed.
func reach(graphID string, roots set, nodes map[string]*dialogue.Node, owner map[string]string) set {
	seen := set{}
	queue := roots.sorted()
	for _, id := range queue {
		seen.add(id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range nodes[id].Edges() {
			if owner[e.To] == graphID && seen.add(e.To) {
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

// Issues flattens the report into stable keys for baseline comparison.
func (r *Report) Issues() []string {
	var out []string
	for graphID, ids := range r.Unreachable {
		for _, id := range ids {
			out = append(out, fmt.Sprintf("unreachable:%s:%s", graphID, id))
		}
	}
	for graphID, ids := range r.Unreferenced {
		for _, id := range ids {
			out = append(out, fmt.Sprintf("unreferenced:%s:%s", graphID, id))
		}
	}
	for graphID, links := range r.BrokenLinks {
		for _, l := range links {
			out = append(out, fmt.Sprintf("broken_link:%s:%s->%s", graphID, l.From, l.To))
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}
