package dialogue

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDuplicateNode = errors.New("duplicate node id")
	ErrNodeNotFound  = errors.New("node not found")
	ErrGraphNotFound = errors.New("graph not found")
)

// Library mounts several graphs as one node namespace. Node IDs are unique
// across every mounted graph. A Library is safe for concurrent reads.
type Library struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
	order  []string
	nodes  map[string]*Node
}

func NewLibrary() *Library {
	return &Library{
		graphs: make(map[string]*Graph),
		nodes:  make(map[string]*Node),
	}
}

// Mount compiles and adds graphs. Either all graphs are mounted or, on any
// error, none are.
func (l *Library) Mount(graphs ...*Graph) error {
	for _, g := range graphs {
		if err := Compile(g); err != nil {
			return fmt.Errorf("failed to compile graph %s: %w", g.ID, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pendingGraphs := make(map[string]bool, len(graphs))
	pendingNodes := make(map[string]string)
	for _, g := range graphs {
		if _, exists := l.graphs[g.ID]; exists || pendingGraphs[g.ID] {
			return fmt.Errorf("graph %s is already mounted", g.ID)
		}
		pendingGraphs[g.ID] = true
		for _, n := range g.Nodes {
			if owner, exists := l.nodes[n.ID]; exists {
				return fmt.Errorf("%w: %s in graph %s is already defined in graph %s", ErrDuplicateNode, n.ID, g.ID, owner.graphID)
			}
			if owner, exists := pendingNodes[n.ID]; exists {
				return fmt.Errorf("%w: %s in graph %s is already defined in graph %s", ErrDuplicateNode, n.ID, g.ID, owner)
			}
			pendingNodes[n.ID] = g.ID
		}
	}

	for _, g := range graphs {
		l.graphs[g.ID] = g
		l.order = append(l.order, g.ID)
		for _, n := range g.Nodes {
			l.nodes[n.ID] = n
		}
	}
	return nil
}

// Node looks a node up across all mounted graphs.
func (l *Library) Node(id string) (*Node, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.nodes[id]
	return n, ok
}

func (l *Library) Graph(id string) (*Graph, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.graphs[id]
	return g, ok
}

// OwnerOf returns the graph that defines nodeID.
func (l *Library) OwnerOf(nodeID string) (*Graph, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.nodes[nodeID]
	if !ok {
		return nil, false
	}
	return l.graphs[n.graphID], true
}

// GraphForCharacter returns the first mounted graph owned by characterID.
func (l *Library) GraphForCharacter(characterID string) (*Graph, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, id := range l.order {
		if g := l.graphs[id]; g.CharacterID == characterID {
			return g, true
		}
	}
	return nil, false
}

// Graphs returns the mounted graphs in mount order.
func (l *Library) Graphs() []*Graph {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Graph, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.graphs[id])
	}
	return out
}

// NodeCount returns the number of mounted nodes.
func (l *Library) NodeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.nodes)
}
