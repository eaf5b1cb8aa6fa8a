package engine

import "github.com/jwebster45206/dialogue-engine/pkg/state"

// View returns the presentation of the current node.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// State returns the current game state. Nil before Start.
func (e *Engine) State() *state.GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gs
}

func (e *Engine) Trust(characterID string) int {
	if gs := e.State(); gs != nil {
		return gs.Trust(characterID)
	}
	return 0
}

func (e *Engine) Patterns() state.Patterns {
	if gs := e.State(); gs != nil {
		return gs.Patterns
	}
	return state.Patterns{}
}

func (e *Engine) Flags() []string {
	if gs := e.State(); gs != nil {
		return gs.Flags()
	}
	return []string{}
}

func (e *Engine) OrbBalance() int {
	if gs := e.State(); gs != nil {
		return gs.OrbBalance()
	}
	return 0
}

func (e *Engine) Thoughts() []state.Thought {
	if gs := e.State(); gs != nil {
		return gs.Thoughts()
	}
	return []state.Thought{}
}

// UnlockedNodes lists pattern-unlock nodes whose threshold the player has
// reached, in mount order. Each can be entered with Goto.
func (e *Engine) UnlockedNodes() []string {
	gs := e.State()
	if gs == nil {
		return nil
	}
	var out []string
	for _, g := range e.lib.Graphs() {
		for _, n := range g.Nodes {
			if pu := n.PatternUnlock; pu != nil && gs.Patterns.Get(pu.Pattern) >= pu.Threshold {
				out = append(out, n.ID)
			}
		}
	}
	return out
}
