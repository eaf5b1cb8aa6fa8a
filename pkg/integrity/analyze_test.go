package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

func node(id string, targets ...string) *dialogue.Node {
	n := &dialogue.Node{ID: id, Content: dialogue.Content{{Text: id}}}
	for _, target := range targets {
		n.Choices = append(n.Choices, dialogue.Choice{Text: "go", Target: target})
	}
	return n
}

func graph(t *testing.T, id, start string, nodes ...*dialogue.Node) *dialogue.Graph {
	t.Helper()
	g := &dialogue.Graph{ID: id, CharacterID: id, StartNode: start, Nodes: nodes}
	require.NoError(t, dialogue.Compile(g))
	return g
}

func fixture(t *testing.T) []*dialogue.Graph {
	sim := node("b_sim")
	sim.Simulation = &dialogue.Simulation{Type: "lockpick", SuccessTarget: "b_sim_win", FailureTarget: "b_start"}
	unlock := node("b_unlock")
	unlock.PatternUnlock = &dialogue.PatternUnlock{Pattern: state.PatternPatience, Threshold: 3}

	a := graph(t, "graph_a", "a_start",
		node("a_start", "a_mid"),
		node("a_mid", "b_x", "missing_node"),
		node("a_orphan", "a_unreached_child"),
		node("a_unreached_child"),
	)
	b := graph(t, "graph_b", "b_start",
		node("b_start"),
		node("b_x", "b_after"),
		node("b_after"),
		sim,
		node("b_sim_win"),
		unlock,
	)
	return []*dialogue.Graph{a, b}
}

func TestAnalyze_CrossGraphFixedPoint(t *testing.T) {
	r := Analyze(fixture(t), Options{})

	assert.True(t, r.Converged)
	assert.Equal(t, 2, r.Iterations)
	assert.Equal(t, []string{"graph_a", "graph_b"}, r.Graphs)

	assert.Contains(t, r.Reachable["graph_b"], "b_x", "cross-graph target becomes a root of its own graph")
	assert.Contains(t, r.Reachable["graph_b"], "b_after")
	assert.Contains(t, r.Roots["graph_b"], "b_x")
	assert.NotContains(t, r.Roots["graph_a"], "b_x")
	assert.Equal(t, []string{"a_mid", "a_start"}, r.Reachable["graph_a"])
	assert.Equal(t, []string{"b_after", "b_sim", "b_sim_win", "b_start", "b_unlock", "b_x"}, r.Reachable["graph_b"])

	assert.Equal(t, map[string][]string{"graph_a": {"a_orphan", "a_unreached_child"}}, r.Unreachable)
}

func TestAnalyze_UnreferencedReportedOnce(t *testing.T) {
	r := Analyze(fixture(t), Options{})

	assert.Equal(t, map[string][]string{"graph_a": {"a_orphan"}}, r.Unreferenced)

	count := 0
	for _, issue := range r.Issues() {
		if issue == "unreferenced:graph_a:a_orphan" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAnalyze_BrokenLinks(t *testing.T) {
	r := Analyze(fixture(t), Options{})
	assert.Equal(t, map[string][]BrokenLink{
		"graph_a": {{From: "a_mid", To: "missing_node", Reason: "choice:1"}},
	}, r.BrokenLinks)
}

func TestAnalyze_ExtraEntryPoints(t *testing.T) {
	r := Analyze(fixture(t), Options{EntryPoints: []string{"a_orphan", "not_a_node"}})

	assert.Empty(t, r.Unreachable)
	assert.Empty(t, r.Unreferenced)
	assert.Contains(t, r.Roots["graph_a"], "a_orphan")
}

func TestAnalyze_DeclaredEntryPoints(t *testing.T) {
	graphs := fixture(t)
	graphs[0].EntryPoints = []string{"a_orphan"}
	r := Analyze(graphs, Options{})
	assert.Empty(t, r.Unreferenced)
}

func TestAnalyze_IterationBound(t *testing.T) {
	chain := func() []*dialogue.Graph {
		return []*dialogue.Graph{
			graph(t, "graph_a", "a0", node("a0", "b0")),
			graph(t, "graph_b", "b_start", node("b_start"), node("b0", "c0")),
			graph(t, "graph_c", "c_start", node("c_start"), node("c0")),
		}
	}

	r := Analyze(chain(), Options{})
	assert.True(t, r.Converged)
	assert.Equal(t, 3, r.Iterations)
	assert.Empty(t, r.Unreachable)

	r = Analyze(chain(), Options{MaxIterations: 1})
	assert.False(t, r.Converged)
	assert.Equal(t, 1, r.Iterations)
	assert.Equal(t, map[string][]string{"graph_b": {"b0"}, "graph_c": {"c0"}}, r.Unreachable)
}

func TestReport_Issues(t *testing.T) {
	r := Analyze(fixture(t), Options{})
	assert.Equal(t, []string{
		"broken_link:graph_a:a_mid->missing_node",
		"unreachable:graph_a:a_orphan",
		"unreachable:graph_a:a_unreached_child",
		"unreferenced:graph_a:a_orphan",
	}, r.Issues())
}

func TestAnalyzeLibrary_SampleContent(t *testing.T) {
	lib, err := dialogue.LoadLibrary("../../data/content")
	require.NoError(t, err)

	r := AnalyzeLibrary(lib, Options{})
	assert.True(t, r.Converged)
	assert.Empty(t, r.BrokenLinks)
	assert.Empty(t, r.Unreachable)
	assert.Empty(t, r.Unreferenced)
}
