package dialogue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/dialogue-engine/pkg/conditionals"
	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

const jsonGraph = `{
  "id": "samuel_main",
  "character_id": "samuel",
  "start_node": "intro",
  "nodes": [
    {
      "id": "intro",
      "content": [
        {"when": {"trust": {"min": 3}}, "text": "Old friend."},
        {"text": "Stranger."}
      ],
      "choices": [
        {"text": "Help", "target": "done", "pattern": "helping", "consequence": {"trust_delta": 1}}
      ]
    },
    {"id": "done", "content": "Thanks."}
  ]
}`

const yamlGraph = `
id: maya_workshop
character_id: maya
start_node: maya_intro
nodes:
  - id: maya_intro
    content: "Sparks {{orbs}}."
    choices:
      - text: Build
        target: maya_done
        when:
          patterns:
            building: 2
  - id: maya_done
    content: Done.
    on_enter:
      - orb_delta: 2
`

const tomlGraph = `
id = "oracle_vault"
character_id = "oracle"
start_node = "oracle_gate"

[[nodes]]
id = "oracle_gate"
content = "Ask."

  [[nodes.choices]]
  text = "Ask"
  target = "oracle_answer"

    [nodes.choices.consequence]
    add_flags = ["oracle_answered"]

[[nodes]]
id = "oracle_answer"
content = "Never meant to arrive."
`

func TestDecode_Formats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		g, err := Decode([]byte(jsonGraph), ".json")
		require.NoError(t, err)
		require.NoError(t, Compile(g))
		intro, _ := g.Node("intro")
		require.Len(t, intro.Content, 2)
		require.NotNil(t, intro.Content[0].When)
		assert.Equal(t, conditionals.KindTrust, intro.Content[0].When.Kind)
		assert.Equal(t, state.PatternHelping, intro.Choices[0].Pattern)
		assert.Equal(t, 1, intro.Choices[0].Consequence.TrustDelta)
		done, _ := g.Node("done")
		require.Len(t, done.Content, 1)
		assert.Equal(t, "Thanks.", done.Content[0].Text)
	})

	t.Run("yaml", func(t *testing.T) {
		g, err := Decode([]byte(yamlGraph), ".yml")
		require.NoError(t, err)
		require.NoError(t, Compile(g))
		intro, _ := g.Node("maya_intro")
		require.NotNil(t, intro.Choices[0].When)
		assert.Equal(t, conditionals.KindPattern, intro.Choices[0].When.Kind)
		done, _ := g.Node("maya_done")
		require.Len(t, done.OnEnter, 1)
		assert.Equal(t, 2, done.OnEnter[0].OrbDelta)
	})

	t.Run("toml", func(t *testing.T) {
		g, err := Decode([]byte(tomlGraph), ".TOML")
		require.NoError(t, err)
		require.NoError(t, Compile(g))
		gate, _ := g.Node("oracle_gate")
		require.Len(t, gate.Choices, 1)
		assert.Equal(t, []string{"oracle_answered"}, gate.Choices[0].Consequence.AddFlags)
	})
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		ext         string
		errContains string
	}{
		{name: "unknown field", data: `{"id":"a","character_id":"a","start_node":"a","nodes":[],"mood":"x"}`, ext: ".json", errContains: "unknown field"},
		{name: "unknown condition field", data: `{"id":"a","nodes":[{"id":"a","content":[{"when":{"mood":1},"text":"x"}]}]}`, ext: ".json", errContains: "invalid condition"},
		{name: "invalid json", data: `{`, ext: ".json", errContains: "invalid JSON"},
		{name: "invalid yaml", data: "id: [", ext: ".yaml", errContains: "invalid YAML"},
		{name: "invalid toml", data: "id = ", ext: ".toml", errContains: "invalid TOML"},
		{name: "unknown variant field", data: `{"id":"a","nodes":[{"id":"a","content":[{"txt":"x"}]}]}`, ext: ".json", errContains: "unknown field"},
		{name: "bad content type", data: `{"id":"a","nodes":[{"id":"a","content":3}]}`, ext: ".json", errContains: "content must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), tt.ext)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}

	_, err := Decode([]byte("x"), ".xml")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestLoadLibrary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "samuel.json"), []byte(jsonGraph), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "maya.yaml"), []byte(yamlGraph), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oracle.toml"), []byte(tomlGraph), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# notes"), 0o644))

	lib, err := LoadLibrary(dir)
	require.NoError(t, err)

	var ids []string
	for _, g := range lib.Graphs() {
		ids = append(ids, g.ID)
	}
	// Lexical path order: nested/maya.yaml, oracle.toml, samuel.json.
	assert.Equal(t, []string{"maya_workshop", "oracle_vault", "samuel_main"}, ids)
	assert.Equal(t, 6, lib.NodeCount())
}

func TestLoadLibrary_SampleContent(t *testing.T) {
	lib, err := LoadLibrary(filepath.Join("..", "..", "data", "content"))
	require.NoError(t, err)

	_, ok := lib.GraphForCharacter("samuel")
	assert.True(t, ok)
	_, ok = lib.Node("maya_intro")
	assert.True(t, ok)
	_, ok = lib.Node("oracle_gate")
	assert.True(t, ok)
}

func TestLoadFile_ReportsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id": 3}`), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json")

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}
