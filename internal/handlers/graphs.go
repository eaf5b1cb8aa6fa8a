package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
)

// GraphSummary describes one mounted graph.
type GraphSummary struct {
	ID          string   `json:"id"`
	CharacterID string   `json:"character_id"`
	StartNode   string   `json:"start_node"`
	EntryPoints []string `json:"entry_points,omitempty"`
	Nodes       int      `json:"nodes"`
}

type GraphHandler struct {
	library *dialogue.Library
	logger  *slog.Logger
}

func NewGraphHandler(library *dialogue.Library, logger *slog.Logger) *GraphHandler {
	return &GraphHandler{library: library, logger: logger}
}

// ServeHTTP lists mounted graphs in mount order.
// GET /v1/graphs
func (h *GraphHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET")
		return
	}
	graphs := h.library.Graphs()
	out := make([]GraphSummary, 0, len(graphs))
	for _, g := range graphs {
		out = append(out, GraphSummary{
			ID:          g.ID,
			CharacterID: g.CharacterID,
			StartNode:   g.StartNode,
			EntryPoints: g.EntryPoints,
			Nodes:       len(g.Nodes),
		})
	}
	writeJSON(w, h.logger, http.StatusOK, out)
}
