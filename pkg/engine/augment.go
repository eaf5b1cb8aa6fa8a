package engine

import (
	"context"
	"strings"

	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

// EnrichmentRequest asks an external service for one more candidate choice.
type EnrichmentRequest struct {
	SceneText       string   `json:"scene_text"`
	TargetPattern   string   `json:"target_pattern"`
	Persona         string   `json:"persona"`
	ExistingChoices []string `json:"existing_choices"`
}

// EnrichmentResponse carries the candidate text and a confidence in [0, 1].
type EnrichmentResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ChoiceEnricher generates candidate choices.
type ChoiceEnricher interface {
	Enrich(ctx context.Context, req EnrichmentRequest) (EnrichmentResponse, error)
}

// Deduplicator removes near-duplicate texts, keeping first-seen order.
type Deduplicator interface {
	Deduplicate(ctx context.Context, texts []string, threshold float64) ([]string, error)
}

const (
	AugmentedChoiceID      = "augmented"
	DefaultAcceptThreshold = 0.75
	DefaultDedupThreshold  = 0.85
)

// augment runs the optional enrichment and deduplication passes over the
// visible choices. Any failure leaves the list as it was.
func (e *Engine) augment(ctx context.Context, scene string, choices []resolvedChoice) []resolvedChoice {
	if e.enricher != nil {
		if c, ok := e.enrich(ctx, scene, choices); ok {
			choices = append(choices, c)
		}
	}
	if e.dedup != nil && len(choices) > 1 {
		choices = e.deduplicate(ctx, choices)
	}
	return choices
}

func (e *Engine) enrich(ctx context.Context, scene string, choices []resolvedChoice) (resolvedChoice, bool) {
	target, ok := unexpressedPattern(choices)
	if !ok {
		return resolvedChoice{}, false
	}
	var anchor *resolvedChoice
	for i := range choices {
		if choices[i].Target != "" {
			anchor = &choices[i]
			break
		}
	}
	if anchor == nil {
		return resolvedChoice{}, false
	}

	existing := make([]string, len(choices))
	for i, c := range choices {
		existing[i] = c.Text
	}
	req := EnrichmentRequest{
		SceneText:       scene,
		TargetPattern:   string(target),
		Persona:         e.gs.PersonaSummary(),
		ExistingChoices: existing,
	}

	ctx, cancel := context.WithTimeout(ctx, e.enrichTimeout)
	defer cancel()
	resp, err := e.enricher.Enrich(ctx, req)
	if err != nil {
		e.logger.Warn("Choice enrichment failed", "node_id", e.node.ID, "error", err)
		return resolvedChoice{}, false
	}

	text := strings.TrimSpace(resp.Text)
	switch {
	case text == "":
		return resolvedChoice{}, false
	case resp.Confidence < e.acceptThreshold:
		e.logger.Debug("Discarded low-confidence choice", "node_id", e.node.ID, "confidence", resp.Confidence)
		return resolvedChoice{}, false
	case e.profanity.ContainsProfanity(text):
		e.logger.Debug("Discarded choice with profanity", "node_id", e.node.ID)
		return resolvedChoice{}, false
	}

	return resolvedChoice{
		ChoiceView: ChoiceView{
			ID:        AugmentedChoiceID,
			Text:      text,
			Target:    anchor.Target,
			Pattern:   target,
			Augmented: true,
		},
		consequence: &state.StateChange{Patterns: map[state.Pattern]int{target: 1}},
	}, true
}

func (e *Engine) deduplicate(ctx context.Context, choices []resolvedChoice) []resolvedChoice {
	texts := make([]string, len(choices))
	for i, c := range choices {
		texts[i] = c.Text
	}

	ctx, cancel := context.WithTimeout(ctx, e.enrichTimeout)
	defer cancel()
	kept, err := e.dedup.Deduplicate(ctx, texts, e.dedupThreshold)
	if err != nil {
		e.logger.Warn("Choice deduplication failed", "node_id", e.node.ID, "error", err)
		return choices
	}

	// Match kept texts back to choices in order; anything unexpected means
	// the response cannot be trusted.
	out := make([]resolvedChoice, 0, len(kept))
	next := 0
	for _, text := range kept {
		found := false
		for next < len(choices) {
			c := choices[next]
			next++
			if c.Text == text {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			e.logger.Warn("Deduplicator returned unknown or reordered text", "node_id", e.node.ID)
			return choices
		}
	}
	if len(out) == 0 {
		return choices
	}
	return out
}

// unexpressedPattern returns the first pattern no visible choice expresses.
func unexpressedPattern(choices []resolvedChoice) (state.Pattern, bool) {
	expressed := make(map[state.Pattern]bool, len(choices))
	for _, c := range choices {
		if c.Pattern != "" {
			expressed[c.Pattern] = true
		}
	}
	for _, p := range state.AllPatterns {
		if !expressed[p] {
			return p, true
		}
	}
	return "", false
}
