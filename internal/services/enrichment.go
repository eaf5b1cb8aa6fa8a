package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/dialogue-engine/pkg/engine"
)

// EnrichmentService asks a remote model for one extra candidate choice.
type EnrichmentService struct {
	client *jsonClient
	logger *slog.Logger
}

// Ensure EnrichmentService implements ChoiceEnricher
var _ engine.ChoiceEnricher = (*EnrichmentService)(nil)

func NewEnrichmentService(baseURL string, timeout time.Duration, rps float64, logger *slog.Logger) *EnrichmentService {
	return &EnrichmentService{
		client: newJSONClient(baseURL, timeout, rps),
		logger: logger,
	}
}

// Enrich posts the request to /v1/enrich. Confidence is clamped to [0, 1].
func (s *EnrichmentService) Enrich(ctx context.Context, req engine.EnrichmentRequest) (engine.EnrichmentResponse, error) {
	if req.ExistingChoices == nil {
		req.ExistingChoices = []string{}
	}
	var resp engine.EnrichmentResponse
	start := time.Now()
	if err := s.client.post(ctx, "/v1/enrich", req, &resp); err != nil {
		return engine.EnrichmentResponse{}, fmt.Errorf("enrichment: %w", err)
	}
	resp.Confidence = min(max(resp.Confidence, 0), 1)
	s.logger.Debug("Enrichment response",
		"target_pattern", req.TargetPattern,
		"confidence", resp.Confidence,
		"duration", time.Since(start))
	return resp, nil
}

func (s *EnrichmentService) Ping(ctx context.Context) error {
	return s.client.ping(ctx)
}
