package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/dialogue-engine/pkg/engine"
	"github.com/jwebster45206/dialogue-engine/pkg/textfilter"
)

type dedupRequest struct {
	Texts     []string `json:"texts"`
	Threshold float64  `json:"threshold"`
}

type dedupResponse struct {
	Texts []string `json:"texts"`
}

// DedupService removes near-duplicate choice texts with a remote semantic
// similarity model.
type DedupService struct {
	client *jsonClient
	logger *slog.Logger
}

// Ensure DedupService implements Deduplicator
var _ engine.Deduplicator = (*DedupService)(nil)

func NewDedupService(baseURL string, timeout time.Duration, rps float64, logger *slog.Logger) *DedupService {
	return &DedupService{
		client: newJSONClient(baseURL, timeout, rps),
		logger: logger,
	}
}

// Deduplicate posts the texts to /v1/dedup.
func (s *DedupService) Deduplicate(ctx context.Context, texts []string, threshold float64) ([]string, error) {
	var resp dedupResponse
	if err := s.client.post(ctx, "/v1/dedup", dedupRequest{Texts: texts, Threshold: threshold}, &resp); err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}
	if resp.Texts == nil {
		return nil, fmt.Errorf("dedup: response has no texts")
	}
	if removed := len(texts) - len(resp.Texts); removed > 0 {
		s.logger.Debug("Removed duplicate choices", "removed", removed)
	}
	return resp.Texts, nil
}

func (s *DedupService) Ping(ctx context.Context) error {
	return s.client.ping(ctx)
}

// LocalDeduplicator compares token overlap in process. Used when no dedup
// service is configured.
type LocalDeduplicator struct{}

// Ensure LocalDeduplicator implements Deduplicator
var _ engine.Deduplicator = LocalDeduplicator{}

func (LocalDeduplicator) Deduplicate(ctx context.Context, texts []string, threshold float64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return textfilter.Dedupe(texts, threshold), nil
}
