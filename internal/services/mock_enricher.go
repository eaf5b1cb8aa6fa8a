package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/dialogue-engine/pkg/engine"
)

// MockEnricher is a mock implementation of ChoiceEnricher for testing
type MockEnricher struct {
	EnrichFunc func(ctx context.Context, req engine.EnrichmentRequest) (engine.EnrichmentResponse, error)

	// Track calls for testing
	EnrichCalls []engine.EnrichmentRequest

	mu sync.Mutex // protects all fields above
}

// Ensure MockEnricher implements ChoiceEnricher
var _ engine.ChoiceEnricher = (*MockEnricher)(nil)

func NewMockEnricher() *MockEnricher {
	return &MockEnricher{EnrichCalls: make([]engine.EnrichmentRequest, 0)}
}

func (m *MockEnricher) Enrich(ctx context.Context, req engine.EnrichmentRequest) (engine.EnrichmentResponse, error) {
	m.mu.Lock()
	m.EnrichCalls = append(m.EnrichCalls, req)
	fn := m.EnrichFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	// Default behavior - nothing confident enough to show
	return engine.EnrichmentResponse{}, nil
}

// Calls returns a copy of the recorded requests.
func (m *MockEnricher) Calls() []engine.EnrichmentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.EnrichmentRequest(nil), m.EnrichCalls...)
}
