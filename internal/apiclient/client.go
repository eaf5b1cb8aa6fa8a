// Package apiclient is a client for the dialogue engine HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/dialogue-engine/internal/handlers"
	"github.com/jwebster45206/dialogue-engine/pkg/engine"
)

// APIError is a non-2xx answer from the API. View is set when the server
// refused a transition but still reported where the player stands.
type APIError struct {
	Status  int
	Message string
	View    *engine.View
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Status, e.Message)
}

// Client talks to the dialogue engine HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) ListGraphs(ctx context.Context) ([]handlers.GraphSummary, error) {
	var graphs []handlers.GraphSummary
	if err := c.do(ctx, http.MethodGet, "/v1/graphs", nil, &graphs); err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	return graphs, nil
}

func (c *Client) CreateSession(ctx context.Context, graphID string) (*handlers.SessionResponse, error) {
	return c.session(ctx, http.MethodPost, "/v1/sessions", handlers.CreateSessionRequest{GraphID: graphID})
}

func (c *Client) GetSession(ctx context.Context, id string) (*handlers.SessionResponse, error) {
	return c.session(ctx, http.MethodGet, "/v1/sessions/"+id, nil)
}

func (c *Client) SelectChoice(ctx context.Context, id, choiceID string) (*handlers.SessionResponse, error) {
	return c.session(ctx, http.MethodPost, "/v1/sessions/"+id+"/choices", handlers.ChoiceRequest{ChoiceID: choiceID})
}

func (c *Client) FireInterrupt(ctx context.Context, id string) (*handlers.SessionResponse, error) {
	return c.session(ctx, http.MethodPost, "/v1/sessions/"+id+"/interrupt", nil)
}

func (c *Client) CompleteSimulation(ctx context.Context, id string, success bool) (*handlers.SessionResponse, error) {
	return c.session(ctx, http.MethodPost, "/v1/sessions/"+id+"/simulation", handlers.SimulationRequest{Success: success})
}

func (c *Client) Goto(ctx context.Context, id, nodeID string) (*handlers.SessionResponse, error) {
	return c.session(ctx, http.MethodPost, "/v1/sessions/"+id+"/goto", handlers.GotoRequest{NodeID: nodeID})
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+id, nil, nil)
}

func (c *Client) session(ctx context.Context, method, path string, body any) (*handlers.SessionResponse, error) {
	var resp handlers.SessionResponse
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errorResp handlers.ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error == "" {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return &APIError{Status: resp.StatusCode, Message: errorResp.Error, View: errorResp.View}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
