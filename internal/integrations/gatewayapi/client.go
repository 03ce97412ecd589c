// Package gatewayapi is the HTTP client for the chat gateway's wire
// contract. It implements conversation.Sender; wire-level errors come back
// already classified so the controller never inspects transport detail.
package gatewayapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gemchat/internal/domain"
)

// Client talks to a deployed gateway over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the gateway at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gatewayapi: base URL must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send posts one chat request and decodes the gateway's response. Gateway
// error payloads are surfaced as *domain.Error with the wire kind;
// transport-level failures are classified as KindModelUnavailable since the
// gateway could not be reached.
func (c *Client) Send(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("gatewayapi: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("gatewayapi: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ChatResponse{}, domain.NewError(domain.KindModelUnavailable, "gateway_unreachable", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("gatewayapi: read response body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var wire struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if decErr := json.Unmarshal(raw, &wire); decErr != nil || wire.Error == "" {
			return domain.ChatResponse{}, domain.NewError(domain.KindUnknown, "unexpected_status",
				fmt.Errorf("gatewayapi: status %d: %s", res.StatusCode, string(raw)))
		}
		return domain.ChatResponse{}, domain.NewError(domain.ParseErrorKind(wire.Error), "gateway_error", errors.New(wire.Details))
	}

	var resp domain.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("gatewayapi: decode response: %w", err)
	}
	return resp, nil
}

// Health fetches the gateway liveness probe. Used only for a connectivity
// indicator; failures degrade to an unavailable status rather than an error.
func (c *Client) Health(ctx context.Context) domain.HealthStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return domain.HealthStatus{Status: domain.HealthUnavailable}
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return domain.HealthStatus{Status: domain.HealthUnavailable}
	}
	defer func() { _ = res.Body.Close() }()

	var hs domain.HealthStatus
	if err := json.NewDecoder(io.LimitReader(res.Body, 4096)).Decode(&hs); err != nil || hs.Status == "" {
		return domain.HealthStatus{Status: domain.HealthUnavailable}
	}
	return hs
}

// Models fetches the gateway's model listing.
func (c *Client) Models(ctx context.Context) ([]domain.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/models", nil)
	if err != nil {
		return nil, fmt.Errorf("gatewayapi: create request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindModelUnavailable, "gateway_unreachable", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("gatewayapi: models: status %d: %s", res.StatusCode, string(raw))
	}

	var wire struct {
		Models []domain.ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("gatewayapi: decode models: %w", err)
	}
	return wire.Models, nil
}
