// Package handler adapts API Gateway proxy events to the gateway service:
// it routes POST /api/chat, GET /api/health and GET /api/models, maps the
// error taxonomy to HTTP statuses, and tags every response with a
// correlation ID.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"gemchat/internal/domain"
)

// Gateway is the request-orchestration surface the handler depends on.
type Gateway interface {
	Handle(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error)
	Health(ctx context.Context) domain.HealthStatus
	Models(ctx context.Context) ([]domain.ModelInfo, error)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type modelsResponse struct {
	Models []domain.ModelInfo `json:"models"`
}

// Handler is the Lambda entry for all API routes.
type Handler struct {
	gw  Gateway
	log *slog.Logger
}

// NewHandler creates a Handler. log may be nil for a default logger.
func NewHandler(gw Gateway, log *slog.Logger) (*Handler, error) {
	if gw == nil {
		return nil, errors.New("handler: gateway must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{gw: gw, log: log}, nil
}

// Handle routes one API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(event.Headers)

	switch {
	case event.HTTPMethod == http.MethodPost && event.Path == "/api/chat":
		return h.handleChat(ctx, event, corrID), nil
	case event.HTTPMethod == http.MethodGet && event.Path == "/api/health":
		return respond(http.StatusOK, h.gw.Health(ctx), corrID), nil
	case event.HTTPMethod == http.MethodGet && event.Path == "/api/models":
		return h.handleModels(ctx, corrID), nil
	}
	return respond(http.StatusNotFound, errorResponse{
		Error:   string(domain.KindUnknown),
		Details: "no such route",
	}, corrID), nil
}

func (h *Handler) handleChat(ctx context.Context, event events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var req domain.ChatRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return respond(http.StatusBadRequest, errorResponse{
			Error:   string(domain.KindMissingMessage),
			Details: "malformed request body",
		}, corrID)
	}

	resp, err := h.gw.Handle(ctx, req)
	if err != nil {
		kind, details := classifyHandlerError(err)
		h.log.Warn("chat request failed", "correlationId", corrID, "kind", kind, "err", err)
		return respond(statusForKind(kind), errorResponse{Error: string(kind), Details: details}, corrID)
	}
	return respond(http.StatusOK, resp, corrID)
}

func (h *Handler) handleModels(ctx context.Context, corrID string) events.APIGatewayProxyResponse {
	models, err := h.gw.Models(ctx)
	if err != nil {
		kind, details := classifyHandlerError(err)
		return respond(statusForKind(kind), errorResponse{Error: string(kind), Details: details}, corrID)
	}
	return respond(http.StatusOK, modelsResponse{Models: models}, corrID)
}

func classifyHandlerError(err error) (domain.ErrorKind, string) {
	var de *domain.Error
	if errors.As(err, &de) {
		details := de.Reason
		if de.Err != nil {
			details = de.Err.Error()
		}
		return de.Kind, details
	}
	return domain.KindUnknown, err.Error()
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindMissingMessage, domain.KindInvalidType, domain.KindTooLarge, domain.KindAttachmentRejected:
		return http.StatusBadRequest
	case domain.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case domain.KindModelUnavailable, domain.KindInvalidCredentials:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// correlationID returns the inbound X-Correlation-Id header (matched
// case-insensitively, as API Gateway does not normalize header casing) or a
// fresh UUID.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == "X-Correlation-Id" && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func respond(status int, body any, corrID string) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		raw = []byte(`{"error":"UNKNOWN","details":"response encoding failed"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": corrID,
		},
		Body: string(raw),
	}
}
