package gatewayapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"gemchat/internal/domain"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)

	c, err := NewClient("https://example.com/")
	require.NoError(t, err)
	require.Equal(t, "https://example.com", c.baseURL)
}

func TestSend_HappyPath(t *testing.T) {
	var gotPath string
	var gotReq domain.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotReq))
		_, _ = io.WriteString(w, `{"response":"hello","history":[{"role":"user","parts":"hi"},{"role":"model","parts":"hello"}],"conversationId":"conv-1"}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := c.Send(context.Background(), domain.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, "/api/chat", gotPath)
	require.Equal(t, "hi", gotReq.Message)
	require.Equal(t, "hello", resp.Response)
	require.Len(t, resp.History, 2)
	require.Equal(t, "conv-1", resp.ConversationID)
}

func TestSend_GatewayErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"QUOTA_EXCEEDED","details":"quota exceeded for project"}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), domain.ChatRequest{Message: "hi"})
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	require.Equal(t, domain.KindQuotaExceeded, de.Kind)
	require.Contains(t, de.Err.Error(), "quota exceeded")
}

func TestSend_UnrecognizedErrorString_BecomesUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, `{"error":"SOMETHING_NEW"}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), domain.ChatRequest{Message: "hi"})
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	require.Equal(t, domain.KindUnknown, de.Kind)
}

func TestSend_TransportError_ClassifiedUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused from here on

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Send(context.Background(), domain.ChatRequest{Message: "hi"})
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	require.Equal(t, domain.KindModelUnavailable, de.Kind)
	require.Equal(t, "gateway_unreachable", de.Reason)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"ok","model":"ok"}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	require.Equal(t, domain.HealthStatus{Status: domain.HealthOK, Model: domain.HealthOK}, c.Health(context.Background()))
}

func TestHealth_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	require.Equal(t, domain.HealthUnavailable, c.Health(context.Background()).Status)
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/models", r.URL.Path)
		_, _ = io.WriteString(w, `{"models":[{"id":"gemini-2.0-flash","capabilities":["text"]}]}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "gemini-2.0-flash", models[0].ID)
}
