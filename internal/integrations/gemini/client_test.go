package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gemchat/internal/domain"
)

// fakeGetter is a minimal paramstore.Getter stub for use within this package.
type fakeGetter struct {
	val    string
	err    error
	onCall func()
}

func (g *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	if g.onCall != nil {
		g.onCall()
	}
	return g.val, g.err
}

func validGetter() *fakeGetter {
	return &fakeGetter{val: `{"token":"test-key"}`}
}

func candidateBody(text string) string {
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + jsonString(text) + `}]},"finishReason":"STOP"}]}`
}

func jsonString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func TestGenerateURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://generativelanguage.googleapis.com/v1beta", "https://generativelanguage.googleapis.com/v1beta/models/m:generateContent?key=k"},
		{"https://generativelanguage.googleapis.com/v1beta/", "https://generativelanguage.googleapis.com/v1beta/models/m:generateContent?key=k"},
		{"http://localhost:8080", "http://localhost:8080/models/m:generateContent?key=k"},
		{"", "https://generativelanguage.googleapis.com/v1beta/models/m:generateContent?key=k"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, generateURL(tc.base, "m", "k"), "base=%q", tc.base)
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "/gemchat")
	require.Error(t, err)

	_, err = NewClient(validGetter(), "  ")
	require.Error(t, err)

	c, err := NewClient(validGetter(), "/gemchat")
	require.NoError(t, err)
	require.Equal(t, "https://generativelanguage.googleapis.com/v1beta", c.baseURL)
}

func TestResolveAPIKey_CachedAfterFirstCall(t *testing.T) {
	calls := 0
	g := validGetter()
	g.onCall = func() { calls++ }
	c, err := NewClient(g, "/gemchat")
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "test-key", key)

	_, _ = c.resolveAPIKey(context.Background())
	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, calls, "SSM must only be called once per process lifetime")
}

func TestResolveAPIKey_Errors(t *testing.T) {
	cases := []struct {
		name   string
		getter *fakeGetter
	}{
		{"paramstore error", &fakeGetter{err: errors.New("ssm down")}},
		{"not json", &fakeGetter{val: "plain-key"}},
		{"empty token", &fakeGetter{val: `{"token":""}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewClient(tc.getter, "/gemchat")
			require.NoError(t, err)
			_, err = c.resolveAPIKey(context.Background())
			require.Error(t, err)
		})
	}
}

func TestGenerate_HappyPath(t *testing.T) {
	var gotPath string
	var gotBody generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = io.WriteString(w, candidateBody("hello from the model"))
	}))
	defer srv.Close()

	c, err := NewClient(validGetter(), "/gemchat", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	history := []domain.Turn{
		{Role: domain.RoleUser, Parts: "hi"},
		{Role: domain.RoleModel, Parts: "hello"},
	}
	reply, err := c.Generate(context.Background(), "gemini-2.0-flash", history, "how are you?")
	require.NoError(t, err)
	require.Equal(t, "hello from the model", reply)
	require.Equal(t, "/models/gemini-2.0-flash:generateContent?key=test-key", gotPath)

	// History replayed in order, new message last.
	require.Len(t, gotBody.Contents, 3)
	require.Equal(t, "user", gotBody.Contents[0].Role)
	require.Equal(t, "hi", gotBody.Contents[0].Parts[0].Text)
	require.Equal(t, "model", gotBody.Contents[1].Role)
	require.Equal(t, "user", gotBody.Contents[2].Role)
	require.Equal(t, "how are you?", gotBody.Contents[2].Parts[0].Text)
}

func TestGenerateVision_SendsInlineData(t *testing.T) {
	var gotBody generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = io.WriteString(w, candidateBody("a cat"))
	}))
	defer srv.Close()

	c, err := NewClient(validGetter(), "/gemchat", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	reply, err := c.GenerateVision(context.Background(), "gemini-2.0-flash-exp", "what is this?", "image/png", "aGVsbG8=")
	require.NoError(t, err)
	require.Equal(t, "a cat", reply)

	require.Len(t, gotBody.Contents, 1)
	parts := gotBody.Contents[0].Parts
	require.Len(t, parts, 2)
	require.Equal(t, "what is this?", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	require.Equal(t, "image/png", parts[1].InlineData.MimeType)
	require.Equal(t, "aGVsbG8=", parts[1].InlineData.Data)
}

func TestGenerate_EmptyModel(t *testing.T) {
	c, err := NewClient(validGetter(), "/gemchat")
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "", nil, "hi")
	require.Error(t, err)
}

func TestGenerate_NonOKStatus_RedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota exceeded"}}`)
	}))
	defer srv.Close()

	c, err := NewClient(validGetter(), "/gemchat", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "gemini-2.0-flash", nil, "hi")
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "quota exceeded")
	require.NotContains(t, err.Error(), "test-key")
}

func TestGenerate_EmbeddedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"API key not valid"}}`)
	}))
	defer srv.Close()

	c, err := NewClient(validGetter(), "/gemchat", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "gemini-2.0-flash", nil, "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "INVALID_ARGUMENT", apiErr.Status)
	require.Contains(t, apiErr.Message, "API key")
}

func TestGenerate_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	c, err := NewClient(validGetter(), "/gemchat", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "gemini-2.0-flash", nil, "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no candidates")
}

func TestGenerate_ConcatenatesTextParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"one "},{"text":"two"}]}}]}`)
	}))
	defer srv.Close()

	c, err := NewClient(validGetter(), "/gemchat", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	reply, err := c.Generate(context.Background(), "gemini-2.0-flash", nil, "hi")
	require.NoError(t, err)
	require.Equal(t, "one two", reply)
}

func TestPing(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, `{"name":"models/gemini-2.0-flash"}`)
	}))
	defer srv.Close()

	c, err := NewClient(validGetter(), "/gemchat", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	require.NoError(t, c.Ping(context.Background(), "gemini-2.0-flash"))
	require.Equal(t, http.MethodGet, gotMethod)
	require.True(t, strings.HasSuffix(gotPath, "/models/gemini-2.0-flash"))
}

func TestPing_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(validGetter(), "/gemchat", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	require.Error(t, c.Ping(context.Background(), "gemini-2.0-flash"))
}
