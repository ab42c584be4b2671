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
)

type generateRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

func newTestClient(t *testing.T, baseURL, apiKey, model string) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), baseURL, apiKey, model)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return c
}

func TestGenerateTextReturnsFirstCandidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1beta/") || !strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "k-123" {
			t.Errorf("expected api key header k-123, got %q", got)
		}
		if r.URL.Query().Get("key") != "" {
			t.Errorf("api key must not be sent in the query string")
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.GenerationConfig.Temperature < 0.19 || req.GenerationConfig.Temperature > 0.21 {
			t.Errorf("expected temperature 0.2, got %v", req.GenerationConfig.Temperature)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 || req.Contents[0].Parts[0].Text != "hello" {
			t.Errorf("unexpected contents %+v", req.Contents)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"ok\":"},{"text":"true}"}]}}]}`)
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL, "k-123", "test-model").GenerateText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != `{"ok":true}` {
		t.Fatalf("expected joined candidate text, got %q", got)
	}
}

func TestGenerateTextEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, "k", "").GenerateText(context.Background(), "p")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGenerateTextErrorDoesNotLeakKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, "super-secret", "m").GenerateText(context.Background(), "p")
	if err == nil {
		t.Fatal("expected an error for a 429 response")
	}
	if strings.Contains(err.Error(), "super-secret") {
		t.Fatalf("error leaked api key: %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(context.Background(), "", " ", ""); err == nil {
		t.Fatal("expected an error without an api key")
	}
}

func TestSplitAPIVersion(t *testing.T) {
	tests := []struct {
		in          string
		wantBase    string
		wantVersion string
	}{
		{in: "", wantBase: DefaultBaseURL, wantVersion: "v1beta"},
		{in: "https://generativelanguage.googleapis.com/v1beta", wantBase: "https://generativelanguage.googleapis.com/", wantVersion: "v1beta"},
		{in: "https://proxy.internal/gemini/v1/", wantBase: "https://proxy.internal/gemini/", wantVersion: "v1"},
		{in: "http://127.0.0.1:8080", wantBase: "http://127.0.0.1:8080/", wantVersion: "v1beta"},
	}
	for _, tt := range tests {
		base, version := splitAPIVersion(tt.in)
		if base != tt.wantBase || version != tt.wantVersion {
			t.Fatalf("splitAPIVersion(%q): expected (%q, %q), got (%q, %q)", tt.in, tt.wantBase, tt.wantVersion, base, version)
		}
	}
}
