package brain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

func newTestProvider(endpoint string) *GeminiProvider {
	g := NewGeminiProvider(GeminiOptions{
		APIKey:   "test-key",
		Endpoint: endpoint,
		Logger:   log.New(io.Discard),
	})
	g.limiter = rate.NewLimiter(rate.Inf, 1)
	g.backoffs = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return g
}

func TestGeminiGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "Analyze this" {
			t.Errorf("unexpected contents: %+v", req.Contents)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "be brief" {
			t.Errorf("expected system instruction, got %+v", req.SystemInstruction)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"candidates": [{"content": {"parts": [{"text": "Part one. "}, {"text": "Part two."}]}, "finishReason": "STOP"}],
			"modelVersion": "gemini-2.0-flash-001"
		}`)
	}))
	defer server.Close()

	g := newTestProvider(server.URL)
	resp, err := g.Generate(context.Background(), Request{SystemPrompt: "be brief", UserPrompt: "Analyze this"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if resp.Content != "Part one. Part two." {
		t.Errorf("expected joined parts, got %q", resp.Content)
	}
	if resp.Model != "gemini-2.0-flash-001" || resp.FinishReason != "STOP" {
		t.Errorf("unexpected metadata: %+v", resp)
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates": []}`)
	}))
	defer server.Close()

	resp, err := newTestProvider(server.URL).Generate(context.Background(), Request{UserPrompt: "x"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if resp.Content != "" {
		t.Errorf("expected empty content, got %q", resp.Content)
	}
}

func TestGeminiBlockedPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"promptFeedback": {"blockReason": "SAFETY"}}`)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Generate(context.Background(), Request{UserPrompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "SAFETY") {
		t.Errorf("expected blocked error, got %v", err)
	}
}

func TestGeminiRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"error": "overloaded"}`)
			return
		}
		io.WriteString(w, `{"candidates": [{"content": {"parts": [{"text": "ok"}]}}]}`)
	}))
	defer server.Close()

	resp, err := newTestProvider(server.URL).Generate(context.Background(), Request{UserPrompt: "x"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if resp.Content != "ok" || calls.Load() != 3 {
		t.Errorf("expected success on third call, got %q after %d calls", resp.Content, calls.Load())
	}
}

func TestGeminiGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Generate(context.Background(), Request{UserPrompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Errorf("expected 429 error, got %v", err)
	}
	if calls.Load() != 4 {
		t.Errorf("expected 1 try + 3 retries, got %d", calls.Load())
	}
}

func TestGeminiNonRetryableError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": {"message": "API key not valid"}}`)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Generate(context.Background(), Request{UserPrompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("expected 400 error body, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("400 must not be retried, got %d calls", calls.Load())
	}
}

func TestGeminiNotConfigured(t *testing.T) {
	g := NewGeminiProvider(GeminiOptions{Logger: log.New(io.Discard)})
	if g.Available() {
		t.Error("provider without key should not be available")
	}
	if _, err := g.Generate(context.Background(), Request{UserPrompt: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if g.Name() != "gemini/"+DefaultGeminiModel {
		t.Errorf("unexpected name %q", g.Name())
	}
}

func TestGeminiContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := newTestProvider(server.URL).Generate(ctx, Request{UserPrompt: "x"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
