package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/answerhub/answerhub/config"
)

func TestUsableKey(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"", false},
		{"  ", false},
		{"your_groq_key", false},
		{"changeme", false},
		{"gsk_live_abc123", true},
	}
	for _, c := range cases {
		if got := usableKey(c.key); got != c.want {
			t.Fatalf("usableKey(%q) = %v, want %v", c.key, got, c.want)
		}
	}
}

func TestNewProvidersChain(t *testing.T) {
	providers := NewProviders(config.ProvidersConfig{
		Groq:   config.ProviderConfig{APIKey: "gsk_abc"},
		Ollama: config.ProviderConfig{BaseURL: "http://127.0.0.1:1"},
	})
	if len(providers) != 10 {
		t.Fatalf("expected 10 providers, got %d", len(providers))
	}

	byName := map[string]*Provider{}
	for _, p := range providers {
		byName[p.Name] = p
	}
	groq := byName["groq"]
	if groq == nil || !groq.Available() || groq.Priority != 1 || groq.DailyQuota != 14000 {
		t.Fatalf("unexpected groq provider: %+v", groq)
	}
	if byName["anthropic"].Available() {
		t.Fatal("anthropic without key should be unavailable")
	}
	if byName["perplexity"].DailyQuota != 5 {
		t.Fatalf("unexpected perplexity quota: %d", byName["perplexity"].DailyQuota)
	}
	// nothing listening on port 1, probe must fail fast
	if byName["ollama"].Available() {
		t.Fatal("ollama without a daemon should be unavailable")
	}
}

func TestOpenRouterRejectsForeignKey(t *testing.T) {
	p := newOpenRouter(config.ProviderConfig{APIKey: "sk-proj-wrongvendor"}, time.Second)
	if p.Available() {
		t.Fatal("non sk-or- key must leave openrouter unavailable")
	}
	p = newOpenRouter(config.ProviderConfig{APIKey: "sk-or-v1-abc"}, time.Second)
	if !p.Available() {
		t.Fatal("sk-or- key should enable openrouter")
	}
}

func TestUnavailableProviderCall(t *testing.T) {
	p := &Provider{Name: "anthropic"}
	_, err := p.Call(context.Background(), "q", "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestWrapVendorErrMapsRateLimit(t *testing.T) {
	err := wrapVendorErr("cohere chat", &StatusError{Status: http.StatusTooManyRequests, Body: "slow down"})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	err = wrapVendorErr("cohere chat", &StatusError{Status: http.StatusBadRequest, Body: "nope"})
	if errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("400 must not map to quota error: %v", err)
	}
}

func TestAnthropicCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-ant-test" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("missing version header")
		}
		fmt.Fprint(w, `{"content":[{"text":"bonjour"}]}`)
	}))
	defer srv.Close()

	p := newAnthropic(config.ProviderConfig{APIKey: "sk-ant-test", BaseURL: srv.URL}, NewHTTPClient(time.Second, 0, time.Millisecond))
	got, err := p.Call(context.Background(), "salut", "sois bref")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "bonjour" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestCohereQuotaRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message":"rate limited"}`)
	}))
	defer srv.Close()

	p := newCohere(config.ProviderConfig{APIKey: "co-test", BaseURL: srv.URL}, NewHTTPClient(time.Second, 0, time.Millisecond))
	_, err := p.Call(context.Background(), "q", "")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestGeminiCall(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"42"}]}}]}`)
	}))
	defer srv.Close()

	p := newGemini(config.ProviderConfig{APIKey: "gk-test", BaseURL: srv.URL}, NewHTTPClient(time.Second, 0, time.Millisecond))
	got, err := p.Call(context.Background(), "meaning of life", "")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "42" {
		t.Fatalf("unexpected text: %q", got)
	}
	if gotPath != "/models/gemini-1.5-flash:generateContent" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
}

func TestHuggingFaceModelLoading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"loading"}`)
	}))
	defer srv.Close()

	p := newHuggingFace(config.ProviderConfig{APIKey: "hf-test", BaseURL: srv.URL}, NewHTTPClient(time.Second, 0, time.Millisecond))
	_, err := p.Call(context.Background(), "q", "")
	if err == nil || !strings.Contains(err.Error(), "loading") {
		t.Fatalf("expected model loading error, got %v", err)
	}
}

func TestStreamSingleChunkFallback(t *testing.T) {
	p := &Provider{Name: "test", available: true, call: func(ctx context.Context, prompt, system string) (string, error) {
		return "full answer", nil
	}}
	ch, err := p.Stream(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var chunks []Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 1 || chunks[0].Text != "full answer" || chunks[0].Err != nil {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestStreamFallbackPropagatesError(t *testing.T) {
	p := &Provider{Name: "test", available: true, call: func(ctx context.Context, prompt, system string) (string, error) {
		return "", errors.New("boom")
	}}
	ch, err := p.Stream(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var last Chunk
	for c := range ch {
		last = c
	}
	if last.Err == nil || !strings.Contains(last.Err.Error(), "boom") {
		t.Fatalf("expected error chunk, got %+v", last)
	}
}

func TestStreamUnavailableProvider(t *testing.T) {
	p := &Provider{Name: "test"}
	if _, err := p.Stream(context.Background(), "q", ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
