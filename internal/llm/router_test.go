package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/answerhub/answerhub/internal/infra"
)

func testProvider(name string, priority, quota int, fn callFunc) *Provider {
	return &Provider{Name: name, Priority: priority, DailyQuota: quota, available: true, call: fn}
}

func newTestRouter(providers ...*Provider) *Router {
	r := NewRouter(providers, infra.NewQuotaTracker(nil), infra.NewBreaker(), nil)
	r.sleep = func(ctx context.Context, d time.Duration) {}
	return r
}

func TestRoutePicksHighestPriority(t *testing.T) {
	second := testProvider("mistral", 2, 100, func(ctx context.Context, prompt, system string) (string, error) {
		return "from mistral", nil
	})
	first := testProvider("groq", 1, 100, func(ctx context.Context, prompt, system string) (string, error) {
		return "from groq", nil
	})
	r := newTestRouter(second, first)

	res, err := r.Route(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Source != "groq" {
		t.Fatalf("expected groq, got %s", res.Source)
	}
	if res.Text != "from groq" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if res.QuotaRemaining != 99 {
		t.Fatalf("expected 99 remaining, got %d", res.QuotaRemaining)
	}
}

func TestRouteRetriesThenFallsBack(t *testing.T) {
	calls := 0
	flaky := testProvider("groq", 1, 100, func(ctx context.Context, prompt, system string) (string, error) {
		calls++
		return "", fmt.Errorf("boom")
	})
	backup := testProvider("mistral", 2, 100, func(ctx context.Context, prompt, system string) (string, error) {
		return "ok", nil
	})
	r := newTestRouter(flaky, backup)

	res, err := r.Route(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if calls != routeAttempts {
		t.Fatalf("expected %d attempts on flaky provider, got %d", routeAttempts, calls)
	}
	if res.Source != "mistral" {
		t.Fatalf("expected fallback to mistral, got %s", res.Source)
	}
}

func TestRouteSkipsExhaustedQuota(t *testing.T) {
	limited := testProvider("perplexity", 1, 1, func(ctx context.Context, prompt, system string) (string, error) {
		return "ok", nil
	})
	backup := testProvider("mistral", 2, 0, func(ctx context.Context, prompt, system string) (string, error) {
		return "ok", nil
	})
	r := newTestRouter(limited, backup)
	ctx := context.Background()

	res, err := r.Route(ctx, "q1", "")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Source != "perplexity" {
		t.Fatalf("expected perplexity, got %s", res.Source)
	}
	if res.QuotaRemaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", res.QuotaRemaining)
	}

	res, err = r.Route(ctx, "q2", "")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Source != "mistral" {
		t.Fatalf("expected mistral after quota exhausted, got %s", res.Source)
	}
	if res.QuotaRemaining != -1 {
		t.Fatalf("unlimited provider should report -1, got %d", res.QuotaRemaining)
	}
}

func TestRouteQuotaErrorDeselectsForDay(t *testing.T) {
	calls := 0
	rejected := testProvider("groq", 1, 0, func(ctx context.Context, prompt, system string) (string, error) {
		calls++
		return "", fmt.Errorf("groq chat completion: %w", ErrQuotaExceeded)
	})
	backup := testProvider("mistral", 2, 0, func(ctx context.Context, prompt, system string) (string, error) {
		return "ok", nil
	})
	r := newTestRouter(rejected, backup)
	ctx := context.Background()

	if _, err := r.Route(ctx, "q1", ""); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if calls != 1 {
		t.Fatalf("quota rejection must not be retried, got %d calls", calls)
	}

	if _, err := r.Route(ctx, "q2", ""); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if calls != 1 {
		t.Fatalf("provider should be deselected for the day, got %d calls", calls)
	}
}

func TestRouteQuotaErrorDoesNotSettleCircuit(t *testing.T) {
	rejected := testProvider("groq", 1, 0, func(ctx context.Context, prompt, system string) (string, error) {
		return "", fmt.Errorf("groq chat completion: %w", ErrQuotaExceeded)
	})
	breaker := infra.NewBreaker()
	r := NewRouter([]*Provider{rejected}, infra.NewQuotaTracker(nil), breaker, nil)
	r.sleep = func(ctx context.Context, d time.Duration) {}

	_, err := r.Route(context.Background(), "q", "")
	if err == nil {
		t.Fatal("expected routing failure")
	}
	if state := breaker.State("groq"); state != infra.StateClosed {
		t.Fatalf("quota rejection must not touch the circuit, got %s", state)
	}
	if err := breaker.Allow("groq"); err != nil {
		t.Fatalf("circuit must stay usable after a quota rejection: %v", err)
	}
}

func TestRouteStopsRetryingWhenCircuitOpens(t *testing.T) {
	calls := 0
	failing := testProvider("groq", 1, 0, func(ctx context.Context, prompt, system string) (string, error) {
		calls++
		return "", fmt.Errorf("boom")
	})
	breaker := infra.NewBreaker()
	// one failure away from opening; the first attempt trips the circuit
	for i := 0; i < 4; i++ {
		breaker.Failure("groq")
	}
	r := NewRouter([]*Provider{failing}, infra.NewQuotaTracker(nil), breaker, nil)
	r.sleep = func(ctx context.Context, d time.Duration) {}

	if _, err := r.Route(context.Background(), "q", ""); err == nil {
		t.Fatal("expected routing failure")
	}
	if calls != 1 {
		t.Fatalf("retry must respect a freshly opened circuit, got %d calls", calls)
	}
	if state := breaker.State("groq"); state != infra.StateOpen {
		t.Fatalf("expected open circuit, got %s", state)
	}
}

func TestRouteSkipsUnavailableAndOpenCircuit(t *testing.T) {
	unconfigured := &Provider{Name: "anthropic", Priority: 1}
	broken := testProvider("groq", 2, 0, func(ctx context.Context, prompt, system string) (string, error) {
		return "", fmt.Errorf("down")
	})
	backup := testProvider("mistral", 3, 0, func(ctx context.Context, prompt, system string) (string, error) {
		return "ok", nil
	})
	breaker := infra.NewBreaker()
	for i := 0; i < 5; i++ {
		breaker.Failure("groq")
	}
	r := NewRouter([]*Provider{unconfigured, broken, backup}, infra.NewQuotaTracker(nil), breaker, nil)
	r.sleep = func(ctx context.Context, d time.Duration) {}

	res, err := r.Route(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Source != "mistral" {
		t.Fatalf("expected mistral, got %s", res.Source)
	}
}

func TestRoutePreferredProviderFirst(t *testing.T) {
	first := testProvider("groq", 1, 0, func(ctx context.Context, prompt, system string) (string, error) {
		return "from groq", nil
	})
	preferred := testProvider("ollama", 10, 0, func(ctx context.Context, prompt, system string) (string, error) {
		return "from ollama", nil
	})
	r := newTestRouter(first, preferred)

	res, err := r.RouteWith(context.Background(), "q", "", Options{Preferred: "ollama"})
	if err != nil {
		t.Fatalf("RouteWith: %v", err)
	}
	if res.Source != "ollama" {
		t.Fatalf("expected preferred ollama, got %s", res.Source)
	}
}

func TestRouteAllFail(t *testing.T) {
	p1 := testProvider("groq", 1, 0, func(ctx context.Context, prompt, system string) (string, error) {
		return "", fmt.Errorf("boom groq")
	})
	p2 := &Provider{Name: "mistral", Priority: 2}
	r := newTestRouter(p1, p2)

	_, err := r.Route(context.Background(), "q", "")
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	var npe *NoProviderError
	if !errors.As(err, &npe) {
		t.Fatalf("expected NoProviderError, got %T", err)
	}
	if !strings.Contains(npe.Attempts["groq"], "boom groq") {
		t.Fatalf("missing groq error: %v", npe.Attempts)
	}
	if npe.Attempts["mistral"] != "not configured" {
		t.Fatalf("missing mistral reason: %v", npe.Attempts)
	}
}

func TestRouteIncrementsQuotaOnSuccessOnly(t *testing.T) {
	failing := testProvider("groq", 1, 0, func(ctx context.Context, prompt, system string) (string, error) {
		return "", fmt.Errorf("boom")
	})
	working := testProvider("mistral", 2, 100, func(ctx context.Context, prompt, system string) (string, error) {
		return "ok", nil
	})
	quota := infra.NewQuotaTracker(nil)
	r := NewRouter([]*Provider{failing, working}, quota, infra.NewBreaker(), nil)
	r.sleep = func(ctx context.Context, d time.Duration) {}
	ctx := context.Background()

	if _, err := r.Route(ctx, "q", ""); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got := quota.Usage(ctx, "groq"); got != 0 {
		t.Fatalf("failed calls must not consume quota, got %d", got)
	}
	if got := quota.Usage(ctx, "mistral"); got != 1 {
		t.Fatalf("expected 1 recorded request, got %d", got)
	}
}

func TestRouterStatus(t *testing.T) {
	working := testProvider("groq", 1, 100, func(ctx context.Context, prompt, system string) (string, error) {
		return "ok", nil
	})
	unconfigured := &Provider{Name: "anthropic", Priority: 3, DailyQuota: 1000}
	r := newTestRouter(working, unconfigured)
	ctx := context.Background()

	if _, err := r.Route(ctx, "q", ""); err != nil {
		t.Fatalf("Route: %v", err)
	}
	statuses := r.Status(ctx)
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	groq := statuses[0]
	if groq.Name != "groq" || !groq.Available || groq.RequestsToday != 1 || groq.QuotaRemaining != 99 {
		t.Fatalf("unexpected groq status: %+v", groq)
	}
	anth := statuses[1]
	if anth.Available || anth.QuotaRemaining != 1000 {
		t.Fatalf("unexpected anthropic status: %+v", anth)
	}
}
