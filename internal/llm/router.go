package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/answerhub/answerhub/internal/infra"
	"github.com/answerhub/answerhub/internal/telemetry"
)

const (
	routeAttempts = 2
	retryBackoff  = 500 * time.Millisecond
)

// Result is a successful routed completion.
type Result struct {
	Text           string `json:"response"`
	Source         string `json:"source"`
	ElapsedMS      int64  `json:"processing_time_ms"`
	QuotaRemaining int    `json:"quota_remaining"`
}

// ProviderStatus is one row of the router status report.
type ProviderStatus struct {
	Name           string `json:"name"`
	Available      bool   `json:"available"`
	Priority       int    `json:"priority"`
	DailyQuota     int    `json:"daily_quota"`
	RequestsToday  int    `json:"requests_today"`
	QuotaRemaining int    `json:"quota_remaining"`
	CircuitState   string `json:"circuit_state"`
	LastError      string `json:"last_error,omitempty"`
}

// NoProviderError is returned when every provider in the chain was skipped
// or failed. It carries the last error seen per provider.
type NoProviderError struct {
	Attempts map[string]string
}

func (e *NoProviderError) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers failed or quota exhausted"
	}
	parts := make([]string, 0, len(e.Attempts))
	for name, msg := range e.Attempts {
		parts = append(parts, name+": "+msg)
	}
	sort.Strings(parts)
	return "all providers failed or quota exhausted (" + strings.Join(parts, "; ") + ")"
}

// Options tweaks a single Route call.
type Options struct {
	// Preferred moves the named provider to the front of the chain.
	Preferred string
}

// Router walks the provider chain in priority order, honoring quota budgets
// and circuit breakers, and returns the first successful completion.
type Router struct {
	providers []*Provider
	quota     *infra.QuotaTracker
	breaker   *infra.Breaker
	metrics   *telemetry.Telemetry
	logger    *log.Logger
	sleep     func(ctx context.Context, d time.Duration)
	now       func() time.Time

	mu        sync.Mutex
	lastErr   map[string]string
	quotaDown map[string]string // provider -> day it ran out of upstream budget
}

// NewRouter creates a new Router. metrics may be nil.
func NewRouter(providers []*Provider, quota *infra.QuotaTracker, breaker *infra.Breaker, metrics *telemetry.Telemetry) *Router {
	sorted := make([]*Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &Router{
		providers: sorted,
		quota:     quota,
		breaker:   breaker,
		metrics:   metrics,
		logger:    log.New(log.Writer(), "[ROUTER] ", log.LstdFlags),
		sleep:     sleepCtx,
		now:       time.Now,
		lastErr:   map[string]string{},
		quotaDown: map[string]string{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Route sends the prompt through the provider chain with default options.
func (r *Router) Route(ctx context.Context, prompt, system string) (Result, error) {
	return r.RouteWith(ctx, prompt, system, Options{})
}

// RouteWith sends the prompt through the provider chain. Each eligible
// provider gets up to two attempts with a short linear backoff; a quota
// rejection deselects the provider for the rest of the day.
func (r *Router) RouteWith(ctx context.Context, prompt, system string, opts Options) (Result, error) {
	chain := r.chain(opts.Preferred)
	failed := map[string]string{}

	for _, p := range chain {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if !p.Available() {
			failed[p.Name] = "not configured"
			continue
		}
		if r.exhaustedToday(p.Name) {
			failed[p.Name] = "quota exhausted (upstream)"
			continue
		}
		if !r.quota.Available(ctx, p.Name, p.DailyQuota) {
			used := r.quota.Usage(ctx, p.Name)
			r.logger.Printf("%s quota exhausted (%d/%d)", p.Name, used, p.DailyQuota)
			failed[p.Name] = fmt.Sprintf("quota exhausted (%d/%d)", used, p.DailyQuota)
			continue
		}
		if err := r.breaker.Allow(p.Name); err != nil {
			failed[p.Name] = "circuit open"
			continue
		}

		res, err := r.tryProvider(ctx, p, prompt, system)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		failed[p.Name] = err.Error()
	}
	return Result{}, &NoProviderError{Attempts: failed}
}

func (r *Router) tryProvider(ctx context.Context, p *Provider, prompt, system string) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= routeAttempts; attempt++ {
		start := r.now()
		text, err := p.Call(ctx, prompt, system)
		elapsed := r.now().Sub(start)
		if err == nil {
			r.breaker.Success(p.Name)
			r.metrics.ProviderCall(p.Name, "success", elapsed)
			used := r.quota.Increment(ctx, p.Name)
			remaining := -1
			if p.DailyQuota > 0 {
				remaining = p.DailyQuota - used
				if remaining < 0 {
					remaining = 0
				}
			}
			r.setLastErr(p.Name, "")
			return Result{
				Text:           text,
				Source:         p.Name,
				ElapsedMS:      elapsed.Milliseconds(),
				QuotaRemaining: remaining,
			}, nil
		}

		lastErr = err
		r.setLastErr(p.Name, err.Error())
		r.logger.Printf("%s attempt %d/%d failed: %v", p.Name, attempt, routeAttempts, err)
		if errors.Is(err, ErrQuotaExceeded) {
			r.metrics.ProviderCall(p.Name, "quota", elapsed)
			// a quota rejection says nothing about backend health; release
			// any half-open probe slot instead of settling the circuit
			r.breaker.Abandon(p.Name)
			r.markExhausted(p.Name)
			return Result{}, err
		}
		r.metrics.ProviderCall(p.Name, "error", elapsed)
		r.breaker.Failure(p.Name)
		if attempt < routeAttempts {
			if r.breaker.Allow(p.Name) != nil {
				break
			}
			r.sleep(ctx, retryBackoff*time.Duration(attempt))
		}
	}
	return Result{}, lastErr
}

// chain returns the provider order for one call, with the preferred provider
// (if any) moved to the front.
func (r *Router) chain(preferred string) []*Provider {
	if preferred == "" {
		return r.providers
	}
	chain := make([]*Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Name == preferred {
			chain = append([]*Provider{p}, chain...)
			continue
		}
		chain = append(chain, p)
	}
	return chain
}

func (r *Router) day() string {
	return r.now().UTC().Format("2006-01-02")
}

func (r *Router) markExhausted(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotaDown[name] = r.day()
}

func (r *Router) exhaustedToday(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quotaDown[name] == r.day()
}

func (r *Router) setLastErr(name, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg == "" {
		delete(r.lastErr, name)
		return
	}
	r.lastErr[name] = msg
}

// Status reports the current state of every provider in the chain.
func (r *Router) Status(ctx context.Context) []ProviderStatus {
	statuses := make([]ProviderStatus, 0, len(r.providers))
	for _, p := range r.providers {
		r.mu.Lock()
		lastErr := r.lastErr[p.Name]
		r.mu.Unlock()
		statuses = append(statuses, ProviderStatus{
			Name:           p.Name,
			Available:      p.Available(),
			Priority:       p.Priority,
			DailyQuota:     p.DailyQuota,
			RequestsToday:  r.quota.Usage(ctx, p.Name),
			QuotaRemaining: r.quota.Remaining(ctx, p.Name, p.DailyQuota),
			CircuitState:   r.breaker.State(p.Name),
			LastError:      lastErr,
		})
	}
	return statuses
}
