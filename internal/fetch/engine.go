package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/answerhub/answerhub/config"
	"github.com/answerhub/answerhub/internal/i18n"
	"github.com/answerhub/answerhub/internal/infra"
	"github.com/answerhub/answerhub/internal/query"
	"github.com/answerhub/answerhub/internal/telemetry"
)

// Status is the outcome of one upstream call.
type Status string

const (
	StatusFound       Status = "found"
	StatusNoData      Status = "no_data"
	StatusTimeout     Status = "timeout"
	StatusError       Status = "error"
	StatusUnavailable Status = "unavailable"
)

// CallResult is the outcome of querying one source.
type CallResult struct {
	API       string          `json:"api"`
	Display   string          `json:"display_name"`
	Icon      string          `json:"-"`
	Status    Status          `json:"status"`
	Count     int             `json:"results_count"`
	Data      json.RawMessage `json:"data,omitempty"`
	ElapsedMS int64           `json:"time_ms"`
	Cached    bool            `json:"cached,omitempty"`
}

// Outcome aggregates a whole fan-out run, including the human-readable
// progress log that the UI renders live.
type Outcome struct {
	Results      map[string]CallResult `json:"results"`
	Order        []string              `json:"order"`
	ProgressLog  []string              `json:"progress_log"`
	APIsCalled   int                   `json:"apis_called"`
	APIsWithData int                   `json:"apis_with_data"`
	QualityScore float64               `json:"quality_score"`
	TotalMS      int64                 `json:"total_time_ms"`
}

// Mode budgets for the medical path.
var modeBudgets = map[query.Mode]struct {
	budget time.Duration
	tiers  map[string]bool
}{
	query.ModeFast: {
		budget: 1500 * time.Millisecond,
		tiers:  map[string]bool{query.TierLocal: true},
	},
	query.ModeStandard: {
		budget: 4 * time.Second,
		tiers:  map[string]bool{query.TierLocal: true, query.TierPrimary: true},
	},
	query.ModeDeep: {
		budget: 12 * time.Second,
		tiers: map[string]bool{
			query.TierLocal: true, query.TierPrimary: true, query.TierSecondary: true,
			query.TierTertiary: true, query.TierPremium: true, query.TierElite: true,
		},
	},
}

var phaseIcons = map[string]string{
	query.TierLocal:     "📚",
	query.TierPrimary:   "🔬",
	query.TierSecondary: "🔍",
	query.TierTertiary:  "🌐",
	query.TierPremium:   "💎",
	query.TierElite:     "🏆",
}

// Engine queries upstream data sources in parallel through the API gateway.
type Engine struct {
	base       string
	client     *http.Client
	timeout    time.Duration
	medTimeout time.Duration
	cache      *infra.Cache
	metrics    *telemetry.Telemetry
	logger     *log.Logger
	now        func() time.Time
}

// NewEngine creates a new Engine. cache and metrics may be nil.
func NewEngine(cfg config.UpstreamConfig, cache *infra.Cache, metrics *telemetry.Telemetry) *Engine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	medTimeout := cfg.MedicalTimeout
	if medTimeout <= 0 {
		medTimeout = 15 * time.Second
	}
	return &Engine{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		client:     &http.Client{},
		timeout:    timeout,
		medTimeout: medTimeout,
		cache:      cache,
		metrics:    metrics,
		logger:     log.New(log.Writer(), "[FETCH] ", log.LstdFlags),
		now:        time.Now,
	}
}

// Fetch runs the generic plan: every selected source in parallel (or
// sequentially for single-source plans), one result per source.
func (e *Engine) Fetch(ctx context.Context, plan query.Plan) Outcome {
	start := e.now()
	lang := plan.Language
	out := Outcome{Results: map[string]CallResult{}}
	out.ProgressLog = append(out.ProgressLog,
		strings.Repeat("=", 50),
		i18n.T(lang, "search_header"),
		i18n.T(lang, "query_label")+": "+plan.Query,
	)

	ttl := ttlForFreshness(plan.Freshness)
	results := make([]CallResult, len(plan.APIs))
	g, gctx := errgroup.WithContext(ctx)
	if !plan.Parallel {
		g.SetLimit(1)
	}
	for i, id := range plan.APIs {
		i, id := i, id
		g.Go(func() error {
			results[i] = e.fetchOne(gctx, id, plan.Query, e.timeout, ttl)
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		e.record(&out, r, lang)
	}
	e.summarize(&out, lang, e.now().Sub(start))
	return out
}

// FetchMedical runs the phased medical fan-out. Each tier is a parallel
// batch; cheap local sources go first, elite research sources last. The
// mode bounds both the tier set and the total time budget.
func (e *Engine) FetchMedical(ctx context.Context, plan query.MedicalPlan) Outcome {
	start := e.now()
	lang := plan.Language
	budget, ok := modeBudgets[plan.Mode]
	if !ok {
		budget = modeBudgets[query.ModeStandard]
	}
	octx, cancel := context.WithTimeout(ctx, budget.budget)
	defer cancel()

	out := Outcome{Results: map[string]CallResult{}}
	out.ProgressLog = append(out.ProgressLog,
		strings.Repeat("=", 50),
		i18n.T(lang, "medical_header"),
		i18n.T(lang, "query_label")+": "+plan.Query,
	)

	selected := map[string]bool{}
	for _, api := range plan.APIs {
		selected[api.ID] = true
	}

	phase := 0
	for _, tier := range query.Tiers {
		if !budget.tiers[tier] {
			continue
		}
		var batch []Descriptor
		for _, api := range query.MedicalRegistry {
			if api.Tier != tier || !selected[api.ID] {
				continue
			}
			if d, ok := Lookup(api.ID); ok {
				batch = append(batch, d)
			}
		}
		if len(batch) == 0 {
			continue
		}
		phase++
		out.ProgressLog = append(out.ProgressLog,
			"",
			fmt.Sprintf("%s PHASE %d: %s", phaseIcons[tier], phase, i18n.T(lang, "phase_"+tier)),
			strings.Repeat("-", 40),
		)

		results := make([]CallResult, len(batch))
		g, gctx := errgroup.WithContext(octx)
		for i, d := range batch {
			i, d := i, d
			g.Go(func() error {
				results[i] = e.fetchOne(gctx, d.ID, plan.ExpandedQuery, e.medTimeout, infra.TTLStable)
				return nil
			})
		}
		g.Wait()
		for _, r := range results {
			e.record(&out, r, lang)
		}
	}

	e.summarize(&out, lang, e.now().Sub(start))
	return out
}

func ttlForFreshness(f query.Freshness) time.Duration {
	switch f {
	case query.FreshnessLive:
		return infra.TTLRealtime
	case query.FreshnessStable:
		return infra.TTLStable
	default:
		return infra.TTLSynthesis
	}
}

func (e *Engine) fetchOne(ctx context.Context, id, q string, timeout time.Duration, ttl time.Duration) CallResult {
	d, ok := Lookup(id)
	if !ok {
		return CallResult{API: id, Display: id, Icon: "❔", Status: StatusUnavailable}
	}
	res := CallResult{API: d.ID, Display: d.Display, Icon: d.Icon}
	ns := "upstream:" + d.ID

	if e.cache != nil {
		if data, hit := e.cache.Get(ctx, ns, q); hit {
			e.metrics.CacheOp(ns, "hit")
			res.Count, _ = analyzePayload(data)
			res.Status = StatusFound
			res.Data = data
			res.Cached = true
			return res
		}
		e.metrics.CacheOp(ns, "miss")
	}

	start := e.now()
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, d.URL(e.base, q), nil)
	if err != nil {
		res.Status = StatusError
		return res
	}
	resp, err := e.client.Do(req)
	res.ElapsedMS = e.now().Sub(start).Milliseconds()
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			res.Status = StatusTimeout
		} else {
			res.Status = StatusError
		}
		e.metrics.UpstreamFetch(d.ID, string(res.Status))
		return res
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Status = StatusError
		e.metrics.UpstreamFetch(d.ID, string(res.Status))
		return res
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		res.Status = StatusNoData
	case resp.StatusCode == http.StatusServiceUnavailable:
		res.Status = StatusUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		res.Status = StatusError
	default:
		count, has := analyzePayload(body)
		if has {
			res.Status = StatusFound
			res.Count = count
			res.Data = body
			if e.cache != nil {
				e.cache.Set(ctx, ns, q, body, ttl)
			}
		} else {
			res.Status = StatusNoData
		}
	}
	e.metrics.UpstreamFetch(d.ID, string(res.Status))
	return res
}

// analyzePayload inspects an upstream JSON payload and decides whether it
// actually carries results.
func analyzePayload(data []byte) (int, bool) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, false
	}
	switch t := v.(type) {
	case nil:
		return 0, false
	case []interface{}:
		return len(t), len(t) > 0
	case map[string]interface{}:
		for _, key := range []string{"results", "articles", "items", "data", "trials", "studies"} {
			if arr, ok := t[key].([]interface{}); ok {
				return len(arr), len(arr) > 0
			}
		}
		for _, key := range []string{"count", "total", "found"} {
			if n, ok := t[key].(float64); ok {
				if n <= 0 {
					return 0, false
				}
				return int(n), true
			}
		}
		if len(t) == 0 {
			return 0, false
		}
		return 1, true
	case string:
		return 1, strings.TrimSpace(t) != ""
	default:
		return 1, true
	}
}

func (e *Engine) record(out *Outcome, r CallResult, lang string) {
	out.Results[r.API] = r
	out.Order = append(out.Order, r.API)
	out.APIsCalled++
	if r.Status == StatusFound {
		out.APIsWithData++
	}
	out.ProgressLog = append(out.ProgressLog, resultLine(lang, r))
}

func resultLine(lang string, r CallResult) string {
	switch r.Status {
	case StatusFound:
		return fmt.Sprintf("%s ✅ %s: %d %s (%dms)", r.Icon, r.Display, r.Count, i18n.T(lang, "results_word"), r.ElapsedMS)
	case StatusNoData:
		return fmt.Sprintf("%s ⚪ %s: %s", r.Icon, r.Display, i18n.T(lang, "result_none"))
	case StatusTimeout:
		return fmt.Sprintf("%s ⏱️ %s: %s", r.Icon, r.Display, i18n.T(lang, "result_timeout"))
	case StatusUnavailable:
		return fmt.Sprintf("%s ⚠️ %s: %s", r.Icon, r.Display, i18n.T(lang, "result_unavailable"))
	default:
		return fmt.Sprintf("%s ❌ %s: %s", r.Icon, r.Display, i18n.T(lang, "result_error"))
	}
}

func (e *Engine) summarize(out *Outcome, lang string, elapsed time.Duration) {
	out.TotalMS = elapsed.Milliseconds()
	denom := out.APIsCalled
	if denom < 1 {
		denom = 1
	}
	out.QualityScore = float64(out.APIsWithData) / float64(denom)
	out.ProgressLog = append(out.ProgressLog,
		"",
		strings.Repeat("=", 50),
		i18n.T(lang, "summary_label"),
		fmt.Sprintf("%s: %.1fs", i18n.T(lang, "total_time_label"), elapsed.Seconds()),
		fmt.Sprintf("%s: %d", i18n.T(lang, "apis_called_label"), out.APIsCalled),
		fmt.Sprintf("%s: %d", i18n.T(lang, "apis_data_label"), out.APIsWithData),
		fmt.Sprintf("%s: %d%%", i18n.T(lang, "success_rate_label"), int(out.QualityScore*100)),
	)
}
