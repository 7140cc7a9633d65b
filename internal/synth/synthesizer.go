package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/answerhub/answerhub/internal/fetch"
	"github.com/answerhub/answerhub/internal/i18n"
	"github.com/answerhub/answerhub/internal/infra"
	"github.com/answerhub/answerhub/internal/llm"
	"github.com/answerhub/answerhub/internal/query"
	"github.com/answerhub/answerhub/internal/telemetry"
	"github.com/answerhub/answerhub/internal/validate"
)

const (
	maxSourceExcerpt   = 500
	maxRecommendations = 3
	cacheNamespace     = "ai_search"
	cautionThreshold   = 0.3
)

// Caller is the slice of the LLM router the synthesizer needs.
type Caller interface {
	Route(ctx context.Context, prompt, system string) (llm.Result, error)
}

// Result is a fully assembled search answer.
type Result struct {
	Query           string                     `json:"query"`
	Intent          string                     `json:"intent"`
	SourcesCount    int                        `json:"sources_count"`
	Data            map[string]json.RawMessage `json:"data"`
	Synthesis       string                     `json:"ai_synthesis"`
	Source          string                     `json:"ai_source,omitempty"`
	Recommendations []string                   `json:"ai_recommendations"`
	Confidence      float64                    `json:"confidence_score"`
	Validation      validate.Report            `json:"validation"`
	ProgressLog     []string                   `json:"progress_log,omitempty"`
	ElapsedMS       int64                      `json:"execution_time_ms"`
	Cached          bool                       `json:"cached"`
}

// Synthesizer turns a fan-out outcome into a single validated answer.
type Synthesizer struct {
	llm       Caller
	validator *validate.Validator
	cache     *infra.Cache
	metrics   *telemetry.Telemetry
	logger    *log.Logger
	now       func() time.Time
}

// New creates a new Synthesizer. cache and metrics may be nil.
func New(caller Caller, validator *validate.Validator, cache *infra.Cache, metrics *telemetry.Telemetry) *Synthesizer {
	return &Synthesizer{
		llm:       caller,
		validator: validator,
		cache:     cache,
		metrics:   metrics,
		logger:    log.New(log.Writer(), "[SYNTH] ", log.LstdFlags),
		now:       time.Now,
	}
}

// Synthesize builds the final answer for a generic search. LLM failures
// degrade to the raw data with a fallback message; only context
// cancellation is returned as an error.
func (s *Synthesizer) Synthesize(ctx context.Context, plan query.Plan, outcome fetch.Outcome, memoryContext string) (Result, error) {
	start := s.now()
	lang := plan.Language
	s.metrics.Search(string(plan.Intent))

	if cached, ok := s.cachedResult(ctx, lang, plan.Query); ok {
		return cached, nil
	}

	result := Result{
		Query:        plan.Query,
		Intent:       string(plan.Intent),
		SourcesCount: outcome.APIsWithData,
		Data:         collectData(outcome),
		ProgressLog:  outcome.ProgressLog,
	}

	expertType := expertTypeFor(plan.Categories)
	evidence := buildEvidence(outcome, lang)
	prompt := plan.SynthesisPrompt +
		"\n\n" + i18n.T(lang, "collected_data") + "\n" + evidence +
		"\n\n" + i18n.T(lang, "synthesis_instructions") +
		"\n" + i18n.T(lang, "answer_language")
	if memoryContext != "" {
		prompt = memoryContext + "\n\n" + prompt
	}
	systemKey := "system_synthesis"
	switch expertType {
	case "medical":
		systemKey = "system_expert_medical"
	case "financial":
		systemKey = "system_expert_finance"
	}
	system := s.validator.EnhanceSystemPrompt(i18n.T(lang, systemKey), plan.Query, expertType)

	res, err := s.llm.Route(ctx, prompt, system)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		s.logger.Printf("synthesis failed for %q: %v", plan.Query, err)
		result.Synthesis = i18n.T(lang, "synthesis_failed")
		result.Validation = validate.Report{IsValid: false, Confidence: 0}
	} else {
		result.Synthesis = res.Text
		result.Source = res.Source
		result.Validation = s.validator.Validate(res.Text, memoryContext+" "+plan.Query, expertType)
		if !result.Validation.IsValid || result.Validation.Confidence < cautionThreshold {
			result.Synthesis = "⚠️ " + result.Synthesis + "\n\n" + i18n.T(lang, "caution_note")
		}
	}

	result.Confidence = sourceConfidence(outcome.APIsWithData, plan.ExpectedSources)
	result.Recommendations = recommendations(lang, plan.Intent, outcome)
	result.ElapsedMS = s.now().Sub(start).Milliseconds()

	s.storeResult(ctx, lang, plan.Query, result)
	return result, nil
}

// SynthesizeMedical assembles the answer for the medical fan-out path.
func (s *Synthesizer) SynthesizeMedical(ctx context.Context, mp query.MedicalPlan, outcome fetch.Outcome) (Result, error) {
	plan := query.Plan{
		Query:           mp.Query,
		Intent:          query.IntentInformation,
		Categories:      []string{"medical"},
		ExpectedSources: len(mp.APIs),
		SynthesisPrompt: query.SynthesisPrompt(mp.Language, query.IntentInformation, mp.Query),
		Language:        mp.Language,
	}
	return s.Synthesize(ctx, plan, outcome, "")
}

func (s *Synthesizer) cachedResult(ctx context.Context, lang, q string) (Result, bool) {
	if s.cache == nil {
		return Result{}, false
	}
	data, ok := s.cache.Get(ctx, cacheNamespace, lang+"|"+q)
	if !ok {
		s.metrics.CacheOp(cacheNamespace, "miss")
		return Result{}, false
	}
	var cached Result
	if err := json.Unmarshal(data, &cached); err != nil {
		s.logger.Printf("corrupt cache entry for %q: %v", q, err)
		return Result{}, false
	}
	s.metrics.CacheOp(cacheNamespace, "hit")
	cached.Cached = true
	return cached, true
}

func (s *Synthesizer) storeResult(ctx context.Context, lang, q string, result Result) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Printf("marshal result: %v", err)
		return
	}
	s.cache.Set(ctx, cacheNamespace, lang+"|"+q, data, infra.TTLSynthesis)
}

func collectData(outcome fetch.Outcome) map[string]json.RawMessage {
	data := map[string]json.RawMessage{}
	for id, r := range outcome.Results {
		if r.Status == fetch.StatusFound {
			data[id] = r.Data
		}
	}
	return data
}

// buildEvidence renders one context line per successful source, truncated
// so a single verbose source cannot crowd out the rest.
func buildEvidence(outcome fetch.Outcome, lang string) string {
	var lines []string
	for _, id := range outcome.Order {
		r := outcome.Results[id]
		if r.Status != fetch.StatusFound {
			continue
		}
		payload := string(r.Data)
		if len(payload) > maxSourceExcerpt {
			payload = payload[:maxSourceExcerpt]
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", id, payload))
	}
	if len(lines) == 0 {
		return i18n.T(lang, "no_data")
	}
	return strings.Join(lines, "\n")
}

// sourceConfidence scores data coverage: share of expected sources that
// answered, with a small bonus for corroboration.
func sourceConfidence(found, expected int) float64 {
	if expected <= 0 {
		return 0
	}
	confidence := float64(found) / float64(expected)
	if found >= 2 {
		confidence += 0.1
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func expertTypeFor(categories []string) string {
	for _, c := range categories {
		switch c {
		case "medical", "nutrition":
			return "medical"
		case "finance_crypto", "finance_stocks":
			return "financial"
		}
	}
	return ""
}

func recommendations(lang string, intent query.Intent, outcome fetch.Outcome) []string {
	recs := i18n.List(lang, "rec_"+string(intent))
	if recs == nil {
		recs = i18n.List(lang, "rec_default")
	}
	out := append([]string{}, recs...)

	hasData := func(id string) bool {
		r, ok := outcome.Results[id]
		return ok && r.Status == fetch.StatusFound
	}
	if hasData("coincap") || hasData("coingecko") {
		out = append(out, i18n.List(lang, "rec_crypto")...)
	}
	if hasData("wikipedia") {
		out = append(out, i18n.List(lang, "rec_wikipedia")...)
	}
	if len(out) > maxRecommendations {
		out = out[:maxRecommendations]
	}
	return out
}
