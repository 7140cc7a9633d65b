package query

import (
	"fmt"
	"log"

	"github.com/answerhub/answerhub/internal/i18n"
)

// Plan is the execution plan for a generic search: which upstream APIs to
// hit and how to synthesize their results.
type Plan struct {
	Query           string    `json:"query"`
	Intent          Intent    `json:"intent"`
	Entities        []string  `json:"entities"`
	Categories      []string  `json:"categories"`
	Freshness       Freshness `json:"freshness"`
	APIs            []string  `json:"apis"`
	Parallel        bool      `json:"parallel"`
	ExpectedSources int       `json:"expected_sources"`
	SynthesisPrompt string    `json:"-"`
	Language        string    `json:"-"`
}

// MedicalPlan is the execution plan for the medical fan-out path.
type MedicalPlan struct {
	Query         string        `json:"query"`
	ExpandedQuery string        `json:"expanded_query"`
	Topics        []string      `json:"topics"`
	APIs          []SelectedAPI `json:"apis"`
	Mode          Mode          `json:"mode"`
	Language      string        `json:"-"`
}

// categoryAPIs maps a query category to the upstream sources that can serve
// it, best source first.
var categoryAPIs = map[string][]string{
	"finance_crypto": {"coincap", "coingecko"},
	"finance_stocks": {"yahoo_finance", "alphavantage"},
	"news":           {"newsapi", "guardian"},
	"weather":        {"openmeteo", "openweathermap"},
	"wikipedia":      {"wikipedia"},
	"books":          {"google_books"},
	"countries":      {"rest_countries"},
	"translation":    {"libretranslate", "deepl"},
	"images":         {"unsplash", "pexels", "lorempicsum"},
	"quotes":         {"quotable", "adviceslip"},
	"test_data":      {"jsonplaceholder", "randomuser", "fakestore"},
	"github":         {"github"},
	"geolocation":    {"nominatim", "ip_geolocation"},
	"time":           {"worldtime"},
	"url":            {"tinyurl"},
	"medical":        {"pubmed"},
	"nutrition":      {"usda"},
	"space":          {"nasa"},
	"entertainment":  {"tmdb", "omdb"},
}

const (
	maxAPIsPerCategory = 2
	maxAPIsPerPlan     = 6
)

// Planner turns an Analysis into an executable Plan. It only selects APIs
// the fetch engine actually knows how to call.
type Planner struct {
	available map[string]bool
	logger    *log.Logger
}

// NewPlanner creates a new Planner restricted to availableAPIs. An empty
// list means every registered API is considered available.
func NewPlanner(availableAPIs []string) *Planner {
	available := map[string]bool{}
	for _, id := range availableAPIs {
		available[id] = true
	}
	return &Planner{
		available: available,
		logger:    log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

func (p *Planner) isAvailable(id string) bool {
	if len(p.available) == 0 {
		return true
	}
	return p.available[id]
}

// BuildPlan selects up to two sources per detected category, capped at six
// overall, preserving category order.
func (p *Planner) BuildPlan(query string, analysis Analysis, lang string) Plan {
	lang = i18n.Normalize(lang)
	var apis []string
	seen := map[string]bool{}
	for _, cat := range analysis.Categories {
		added := 0
		for _, id := range categoryAPIs[cat] {
			if added >= maxAPIsPerCategory || len(apis) >= maxAPIsPerPlan {
				break
			}
			if seen[id] || !p.isAvailable(id) {
				continue
			}
			apis = append(apis, id)
			seen[id] = true
			added++
		}
		if len(apis) >= maxAPIsPerPlan {
			break
		}
	}
	if len(apis) == 0 && p.isAvailable("wikipedia") {
		apis = append(apis, "wikipedia")
	}

	return Plan{
		Query:           query,
		Intent:          analysis.Intent,
		Entities:        analysis.Entities,
		Categories:      analysis.Categories,
		Freshness:       analysis.Freshness,
		APIs:            apis,
		Parallel:        len(apis) > 1,
		ExpectedSources: len(apis),
		SynthesisPrompt: SynthesisPrompt(lang, analysis.Intent, query),
		Language:        lang,
	}
}

// BuildMedicalPlan selects the medical sources for query, always including
// the mandatory set, and widens terse queries.
func (p *Planner) BuildMedicalPlan(query string, mode Mode, forceAll bool, lang string) MedicalPlan {
	selected, topics := RelevantAPIs(query, forceAll)
	apis := make([]SelectedAPI, 0, len(selected))
	for _, s := range selected {
		if p.isAvailable(s.ID) {
			apis = append(apis, s)
		}
	}
	if mode == "" {
		mode = ModeStandard
	}
	return MedicalPlan{
		Query:         query,
		ExpandedQuery: ExpandQuery(query),
		Topics:        topics,
		APIs:          apis,
		Mode:          mode,
		Language:      i18n.Normalize(lang),
	}
}

// SynthesisPrompt returns the localized synthesis instruction for an intent,
// with the query embedded.
func SynthesisPrompt(lang string, intent Intent, query string) string {
	key := "prompt_" + string(intent)
	tmpl := i18n.T(lang, key)
	if tmpl == key {
		tmpl = i18n.T(lang, "prompt_information")
	}
	return fmt.Sprintf(tmpl, query)
}
