package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/answerhub/answerhub/internal/llm"
)

// Intent classifies what the user is trying to achieve with a query.
type Intent string

const (
	IntentInformation    Intent = "information"
	IntentRealtime       Intent = "realtime"
	IntentComparison     Intent = "comparison"
	IntentRecommendation Intent = "recommendation"
	IntentAction         Intent = "action"
	IntentExploration    Intent = "exploration"
	IntentAnalysis       Intent = "analysis"
)

// Freshness describes how volatile the data behind a query is.
type Freshness string

const (
	FreshnessLive   Freshness = "live"
	FreshnessFresh  Freshness = "fresh"
	FreshnessRecent Freshness = "recent"
	FreshnessStable Freshness = "stable"
)

// Mode selects how wide and how long a search may run.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeStandard Mode = "standard"
	ModeDeep     Mode = "deep"
)

// Analysis is the structured reading of a raw user query.
type Analysis struct {
	Intent     Intent    `json:"intent"`
	Entities   []string  `json:"entities"`
	Categories []string  `json:"categories"`
	Freshness  Freshness `json:"freshness"`
	Confidence float64   `json:"confidence"`
	AIAnalyzed bool      `json:"ai_analyzed"`
}

// ModeDecision explains a search mode pick.
type ModeDecision struct {
	Mode       Mode    `json:"mode"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Caller is the slice of the LLM router the analyzer needs.
type Caller interface {
	Route(ctx context.Context, prompt, system string) (llm.Result, error)
}

// Analyzer turns raw queries into an Analysis. It tries an LLM pass first
// and falls back to keyword heuristics, so it always produces an answer.
type Analyzer struct {
	llm    Caller
	logger *log.Logger
}

// NewAnalyzer creates a new Analyzer. caller may be nil, in which case only
// the keyword heuristics run.
func NewAnalyzer(caller Caller) *Analyzer {
	return &Analyzer{
		llm:    caller,
		logger: log.New(log.Writer(), "[ANALYZER] ", log.LstdFlags),
	}
}

// accentFold strips the diacritics that show up in French queries so that
// keyword matching works on both spellings.
var accentFold = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"à", "a", "â", "a", "ä", "a",
	"ù", "u", "û", "u", "ü", "u",
	"î", "i", "ï", "i",
	"ô", "o", "ö", "o",
	"ç", "c",
)

func normalize(s string) string {
	return accentFold.Replace(strings.ToLower(s))
}

var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentInformation, []string{
		"qu'est-ce que", "what is", "définition", "definition", "explain", "explique",
		"c'est quoi", "qui est", "who is", "histoire de", "history of", "comment fonctionne",
	}},
	{IntentRealtime, []string{
		"prix", "price", "cours", "météo", "weather", "actualité", "news",
		"en ce moment", "maintenant", "today", "live", "temps réel",
	}},
	{IntentComparison, []string{
		"vs", "versus", "comparaison", "compare", "différence", "difference",
		"meilleur", "best", "better", "lequel", "which",
	}},
	{IntentRecommendation, []string{
		"dois-je", "should i", "conseille", "recommend", "suggère", "suggest",
		"que faire", "what to do", "avis", "opinion",
	}},
	{IntentAction, []string{
		"traduire", "translate", "raccourcir", "shorten", "convertir", "convert",
		"générer", "generate", "créer", "create", "envoyer", "send",
	}},
	{IntentExploration, []string{
		"découvrir", "discover", "explorer", "explore", "random", "aléatoire",
		"surprends-moi", "surprise me", "nouveauté", "something new",
	}},
	{IntentAnalysis, []string{
		"analyse", "analyze", "tendance", "trend", "évolution", "evolution",
		"statistique", "statistics", "performance", "rapport", "report",
	}},
}

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"finance_crypto", []string{"bitcoin", "crypto", "ethereum", "btc", "eth", "coin"}},
	{"finance_stocks", []string{"stock", "action", "bourse", "nasdaq", "trading"}},
	{"news", []string{"actualité", "news", "nouvelle", "journal"}},
	{"weather", []string{"météo", "weather", "température", "pluie"}},
	{"wikipedia", []string{"wiki", "définition", "qu'est-ce", "histoire"}},
	{"books", []string{"livre", "book", "auteur", "roman"}},
	{"countries", []string{"pays", "country", "capitale", "drapeau"}},
	{"quotes", []string{"citation", "quote", "proverbe", "conseil"}},
	{"github", []string{"github", "repo", "code", "projet"}},
	{"entertainment", []string{"film", "movie", "série", "acteur"}},
}

const maxCategories = 5

func detectIntent(query string) Intent {
	q := normalize(query)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(q, normalize(kw)) {
				return entry.intent
			}
		}
	}
	return IntentInformation
}

func detectCategories(query string) []string {
	q := normalize(query)
	var cats []string
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(q, normalize(kw)) {
				cats = append(cats, entry.category)
				break
			}
		}
		if len(cats) >= maxCategories {
			break
		}
	}
	if len(cats) == 0 {
		return []string{"wikipedia", "news"}
	}
	return cats
}

func validIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentInformation, IntentRealtime, IntentComparison, IntentRecommendation,
		IntentAction, IntentExploration, IntentAnalysis:
		return Intent(s), true
	}
	return "", false
}

func validFreshness(s string) (Freshness, bool) {
	switch Freshness(s) {
	case FreshnessLive, FreshnessFresh, FreshnessRecent, FreshnessStable:
		return Freshness(s), true
	}
	return "", false
}

const analyzePrompt = `Analyze this search query: %q

Reply with strict JSON only, no prose, matching:
{"intent": one of ["information","realtime","comparison","recommendation","action","exploration","analysis"],
 "entities": up to 5 key entities from the query,
 "categories": up to 5 of ["finance_crypto","finance_stocks","news","weather","wikipedia","books","countries","translation","images","quotes","test_data","github","geolocation","time","url","medical","nutrition","space","entertainment"],
 "freshness": one of ["live","fresh","recent","stable"],
 "confidence": number between 0 and 1}`

// Analyze produces the structured reading of query. The LLM pass is best
// effort; on any failure the keyword fallback answers instead.
func (a *Analyzer) Analyze(ctx context.Context, query string) Analysis {
	if a.llm != nil {
		if analysis, err := a.analyzeWithLLM(ctx, query); err == nil {
			return analysis
		} else {
			a.logger.Printf("llm analysis failed, using keywords: %v", err)
		}
	}
	return a.keywordAnalysis(query)
}

func (a *Analyzer) analyzeWithLLM(ctx context.Context, query string) (Analysis, error) {
	res, err := a.llm.Route(ctx, fmt.Sprintf(analyzePrompt, query), "You are a query classification engine. Output strict JSON only.")
	if err != nil {
		return Analysis{}, err
	}
	raw := strings.TrimSpace(res.Text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	obj, ok := extractFirstJSON(raw)
	if !ok {
		return Analysis{}, fmt.Errorf("no JSON object in %q", res.Text)
	}

	var parsed struct {
		Intent     string   `json:"intent"`
		Entities   []string `json:"entities"`
		Categories []string `json:"categories"`
		Freshness  string   `json:"freshness"`
		Confidence float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return Analysis{}, fmt.Errorf("unmarshal: %w", err)
	}

	intent, ok := validIntent(parsed.Intent)
	if !ok {
		intent = detectIntent(query)
	}
	freshness, ok := validFreshness(parsed.Freshness)
	if !ok {
		freshness = FreshnessFresh
	}
	categories := parsed.Categories
	if len(categories) == 0 {
		categories = detectCategories(query)
	}
	if len(categories) > maxCategories {
		categories = categories[:maxCategories]
	}
	confidence := parsed.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.7
	}
	return Analysis{
		Intent:     intent,
		Entities:   parsed.Entities,
		Categories: categories,
		Freshness:  freshness,
		Confidence: confidence,
		AIAnalyzed: true,
	}, nil
}

func (a *Analyzer) keywordAnalysis(query string) Analysis {
	words := strings.Fields(query)
	if len(words) > 5 {
		words = words[:5]
	}
	return Analysis{
		Intent:     detectIntent(query),
		Entities:   words,
		Categories: detectCategories(query),
		Freshness:  FreshnessFresh,
		Confidence: 0.5,
		AIAnalyzed: false,
	}
}

// extractFirstJSON returns the first balanced JSON object in s.
func extractFirstJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

var deepTriggers = []string{
	"approfondi", "détaillé", "detailed", "complet", "complete", "in depth",
	"comprehensive", "tout savoir", "analyse complète", "recherche approfondie",
	"explique en détail", "étude",
}

var fastTriggers = []string{
	"rapide", "quick", "bref", "brief", "court", "short", "simple",
	"résumé", "summary", "tldr", "en un mot",
}

var medicalModeKeywords = []string{
	"maladie", "disease", "symptôme", "symptom", "traitement", "treatment",
	"médicament", "drug", "diagnostic", "diagnosis", "cancer", "diabète",
	"diabetes", "thérapie", "therapy", "pathologie",
}

// AnalyzeMode decides how deep a search should go based on trigger words and
// query length.
func AnalyzeMode(query string) ModeDecision {
	q := normalize(query)
	length := len(query)

	for _, kw := range fastTriggers {
		if strings.Contains(q, normalize(kw)) && length < 50 {
			return ModeDecision{Mode: ModeFast, Confidence: 0.9, Reason: "fast trigger"}
		}
	}
	for _, kw := range deepTriggers {
		if strings.Contains(q, normalize(kw)) {
			return ModeDecision{Mode: ModeDeep, Confidence: 0.95, Reason: "deep trigger"}
		}
	}
	medical := false
	for _, kw := range medicalModeKeywords {
		if strings.Contains(q, normalize(kw)) {
			medical = true
			break
		}
	}
	if medical && length > 80 {
		return ModeDecision{Mode: ModeDeep, Confidence: 0.85, Reason: "long medical query"}
	}
	if length > 100 {
		return ModeDecision{Mode: ModeDeep, Confidence: 0.7, Reason: "long query"}
	}
	if length < 30 {
		return ModeDecision{Mode: ModeFast, Confidence: 0.6, Reason: "short query"}
	}
	return ModeDecision{Mode: ModeStandard, Confidence: 0.6, Reason: "default"}
}
