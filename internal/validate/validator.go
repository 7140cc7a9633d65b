package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Severity grades a finding. A single high finding invalidates the response.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Finding is one problem detected in a generated response.
type Finding struct {
	Category string   `json:"category"`
	Detail   string   `json:"detail"`
	Severity Severity `json:"severity"`
}

// Report is the outcome of validating one response.
type Report struct {
	IsValid    bool      `json:"is_valid"`
	Confidence float64   `json:"confidence"`
	Findings   []Finding `json:"findings,omitempty"`
}

const minResponseLength = 20

var refusalMarkers = []string{
	"je ne veux pas", "je refuse de", "impossible de traiter",
	"i cannot help", "i refuse to",
}

var vaguePrefixes = []string{
	"c'est possible", "peut-être", "probablement", "il se peut que", "cela dépend",
	"it's possible", "maybe", "probably", "it depends",
}

var politicalKeywords = []string{
	"élection", "election", "président", "president", "vote", "scrutin",
	"gouvernement", "government", "politique",
}

var definitiveClaimMarkers = []string{
	"a gagné", "a remporté", "est élu", "a été élu", "won the", "was elected",
}

var unsourcedClaimMarkers = []string{
	"selon les études", "studies show", "il est prouvé", "it is proven",
	"les experts disent", "experts say", "des recherches montrent", "research shows",
}

var contradictionPairs = [][2]string{
	{"toujours", "jamais"},
	{"tous", "aucun"},
	{"always", "never"},
	{"vrai", "faux"},
	{"true", "false"},
}

var medicalDisclaimerMarkers = []string{
	"consultez", "médecin", "professionnel de santé", "doctor", "physician", "healthcare professional",
}

var financialDisclaimerMarkers = []string{
	"conseil financier", "financial advice", "conseiller financier", "à vos risques",
}

var yearPattern = regexp.MustCompile(`\b(20[0-9]{2}|2[1-9][0-9]{2})\b`)

// Validator checks generated responses against a rule table before they are
// returned to the user.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate inspects response against its query context. expertType tailors
// the disclaimer checks ("medical", "financial" or empty). The response is
// invalid only when a high-severity finding is present; lesser findings
// just erode the confidence score.
func (v *Validator) Validate(response, queryContext, expertType string) Report {
	trimmed := strings.TrimSpace(response)
	if len(trimmed) < minResponseLength {
		return Report{
			IsValid:    false,
			Confidence: 0,
			Findings:   []Finding{{Category: "too_short", Detail: fmt.Sprintf("%d chars", len(trimmed)), Severity: SeverityHigh}},
		}
	}

	lower := strings.ToLower(trimmed)
	confidence := 1.0
	var findings []Finding
	record := func(category, detail string, severity Severity, factor float64) {
		findings = append(findings, Finding{Category: category, Detail: detail, Severity: severity})
		confidence *= factor
	}

	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			record("refusal", marker, SeverityMedium, 0.7)
			break
		}
	}

	for _, prefix := range vaguePrefixes {
		if strings.HasPrefix(lower, prefix) {
			record("vague_opening", prefix, SeverityLow, 0.8)
			break
		}
	}

	if containsAny(lower, politicalKeywords) && containsAny(lower, definitiveClaimMarkers) {
		record("political_claim", "definitive claim on a political outcome", SeverityHigh, 0.5)
	}

	for _, hit := range yearPattern.FindAllString(trimmed, -1) {
		year, err := strconv.Atoi(hit)
		if err != nil {
			continue
		}
		if year > v.now().Year()+1 {
			record("future_date", hit, SeverityHigh, 0.5)
		}
	}

	for _, marker := range unsourcedClaimMarkers {
		if strings.Contains(lower, marker) && !strings.Contains(lower, "http") {
			record("unsourced_claim", marker, SeverityMedium, 0.7)
			break
		}
	}

	for _, pair := range contradictionPairs {
		if strings.Contains(lower, pair[0]) && strings.Contains(lower, pair[1]) {
			record("contradiction", pair[0]+"/"+pair[1], SeverityMedium, 0.6)
			break
		}
	}

	if ratio, enough := sentenceUniqueness(trimmed); enough && ratio < 0.7 {
		record("repetition", fmt.Sprintf("%.0f%% unique sentences", ratio*100), SeverityLow, 0.8)
	}

	if queryContext != "" && !sharesVocabulary(lower, strings.ToLower(queryContext)) {
		record("off_topic", "no overlap with the query context", SeverityLow, 0.8)
	}

	switch expertType {
	case "medical":
		if !containsAny(lower, medicalDisclaimerMarkers) {
			record("missing_disclaimer", "medical response without professional referral", SeverityLow, 0.9)
		}
	case "financial":
		if !containsAny(lower, financialDisclaimerMarkers) {
			record("missing_disclaimer", "financial response without risk notice", SeverityLow, 0.9)
		}
	}

	if confidence < 0 {
		confidence = 0
	}
	valid := true
	for _, f := range findings {
		if f.Severity == SeverityHigh {
			valid = false
			break
		}
	}
	return Report{IsValid: valid, Confidence: confidence, Findings: findings}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// sentenceUniqueness returns the share of distinct sentences. The bool is
// false when the text is too short to judge.
func sentenceUniqueness(text string) (float64, bool) {
	parts := strings.Split(text, ". ")
	if len(parts) < 4 {
		return 1, false
	}
	unique := map[string]bool{}
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			unique[p] = true
		}
	}
	return float64(len(unique)) / float64(len(parts)), true
}

// sharesVocabulary checks whether the opening of the response reuses any
// informative word from the query context.
func sharesVocabulary(response, queryContext string) bool {
	opening := strings.Fields(response)
	if len(opening) > 20 {
		opening = opening[:20]
	}
	contextWords := map[string]bool{}
	for _, w := range strings.Fields(queryContext) {
		if len(w) > 3 {
			contextWords[strings.Trim(w, ".,:;!?'\"()")] = true
		}
	}
	if len(contextWords) == 0 {
		return true
	}
	for _, w := range opening {
		if contextWords[strings.Trim(w, ".,:;!?'\"()")] {
			return true
		}
	}
	return false
}

// EnhanceSystemPrompt hardens a system prompt with anti-hallucination rules
// before the synthesis call.
func (v *Validator) EnhanceSystemPrompt(base, userQuery, expertType string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nRÈGLES CRITIQUES:\n")
	fmt.Fprintf(&b, "- La date du jour est le %s. Ne décris jamais d'événements postérieurs comme certains.\n", v.now().Format("2006-01-02"))
	b.WriteString("- N'invente aucun fait, chiffre ou citation. Dis-le si une information manque.\n")
	b.WriteString("- Appuie-toi uniquement sur les données fournies.\n")

	if containsAny(strings.ToLower(userQuery), politicalKeywords) {
		b.WriteString("- Sujet politique: ne déclare aucun résultat d'élection comme acquis sans source datée.\n")
	}
	switch expertType {
	case "medical":
		b.WriteString("- Termine par un rappel de consulter un professionnel de santé.\n")
	case "financial":
		b.WriteString("- Précise que ceci ne constitue pas un conseil financier.\n")
	}
	b.WriteString("- Réponds de façon précise et vérifiable.")
	return b.String()
}
