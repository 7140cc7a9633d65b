package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/answerhub/answerhub/internal/fetch"
	"github.com/answerhub/answerhub/internal/infra"
	"github.com/answerhub/answerhub/internal/llm"
	"github.com/answerhub/answerhub/internal/query"
	"github.com/answerhub/answerhub/internal/validate"
)

type stubCaller struct {
	text    string
	err     error
	calls   int
	prompt  string
	system  string
}

func (s *stubCaller) Route(ctx context.Context, prompt, system string) (llm.Result, error) {
	s.calls++
	s.prompt = prompt
	s.system = system
	if s.err != nil {
		return llm.Result{}, s.err
	}
	return llm.Result{Text: s.text, Source: "groq"}, nil
}

func outcomeWith(results map[string]string) fetch.Outcome {
	out := fetch.Outcome{Results: map[string]fetch.CallResult{}}
	for id, payload := range results {
		status := fetch.StatusFound
		var data json.RawMessage
		if payload == "" {
			status = fetch.StatusNoData
		} else {
			data = json.RawMessage(payload)
		}
		out.Results[id] = fetch.CallResult{API: id, Display: id, Status: status, Data: data}
		out.Order = append(out.Order, id)
		out.APIsCalled++
		if status == fetch.StatusFound {
			out.APIsWithData++
		}
	}
	return out
}

func testPlan(q string, intent query.Intent, categories []string, expected int) query.Plan {
	return query.Plan{
		Query:           q,
		Intent:          intent,
		Categories:      categories,
		ExpectedSources: expected,
		SynthesisPrompt: query.SynthesisPrompt("fr", intent, q),
		Language:        "fr",
	}
}

func TestSynthesizeSuccess(t *testing.T) {
	caller := &stubCaller{text: "Le cours du bitcoin est en hausse selon les données de marché collectées auprès des sources."}
	s := New(caller, validate.NewValidator(), nil, nil)

	outcome := outcomeWith(map[string]string{
		"coingecko": `{"price": 65000}`,
		"coincap":   `{"price": 64980}`,
	})
	plan := testPlan("cours du bitcoin", query.IntentRealtime, []string{"finance_crypto"}, 2)

	res, err := s.Synthesize(context.Background(), plan, outcome, "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Source != "groq" {
		t.Fatalf("unexpected source: %s", res.Source)
	}
	if res.SourcesCount != 2 {
		t.Fatalf("expected 2 sources, got %d", res.SourcesCount)
	}
	if res.Confidence != 1.0 {
		t.Fatalf("2/2 sources with bonus should cap at 1.0, got %v", res.Confidence)
	}
	if !strings.Contains(caller.prompt, "[coingecko]:") {
		t.Fatalf("prompt should embed source evidence:\n%s", caller.prompt)
	}
	if !strings.Contains(caller.prompt, "Données collectées:") {
		t.Fatalf("prompt should carry the data header:\n%s", caller.prompt)
	}
	if len(res.Recommendations) == 0 || len(res.Recommendations) > 3 {
		t.Fatalf("unexpected recommendations: %v", res.Recommendations)
	}
	found := false
	for _, r := range res.Recommendations {
		if strings.Contains(r, "crypto") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected crypto recommendation, got %v", res.Recommendations)
	}
}

func TestSynthesizeLLMFailureDegrades(t *testing.T) {
	caller := &stubCaller{err: fmt.Errorf("all providers failed")}
	s := New(caller, validate.NewValidator(), nil, nil)

	outcome := outcomeWith(map[string]string{"wikipedia": `{"summary": "texte"}`})
	plan := testPlan("photosynthèse", query.IntentInformation, []string{"wikipedia"}, 1)

	res, err := s.Synthesize(context.Background(), plan, outcome, "")
	if err != nil {
		t.Fatalf("llm failure must not fail the request: %v", err)
	}
	if !strings.Contains(res.Synthesis, "synthèse automatique") {
		t.Fatalf("expected fallback message, got %q", res.Synthesis)
	}
	if res.Validation.IsValid {
		t.Fatal("fallback answer must not claim validity")
	}
	if len(res.Data) != 1 {
		t.Fatalf("raw data must survive, got %v", res.Data)
	}
}

func TestSynthesizeUsesCache(t *testing.T) {
	caller := &stubCaller{text: "Une réponse claire et détaillée sur le sujet demandé par l'utilisateur."}
	cache := infra.NewCache(nil)
	s := New(caller, validate.NewValidator(), cache, nil)

	outcome := outcomeWith(map[string]string{"wikipedia": `{"summary": "texte"}`})
	plan := testPlan("sujet quelconque", query.IntentInformation, nil, 1)
	ctx := context.Background()

	first, err := s.Synthesize(ctx, plan, outcome, "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if first.Cached {
		t.Fatal("first answer must not be cached")
	}
	second, err := s.Synthesize(ctx, plan, outcome, "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !second.Cached {
		t.Fatal("second answer should come from cache")
	}
	if caller.calls != 1 {
		t.Fatalf("expected 1 llm call, got %d", caller.calls)
	}
}

func TestSynthesizeCautionPrefix(t *testing.T) {
	caller := &stubCaller{text: "Peut-être que selon les études c'est toujours efficace mais jamais prouvé en pratique réelle."}
	s := New(caller, validate.NewValidator(), nil, nil)

	outcome := outcomeWith(map[string]string{"newsapi": `{"articles": [{"t":1}]}`})
	plan := testPlan("cours du bitcoin", query.IntentRealtime, nil, 1)

	res, err := s.Synthesize(context.Background(), plan, outcome, "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.HasPrefix(res.Synthesis, "⚠️") {
		t.Fatalf("expected caution prefix, got %q", res.Synthesis)
	}
	if !strings.Contains(res.Synthesis, "vérification supplémentaire") {
		t.Fatalf("expected caution note, got %q", res.Synthesis)
	}
}

func TestSynthesizeFutureDateGetsCautionPrefix(t *testing.T) {
	caller := &stubCaller{text: "Ce traitement sera disponible en 2999 selon les essais en cours sur le traitement."}
	s := New(caller, validate.NewValidator(), nil, nil)

	outcome := outcomeWith(map[string]string{"wikipedia": `{"summary": "texte"}`})
	plan := testPlan("disponibilité du traitement", query.IntentInformation, nil, 1)

	res, err := s.Synthesize(context.Background(), plan, outcome, "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Validation.IsValid {
		t.Fatalf("future date must invalidate the answer: %+v", res.Validation)
	}
	// an invalid answer carries the caution prefix even above the
	// low-confidence threshold
	if !strings.HasPrefix(res.Synthesis, "⚠️") {
		t.Fatalf("expected caution prefix on invalid answer, got %q", res.Synthesis)
	}
	if !strings.Contains(res.Synthesis, "vérification supplémentaire") {
		t.Fatalf("expected caution note, got %q", res.Synthesis)
	}
}

func TestSynthesizeNoData(t *testing.T) {
	caller := &stubCaller{text: "Je n'ai trouvé aucune donnée fiable sur ce sujet dans les sources consultées."}
	s := New(caller, validate.NewValidator(), nil, nil)

	plan := testPlan("sujet introuvable", query.IntentInformation, nil, 0)
	res, err := s.Synthesize(context.Background(), plan, fetch.Outcome{Results: map[string]fetch.CallResult{}}, "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Confidence != 0 {
		t.Fatalf("no expected sources should give 0 confidence, got %v", res.Confidence)
	}
	if !strings.Contains(caller.prompt, "Aucune donnée disponible") {
		t.Fatalf("prompt should state missing data:\n%s", caller.prompt)
	}
}

func TestSynthesizeMedicalUsesMedicalRules(t *testing.T) {
	caller := &stubCaller{text: "La metformine agit sur la production hépatique de glucose. Consultez votre médecin pour un avis personnalisé."}
	s := New(caller, validate.NewValidator(), nil, nil)

	mp := query.MedicalPlan{
		Query:    "metformine",
		Language: "fr",
		APIs:     []query.SelectedAPI{{ID: "pubmed"}, {ID: "openfda"}},
	}
	outcome := outcomeWith(map[string]string{"pubmed": `{"articles": [{"t":1}]}`})

	res, err := s.SynthesizeMedical(context.Background(), mp, outcome)
	if err != nil {
		t.Fatalf("SynthesizeMedical: %v", err)
	}
	if res.Intent != string(query.IntentInformation) {
		t.Fatalf("unexpected intent: %s", res.Intent)
	}
	if !strings.Contains(caller.system, "professionnel de santé") {
		t.Fatalf("medical rules missing from system prompt:\n%s", caller.system)
	}
	if !strings.Contains(caller.system, "avis médical") {
		t.Fatalf("medical expert prompt missing from system prompt:\n%s", caller.system)
	}
	if !res.Validation.IsValid {
		t.Fatalf("clean medical answer should be valid: %+v", res.Validation)
	}
}
