package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/answerhub/answerhub/internal/llm"
)

type stubCaller struct {
	text string
	err  error
}

func (s *stubCaller) Route(ctx context.Context, prompt, system string) (llm.Result, error) {
	if s.err != nil {
		return llm.Result{}, s.err
	}
	return llm.Result{Text: s.text, Source: "stub"}, nil
}

func TestDetectIntentKeywords(t *testing.T) {
	cases := []struct {
		query string
		want  Intent
	}{
		{"Qu'est-ce que le bitcoin", IntentInformation},
		{"prix du bitcoin", IntentRealtime},
		{"météo à Paris aujourd'hui", IntentRealtime},
		{"python vs go", IntentComparison},
		{"dois-je investir dans l'or", IntentRecommendation},
		{"traduire bonjour en anglais", IntentAction},
		{"surprends-moi", IntentExploration},
		{"analyse des tendances du marché", IntentAnalysis},
		{"champignons comestibles", IntentInformation},
	}
	for _, c := range cases {
		if got := detectIntent(c.query); got != c.want {
			t.Fatalf("detectIntent(%q) = %s, want %s", c.query, got, c.want)
		}
	}
}

func TestDetectIntentAccentInsensitive(t *testing.T) {
	// unaccented spelling must match accented keywords
	if got := detectIntent("meteo demain"); got != IntentRealtime {
		t.Fatalf("expected realtime, got %s", got)
	}
	if got := detectIntent("definition du mot sérendipité"); got != IntentInformation {
		t.Fatalf("expected information, got %s", got)
	}
}

func TestDetectCategories(t *testing.T) {
	cats := detectCategories("prix du bitcoin et actualité crypto")
	if len(cats) != 2 || cats[0] != "finance_crypto" || cats[1] != "news" {
		t.Fatalf("unexpected categories: %v", cats)
	}
	cats = detectCategories("sujet sans mot-clé connu")
	if len(cats) != 2 || cats[0] != "wikipedia" || cats[1] != "news" {
		t.Fatalf("expected default categories, got %v", cats)
	}
}

func TestAnalyzeWithLLM(t *testing.T) {
	caller := &stubCaller{text: "```json\n{\"intent\":\"realtime\",\"entities\":[\"bitcoin\"],\"categories\":[\"finance_crypto\"],\"freshness\":\"live\",\"confidence\":0.92}\n```"}
	a := NewAnalyzer(caller)

	got := a.Analyze(context.Background(), "prix du bitcoin")
	if !got.AIAnalyzed {
		t.Fatal("expected ai_analyzed")
	}
	if got.Intent != IntentRealtime || got.Freshness != FreshnessLive {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if got.Confidence != 0.92 {
		t.Fatalf("unexpected confidence: %v", got.Confidence)
	}
}

func TestAnalyzeLLMBadJSONFallsBack(t *testing.T) {
	caller := &stubCaller{text: "I cannot answer in JSON, sorry"}
	a := NewAnalyzer(caller)

	got := a.Analyze(context.Background(), "prix du bitcoin aujourd'hui")
	if got.AIAnalyzed {
		t.Fatal("fallback must not claim ai analysis")
	}
	if got.Intent != IntentRealtime {
		t.Fatalf("expected realtime from keywords, got %s", got.Intent)
	}
	if got.Confidence != 0.5 {
		t.Fatalf("expected fallback confidence 0.5, got %v", got.Confidence)
	}
	if len(got.Entities) == 0 || got.Entities[0] != "prix" {
		t.Fatalf("expected leading words as entities, got %v", got.Entities)
	}
}

func TestAnalyzeLLMErrorFallsBack(t *testing.T) {
	caller := &stubCaller{err: fmt.Errorf("all providers failed")}
	a := NewAnalyzer(caller)

	got := a.Analyze(context.Background(), "qu'est-ce que la photosynthèse")
	if got.AIAnalyzed {
		t.Fatal("fallback must not claim ai analysis")
	}
	if got.Intent != IntentInformation {
		t.Fatalf("expected information, got %s", got.Intent)
	}
}

func TestAnalyzeInvalidIntentUsesKeywords(t *testing.T) {
	caller := &stubCaller{text: `{"intent":"banana","entities":[],"categories":["weather"],"freshness":"wrong","confidence":5}`}
	a := NewAnalyzer(caller)

	got := a.Analyze(context.Background(), "météo à Lyon")
	if got.Intent != IntentRealtime {
		t.Fatalf("invalid intent should fall back to keywords, got %s", got.Intent)
	}
	if got.Freshness != FreshnessFresh {
		t.Fatalf("invalid freshness should default, got %s", got.Freshness)
	}
	if got.Confidence != 0.7 {
		t.Fatalf("out of range confidence should default, got %v", got.Confidence)
	}
}

func TestExtractFirstJSON(t *testing.T) {
	obj, ok := extractFirstJSON(`noise {"a": {"b": 1}} trailing {"c": 2}`)
	if !ok {
		t.Fatal("expected a JSON object")
	}
	if obj != `{"a": {"b": 1}}` {
		t.Fatalf("unexpected object: %s", obj)
	}
	if _, ok := extractFirstJSON("no braces here"); ok {
		t.Fatal("expected no object")
	}
	if _, ok := extractFirstJSON(`{"unbalanced": true`); ok {
		t.Fatal("expected no object for unbalanced input")
	}
}

func TestAnalyzeMode(t *testing.T) {
	cases := []struct {
		query string
		want  Mode
	}{
		{"bref, c'est quoi l'ADN", ModeFast},
		{"recherche approfondie sur les mécanismes de la résistance aux antibiotiques", ModeDeep},
		{"aspirine", ModeFast},
		{"quels sont les effets secondaires connus de la metformine chez les patients diabétiques de type 2 âgés", ModeDeep},
		{"comparaison des traitements de l'hypertension", ModeStandard},
	}
	for _, c := range cases {
		got := AnalyzeMode(c.query)
		if got.Mode != c.want {
			t.Fatalf("AnalyzeMode(%q) = %s (%s), want %s", c.query, got.Mode, got.Reason, c.want)
		}
	}
}
