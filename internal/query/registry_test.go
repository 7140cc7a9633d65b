package query

import (
	"strings"
	"testing"
)

func TestDetectTopics(t *testing.T) {
	topics := DetectTopics("effets secondaires de la metformine sur la glycémie du patient diabétique")
	joined := strings.Join(topics, ",")
	if !strings.Contains(joined, "diabetes") {
		t.Fatalf("expected diabetes topic, got %v", topics)
	}
	if !strings.Contains(joined, "drugs") {
		t.Fatalf("expected drugs topic (metformine is a medication query), got %v", topics)
	}

	topics = DetectTopics("question de santé très vague")
	if len(topics) != 1 || topics[0] != "general" {
		t.Fatalf("expected general fallback, got %v", topics)
	}
}

func TestRelevantAPIsAlwaysIncludesMandatory(t *testing.T) {
	selected, _ := RelevantAPIs("effets secondaires de la metformine", false)
	reasons := map[string]string{}
	for _, s := range selected {
		reasons[s.ID] = s.Reason
	}
	for _, id := range MandatoryAPIs() {
		if reasons[id] != "mandatory" {
			t.Fatalf("mandatory api %s missing or mislabeled: %v", id, reasons[id])
		}
	}
	// drug topic pulls in the drug-specific sources
	if _, ok := reasons["drug_central"]; !ok {
		t.Fatalf("expected drug_central for a drug query, got %v", reasons)
	}
}

func TestRelevantAPIsMandatoryPrefix(t *testing.T) {
	mandatory := MandatoryAPIs()
	for _, query := range []string{
		"covid vaccine efficacy",
		"effets secondaires de la metformine",
		"question de santé très vague",
	} {
		selected, _ := RelevantAPIs(query, false)
		if len(selected) < len(mandatory) {
			t.Fatalf("%q: selection shorter than mandatory set: %d", query, len(selected))
		}
		for i, id := range mandatory {
			if selected[i].ID != id {
				t.Fatalf("%q: position %d is %s, want mandatory %s", query, i, selected[i].ID, id)
			}
		}
		for _, s := range selected[len(mandatory):] {
			if s.Reason == "mandatory" {
				t.Fatalf("%q: mandatory source %s outside the leading block", query, s.ID)
			}
		}
	}

	forced, _ := RelevantAPIs("covid vaccine efficacy", true)
	for i, id := range mandatory {
		if forced[i].ID != id {
			t.Fatalf("forceAll: position %d is %s, want mandatory %s", i, forced[i].ID, id)
		}
	}
}

func TestRelevantAPIsMinimumFloor(t *testing.T) {
	selected, topics := RelevantAPIs("question de santé très vague", false)
	if len(selected) < minMedicalAPIs {
		t.Fatalf("expected at least %d apis, got %d", minMedicalAPIs, len(selected))
	}
	if len(topics) != 1 || topics[0] != "general" {
		t.Fatalf("unexpected topics: %v", topics)
	}
}

func TestRelevantAPIsForceAll(t *testing.T) {
	selected, _ := RelevantAPIs("n'importe quoi", true)
	if len(selected) != len(MedicalRegistry) {
		t.Fatalf("forceAll should select every source, got %d of %d", len(selected), len(MedicalRegistry))
	}
}

func TestMandatorySetIsStable(t *testing.T) {
	want := []string{
		"pubmed", "pmc", "mesh", "rxnorm", "openfda", "clinicaltrials",
		"europe_pmc", "orphanet", "who_gho", "icd11", "snomed_ct", "loinc",
	}
	got := MandatoryAPIs()
	if len(got) != len(want) {
		t.Fatalf("expected %d mandatory apis, got %d: %v", len(want), len(got), got)
	}
	set := map[string]bool{}
	for _, id := range got {
		set[id] = true
	}
	for _, id := range want {
		if !set[id] {
			t.Fatalf("missing mandatory api %s in %v", id, got)
		}
	}
}

func TestExpandQuery(t *testing.T) {
	short := ExpandQuery("diabète type 2")
	if !strings.Contains(short, "symptoms treatment diagnosis") {
		t.Fatalf("short query should be expanded, got %q", short)
	}
	long := "quels sont les effets secondaires de la metformine chez les personnes âgées"
	if ExpandQuery(long) != long {
		t.Fatal("long query must not be expanded")
	}
}
