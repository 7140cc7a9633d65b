package query

import (
	"sort"
	"strings"
)

// APIInfo describes one medical data source. Mandatory sources are queried
// for every medical search regardless of detected topics.
type APIInfo struct {
	ID        string
	Name      string
	Tier      string
	Mandatory bool
	Topics    []string
}

// Tiers order the phased medical fan-out, cheapest first.
const (
	TierLocal     = "local"
	TierPrimary   = "primary"
	TierSecondary = "secondary"
	TierTertiary  = "tertiary"
	TierPremium   = "premium"
	TierElite     = "elite"
)

// Tiers lists the fan-out phases in execution order.
var Tiers = []string{TierLocal, TierPrimary, TierSecondary, TierTertiary, TierPremium, TierElite}

// MedicalRegistry is the canonical list of medical sources.
var MedicalRegistry = []APIInfo{
	{ID: "open_disease", Name: "Open Disease Data", Tier: TierLocal, Topics: []string{"infectious", "epidemiology"}},
	{ID: "drugbank_open", Name: "DrugBank Open Data", Tier: TierLocal, Topics: []string{"drugs"}},
	{ID: "loinc", Name: "LOINC", Tier: TierLocal, Mandatory: true, Topics: []string{"general"}},

	{ID: "pubmed", Name: "PubMed", Tier: TierPrimary, Mandatory: true, Topics: []string{"general"}},
	{ID: "openfda", Name: "OpenFDA", Tier: TierPrimary, Mandatory: true, Topics: []string{"drugs"}},
	{ID: "rxnorm", Name: "RxNorm", Tier: TierPrimary, Mandatory: true, Topics: []string{"drugs"}},

	{ID: "pmc", Name: "PubMed Central", Tier: TierSecondary, Mandatory: true, Topics: []string{"general"}},
	{ID: "europe_pmc", Name: "Europe PMC", Tier: TierSecondary, Mandatory: true, Topics: []string{"general"}},
	{ID: "clinicaltrials", Name: "ClinicalTrials.gov", Tier: TierSecondary, Mandatory: true, Topics: []string{"clinical_trials"}},
	{ID: "disease_sh", Name: "disease.sh", Tier: TierSecondary, Topics: []string{"infectious", "epidemiology"}},

	{ID: "who_gho", Name: "WHO Global Health Observatory", Tier: TierTertiary, Mandatory: true, Topics: []string{"epidemiology"}},
	{ID: "snomed_ct", Name: "SNOMED CT", Tier: TierTertiary, Mandatory: true, Topics: []string{"general"}},
	{ID: "orphanet", Name: "Orphanet", Tier: TierTertiary, Mandatory: true, Topics: []string{"rare_disease", "genetic"}},
	{ID: "icd11", Name: "ICD-11", Tier: TierTertiary, Mandatory: true, Topics: []string{"general"}},

	{ID: "mesh", Name: "MeSH", Tier: TierPremium, Mandatory: true, Topics: []string{"general"}},
	{ID: "ncbi_gene", Name: "NCBI Gene", Tier: TierPremium, Topics: []string{"genetic", "genomics"}},
	{ID: "drug_central", Name: "DrugCentral", Tier: TierPremium, Topics: []string{"drugs"}},
	{ID: "kegg", Name: "KEGG", Tier: TierPremium, Topics: []string{"genomics", "proteomics"}},
	{ID: "omim", Name: "OMIM", Tier: TierPremium, Topics: []string{"genetic", "rare_disease"}},

	{ID: "semantic_scholar", Name: "Semantic Scholar", Tier: TierElite, Topics: []string{"general"}},
	{ID: "clinvar", Name: "ClinVar", Tier: TierElite, Topics: []string{"genetic", "genomics"}},
	{ID: "reactome", Name: "Reactome", Tier: TierElite, Topics: []string{"proteomics"}},
	{ID: "uniprot", Name: "UniProt", Tier: TierElite, Topics: []string{"proteomics"}},
	{ID: "gard", Name: "GARD", Tier: TierElite, Topics: []string{"rare_disease"}},
}

// topicKeywords maps medical topics to the query keywords that reveal them.
// Both French and English spellings appear; matching is accent-folded.
var topicKeywords = map[string][]string{
	"diabetes": {
		"diabete", "diabetes", "glycemie", "glycemia", "insuline", "insulin", "hba1c",
		"hyperglycemie", "hypoglycemie", "metformine", "pancreas", "type 1", "type 2",
		"diabetique", "diabetic", "glucose",
	},
	"cancer": {
		"cancer", "tumeur", "tumor", "oncologie", "oncology", "chimiotherapie", "chemotherapy",
		"radiotherapie", "radiotherapy", "metastase", "metastasis", "carcinome", "leucemie",
		"leukemia", "lymphome", "lymphoma", "melanome", "melanoma",
	},
	"cardiovascular": {
		"coeur", "heart", "cardiaque", "cardiac", "hypertension", "tension arterielle",
		"blood pressure", "infarctus", "infarction", "avc", "stroke", "cholesterol",
		"arythmie", "arrhythmia", "insuffisance cardiaque", "coronaire", "coronary",
	},
	"neurological": {
		"cerveau", "brain", "neurologie", "neurology", "alzheimer", "parkinson", "epilepsie",
		"epilepsy", "migraine", "sclerose", "sclerosis", "neurone", "neuron", "demence", "dementia",
	},
	"respiratory": {
		"poumon", "lung", "asthme", "asthma", "bronchite", "bronchitis", "pneumonie",
		"pneumonia", "bpco", "copd", "respiratoire", "respiratory", "tuberculose", "tuberculosis",
	},
	"infectious": {
		"infection", "virus", "bacterie", "bacteria", "covid", "grippe", "flu", "influenza",
		"vih", "hiv", "sida", "aids", "hepatite", "hepatitis", "antibiotique", "antibiotic",
		"vaccin", "vaccine", "epidemie", "epidemic",
	},
	"autoimmune": {
		"auto-immune", "autoimmune", "lupus", "polyarthrite", "rheumatoid", "crohn",
		"sclerose en plaques", "multiple sclerosis", "psoriasis", "celiac", "coeliaque",
	},
	"genetic": {
		"genetique", "genetic", "gene", "mutation", "chromosome", "hereditaire", "hereditary",
		"adn", "dna", "trisomie", "trisomy", "mucoviscidose", "cystic fibrosis",
	},
	"rare_disease": {
		"maladie rare", "rare disease", "orpheline", "orphan", "syndrome rare", "prevalence rare",
	},
	"mental_health": {
		"depression", "anxiete", "anxiety", "bipolaire", "bipolar", "schizophrenie",
		"schizophrenia", "psychiatrie", "psychiatry", "stress", "burnout", "tdah", "adhd",
	},
	"drugs": {
		"medicament", "medication", "drug", "posologie", "dosage", "effet secondaire",
		"effets secondaires", "side effect", "interaction", "pharmacologie", "pharmacology", "ordonnance",
		"prescription", "generique", "generic",
	},
	"clinical_trials": {
		"essai clinique", "clinical trial", "etude clinique", "clinical study", "phase 1",
		"phase 2", "phase 3", "placebo", "randomise", "randomized", "recrutement", "enrollment",
	},
	"genomics": {
		"genome", "genomique", "genomics", "sequencage", "sequencing", "crispr", "expression genique",
		"gene expression", "variant", "exome",
	},
	"proteomics": {
		"proteine", "protein", "proteomique", "proteomics", "enzyme", "recepteur", "receptor",
		"anticorps", "antibody", "voie metabolique", "pathway",
	},
	"epidemiology": {
		"epidemiologie", "epidemiology", "incidence", "prevalence", "mortalite", "mortality",
		"morbidite", "morbidity", "sante publique", "public health", "statistiques sante",
	},
	"pediatrics": {
		"enfant", "child", "pediatrie", "pediatrics", "nourrisson", "infant", "bebe", "baby",
		"croissance", "growth", "vaccination enfant",
	},
	"geriatrics": {
		"personne agee", "elderly", "geriatrie", "geriatrics", "vieillissement", "aging",
		"senior", "chute", "fall risk", "autonomie",
	},
	"nutrition": {
		"nutrition", "alimentation", "diet", "regime", "vitamine", "vitamin", "mineraux",
		"minerals", "carence", "deficiency", "obesite", "obesity", "calorie",
	},
}

// queryExpansionSuffix widens terse medical queries so literature sources
// return enough material.
const queryExpansionSuffix = " symptoms treatment diagnosis research guidelines clinical trials epidemiology statistics mechanism"

// DetectTopics returns the medical topics present in query, or ["general"]
// when none match.
func DetectTopics(query string) []string {
	q := normalize(query)
	var topics []string
	seen := map[string]bool{}
	for topic, keywords := range topicKeywords {
		for _, kw := range keywords {
			if strings.Contains(q, normalize(kw)) {
				if !seen[topic] {
					topics = append(topics, topic)
					seen[topic] = true
				}
				break
			}
		}
	}
	if len(topics) == 0 {
		return []string{"general"}
	}
	// map iteration order is random; keep output deterministic
	sort.Strings(topics)
	return topics
}

// SelectedAPI is one medical source picked for a query, with the reason it
// was picked.
type SelectedAPI struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// minMedicalAPIs is the floor for a medical search; below it the selection
// is padded with remaining sources in registry order.
const minMedicalAPIs = 15

// RelevantAPIs selects the medical sources for query. The mandatory set is
// always the leading block of the selection; topic-specific and general
// sources follow. forceAll selects every source, mandatory ones still first.
func RelevantAPIs(query string, forceAll bool) ([]SelectedAPI, []string) {
	topics := DetectTopics(query)

	var selected []SelectedAPI
	picked := map[string]bool{}
	add := func(id, reason string) {
		if !picked[id] {
			selected = append(selected, SelectedAPI{ID: id, Reason: reason})
			picked[id] = true
		}
	}

	for _, api := range MedicalRegistry {
		if api.Mandatory {
			add(api.ID, "mandatory")
		}
	}

	if forceAll {
		for _, api := range MedicalRegistry {
			add(api.ID, "forced")
		}
		return selected, topics
	}

	topicSet := map[string]bool{}
	for _, t := range topics {
		topicSet[t] = true
	}

	for _, api := range MedicalRegistry {
		for _, t := range api.Topics {
			if t == "general" {
				add(api.ID, "general")
				break
			}
			if topicSet[t] {
				add(api.ID, "topic:"+t)
				break
			}
		}
	}

	// pad up to the floor with whatever is left, registry order
	if len(selected) < minMedicalAPIs {
		for _, api := range MedicalRegistry {
			if len(selected) >= minMedicalAPIs {
				break
			}
			add(api.ID, "fill")
		}
	}
	return selected, topics
}

// MandatoryAPIs returns the IDs of the always-queried medical sources.
func MandatoryAPIs() []string {
	var ids []string
	for _, api := range MedicalRegistry {
		if api.Mandatory {
			ids = append(ids, api.ID)
		}
	}
	return ids
}

// ExpandQuery widens terse medical queries with standard research terms.
func ExpandQuery(query string) string {
	if len(strings.Fields(query)) < 5 {
		return query + queryExpansionSuffix
	}
	return query
}
