// Package i18n holds the user-facing strings of the service, keyed by
// language. French is the default language and the fallback for keys that
// are missing a translation.
package i18n

import "strings"

// DefaultLanguage is used when a request carries no usable language tag.
const DefaultLanguage = "fr"

var messages = map[string]map[string]string{
	"fr": {
		"no_data":          "Aucune donnée disponible",
		"caution_note":     "(Note: Cette synthèse nécessite une vérification supplémentaire)",
		"synthesis_failed": "La synthèse automatique n'a pas pu être générée. Consultez les données brutes.",
		"collected_data":   "Données collectées:",
		"system_synthesis": "Tu es un expert en synthèse d'informations. Fournis des réponses précises et factuelles.",
		"system_chat":      "Tu es un assistant polyvalent, précis et honnête. Dis-le quand tu ne sais pas.",
		"system_expert_medical": "Tu es un assistant spécialisé en information médicale. Tu vulgarises sans simplifier à l'excès " +
			"et tu rappelles systématiquement que tes réponses ne remplacent pas un avis médical.",
		"system_expert_finance": "Tu es un assistant spécialisé en information financière. Tu présentes les faits et les risques " +
			"sans jamais donner de conseil d'investissement personnalisé.",
		"answer_language": "Réponds en français de manière claire et structurée.",
		"synthesis_instructions": "Instructions:\n" +
			"1. Appuie-toi uniquement sur les données ci-dessus.\n" +
			"2. Cite la source entre crochets quand tu reprends une donnée.\n" +
			"3. Signale explicitement les informations manquantes.\n" +
			"4. Reste factuel, sans spéculation.\n" +
			"5. Structure la réponse en paragraphes courts.",

		"prompt_information":    "Synthétise les informations trouvées sur '%s'. Donne une réponse claire et factuelle.",
		"prompt_realtime":       "Donne les informations en temps réel sur '%s'. Précise la fraîcheur des données.",
		"prompt_comparison":     "Compare les éléments trouvés concernant '%s'. Présente les différences principales.",
		"prompt_recommendation": "Fais des recommandations concernant '%s' en te basant sur les données trouvées.",
		"prompt_action":         "Explique comment réaliser '%s' avec les informations disponibles.",
		"prompt_exploration":    "Présente une découverte intéressante en lien avec '%s'.",
		"prompt_analysis":       "Analyse les tendances et les données concernant '%s'.",

		"medical_header":     "🔬 RECHERCHE MEDICALE APPROFONDIE",
		"search_header":      "🔎 RECHERCHE MULTI-SOURCES",
		"query_label":        "📋 Requête",
		"summary_label":      "📊 RÉSUMÉ",
		"total_time_label":   "Temps total",
		"apis_called_label":  "APIs consultées",
		"apis_data_label":    "APIs avec données",
		"success_rate_label": "Taux de succès",
		"result_none":        "Aucune donnée",
		"result_timeout":     "Timeout",
		"result_error":       "Erreur",
		"result_unavailable": "Indisponible",
		"results_word":       "résultat(s)",
		"phase_local":        "Bases de données locales",
		"phase_primary":      "Sources primaires",
		"phase_secondary":    "Sources secondaires",
		"phase_tertiary":     "Sources tertiaires",
		"phase_premium":      "Sources premium",
		"phase_elite":        "Sources élite",
	},
	"en": {
		"no_data":          "No data available",
		"caution_note":     "(Note: this synthesis needs additional verification)",
		"synthesis_failed": "Automatic synthesis could not be generated. See the raw data.",
		"collected_data":   "Collected data:",
		"system_synthesis": "You are an expert at synthesizing information. Provide precise, factual answers.",
		"system_chat":      "You are a precise, honest general-purpose assistant. Say so when you do not know.",
		"system_expert_medical": "You are an assistant specialized in medical information. You explain clearly without " +
			"oversimplifying and always note that your answers are no substitute for medical advice.",
		"system_expert_finance": "You are an assistant specialized in financial information. You present facts and risks " +
			"without ever giving personalized investment advice.",
		"answer_language": "Answer in English, clearly and with structure.",
		"synthesis_instructions": "Instructions:\n" +
			"1. Rely only on the data above.\n" +
			"2. Cite the source in brackets when you reuse a data point.\n" +
			"3. Explicitly flag missing information.\n" +
			"4. Stay factual, no speculation.\n" +
			"5. Structure the answer in short paragraphs.",

		"prompt_information":    "Synthesize the information found about '%s'. Give a clear, factual answer.",
		"prompt_realtime":       "Give real-time information about '%s'. State how fresh the data is.",
		"prompt_comparison":     "Compare the items found for '%s'. Present the main differences.",
		"prompt_recommendation": "Make recommendations about '%s' based on the data found.",
		"prompt_action":         "Explain how to accomplish '%s' with the available information.",
		"prompt_exploration":    "Present an interesting discovery related to '%s'.",
		"prompt_analysis":       "Analyze the trends and data about '%s'.",

		"medical_header":     "🔬 DEEP MEDICAL SEARCH",
		"search_header":      "🔎 MULTI-SOURCE SEARCH",
		"query_label":        "📋 Query",
		"summary_label":      "📊 SUMMARY",
		"total_time_label":   "Total time",
		"apis_called_label":  "APIs queried",
		"apis_data_label":    "APIs with data",
		"success_rate_label": "Success rate",
		"result_none":        "No data",
		"result_timeout":     "Timeout",
		"result_error":       "Error",
		"result_unavailable": "Unavailable",
		"results_word":       "result(s)",
		"phase_local":        "Local databases",
		"phase_primary":      "Primary sources",
		"phase_secondary":    "Secondary sources",
		"phase_tertiary":     "Tertiary sources",
		"phase_premium":      "Premium sources",
		"phase_elite":        "Elite sources",
	},
}

var lists = map[string]map[string][]string{
	"fr": {
		"rec_information": {
			"Consultez Wikipedia pour plus de détails",
			"Vérifiez les sources pour confirmer les informations",
		},
		"rec_realtime": {
			"Les données temps réel changent rapidement, actualisez si besoin",
			"Comparez plusieurs sources pour les valeurs critiques",
		},
		"rec_comparison": {
			"Considérez vos critères personnels pour trancher",
			"Regardez des comparatifs récents pour confirmer",
		},
		"rec_recommendation": {
			"Croisez ces recommandations avec votre situation",
			"Demandez un avis spécialisé pour les décisions importantes",
		},
		"rec_default": {
			"Explorez les résultats pour plus de détails",
		},
		"rec_crypto":    {"Suivez les tendances du marché crypto"},
		"rec_wikipedia": {"Approfondissez sur Wikipedia"},
	},
	"en": {
		"rec_information": {
			"Check Wikipedia for more details",
			"Verify the sources to confirm the information",
		},
		"rec_realtime": {
			"Real-time data changes quickly, refresh if needed",
			"Compare several sources for critical values",
		},
		"rec_comparison": {
			"Weigh your own criteria before deciding",
			"Look at recent comparisons to confirm",
		},
		"rec_recommendation": {
			"Cross-check these recommendations with your situation",
			"Seek specialist advice for important decisions",
		},
		"rec_default": {
			"Explore the results for more details",
		},
		"rec_crypto":    {"Follow crypto market trends"},
		"rec_wikipedia": {"Read more on Wikipedia"},
	},
}

// Normalize maps a raw language tag ("fr-FR", "EN") to a supported language,
// falling back to the default.
func Normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if _, ok := messages[lang]; ok {
		return lang
	}
	return DefaultLanguage
}

// T returns the message for key in lang, falling back to the default
// language, then to the key itself.
func T(lang, key string) string {
	if m, ok := messages[Normalize(lang)]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	if s, ok := messages[DefaultLanguage][key]; ok {
		return s
	}
	return key
}

// List returns the string list for key in lang, falling back to the default
// language.
func List(lang, key string) []string {
	if m, ok := lists[Normalize(lang)]; ok {
		if l, ok := m[key]; ok {
			return l
		}
	}
	return lists[DefaultLanguage][key]
}
