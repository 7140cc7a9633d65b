package fetch

import (
	"net/url"

	"github.com/answerhub/answerhub/internal/query"
)

// Descriptor describes one upstream data source exposed by the API gateway.
// Medical sources carry a tier that orders the phased fan-out; generic
// sources have no tier.
type Descriptor struct {
	ID      string
	Display string
	Icon    string
	Tier    string
	Path    string
}

// URL builds the gateway request URL for a query.
func (d Descriptor) URL(base, q string) string {
	return base + d.Path + "?q=" + url.QueryEscape(q)
}

var genericDescriptors = []Descriptor{
	{ID: "wikipedia", Display: "Wikipedia", Icon: "📖", Path: "/api/wikipedia/search"},
	{ID: "coincap", Display: "CoinCap", Icon: "🪙", Path: "/api/coincap/search"},
	{ID: "coingecko", Display: "CoinGecko", Icon: "🦎", Path: "/api/coingecko/search"},
	{ID: "yahoo_finance", Display: "Yahoo Finance", Icon: "📈", Path: "/api/yahoo_finance/search"},
	{ID: "alphavantage", Display: "Alpha Vantage", Icon: "📊", Path: "/api/alphavantage/search"},
	{ID: "newsapi", Display: "NewsAPI", Icon: "📰", Path: "/api/newsapi/search"},
	{ID: "guardian", Display: "The Guardian", Icon: "🗞️", Path: "/api/guardian/search"},
	{ID: "openmeteo", Display: "Open-Meteo", Icon: "🌤️", Path: "/api/openmeteo/search"},
	{ID: "openweathermap", Display: "OpenWeatherMap", Icon: "🌦️", Path: "/api/openweathermap/search"},
	{ID: "google_books", Display: "Google Books", Icon: "📚", Path: "/api/google_books/search"},
	{ID: "rest_countries", Display: "REST Countries", Icon: "🌍", Path: "/api/rest_countries/search"},
	{ID: "libretranslate", Display: "LibreTranslate", Icon: "🌐", Path: "/api/libretranslate/search"},
	{ID: "deepl", Display: "DeepL", Icon: "🌐", Path: "/api/deepl/search"},
	{ID: "unsplash", Display: "Unsplash", Icon: "🖼️", Path: "/api/unsplash/search"},
	{ID: "pexels", Display: "Pexels", Icon: "🖼️", Path: "/api/pexels/search"},
	{ID: "lorempicsum", Display: "Lorem Picsum", Icon: "🖼️", Path: "/api/lorempicsum/search"},
	{ID: "quotable", Display: "Quotable", Icon: "💬", Path: "/api/quotable/search"},
	{ID: "adviceslip", Display: "Advice Slip", Icon: "💡", Path: "/api/adviceslip/search"},
	{ID: "jsonplaceholder", Display: "JSONPlaceholder", Icon: "🧪", Path: "/api/jsonplaceholder/search"},
	{ID: "randomuser", Display: "RandomUser", Icon: "🧪", Path: "/api/randomuser/search"},
	{ID: "fakestore", Display: "Fake Store", Icon: "🧪", Path: "/api/fakestore/search"},
	{ID: "github", Display: "GitHub", Icon: "🐙", Path: "/api/github/search"},
	{ID: "nominatim", Display: "Nominatim", Icon: "📍", Path: "/api/nominatim/search"},
	{ID: "ip_geolocation", Display: "IP Geolocation", Icon: "📍", Path: "/api/ip_geolocation/search"},
	{ID: "worldtime", Display: "WorldTime", Icon: "🕐", Path: "/api/worldtime/search"},
	{ID: "tinyurl", Display: "TinyURL", Icon: "🔗", Path: "/api/tinyurl/search"},
	{ID: "usda", Display: "USDA FoodData", Icon: "🥦", Path: "/api/usda/search"},
	{ID: "nasa", Display: "NASA", Icon: "🚀", Path: "/api/nasa/search"},
	{ID: "tmdb", Display: "TMDB", Icon: "🎬", Path: "/api/tmdb/search"},
	{ID: "omdb", Display: "OMDb", Icon: "🎬", Path: "/api/omdb/search"},
}

var medicalIcons = map[string]string{
	"open_disease":     "🦠",
	"drugbank_open":    "💊",
	"loinc":            "🧪",
	"pubmed":           "📖",
	"openfda":          "💊",
	"rxnorm":           "💉",
	"pmc":              "📄",
	"europe_pmc":       "📚",
	"clinicaltrials":   "🧬",
	"disease_sh":       "🦠",
	"who_gho":          "🌍",
	"snomed_ct":        "🏥",
	"orphanet":         "🧬",
	"icd11":            "📋",
	"mesh":             "🗂️",
	"ncbi_gene":        "🧬",
	"drug_central":     "💊",
	"kegg":             "🧪",
	"omim":             "🧬",
	"semantic_scholar": "🎓",
	"clinvar":          "🧬",
	"reactome":         "⚗️",
	"uniprot":          "🔬",
	"gard":             "🏥",
}

var descriptors = buildDescriptors()

func buildDescriptors() map[string]Descriptor {
	all := map[string]Descriptor{}
	for _, d := range genericDescriptors {
		all[d.ID] = d
	}
	// medical descriptors derive from the source registry
	for _, api := range query.MedicalRegistry {
		icon := medicalIcons[api.ID]
		if icon == "" {
			icon = "🏥"
		}
		all[api.ID] = Descriptor{
			ID:      api.ID,
			Display: api.Name,
			Icon:    icon,
			Tier:    api.Tier,
			Path:    "/api/medical/" + api.ID + "/search",
		}
	}
	return all
}

// Lookup returns the descriptor for id.
func Lookup(id string) (Descriptor, bool) {
	d, ok := descriptors[id]
	return d, ok
}

// KnownIDs returns every source id the engine can call.
func KnownIDs() []string {
	seen := map[string]bool{}
	ids := make([]string, 0, len(descriptors))
	for _, d := range genericDescriptors {
		if !seen[d.ID] {
			ids = append(ids, d.ID)
			seen[d.ID] = true
		}
	}
	for _, api := range query.MedicalRegistry {
		if !seen[api.ID] {
			ids = append(ids, api.ID)
			seen[api.ID] = true
		}
	}
	return ids
}
