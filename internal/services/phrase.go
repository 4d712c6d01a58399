// Search-phrase construction.
//
// The provider answers best when queried in the language of the target
// country, so the category keyword ("pharmacy" / "herbalist") is translated
// through a static lookup keyed by lower-cased country name. The five main
// markets carry explicit variants under both their English and native names;
// any other country falls back to English.
package services

import "strings"

// categoryPhrase holds the localized search keywords for one language.
type categoryPhrase struct {
	pharmacy  string
	herbalist string
	in        string // preposition joining keyword and location
}

var (
	phraseEnglish = categoryPhrase{pharmacy: "pharmacy", herbalist: "herbalist shop", in: "in"}

	// Lower-cased country name → localized keywords. Both the English and the
	// native spelling of each supported country must resolve identically.
	phrasesByCountry = map[string]categoryPhrase{
		"spain":    {pharmacy: "farmacia", herbalist: "herbolario", in: "en"},
		"españa":   {pharmacy: "farmacia", herbalist: "herbolario", in: "en"},
		"portugal": {pharmacy: "farmácia", herbalist: "ervanária", in: "em"},
		"france":   {pharmacy: "pharmacie", herbalist: "herboristerie", in: "à"},
		"italy":    {pharmacy: "farmacia", herbalist: "erboristeria", in: "a"},
		"italia":   {pharmacy: "farmacia", herbalist: "erboristeria", in: "a"},
		"germany":  {pharmacy: "apotheke", herbalist: "kräuterladen", in: "in"},
		"deutschland": {pharmacy: "apotheke", herbalist: "kräuterladen", in: "in"},
	}
)

// BuildSearchPhrase produces the provider query for the given filters:
// localized category keyword, preposition, and the non-empty geographic
// terms joined most-specific first ("farmacia en Sevilla, Andalucía,
// España"). The country lookup is case-insensitive; unknown countries and
// an empty category default to English / pharmacy.
func BuildSearchPhrase(f SearchFilters) string {
	p, ok := phrasesByCountry[strings.ToLower(strings.TrimSpace(f.Country))]
	if !ok {
		p = phraseEnglish
	}

	keyword := p.pharmacy
	if strings.EqualFold(strings.TrimSpace(f.Category), "herbalist") {
		keyword = p.herbalist
	}

	terms := make([]string, 0, 3)
	for _, t := range []string{f.City, f.Province, f.Country} {
		if s := strings.TrimSpace(t); s != "" {
			terms = append(terms, s)
		}
	}
	return keyword + " " + p.in + " " + strings.Join(terms, ", ")
}
