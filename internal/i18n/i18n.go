// Package i18n provides the label translation packs for the report
// renderer. A Bundle is an explicit value handed to the renderer; nothing in
// the classification core ever sees it.
package i18n

import "golang.org/x/text/language"

// Bundle is one resolved set of display labels.
type Bundle struct {
	Tag    language.Tag
	Labels map[string]string
}

// L returns the label for key, falling back to the English pack and finally
// to the key itself so a missing translation never blanks the UI.
func (b Bundle) L(key string) string {
	if v, ok := b.Labels[key]; ok {
		return v
	}
	if v, ok := packs[language.English][key]; ok {
		return v
	}
	return key
}

var packs = map[language.Tag]map[string]string{
	language.English: {
		"title":           "License Lifecycle Report",
		"generated":       "Generated",
		"threshold":       "Inactivity threshold",
		"days":            "days",
		"kpi_total":       "Licensed users",
		"kpi_keep":        "Keep",
		"kpi_review":      "Review",
		"kpi_delete":      "Delete",
		"kpi_admins":      "Admins",
		"kpi_never":       "Never signed in",
		"kpi_top_license": "Top license",
		"col_user":        "User",
		"col_upn":         "Principal name",
		"col_licenses":    "Licenses",
		"col_last_signin": "Last sign-in",
		"col_status":      "Status",
		"col_roles":       "Admin roles",
		"search":          "Search users...",
		"filter_all":      "All",
		"filter_admins":   "Admins only",
		"never":           "never",
		"signin_skipped":  "Sign-in evaluation was skipped; recency is not reflected in statuses.",
		"warnings":        "Warnings",
	},
	language.German: {
		"title":           "Lizenz-Lebenszyklus-Bericht",
		"generated":       "Erstellt",
		"threshold":       "Inaktivitätsschwelle",
		"days":            "Tage",
		"kpi_total":       "Lizenzierte Benutzer",
		"kpi_keep":        "Behalten",
		"kpi_review":      "Prüfen",
		"kpi_delete":      "Löschen",
		"kpi_admins":      "Administratoren",
		"kpi_never":       "Nie angemeldet",
		"kpi_top_license": "Häufigste Lizenz",
		"col_user":        "Benutzer",
		"col_upn":         "Prinzipalname",
		"col_licenses":    "Lizenzen",
		"col_last_signin": "Letzte Anmeldung",
		"col_status":      "Status",
		"col_roles":       "Admin-Rollen",
		"search":          "Benutzer suchen...",
		"filter_all":      "Alle",
		"filter_admins":   "Nur Administratoren",
		"never":           "nie",
		"signin_skipped":  "Anmeldeauswertung wurde übersprungen; Statuses spiegeln keine Aktivität wider.",
		"warnings":        "Warnungen",
	},
}

var matcher = language.NewMatcher([]language.Tag{
	language.English, // first entry is the fallback
	language.German,
})

// Pick resolves a BCP 47 language string ("de", "de-AT", "en-GB", ...) to
// the closest available pack. Unparseable or unknown input yields English.
func Pick(lang string) Bundle {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	_, idx, _ := matcher.Match(tag)
	resolved := []language.Tag{language.English, language.German}[idx]
	return Bundle{Tag: resolved, Labels: packs[resolved]}
}
