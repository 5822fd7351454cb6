// Package catalog answers questions about the lab's study catalog.
package catalog

import (
	"regexp"
	"strings"

	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
)

// Confidence grades how sure Normalize is about a canonical name.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceTentative
	ConfidenceConfident
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceConfident:
		return "confident"
	case ConfidenceTentative:
		return "tentative"
	}
	return "none"
}

// MarshalText renders the confidence label in JSON payloads.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Match is the outcome of normalizing a free-text study name. With
// ConfidenceNone, Canonical is the trimmed input.
type Match struct {
	Input      string     `json:"input"`
	Canonical  string     `json:"canonical"`
	Confidence Confidence `json:"confidence"`
}

type synonymRule struct {
	Canonical string
	Pattern   *regexp.Regexp
	Keywords  []string
}

// synonymRules run against accent-folded lowercase input, first match wins.
// More specific studies sit above the general ones they overlap with.
var synonymRules = []synonymRule{
	{
		Canonical: "Hemoglobina glicosilada",
		Pattern:   regexp.MustCompile(`\b(hemoglobina glicosilada|hemoglobina glicada|hba1c|a1c)\b`),
		Keywords:  []string{"glicosilada", "glicada"},
	},
	{
		Canonical: "Hematología completa",
		Pattern:   regexp.MustCompile(`\b(hematologia( completa)?|hemograma|biometria hematica|cbc|contaje sanguineo)\b`),
		Keywords:  []string{"hemato", "globulos", "plaquetas", "sangre completa"},
	},
	{
		Canonical: "Glicemia",
		Pattern:   regexp.MustCompile(`\b(glicemia|glucemia|glucosa|azucar en (la )?sangre)\b`),
		Keywords:  []string{"azucar", "gluco", "diabetes"},
	},
	{
		Canonical: "Perfil lipídico",
		Pattern:   regexp.MustCompile(`\b(perfil lipidico|colesterol|trigliceridos|lipidos|hdl|ldl)\b`),
		Keywords:  []string{"grasa", "lipid"},
	},
	{
		Canonical: "Perfil tiroideo",
		Pattern:   regexp.MustCompile(`\b(perfil tiroideo|tiroides|tsh|t3|t4)\b`),
		Keywords:  []string{"tiroid"},
	},
	{
		Canonical: "Perfil hepático",
		Pattern:   regexp.MustCompile(`\b(perfil hepatico|funcion hepatica|transaminasas|tgo|tgp)\b`),
		Keywords:  []string{"higado", "hepat"},
	},
	{
		Canonical: "Creatinina",
		Pattern:   regexp.MustCompile(`\b(creatinina|funcion renal|urea)\b`),
		Keywords:  []string{"rinon", "renal"},
	},
	{
		Canonical: "Examen de orina",
		Pattern:   regexp.MustCompile(`\b(examen de orina|uroanalisis|urianalisis|orina)\b`),
		Keywords:  []string{"urin"},
	},
	{
		Canonical: "Examen de heces",
		Pattern:   regexp.MustCompile(`\b(examen de heces|coproanalisis|heces|copro)\b`),
		Keywords:  []string{"parasit"},
	},
	{
		Canonical: "Prueba de embarazo",
		Pattern:   regexp.MustCompile(`\b(prueba de embarazo|beta ?hcg|hcg|embarazo)\b`),
		Keywords:  []string{"embaraz", "gestacion"},
	},
	{
		Canonical: "Antígeno prostático (PSA)",
		Pattern:   regexp.MustCompile(`\b(psa|antigeno prostatico)\b`),
		Keywords:  []string{"prostat"},
	},
	{
		Canonical: "VIH",
		Pattern:   regexp.MustCompile(`\b(vih|hiv)\b`),
	},
	{
		Canonical: "VDRL",
		Pattern:   regexp.MustCompile(`\b(vdrl|sifilis)\b`),
	},
	{
		Canonical: "Vitamina D",
		Pattern:   regexp.MustCompile(`\b(vitamina d|25 ?oh)\b`),
		Keywords:  []string{"vitamina"},
	},
}

// Normalize maps a free-text study name onto the catalog vocabulary.
func Normalize(name string) Match {
	trimmed := strings.TrimSpace(name)
	m := Match{Input: name, Canonical: trimmed, Confidence: ConfidenceNone}
	folded := scheduling.Fold(trimmed)
	if folded == "" {
		return m
	}
	for _, rule := range synonymRules {
		if rule.Pattern.MatchString(folded) {
			m.Canonical = rule.Canonical
			m.Confidence = ConfidenceConfident
			return m
		}
	}
	for _, rule := range synonymRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(folded, kw) {
				m.Canonical = rule.Canonical
				m.Confidence = ConfidenceTentative
				return m
			}
		}
	}
	return m
}

// CanonicalNames lists every study the synonym table knows.
func CanonicalNames() []string {
	out := make([]string, 0, len(synonymRules))
	for _, rule := range synonymRules {
		out = append(out, rule.Canonical)
	}
	return out
}

// Detect lists every study confidently named inside a free-text message, in
// catalog order.
func Detect(text string) []string {
	folded := scheduling.Fold(text)
	if strings.TrimSpace(folded) == "" {
		return nil
	}
	var out []string
	for _, rule := range synonymRules {
		if rule.Pattern.MatchString(folded) {
			out = append(out, rule.Canonical)
		}
	}
	return out
}
