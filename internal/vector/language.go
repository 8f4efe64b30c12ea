package vector

import (
	"strings"
	"unicode"
)

// BaseLanguage is assumed when nothing else matches.
const BaseLanguage = "en"

// markerWords are small curated sets of common words per language, used
// when no character-class pattern is decisive. English needs no
// decisive pattern; it is the fallback.
var markerWords = map[string]map[string]bool{
	"en": toSet("the", "a", "an", "make", "build", "create", "please", "object", "and", "with", "flat", "tall"),
	"es": toSet("haz", "crea", "construye", "una", "uno", "el", "la", "por", "favor", "objeto", "con", "plano", "alto"),
	"de": toSet("mach", "baue", "erstelle", "eine", "ein", "der", "die", "das", "bitte", "objekt", "mit", "flach", "hoch"),
}

// multiMarkerBonus rewards inputs hitting at least two markers of the
// same language, so one stray loanword does not flip detection.
const multiMarkerBonus = 0.1

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// DetectLanguage guesses the language of text. Character-class patterns
// are decisive: any Cyrillic rune means Russian, Spanish-only or
// German-only diacritics mean those languages. Otherwise the marker
// word sets vote by overlap ratio. Defaults to the base language.
func DetectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			return "ru"
		}
		switch r {
		case 'ñ', 'Ñ', '¿', '¡':
			return "es"
		case 'ß', 'ä', 'ö', 'Ä', 'Ö':
			return "de"
		}
	}

	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return BaseLanguage
	}

	best := BaseLanguage
	bestScore := 0.0
	// Fixed iteration order keeps detection deterministic on ties.
	for _, lang := range []string{"en", "es", "de"} {
		markers := markerWords[lang]
		hits := 0
		for _, w := range words {
			if markers[w] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(words))
		if hits >= 2 {
			score += multiMarkerBonus
		}
		if score > bestScore {
			bestScore = score
			best = lang
		}
	}
	return best
}
