package assistant

import "strings"

// spanishFunctionWords are high-frequency Spanish chat words. Real chat
// traffic often drops accents and punctuation, so the set carries both
// accented and plain spellings where they differ.
var spanishFunctionWords = map[string]struct{}{
	"que": {}, "es": {}, "como": {}, "para": {}, "por": {}, "porque": {},
	"cuando": {}, "donde": {}, "cual": {}, "cuanto": {}, "cuantos": {},
	"hola": {}, "buenas": {}, "dame": {}, "quiero": {}, "necesito": {},
	"informacion": {}, "información": {}, "info": {},
	"plan": {}, "planes": {}, "precio": {}, "coste": {}, "costo": {},
	"ayuda": {}, "soporte": {}, "incluye": {}, "incluyen": {},
	"funciona": {}, "servicio": {},
}

// DetectLanguage guesses es/en for short chat messages. Strong Spanish
// signals (inverted punctuation, ñ, accented vowels) win outright; failing
// that, any Spanish function word decides. English is the conservative
// default.
func DetectLanguage(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return "en"
	}

	if strings.ContainsAny(t, "¿¡ñáéíóú") {
		return "es"
	}

	cleaner := strings.NewReplacer("?", "", "¿", "", "!", "", "¡", "")
	for _, token := range strings.Fields(cleaner.Replace(t)) {
		if _, ok := spanishFunctionWords[token]; ok {
			return "es"
		}
	}
	return "en"
}

// filterHistoryByLanguage keeps only the lines whose detected language
// matches the current turn, so a bilingual session does not drag the model
// into the wrong language.
func filterHistoryByLanguage(lines []string, lang string) []string {
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if DetectLanguage(line) == lang {
			filtered = append(filtered, line)
		}
	}
	return filtered
}
