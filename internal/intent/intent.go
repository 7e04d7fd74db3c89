package intent

import (
	"regexp"
	"strings"
)

// Intent is the routed meaning of an inbound user message.
type Intent int

const (
	// GeneralQuestion routes to retrieval + generation.
	GeneralQuestion Intent = iota
	// AvailabilityQuery asks for open slots without naming a time.
	AvailabilityQuery
	// ScheduleRequest asks to book, or names an explicit date-time.
	ScheduleRequest
)

func (i Intent) String() string {
	switch i {
	case AvailabilityQuery:
		return "availability_query"
	case ScheduleRequest:
		return "schedule_request"
	default:
		return "general_question"
	}
}

// Classifier maps free text to an Intent. Implementations must be pure.
type Classifier interface {
	Classify(text string) Intent
}

// LocalePack bundles the keyword rules for one language so new languages
// can be added without touching the classifier.
type LocalePack struct {
	Name string

	// ScheduleKeywords are phrases that signal a booking action.
	ScheduleKeywords []string
	// AvailabilityKeywords ask about open slots without committing to one.
	AvailabilityKeywords []string
	// NegativeKeywords mark non-transactional contexts ("political agenda")
	// that would otherwise false-positive on the lists above.
	NegativeKeywords []string
}

// SpanishPack returns the built-in Spanish rule set.
func SpanishPack() LocalePack {
	return LocalePack{
		Name: "es",
		ScheduleKeywords: []string{
			"quiero agendar", "me gustaria agendar", "puedo agendar", "necesito agendar",
			"quiero una cita", "hacer una cita", "reservar cita", "quiero reservar",
			"programar una cita", "quiero programar", "puedes agendar", "hazme una cita",
			"agenda una reunion", "agendar reunion", "reagendar", "cambiar mi cita",
			"modificar mi cita", "confirmar cita", "agendar", "reservar",
		},
		AvailabilityKeywords: []string{
			"disponibilidad", "horarios disponibles", "que horarios tienes",
			"dame horarios", "horarios", "horario disponible", "disponible",
		},
		NegativeKeywords: []string{
			"agenda de hoy", "mi agenda", "nuestra agenda", "agenda politica",
			"agenda del evento", "agenda semanal", "mi horario laboral",
			"mi horario de trabajo", "horario de atencion", "horario escolar",
			"horario de clases",
		},
	}
}

// EnglishPack returns the built-in English rule set.
func EnglishPack() LocalePack {
	return LocalePack{
		Name: "en",
		ScheduleKeywords: []string{
			"book appointment", "book an appointment", "make an appointment",
			"i want to schedule", "i would like to book", "i'd like to book",
			"set up a meeting", "book a meeting", "schedule meeting",
			"schedule a call", "set up a call", "book a time", "arrange a meeting",
			"reschedule", "change my appointment", "confirm appointment",
			"book a session", "schedule an appointment",
		},
		AvailabilityKeywords: []string{
			"availability", "available slots", "available times", "available schedule",
			"show available", "when can i book", "find a time", "open slots",
		},
		NegativeKeywords: []string{
			"political agenda", "event agenda", "my agenda", "weekly agenda",
			"office hours", "business hours", "class schedule", "school schedule",
			"my work schedule",
		},
	}
}

var whitespaceRE = regexp.MustCompile(`\s+`)

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
	"¿", " ", "¡", " ",
)

// Normalize lowercases, strips Spanish accents, and collapses whitespace so
// "Agéndame" and "agendame" match the same rules.
func Normalize(text string) string {
	t := accentReplacer.Replace(text)
	t = strings.ToLower(t)
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(t, " "))
}

// KeywordClassifier is the deterministic, locale-pack-driven classifier.
type KeywordClassifier struct {
	packs []LocalePack
}

// NewKeywordClassifier builds a classifier over the given packs. With no
// arguments it classifies Spanish and English, the two shipped locales.
func NewKeywordClassifier(packs ...LocalePack) *KeywordClassifier {
	if len(packs) == 0 {
		packs = []LocalePack{SpanishPack(), EnglishPack()}
	}
	return &KeywordClassifier{packs: packs}
}

var _ Classifier = (*KeywordClassifier)(nil)

// Classify resolves the intent of a message. An explicit date-time pattern
// always wins over keyword-only matches: a message carrying both a date and
// an availability word is a scheduling attempt, not a query.
func (c *KeywordClassifier) Classify(text string) Intent {
	norm := Normalize(text)
	if norm == "" {
		return GeneralQuestion
	}

	if HasDateTimeHint(norm) {
		if c.matchesAny(norm, scheduleOrAvailability) {
			return ScheduleRequest
		}
		// A bare timestamp with booking verbs nearby still counts.
		if dateTimeActionRE.MatchString(norm) || isoDateTimeRE.MatchString(norm) {
			return ScheduleRequest
		}
	}

	negated := c.matchesAny(norm, negativeOnly)

	if c.matchesAny(norm, scheduleOnly) && !negated {
		return ScheduleRequest
	}
	if c.matchesAny(norm, availabilityOnly) && !negated {
		return AvailabilityQuery
	}

	// Weak signal: a lone availability word plus a question mark.
	if strings.Contains(norm, "?") && c.matchesAny(norm, availabilityOnly) {
		return AvailabilityQuery
	}

	return GeneralQuestion
}

type keywordSelector func(LocalePack) [][]string

func scheduleOnly(p LocalePack) [][]string {
	return [][]string{p.ScheduleKeywords}
}

func availabilityOnly(p LocalePack) [][]string {
	return [][]string{p.AvailabilityKeywords}
}

func negativeOnly(p LocalePack) [][]string {
	return [][]string{p.NegativeKeywords}
}

func scheduleOrAvailability(p LocalePack) [][]string {
	return [][]string{p.ScheduleKeywords, p.AvailabilityKeywords}
}

func (c *KeywordClassifier) matchesAny(norm string, sel keywordSelector) bool {
	for _, pack := range c.packs {
		for _, list := range sel(pack) {
			for _, kw := range list {
				if strings.Contains(norm, Normalize(kw)) {
					return true
				}
			}
		}
	}
	return false
}
