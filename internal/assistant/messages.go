package assistant

import (
	"fmt"
	"strings"
	"time"
)

// Canned replies keyed by language. Every non-LLM branch of the composer
// answers from this table so the tone stays consistent per language.
var (
	noKnowledgeByLang = map[string]string{
		"es": "No tengo información para responder esta pregunta.Si tienes una duda relacionada con este negocio y necesitas más detalle, puedes contactarnos directamente. Mientras tanto, con gusto puedo ayudarte con cualquier otra pregunta.",
		"en": "I don’t have information to answer this question. If you have a question related to this business and need more details, you can contact us directly. In the meantime, I’m happy to help with any other question.",
	}

	greetingByLang = map[string]string{
		"es": "¡Hola! ¿En qué puedo ayudarte hoy?",
		"en": "Hi! How can I help you today?",
	}

	limitByLang = map[string]string{
		"es": "Has alcanzado el límite de esta conversación. Contáctanos por correo o WhatsApp. 💬",
		"en": "You have reached the limit of this conversation. Please contact us by email or WhatsApp. 💬",
	}

	errorByLang = map[string]string{
		"es": "Ups, ocurrió un problema inesperado. Por favor intenta de nuevo.",
		"en": "Oops, something went wrong. Please try again.",
	}

	emptyMessageByLang = map[string]string{
		"es": "No logré entender tu mensaje ¿Podrías intentarlo de nuevo?",
		"en": "I couldn’t understand your message. Could you please try again?",
	}

	noDateTimeByLang = map[string]string{
		"es": "No pude identificar una fecha u horario. ¿Podrías repetirlo?",
		"en": "I couldn’t identify a date or time. Could you repeat it?",
	}

	registeredByLang = map[string]string{
		"es": "✅ Tu cita ha sido registrada. (Recibirás confirmación pronto.)",
		"en": "✅ Your appointment has been registered. (You’ll receive a confirmation soon.)",
	}

	notRegisteredByLang = map[string]string{
		"es": "❌ No pude registrar la cita. Intenta con otro horario.",
		"en": "❌ I couldn't register the appointment. Try another time.",
	}

	noSlotsByLang = map[string]string{
		"es": "Por el momento no encontré horarios disponibles. ¿Quieres intentar con otra fecha?",
		"en": "I couldn’t find any available times right now. Would you like to try another date?",
	}

	calendarDownByLang = map[string]string{
		"es": "No puedo consultar la disponibilidad del calendario en este momento. Por favor intenta más tarde.",
		"en": "I can’t check calendar availability right now. Please try again later.",
	}
)

func messageFor(table map[string]string, lang string) string {
	if msg, ok := table[lang]; ok {
		return msg
	}
	return table["en"]
}

// greetings short-circuit the pipeline when the whole message is a bare
// salutation.
var greetings = map[string]struct{}{
	"hola": {}, "buenas": {}, "hello": {}, "hi": {}, "hey": {},
}

func isGreeting(text string) bool {
	_, ok := greetings[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// formatSlots renders availability as a numbered list of half-hour ranges
// under the date of the first slot.
func formatSlots(slots []time.Time, slotLen time.Duration, lang string) string {
	baseDate := slots[0].Format("2006-01-02")

	var b strings.Builder
	if lang == "es" {
		fmt.Fprintf(&b, "Para %s, aquí tienes algunas opciones disponibles:\n\n", baseDate)
	} else {
		fmt.Fprintf(&b, "For %s, here are some available options:\n\n", baseDate)
	}
	for i, slot := range slots {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s - %s", i+1, slot.Format("15:04"), slot.Add(slotLen).Format("15:04"))
	}
	return b.String()
}
