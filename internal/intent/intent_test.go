package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewKeywordClassifier()

	cases := []struct {
		name string
		text string
		want Intent
	}{
		{"spanish booking phrase", "Quiero agendar una cita para masaje", ScheduleRequest},
		{"spanish booking with accents", "Agéndame una cita mañana", ScheduleRequest},
		{"spanish reschedule", "necesito reagendar mi cita", ScheduleRequest},
		{"spanish availability", "¿Tienes disponibilidad esta semana?", AvailabilityQuery},
		{"spanish availability plain", "dame horarios para la proxima semana", AvailabilityQuery},
		{"english booking phrase", "I want to schedule a consultation", ScheduleRequest},
		{"english booking short", "book an appointment please", ScheduleRequest},
		{"english availability", "what is your availability next week?", AvailabilityQuery},
		{"availability word with timestamp is a booking", "disponibilidad 2025-11-20T10:00", ScheduleRequest},
		{"bare iso timestamp", "2025-11-20T10:00", ScheduleRequest},
		{"booking verb plus weekday", "can you book friday at 10am", ScheduleRequest},
		{"negative spanish agenda", "hablemos de la agenda politica del pais", GeneralQuestion},
		{"negative office hours", "what are your office hours policies", GeneralQuestion},
		{"negative work schedule", "mi horario laboral es muy pesado", GeneralQuestion},
		{"plain question", "tell me about your services", GeneralQuestion},
		{"plain spanish question", "que documentos necesito para inscribirme", GeneralQuestion},
		{"empty input", "", GeneralQuestion},
		{"whitespace only", "   \n\t ", GeneralQuestion},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.text), "Classify(%q)", tc.text)
		})
	}
}

func TestClassifySingleLocale(t *testing.T) {
	c := NewKeywordClassifier(EnglishPack())
	assert.Equal(t, GeneralQuestion, c.Classify("quiero agendar una cita"),
		"english-only classifier must not match spanish keywords")
	assert.Equal(t, ScheduleRequest, c.Classify("book an appointment"))
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"¿Agéndame  una   cita?", "agendame una cita?"},
		{"MAÑANA", "manana"},
		{"  hello   world  ", "hello world"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "Normalize(%q)", tc.in)
	}
}

func TestIntentString(t *testing.T) {
	assert.Equal(t, "general_question", GeneralQuestion.String())
	assert.Equal(t, "schedule_request", ScheduleRequest.String())
	assert.Equal(t, "availability_query", AvailabilityQuery.String())
}
