package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolvian/assistant-platform/internal/appointments"
	"github.com/evolvian/assistant-platform/internal/calendar"
	"github.com/evolvian/assistant-platform/internal/history"
	"github.com/evolvian/assistant-platform/internal/intent"
	"github.com/evolvian/assistant-platform/internal/retrieval"
	"github.com/evolvian/assistant-platform/internal/settings"
)

var composerNow = time.Date(2025, time.November, 19, 12, 0, 0, 0, time.UTC)

type fakeHistory struct {
	rows            []history.Message
	appendErr       error
	countErr        error
	lastRecentLimit int
}

func (f *fakeHistory) Append(_ context.Context, msg history.Message) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, msg)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, _, _ string, limit int) ([]history.Message, error) {
	f.lastRecentLimit = limit
	if limit <= 0 || limit >= len(f.rows) {
		return f.rows, nil
	}
	return f.rows[len(f.rows)-limit:], nil
}

func (f *fakeHistory) Count(_ context.Context, _, _ string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.rows), nil
}

func (f *fakeHistory) lastRow(t *testing.T) history.Message {
	t.Helper()
	require.NotEmpty(t, f.rows)
	return f.rows[len(f.rows)-1]
}

type fakeRetriever struct {
	passages []retrieval.Passage
	err      error
	calls    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _ string) ([]retrieval.Passage, error) {
	f.calls++
	return f.passages, f.err
}

type fakeAvailability struct {
	slots []time.Time
	err   error
}

func (f *fakeAvailability) Availability(_ context.Context, _ string) ([]time.Time, error) {
	return f.slots, f.err
}

type fakeWriter struct {
	lastTenant string
	lastReq    appointments.RegisterRequest
	err        error
	calls      int
}

func (f *fakeWriter) Register(_ context.Context, tenantID string, req appointments.RegisterRequest) (*appointments.Appointment, error) {
	f.calls++
	f.lastTenant = tenantID
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &appointments.Appointment{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ScheduledAt: req.ScheduledAt,
		Status:      appointments.StatusPendingConfirmation,
	}, nil
}

type fakeSettings struct {
	cfg settings.TenantConfig
}

func (f *fakeSettings) ForTenant(_ context.Context, _ string) settings.TenantConfig {
	return f.cfg
}

type fakeLLM struct {
	text    string
	err     error
	calls   int
	lastReq CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return CompletionResponse{}, f.err
	}
	return CompletionResponse{Text: f.text}, nil
}

type composerHarness struct {
	composer  *Composer
	hist      *fakeHistory
	retriever *fakeRetriever
	resolver  *fakeAvailability
	writer    *fakeWriter
	llm       *fakeLLM
	settings  *fakeSettings
}

func newComposerHarness() *composerHarness {
	h := &composerHarness{
		hist:      &fakeHistory{},
		retriever: &fakeRetriever{},
		resolver:  &fakeAvailability{},
		writer:    &fakeWriter{},
		llm:       &fakeLLM{text: "answer"},
		settings:  &fakeSettings{cfg: settings.Defaults()},
	}
	h.composer = NewComposer(
		h.hist,
		h.retriever,
		intent.NewKeywordClassifier(intent.SpanishPack(), intent.EnglishPack()),
		h.resolver,
		h.writer,
		h.settings,
		h.llm,
		nil,
	)
	h.composer.now = func() time.Time { return composerNow }
	return h
}

func TestAnswerGreetingShortCircuits(t *testing.T) {
	h := newComposerHarness()

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "hola", Channel: "webchat"})

	assert.Equal(t, "¡Hola! ¿En qué puedo ayudarte hoy?", resp.Text)
	assert.False(t, resp.LimitReached)
	assert.NotEmpty(t, resp.SessionID)
	assert.Zero(t, h.llm.calls)
	assert.Zero(t, h.retriever.calls)

	require.Len(t, h.hist.rows, 2)
	assert.Equal(t, history.RoleUser, h.hist.rows[0].Role)
	assert.Equal(t, history.RoleAssistant, h.hist.rows[1].Role)
}

func TestAnswerEmptyMessage(t *testing.T) {
	h := newComposerHarness()
	h.settings.cfg.Language = "es"

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "   "})

	assert.Equal(t, "No logré entender tu mensaje ¿Podrías intentarlo de nuevo?", resp.Text)
	assert.Empty(t, h.hist.rows)
}

func TestAnswerSessionLimit(t *testing.T) {
	h := newComposerHarness()
	h.settings.cfg.SessionLimit = 2
	for i := 0; i < 3; i++ {
		h.hist.rows = append(h.hist.rows, history.Message{Role: history.RoleUser, Content: "previo"})
	}

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", SessionID: "s1", Text: "dame mas informacion"})

	assert.True(t, resp.LimitReached)
	assert.Equal(t, "Has alcanzado el límite de esta conversación. Contáctanos por correo o WhatsApp. 💬", resp.Text)
	assert.Zero(t, h.llm.calls)
	// The limit notice is still recorded as an assistant turn.
	assert.Equal(t, history.RoleAssistant, h.hist.lastRow(t).Role)
}

func TestAnswerEmptyCorpusSkipsLLM(t *testing.T) {
	h := newComposerHarness()
	h.retriever.passages = []retrieval.Passage{}

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "what plans do you offer"})

	assert.Equal(t, noKnowledgeByLang["en"], resp.Text)
	assert.Zero(t, h.llm.calls)
	assert.Equal(t, 1, h.retriever.calls)
}

func TestAnswerGeneralQuestionUsesLLM(t *testing.T) {
	h := newComposerHarness()
	h.llm.text = "El plan básico cuesta 10€."
	h.settings.cfg.SystemPrompt = "Eres el asistente de Acme."
	h.settings.cfg.Temperature = 0.7
	h.retriever.passages = []retrieval.Passage{
		{Text: "El plan básico cuesta 10€ al mes.", Source: "precios.txt"},
	}

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", SessionID: "s1", Text: "¿cuánto cuesta el plan básico?"})

	assert.Equal(t, "El plan básico cuesta 10€.", resp.Text)
	require.Equal(t, 1, h.llm.calls)

	require.Len(t, h.llm.lastReq.System, 1)
	system := h.llm.lastReq.System[0]
	assert.Contains(t, system, "Eres el asistente de Acme.")
	assert.Contains(t, system, "Responde SIEMPRE en español.")
	assert.Contains(t, system, noKnowledgeByLang["es"])
	assert.InDelta(t, 0.7, h.llm.lastReq.Temperature, 0.0001)

	require.Len(t, h.llm.lastReq.Messages, 1)
	human := h.llm.lastReq.Messages[0].Content
	assert.Contains(t, human, "El plan básico cuesta 10€ al mes.")
	assert.Contains(t, human, "¿cuánto cuesta el plan básico?")

	assert.Equal(t, resp.Text, h.hist.lastRow(t).Content)
}

func TestAnswerLLMFailureApologizes(t *testing.T) {
	h := newComposerHarness()
	h.llm.err = errors.New("rate limited")
	h.retriever.passages = []retrieval.Passage{{Text: "dato", Source: "s"}}

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "que incluye el servicio"})

	assert.Equal(t, "Ups, ocurrió un problema inesperado. Por favor intenta de nuevo.", resp.Text)
	assert.Equal(t, resp.Text, h.hist.lastRow(t).Content)
}

func TestAnswerEmptyLLMReplyFallsBack(t *testing.T) {
	h := newComposerHarness()
	h.llm.text = "   "
	h.retriever.passages = []retrieval.Passage{{Text: "some fact", Source: "s"}}

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "tell me about your product"})

	assert.Equal(t, noKnowledgeByLang["en"], resp.Text)
}

func TestAnswerAvailabilityListsSlots(t *testing.T) {
	h := newComposerHarness()
	h.resolver.slots = []time.Time{
		time.Date(2025, time.November, 20, 10, 0, 0, 0, time.UTC),
		time.Date(2025, time.November, 20, 10, 30, 0, 0, time.UTC),
	}

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "que horarios tienes disponibles"})

	assert.True(t, strings.HasPrefix(resp.Text, "Para 2025-11-20, aquí tienes algunas opciones disponibles:\n\n"), resp.Text)
	assert.Contains(t, resp.Text, "1. 10:00 - 10:30")
	assert.Contains(t, resp.Text, "2. 10:30 - 11:00")
	assert.Zero(t, h.llm.calls)
}

func TestAnswerAvailabilityEnglish(t *testing.T) {
	h := newComposerHarness()
	h.resolver.slots = []time.Time{time.Date(2025, time.November, 21, 9, 0, 0, 0, time.UTC)}

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "show available times please"})

	assert.True(t, strings.HasPrefix(resp.Text, "For 2025-11-21, here are some available options:\n\n"), resp.Text)
	assert.Contains(t, resp.Text, "1. 09:00 - 09:30")
}

func TestAnswerAvailabilityNoSlots(t *testing.T) {
	h := newComposerHarness()
	h.resolver.slots = nil

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "que horarios tienes disponibles"})

	assert.Equal(t, noSlotsByLang["es"], resp.Text)
}

func TestAnswerAvailabilityUnavailable(t *testing.T) {
	h := newComposerHarness()
	h.resolver.err = calendar.ErrUnavailable

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "show available times please"})

	assert.Equal(t, calendarDownByLang["en"], resp.Text)
}

func TestAnswerScheduleRegistersAppointment(t *testing.T) {
	h := newComposerHarness()

	resp := h.composer.Answer(context.Background(), Request{
		TenantID:  "t1",
		Text:      "quiero agendar una cita el 2025-11-20T10:00",
		UserName:  "Ana",
		UserEmail: "ana@example.com",
	})

	assert.Equal(t, "✅ Tu cita ha sido registrada. (Recibirás confirmación pronto.)", resp.Text)
	require.Equal(t, 1, h.writer.calls)
	assert.Equal(t, "t1", h.writer.lastTenant)
	assert.Equal(t, "Ana", h.writer.lastReq.UserName)
	assert.Equal(t, "ana@example.com", h.writer.lastReq.UserEmail)
	assert.Equal(t, time.Date(2025, time.November, 20, 10, 0, 0, 0, time.UTC), h.writer.lastReq.ScheduledAt)
	assert.Zero(t, h.llm.calls)
}

func TestAnswerScheduleWithoutTime(t *testing.T) {
	h := newComposerHarness()

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "quiero agendar una cita mañana"})

	assert.Equal(t, "No pude identificar una fecha u horario. ¿Podrías repetirlo?", resp.Text)
	assert.Zero(t, h.writer.calls)
}

func TestAnswerScheduleWriterFailure(t *testing.T) {
	h := newComposerHarness()
	h.writer.err = appointments.ErrSlotTaken

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "quiero agendar una cita el 2025-11-20T10:00"})

	assert.Equal(t, "❌ No pude registrar la cita. Intenta con otro horario.", resp.Text)
}

func TestAnswerHistoryWindowConfigurable(t *testing.T) {
	h := newComposerHarness()
	h.retriever.passages = []retrieval.Passage{{Text: "fact", Source: "s"}}
	h.composer.WithHistoryWindow(4)

	h.composer.Answer(context.Background(), Request{TenantID: "t1", SessionID: "s1", Text: "what is included"})
	assert.Equal(t, 4, h.hist.lastRecentLimit)

	// Non-positive windows keep the default.
	h.composer.WithHistoryWindow(0)
	h.composer.Answer(context.Background(), Request{TenantID: "t1", SessionID: "s1", Text: "what is included"})
	assert.Equal(t, 4, h.hist.lastRecentLimit)
}

func TestAnswerHistoryAppendFailureDegrades(t *testing.T) {
	h := newComposerHarness()
	h.hist.appendErr = errors.New("db down")
	h.retriever.passages = []retrieval.Passage{{Text: "fact", Source: "s"}}
	h.llm.text = "the answer"

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "what is included"})

	assert.Equal(t, "the answer", resp.Text)
}

func TestAnswerGeneratesSessionID(t *testing.T) {
	h := newComposerHarness()

	resp := h.composer.Answer(context.Background(), Request{TenantID: "t1", Text: "hola"})

	_, err := uuid.Parse(resp.SessionID)
	assert.NoError(t, err)
}

func TestBuildContextCapsLength(t *testing.T) {
	long := strings.Repeat("a", maxContextChars)
	passages := []retrieval.Passage{
		{Text: long, Source: "a"},
		{Text: "never included", Source: "b"},
	}

	got := buildContext(passages)

	assert.NotContains(t, got, "never included")
	assert.Equal(t, maxContextChars+2, len(got)) // trailing separator
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"¿Cuánto cuesta?", "es"},
		{"cuanto cuesta el plan", "es"},
		{"hola", "es"},
		{"necesito ayuda", "es"},
		{"how much does it cost", "en"},
		{"hello there", "en"},
		{"", "en"},
		{"random words here", "en"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectLanguage(tc.text), tc.text)
	}
}

func TestFilterHistoryByLanguage(t *testing.T) {
	lines := []string{
		"User: hola necesito ayuda",
		"Assistant: claro, dime qué necesitas",
		"User: how much is it",
	}
	got := filterHistoryByLanguage(lines, "es")
	assert.Equal(t, []string{"User: hola necesito ayuda", "Assistant: claro, dime qué necesitas"}, got)
}
