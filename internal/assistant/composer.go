package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evolvian/assistant-platform/internal/appointments"
	"github.com/evolvian/assistant-platform/internal/history"
	"github.com/evolvian/assistant-platform/internal/intent"
	"github.com/evolvian/assistant-platform/internal/retrieval"
	"github.com/evolvian/assistant-platform/internal/settings"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

const (
	// maxContextChars caps the retrieved passages fed to the model.
	maxContextChars = 9000
	// defaultHistoryTail is how many recent turns the prompt carries.
	defaultHistoryTail = 10
	// slotLength is the duration of one bookable availability slot.
	slotLength = 30 * time.Minute

	llmTimeout = 30 * time.Second
)

// Request is one inbound user turn on any channel. UserName, UserEmail and
// UserPhone are optional contact details the channel adapter may have
// collected; the scheduling branch forwards them to the appointment writer.
type Request struct {
	TenantID  string
	SessionID string
	Channel   string
	Text      string

	UserName  string
	UserEmail string
	UserPhone string
}

// Response is the assistant's reply for one turn.
type Response struct {
	Text         string
	SessionID    string
	LimitReached bool
}

type classifier interface {
	Classify(text string) intent.Intent
}

type availabilityResolver interface {
	Availability(ctx context.Context, tenantID string) ([]time.Time, error)
}

type appointmentWriter interface {
	Register(ctx context.Context, tenantID string, req appointments.RegisterRequest) (*appointments.Appointment, error)
}

type tenantSettings interface {
	ForTenant(ctx context.Context, tenantID string) settings.TenantConfig
}

// Composer runs the per-turn pipeline: persist the user message, route by
// intent, and produce a grounded answer. It never returns an error to the
// channel adapters; every failure becomes an apologetic reply in the
// language of the turn, and the reply is always persisted as the assistant
// row of the session.
type Composer struct {
	history   history.Store
	retriever retrieval.Retriever
	classify  classifier
	resolver  availabilityResolver
	writer    appointmentWriter
	settings  tenantSettings
	llm       LLMClient
	histTail  int
	now       func() time.Time
	tracer    trace.Tracer
	logger    *logging.Logger
}

// NewComposer wires the answer pipeline. resolver and writer are optional:
// without them the calendar branches degrade to canned replies.
func NewComposer(hist history.Store, retriever retrieval.Retriever, classify classifier, resolver availabilityResolver, writer appointmentWriter, cfg tenantSettings, llm LLMClient, logger *logging.Logger) *Composer {
	if hist == nil {
		panic("assistant: history store required")
	}
	if retriever == nil {
		panic("assistant: retriever required")
	}
	if classify == nil {
		panic("assistant: classifier required")
	}
	if cfg == nil {
		panic("assistant: settings required")
	}
	if llm == nil {
		panic("assistant: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Composer{
		history:   hist,
		retriever: retriever,
		classify:  classify,
		resolver:  resolver,
		writer:    writer,
		settings:  cfg,
		llm:       llm,
		histTail:  defaultHistoryTail,
		now:       time.Now,
		tracer:    otel.Tracer("evolvian.internal.assistant"),
		logger:    logger.WithComponent("assistant"),
	}
}

// WithHistoryWindow sets how many recent turns the prompt carries.
// Non-positive values keep the default.
func (c *Composer) WithHistoryWindow(n int) *Composer {
	if n > 0 {
		c.histTail = n
	}
	return c
}

// Answer processes one user turn end to end.
func (c *Composer) Answer(ctx context.Context, req Request) Response {
	ctx, span := c.tracer.Start(ctx, "assistant.answer")
	defer span.End()
	start := c.now()
	defer func() {
		answerLatency.Observe(c.now().Sub(start).Seconds())
	}()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("evolvian.tenant_id", req.TenantID),
		attribute.String("evolvian.session_id", sessionID),
		attribute.String("evolvian.channel", req.Channel),
	)

	cfg := c.settings.ForTenant(ctx, req.TenantID)
	lang := DetectLanguage(req.Text)

	if strings.TrimSpace(req.Text) == "" {
		if cfg.Language != "" {
			lang = cfg.Language
		}
		return Response{Text: messageFor(emptyMessageByLang, lang), SessionID: sessionID}
	}

	c.appendRow(ctx, req, sessionID, history.RoleUser, req.Text)

	if cfg.SessionLimit > 0 {
		count, err := c.history.Count(ctx, req.TenantID, sessionID)
		if err != nil {
			c.logger.Warn("session message count failed", "tenant_id", req.TenantID, "session_id", sessionID, "error", err)
		} else if count >= cfg.SessionLimit*2 {
			return c.respond(ctx, req, sessionID, messageFor(limitByLang, lang), true)
		}
	}

	if isGreeting(req.Text) {
		return c.respond(ctx, req, sessionID, messageFor(greetingByLang, lang), false)
	}

	it := c.classify.Classify(req.Text)
	span.SetAttributes(attribute.String("evolvian.intent", it.String()))
	channel := req.Channel
	if channel == "" {
		channel = "unknown"
	}
	messagesTotal.WithLabelValues(channel, it.String()).Inc()

	switch it {
	case intent.AvailabilityQuery:
		return c.answerAvailability(ctx, req, sessionID, lang)
	case intent.ScheduleRequest:
		return c.answerSchedule(ctx, req, sessionID, lang)
	default:
		return c.answerQuestion(ctx, req, sessionID, lang, cfg)
	}
}

func (c *Composer) answerAvailability(ctx context.Context, req Request, sessionID, lang string) Response {
	ctx, span := c.tracer.Start(ctx, "assistant.availability")
	defer span.End()

	if c.resolver == nil {
		return c.respond(ctx, req, sessionID, messageFor(calendarDownByLang, lang), false)
	}
	slots, err := c.resolver.Availability(ctx, req.TenantID)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("availability lookup failed", "tenant_id", req.TenantID, "error", err)
		return c.respond(ctx, req, sessionID, messageFor(calendarDownByLang, lang), false)
	}
	if len(slots) == 0 {
		return c.respond(ctx, req, sessionID, messageFor(noSlotsByLang, lang), false)
	}
	return c.respond(ctx, req, sessionID, formatSlots(slots, slotLength, lang), false)
}

func (c *Composer) answerSchedule(ctx context.Context, req Request, sessionID, lang string) Response {
	ctx, span := c.tracer.Start(ctx, "assistant.schedule")
	defer span.End()

	at, ok := intent.ExtractDateTime(req.Text, c.now())
	if !ok {
		return c.respond(ctx, req, sessionID, messageFor(noDateTimeByLang, lang), false)
	}
	if c.writer == nil {
		return c.respond(ctx, req, sessionID, messageFor(notRegisteredByLang, lang), false)
	}

	appt, err := c.writer.Register(ctx, req.TenantID, appointments.RegisterRequest{
		UserName:    req.UserName,
		UserEmail:   req.UserEmail,
		UserPhone:   req.UserPhone,
		Type:        "appointment",
		ScheduledAt: at,
	})
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("appointment registration failed",
			"tenant_id", req.TenantID,
			"scheduled_at", at,
			"error", err,
		)
		return c.respond(ctx, req, sessionID, messageFor(notRegisteredByLang, lang), false)
	}

	c.logger.Info("appointment registered from chat",
		"tenant_id", req.TenantID,
		"appointment_id", appt.ID,
		"scheduled_at", appt.ScheduledAt,
	)
	return c.respond(ctx, req, sessionID, messageFor(registeredByLang, lang), false)
}

func (c *Composer) answerQuestion(ctx context.Context, req Request, sessionID, lang string, cfg settings.TenantConfig) Response {
	ctx, span := c.tracer.Start(ctx, "assistant.rag")
	defer span.End()

	fallback := messageFor(noKnowledgeByLang, lang)

	passages, err := c.retriever.Retrieve(ctx, req.TenantID, req.Text)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("passage retrieval failed", "tenant_id", req.TenantID, "error", err)
		return c.respond(ctx, req, sessionID, messageFor(errorByLang, lang), false)
	}
	// An empty corpus never reaches the model: the tenant has nothing to
	// ground an answer on.
	if len(passages) == 0 {
		return c.respond(ctx, req, sessionID, fallback, false)
	}

	contextText := buildContext(passages)
	memory := c.conversationMemory(ctx, req.TenantID, sessionID, lang)

	languageRule := "Always respond in English."
	if lang == "es" {
		languageRule = "Responde SIEMPRE en español."
	}
	systemPrompt := fmt.Sprintf(`You are a helpful AI assistant representative of this business that answers questions ONLY with the information provided by the business.

%s

Core Rules:
- You MUST use ONLY the information provided.
- If the answer is not clearly found, reply exactly: %q
- Never use external knowledge.
- %s
- Never mention the words "context" or "document".`,
		strings.TrimSpace(cfg.SystemPrompt), fallback, languageRule)

	humanPrompt := fmt.Sprintf(`<conversation>
%s
</conversation>

<information>
%s
</information>

<question>
%s
</question>`, memory, contextText, req.Text)

	callCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	resp, err := c.llm.Complete(callCtx, CompletionRequest{
		System:      []string{systemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: humanPrompt}},
		Temperature: cfg.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		llmFailuresTotal.Inc()
		c.logger.Error("llm completion failed", "tenant_id", req.TenantID, "error", err)
		return c.respond(ctx, req, sessionID, messageFor(errorByLang, lang), false)
	}

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		answer = fallback
	}
	return c.respond(ctx, req, sessionID, answer, false)
}

// buildContext concatenates passages up to maxContextChars, truncating the
// passage that crosses the cap.
func buildContext(passages []retrieval.Passage) string {
	var b strings.Builder
	total := 0
	for _, p := range passages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		runes := []rune(text)
		remaining := maxContextChars - total
		if len(runes) > remaining {
			runes = runes[:remaining]
		}
		b.WriteString(string(runes))
		b.WriteString("\n\n")
		total += len(runes)
		if total >= maxContextChars {
			break
		}
	}
	return b.String()
}

// conversationMemory renders the recent session turns, keeping only the
// lines in the language of the current turn.
func (c *Composer) conversationMemory(ctx context.Context, tenantID, sessionID, lang string) string {
	msgs, err := c.history.Recent(ctx, tenantID, sessionID, c.histTail)
	if err != nil {
		c.logger.Warn("history lookup failed", "tenant_id", tenantID, "session_id", sessionID, "error", err)
		return ""
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		speaker := "User"
		if m.Role == history.RoleAssistant {
			speaker = "Assistant"
		}
		lines = append(lines, speaker+": "+m.Content)
	}
	return strings.Join(filterHistoryByLanguage(lines, lang), "\n")
}

func (c *Composer) appendRow(ctx context.Context, req Request, sessionID, role, content string) {
	msg := history.Message{
		ID:        uuid.New(),
		TenantID:  req.TenantID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Channel:   req.Channel,
		CreatedAt: c.now().UTC(),
	}
	if err := c.history.Append(ctx, msg); err != nil {
		c.logger.Warn("history append failed",
			"tenant_id", req.TenantID,
			"session_id", sessionID,
			"role", role,
			"error", err,
		)
	}
}

func (c *Composer) respond(ctx context.Context, req Request, sessionID, text string, limitReached bool) Response {
	c.appendRow(ctx, req, sessionID, history.RoleAssistant, text)
	return Response{Text: text, SessionID: sessionID, LimitReached: limitReached}
}
