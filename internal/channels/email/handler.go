// Package email turns inbound support emails into assistant conversations
// and mails the answer back.
package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/evolvian/assistant-platform/internal/assistant"
	"github.com/evolvian/assistant-platform/internal/notify"
	"github.com/evolvian/assistant-platform/internal/observability/metrics"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

var tracer = otel.Tracer("evolvian.internal.channels.email")

// Composer answers an inbound message.
type Composer interface {
	Answer(ctx context.Context, req assistant.Request) assistant.Response
}

// InboundEmail is the payload posted by the inbound-mail webhook.
type InboundEmail struct {
	TenantID string `json:"tenant_id"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// Handler answers inbound emails through the assistant and replies by mail.
type Handler struct {
	composer Composer
	sender   notify.EmailSender
	metrics  *metrics.ChannelMetrics
	logger   *logging.Logger
}

// NewHandler creates a new inbound email handler.
func NewHandler(composer Composer, sender notify.EmailSender, logger *logging.Logger) *Handler {
	if composer == nil {
		panic("email: composer cannot be nil")
	}
	if sender == nil {
		panic("email: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{composer: composer, sender: sender, logger: logger}
}

// WithMetrics attaches channel metrics. Safe to skip; a nil collector is a no-op.
func (h *Handler) WithMetrics(m *metrics.ChannelMetrics) *Handler {
	h.metrics = m
	return h
}

// HandleInbound handles POST /channels/email requests.
func (h *Handler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "channels.email.inbound")
	defer span.End()

	var in InboundEmail
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if in.TenantID == "" || in.From == "" || strings.TrimSpace(in.Body) == "" {
		err := errors.New("tenant_id, from and body are required")
		http.Error(w, err.Error(), http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	span.SetAttributes(
		attribute.String("evolvian.tenant_id", in.TenantID),
		attribute.String("evolvian.email.from", in.From),
	)

	h.metrics.ObserveInbound("email", "ok")

	// Each email opens a fresh session; threading lives in the mail client.
	sessionID := uuid.NewString()

	resp := h.composer.Answer(ctx, assistant.Request{
		TenantID:  in.TenantID,
		SessionID: sessionID,
		Channel:   "email",
		Text:      in.Body,
		UserEmail: in.From,
	})

	subject := in.Subject
	if subject == "" {
		subject = "Tu consulta"
	}
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	if err := h.sender.Send(ctx, notify.EmailMessage{
		To:      in.From,
		Subject: subject,
		Body:    resp.Text,
	}); err != nil {
		h.logger.Error("failed to send email reply", "tenant_id", in.TenantID, "to", in.From, "error", err)
		http.Error(w, "failed to send reply", http.StatusBadGateway)
		span.RecordError(err)
		return
	}
	h.metrics.ObserveReply("email")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"reply":         resp.Text,
		"session_id":    sessionID,
		"limit_reached": resp.LimitReached,
	})
}
