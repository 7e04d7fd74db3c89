// Package whatsapp receives WhatsApp messages via the Twilio webhook and
// routes them through the assistant.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/evolvian/assistant-platform/internal/assistant"
	"github.com/evolvian/assistant-platform/internal/channels"
	"github.com/evolvian/assistant-platform/internal/observability/metrics"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

var tracer = otel.Tracer("evolvian.internal.channels.whatsapp")

// NotLinkedReply is sent when the receiving number is not tied to any tenant.
const NotLinkedReply = "Tu número no está asociado a ningún cliente. Por favor configura tu cuenta desde el panel."

// Composer answers an inbound message.
type Composer interface {
	Answer(ctx context.Context, req assistant.Request) assistant.Response
}

// TenantResolver maps a channel address to the owning tenant.
type TenantResolver interface {
	TenantFor(ctx context.Context, kind, address string) (string, error)
}

// Handler handles Twilio WhatsApp webhook requests.
type Handler struct {
	webhookSecret string
	composer      Composer
	tenants       TenantResolver
	metrics       *metrics.ChannelMetrics
	logger        *logging.Logger
}

// NewHandler creates a new WhatsApp webhook handler. webhookSecret is the
// Twilio auth token; signature validation is skipped when it is empty.
func NewHandler(webhookSecret string, composer Composer, tenants TenantResolver, logger *logging.Logger) *Handler {
	if composer == nil {
		panic("whatsapp: composer cannot be nil")
	}
	if tenants == nil {
		panic("whatsapp: tenant resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		webhookSecret: webhookSecret,
		composer:      composer,
		tenants:       tenants,
		logger:        logger,
	}
}

// WithMetrics attaches channel metrics. Safe to skip; a nil collector is a no-op.
func (h *Handler) WithMetrics(m *metrics.ChannelMetrics) *Handler {
	h.metrics = m
	return h
}

// HandleWebhook handles POST /webhooks/whatsapp requests.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "channels.whatsapp.webhook")
	defer span.End()

	if h.webhookSecret != "" {
		if !ValidateTwilioSignature(r, h.webhookSecret, buildAbsoluteURL(r)) {
			h.logger.Warn("invalid twilio signature")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			span.RecordError(errors.New("invalid twilio signature"))
			return
		}
	}

	webhook, err := ParseWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse whatsapp webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	from := StripPrefix(webhook.From)
	span.SetAttributes(
		attribute.String("evolvian.whatsapp.from", from),
		attribute.String("evolvian.whatsapp.to", StripPrefix(webhook.To)),
	)

	if from == "" || webhook.To == "" || strings.TrimSpace(webhook.Body) == "" {
		err := errors.New("missing required whatsapp fields")
		h.logger.Error("invalid whatsapp payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		span.RecordError(err)
		return
	}

	// The receiving number identifies the tenant; the sender becomes the
	// session so each customer keeps their own thread.
	tenantID, err := h.tenants.TenantFor(ctx, "whatsapp", webhook.To)
	if err != nil {
		if errors.Is(err, channels.ErrNotLinked) {
			h.logger.Warn("whatsapp number not linked to any tenant", "to", webhook.To)
			writeReply(w, NotLinkedReply, "", false)
			return
		}
		h.logger.Error("failed to resolve tenant for whatsapp number", "error", err, "to", webhook.To)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.String("evolvian.tenant_id", tenantID))

	h.metrics.ObserveInbound("whatsapp", "ok")

	start := time.Now()
	resp := h.composer.Answer(ctx, assistant.Request{
		TenantID:  tenantID,
		SessionID: from,
		Channel:   "whatsapp",
		Text:      webhook.Body,
		UserPhone: from,
	})
	h.metrics.ObserveWebhookLatency("whatsapp", time.Since(start).Seconds())
	h.metrics.ObserveReply("whatsapp")

	writeReply(w, resp.Text, resp.SessionID, resp.LimitReached)
}

func writeReply(w http.ResponseWriter, reply, sessionID string, limitReached bool) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"reply":         reply,
		"session_id":    sessionID,
		"limit_reached": limitReached,
	})
}
