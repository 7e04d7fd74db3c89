package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/evolvian/assistant-platform/pkg/logging"
)

// DefaultOwnerFallbackEmail receives owner notifications when a tenant has
// no resolvable address.
const DefaultOwnerFallbackEmail = "support@evolvianai.com"

type ownerQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OwnerDirectory resolves the notification address of a tenant's owner.
// It prefers the address of the connected calendar account and falls back
// to the platform account that owns the tenant, then to a fixed admin
// address. Lookups never fail: the fallback address absorbs every error.
type OwnerDirectory struct {
	q        ownerQuerier
	fallback string
	logger   *logging.Logger
}

// NewOwnerDirectory builds the directory on a pgx pool.
func NewOwnerDirectory(pool *pgxpool.Pool, fallbackEmail string, logger *logging.Logger) *OwnerDirectory {
	if pool == nil {
		panic("notify: pool required")
	}
	return newOwnerDirectoryWithQuerier(pool, fallbackEmail, logger)
}

func newOwnerDirectoryWithQuerier(q ownerQuerier, fallbackEmail string, logger *logging.Logger) *OwnerDirectory {
	if fallbackEmail == "" {
		fallbackEmail = DefaultOwnerFallbackEmail
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OwnerDirectory{q: q, fallback: fallbackEmail, logger: logger.WithComponent("notify")}
}

// OwnerEmail returns the best known address for the tenant's owner.
func (d *OwnerDirectory) OwnerEmail(ctx context.Context, tenantID string) string {
	var email string
	err := d.q.QueryRow(ctx,
		`SELECT connected_email FROM calendar_integrations
		 WHERE client_id = $1 AND is_active = TRUE AND COALESCE(connected_email, '') <> ''
		 LIMIT 1`, tenantID).Scan(&email)
	if err == nil && email != "" {
		return email
	}
	if err != nil && err != pgx.ErrNoRows {
		d.logger.Warn("owner lookup via calendar integration failed", "tenant_id", tenantID, "error", err)
	}

	err = d.q.QueryRow(ctx,
		`SELECT u.email FROM clients c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.id = $1`, tenantID).Scan(&email)
	if err == nil && email != "" {
		return email
	}
	if err != nil && err != pgx.ErrNoRows {
		d.logger.Warn("owner lookup via clients failed", "tenant_id", tenantID, "error", err)
	}

	d.logger.Warn("owner email not found, using fallback", "tenant_id", tenantID, "fallback", d.fallback)
	return d.fallback
}

type ownerSource interface {
	OwnerEmail(ctx context.Context, tenantID string) string
}

// Service sends the appointment emails: a confirmation to the end user and
// a heads-up to the business owner. Both are best-effort from the caller's
// point of view; the appointment itself is already stored.
type Service struct {
	email  EmailSender
	owners ownerSource
	tracer trace.Tracer
	logger *logging.Logger
}

// NewService creates the notification service. owners may be nil, in which
// case owner notifications go to the fallback admin address.
func NewService(email EmailSender, owners ownerSource, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:  email,
		owners: owners,
		tracer: otel.Tracer("evolvian.internal.notify"),
		logger: logger.WithComponent("notify"),
	}
}

// SendBookingConfirmation emails the end user that their appointment was
// registered. A missing recipient is a silent no-op: chat users often give
// no address.
func (s *Service) SendBookingConfirmation(ctx context.Context, tenantID, recipient string, at time.Time) error {
	if strings.TrimSpace(recipient) == "" {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "notify.booking_confirmation")
	defer span.End()

	date := at.Format("2006-01-02")
	hour := at.Format("15:04")
	msg := EmailMessage{
		To:      recipient,
		Subject: "✅ Confirmación de tu cita",
		Body:    fmt.Sprintf("Tu cita ha sido agendada para el %s a las %s. Gracias por usar Evolvian!", date, hour),
		HTML:    fmt.Sprintf("<p>Tu cita ha sido agendada para el <strong>%s</strong> a las <strong>%s</strong>.</p><p>Gracias por usar Evolvian!</p>", date, hour),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("notify: booking confirmation: %w", err)
	}
	s.logger.Info("booking confirmation sent", "tenant_id", tenantID, "to", recipient)
	return nil
}

// NotifyOwner tells the business owner a new appointment came in through
// the assistant.
func (s *Service) NotifyOwner(ctx context.Context, tenantID, userName, userEmail string, at time.Time) error {
	ctx, span := s.tracer.Start(ctx, "notify.owner")
	defer span.End()

	owner := DefaultOwnerFallbackEmail
	if s.owners != nil {
		owner = s.owners.OwnerEmail(ctx, tenantID)
	}

	if userName == "" {
		userName = "Unknown"
	}
	emailLine := ""
	if userEmail != "" {
		emailLine = fmt.Sprintf("<li><strong>Customer email:</strong> %s</li>", userEmail)
	}

	when := at.Format("2006-01-02 15:04")
	msg := EmailMessage{
		To:      owner,
		Subject: "📅 New Appointment Scheduled",
		Body: fmt.Sprintf("A new appointment has been scheduled through your Evolvian Assistant.\nDate & time: %s\nCustomer name: %s\nCustomer email: %s",
			when, userName, userEmail),
		HTML: fmt.Sprintf(`<p>Hello 👋,</p>
<p>A new appointment has been scheduled through your Evolvian Assistant:</p>
<ul>
  <li><strong>Date &amp; time:</strong> %s</li>
  <li><strong>Customer name:</strong> %s</li>
  %s
</ul>
<p>Please check your calendar or Evolvian Dashboard for details.</p>
<p style='color:#888;font-size:12px;'>Automatically sent by Evolvian AI</p>`, when, userName, emailLine),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("notify: owner notification: %w", err)
	}
	s.logger.Info("owner notification sent", "tenant_id", tenantID, "to", owner)
	return nil
}
