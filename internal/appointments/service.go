package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/evolvian/assistant-platform/internal/calendar"
	"github.com/evolvian/assistant-platform/pkg/logging"
)

var (
	// ErrPastTime rejects registrations whose slot is already behind us.
	ErrPastTime = errors.New("appointments: scheduled time is in the past")
	// ErrSlotTaken rejects a second appointment at the exact same timestamp.
	ErrSlotTaken = errors.New("appointments: slot already taken")
	// ErrNotFound means the appointment id resolves to nothing.
	ErrNotFound = errors.New("appointments: not found")
	// ErrInvalidStatus means the requested status is not part of the lifecycle.
	ErrInvalidStatus = errors.New("appointments: invalid status")
)

type repository interface {
	Insert(ctx context.Context, appt *Appointment) error
	ExistsAt(ctx context.Context, tenantID string, at time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, now time.Time) (*Appointment, error)
	InsertAudit(ctx context.Context, appointmentID uuid.UUID, tenantID, action string) error
	ActiveReminderTemplates(ctx context.Context, tenantID string) ([]ReminderTemplate, error)
	ReminderExists(ctx context.Context, appointmentID uuid.UUID, channel string, at time.Time) (bool, error)
	InsertReminder(ctx context.Context, tenantID string, appointmentID uuid.UUID, channel string, at time.Time) (bool, error)
}

type calendarBooker interface {
	Book(ctx context.Context, tenantID string, start time.Time, attendee, summary string) (string, error)
}

type confirmationNotifier interface {
	SendBookingConfirmation(ctx context.Context, tenantID, recipient string, at time.Time) error
	NotifyOwner(ctx context.Context, tenantID, userName, userEmail string, at time.Time) error
}

// RegisterRequest carries the fields of a new appointment.
type RegisterRequest struct {
	UserName    string
	UserEmail   string
	UserPhone   string
	Type        string
	ScheduledAt time.Time
}

// Service implements the appointment lifecycle: registration with collision
// checks, status updates with auditing, and reminder fan-out on confirmation.
type Service struct {
	repo     repository
	booker   calendarBooker
	notifier confirmationNotifier
	now      func() time.Time
	tracer   trace.Tracer
	logger   *logging.Logger
}

// NewService wires the appointment service. booker and notifier are
// optional; without them registration skips the calendar event and emails.
func NewService(repo repository, booker calendarBooker, notifier confirmationNotifier, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		booker:   booker,
		notifier: notifier,
		now:      time.Now,
		tracer:   otel.Tracer("evolvian.internal.appointments"),
		logger:   logger.WithComponent("appointments"),
	}
}

// Register stores a new appointment in pending_confirmation. Past times and
// exact-timestamp collisions are rejected before anything is written. The
// calendar event and confirmation emails are best-effort.
func (s *Service) Register(ctx context.Context, tenantID string, req RegisterRequest) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.register")
	defer span.End()

	if tenantID == "" {
		return nil, fmt.Errorf("appointments: tenant_id is required")
	}
	now := s.now().UTC()
	scheduled := req.ScheduledAt.UTC()
	if !scheduled.After(now) {
		return nil, ErrPastTime
	}

	taken, err := s.repo.ExistsAt(ctx, tenantID, scheduled)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if taken {
		return nil, ErrSlotTaken
	}

	appt := &Appointment{
		ID:          uuid.New(),
		TenantID:    tenantID,
		UserName:    req.UserName,
		UserEmail:   req.UserEmail,
		UserPhone:   req.UserPhone,
		Type:        req.Type,
		ScheduledAt: scheduled,
		Status:      StatusPendingConfirmation,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if s.booker != nil {
		eventID, bookErr := s.booker.Book(ctx, tenantID, scheduled, req.UserEmail, "")
		switch {
		case bookErr == nil:
			appt.CalendarEventID = eventID
		case errors.Is(bookErr, calendar.ErrNoIntegration):
			// No connected calendar: the appointment row is still the truth.
		default:
			s.logger.Warn("failed to create calendar event", "tenant_id", tenantID, "error", bookErr)
		}
	}

	if err := s.repo.Insert(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.repo.InsertAudit(ctx, appt.ID, tenantID, "registered"); err != nil {
		s.logger.Warn("failed to insert audit row", "appointment_id", appt.ID, "error", err)
	}

	if s.notifier != nil {
		if req.UserEmail != "" {
			if err := s.notifier.SendBookingConfirmation(ctx, tenantID, req.UserEmail, scheduled); err != nil {
				s.logger.Warn("failed to send confirmation email", "appointment_id", appt.ID, "error", err)
			}
		}
		if err := s.notifier.NotifyOwner(ctx, tenantID, req.UserName, req.UserEmail, scheduled); err != nil {
			s.logger.Warn("failed to notify owner", "appointment_id", appt.ID, "error", err)
		}
	}

	return appt, nil
}

var knownStatuses = map[string]bool{
	StatusPendingConfirmation: true,
	StatusConfirmed:           true,
	StatusCancelled:           true,
	StatusCompleted:           true,
}

// UpdateStatus moves an appointment to the given status. Every update writes
// an audit row; moving to confirmed additionally fans out reminders from the
// tenant's active templates. Returns the number of reminders created.
func (s *Service) UpdateStatus(ctx context.Context, appointmentID uuid.UUID, status string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.update_status")
	defer span.End()

	if !knownStatuses[status] {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	now := s.now().UTC()
	appt, err := s.repo.UpdateStatus(ctx, appointmentID, status, now)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if appt == nil {
		return 0, ErrNotFound
	}

	if err := s.repo.InsertAudit(ctx, appointmentID, appt.TenantID, "status_updated_to_"+status); err != nil {
		span.RecordError(err)
		return 0, err
	}

	if status != StatusConfirmed {
		return 0, nil
	}
	if !appt.ScheduledAt.After(now) {
		return 0, nil
	}
	return s.fanOutReminders(ctx, appt, now)
}

func (s *Service) fanOutReminders(ctx context.Context, appt *Appointment, now time.Time) (int, error) {
	templates, err := s.repo.ActiveReminderTemplates(ctx, appt.TenantID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, tpl := range templates {
		if len(tpl.Offsets) == 0 {
			s.logger.Warn("reminder template has no offsets",
				"template_id", tpl.ID, "tenant_id", appt.TenantID, "channel", tpl.Channel)
			continue
		}
		for _, offset := range tpl.Offsets {
			d, ok := offsetDuration(offset)
			if !ok {
				s.logger.Warn("invalid reminder offset",
					"template_id", tpl.ID, "value", offset.Value, "unit", offset.Unit)
				continue
			}
			scheduledAt := appt.ScheduledAt.Add(-d)
			if !scheduledAt.After(now) {
				continue
			}

			exists, err := s.repo.ReminderExists(ctx, appt.ID, tpl.Channel, scheduledAt)
			if err != nil {
				return created, err
			}
			if exists {
				continue
			}
			inserted, err := s.repo.InsertReminder(ctx, appt.TenantID, appt.ID, tpl.Channel, scheduledAt)
			if err != nil {
				return created, err
			}
			if inserted {
				created++
			}
		}
	}
	return created, nil
}

func offsetDuration(o ReminderOffset) (time.Duration, bool) {
	if o.Value <= 0 {
		return 0, false
	}
	switch o.Unit {
	case "minutes":
		return time.Duration(o.Value) * time.Minute, true
	case "hours":
		return time.Duration(o.Value) * time.Hour, true
	case "days":
		return time.Duration(o.Value) * 24 * time.Hour, true
	default:
		return 0, false
	}
}
