package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Appointment statuses. Lifecycle: pending_confirmation -> confirmed ->
// {cancelled, completed}; cancellation is allowed from any non-final state.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusConfirmed           = "confirmed"
	StatusCancelled           = "cancelled"
	StatusCompleted           = "completed"
)

// Appointment is one booked (or requested) slot.
type Appointment struct {
	ID              uuid.UUID
	TenantID        string
	UserName        string
	UserEmail       string
	UserPhone       string
	Type            string
	CalendarEventID string
	ScheduledAt     time.Time
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReminderOffset is how far before the appointment a reminder fires.
type ReminderOffset struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"`
}

// ReminderTemplate is a tenant's active reminder rule for one channel.
type ReminderTemplate struct {
	ID      uuid.UUID
	Channel string
	Offsets []ReminderOffset
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments, their audit trail, and reminders.
type Repository struct {
	pool querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	return &Repository{pool: q}
}

// Insert stores a new appointment row.
func (r *Repository) Insert(ctx context.Context, appt *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, client_id, user_name, user_email, user_phone,
			appointment_type, calendar_event_id, scheduled_time, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, toPGUUID(appt.ID), appt.TenantID, appt.UserName, appt.UserEmail, appt.UserPhone,
		appt.Type, appt.CalendarEventID, toPGTime(appt.ScheduledAt), appt.Status,
		toPGTime(appt.CreatedAt))
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// ExistsAt reports whether the tenant already has an appointment at exactly
// this timestamp.
func (r *Repository) ExistsAt(ctx context.Context, tenantID string, at time.Time) (bool, error) {
	var exists int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM appointments
		WHERE client_id = $1 AND scheduled_time = $2 AND status <> $3
		LIMIT 1
	`, tenantID, toPGTime(at), StatusCancelled).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("appointments: collision check: %w", err)
	}
	return true, nil
}

// UpdateStatus sets the status and returns the updated row, or nil when the
// appointment does not exist.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, now time.Time) (*Appointment, error) {
	var appt Appointment
	var apptID pgtype.UUID
	var scheduled, created, updated pgtype.Timestamptz

	err := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING id, client_id, COALESCE(user_name, ''), COALESCE(user_email, ''),
		          COALESCE(user_phone, ''), COALESCE(appointment_type, ''),
		          COALESCE(calendar_event_id, ''), scheduled_time, status,
		          created_at, updated_at
	`, status, toPGTime(now), toPGUUID(id)).Scan(
		&apptID, &appt.TenantID, &appt.UserName, &appt.UserEmail,
		&appt.UserPhone, &appt.Type, &appt.CalendarEventID, &scheduled,
		&appt.Status, &created, &updated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: update status: %w", err)
	}

	appt.ID = uuid.UUID(apptID.Bytes)
	appt.ScheduledAt = scheduled.Time
	appt.CreatedAt = created.Time
	appt.UpdatedAt = updated.Time
	return &appt, nil
}

// InsertAudit records one usage action for an appointment.
func (r *Repository) InsertAudit(ctx context.Context, appointmentID uuid.UUID, tenantID, action string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_usage (appointment_id, client_id, action)
		VALUES ($1, $2, $3)
	`, toPGUUID(appointmentID), tenantID, action)
	if err != nil {
		return fmt.Errorf("appointments: insert audit: %w", err)
	}
	return nil
}

// ActiveReminderTemplates loads the tenant's active appointment_reminder
// templates. Offsets come from a JSONB column.
func (r *Repository) ActiveReminderTemplates(ctx context.Context, tenantID string) ([]ReminderTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, channel, frequency
		FROM message_templates
		WHERE client_id = $1 AND type = 'appointment_reminder' AND is_active = TRUE
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("appointments: load reminder templates: %w", err)
	}
	defer rows.Close()

	var templates []ReminderTemplate
	for rows.Next() {
		var tpl ReminderTemplate
		var tplID pgtype.UUID
		var frequency []byte
		if err := rows.Scan(&tplID, &tpl.Channel, &frequency); err != nil {
			return nil, fmt.Errorf("appointments: scan reminder template: %w", err)
		}
		tpl.ID = uuid.UUID(tplID.Bytes)
		if len(frequency) > 0 {
			var parsed struct {
				Offsets []ReminderOffset `json:"offsets"`
			}
			// Malformed frequency is the template author's problem, not a
			// request failure: leave Offsets empty and let the caller skip it.
			if err := json.Unmarshal(frequency, &parsed); err == nil {
				tpl.Offsets = parsed.Offsets
			}
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: read reminder templates: %w", err)
	}
	return templates, nil
}

// ReminderExists checks the (appointment, channel, scheduled_at) key.
func (r *Repository) ReminderExists(ctx context.Context, appointmentID uuid.UUID, channel string, at time.Time) (bool, error) {
	var exists int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM appointment_reminders
		WHERE appointment_id = $1 AND channel = $2 AND scheduled_at = $3
		LIMIT 1
	`, toPGUUID(appointmentID), channel, toPGTime(at)).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("appointments: reminder check: %w", err)
	}
	return true, nil
}

// InsertReminder stores one pending reminder. The unique index on
// (appointment_id, channel, scheduled_at) backstops the pre-insert check;
// returns false when the row already existed.
func (r *Repository) InsertReminder(ctx context.Context, tenantID string, appointmentID uuid.UUID, channel string, at time.Time) (bool, error) {
	ct, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_reminders (client_id, appointment_id, channel, scheduled_at, status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (appointment_id, channel, scheduled_at) DO NOTHING
	`, tenantID, toPGUUID(appointmentID), channel, toPGTime(at))
	if err != nil {
		return false, fmt.Errorf("appointments: insert reminder: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: [16]byte(id), Valid: true}
}

func toPGTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
