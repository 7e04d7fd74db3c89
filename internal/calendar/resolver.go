package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/evolvian/assistant-platform/pkg/logging"
)

// ErrUnavailable means the provider could not be queried even after a token
// refresh. Callers show a "try later" message instead of failing hard.
var ErrUnavailable = errors.New("calendar: availability unavailable")

// ErrNoIntegration means the tenant has no connected calendar to book into.
var ErrNoIntegration = errors.New("calendar: no active integration")

const (
	slotInterval  = 30 * time.Minute
	openingHour   = 9
	closingHour   = 18
	maxSlots      = 10
	simulatedDays = 5
)

type integrationSource interface {
	ActiveForTenant(ctx context.Context, tenantID string) (*Integration, error)
	UpdateAccessToken(ctx context.Context, tenantID, accessToken string) error
}

type providerAPI interface {
	FreeBusy(ctx context.Context, accessToken, calendarID string, from, to time.Time, timezone string) ([]Interval, error)
	CreateEvent(ctx context.Context, accessToken, calendarID string, ev Event) (string, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
}

// Resolver computes open slots for a tenant. Tenants without a connected
// calendar get deterministic simulated availability so the assistant can
// still demo the scheduling flow.
type Resolver struct {
	store     integrationSource
	provider  providerAPI
	location  *time.Location
	daysAhead int
	now       func() time.Time
	tracer    trace.Tracer
	logger    *logging.Logger
}

// NewResolver wires the resolver. location defaults to UTC, daysAhead to 7.
func NewResolver(store integrationSource, provider providerAPI, location *time.Location, daysAhead int, logger *logging.Logger) *Resolver {
	if store == nil {
		panic("calendar: integration store required")
	}
	if provider == nil {
		panic("calendar: provider client required")
	}
	if location == nil {
		location = time.UTC
	}
	if daysAhead <= 0 {
		daysAhead = 7
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		store:     store,
		provider:  provider,
		location:  location,
		daysAhead: daysAhead,
		now:       time.Now,
		tracer:    otel.Tracer("evolvian.internal.calendar"),
		logger:    logger.WithComponent("calendar"),
	}
}

// Availability returns up to 10 open slots, soonest first.
func (r *Resolver) Availability(ctx context.Context, tenantID string) ([]time.Time, error) {
	ctx, span := r.tracer.Start(ctx, "calendar.availability")
	defer span.End()

	integration, err := r.store.ActiveForTenant(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if integration == nil {
		r.logger.Info("no calendar integration, returning simulated slots", "tenant_id", tenantID)
		return r.simulatedSlots(), nil
	}

	now := r.now().In(r.location)
	end := now.AddDate(0, 0, r.daysAhead)

	busy, err := r.freeBusyWithRefresh(ctx, tenantID, integration, now, end)
	if err != nil {
		span.RecordError(err)
		r.logger.Warn("availability lookup failed", "tenant_id", tenantID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return openSlots(now, end, busy), nil
}

// freeBusyWithRefresh queries the provider, refreshing the access token at
// most once on a 401. The refreshed token is persisted before the retry.
func (r *Resolver) freeBusyWithRefresh(ctx context.Context, tenantID string, integration *Integration, from, to time.Time) ([]Interval, error) {
	busy, err := r.provider.FreeBusy(ctx, integration.AccessToken, integration.CalendarID, from, to, integration.Timezone)
	if !errors.Is(err, ErrTokenExpired) {
		return busy, err
	}

	r.logger.Info("access token expired, refreshing", "tenant_id", tenantID)
	fresh, refreshErr := r.provider.RefreshAccessToken(ctx, integration.RefreshToken)
	if refreshErr != nil {
		return nil, refreshErr
	}
	if persistErr := r.store.UpdateAccessToken(ctx, tenantID, fresh); persistErr != nil {
		r.logger.Warn("failed to persist refreshed token", "tenant_id", tenantID, "error", persistErr)
	}
	integration.AccessToken = fresh

	return r.provider.FreeBusy(ctx, fresh, integration.CalendarID, from, to, integration.Timezone)
}

// openSlots walks a 30-minute grid over business hours and keeps slots not
// covered by any busy interval. The busy check is half-open: a slot exactly
// at an interval's end is free.
func openSlots(from, to time.Time, busy []Interval) []time.Time {
	var slots []time.Time
	current := from.Truncate(slotInterval)
	if current.Before(from) {
		current = current.Add(slotInterval)
	}
	for current.Before(to) && len(slots) < maxSlots {
		if hour := current.Hour(); hour >= openingHour && hour < closingHour {
			if !isBusy(current, busy) {
				slots = append(slots, current)
			}
		}
		current = current.Add(slotInterval)
	}
	return slots
}

func isBusy(slot time.Time, busy []Interval) bool {
	for _, b := range busy {
		if !slot.Before(b.Start) && slot.Before(b.End) {
			return true
		}
	}
	return false
}

// simulatedSlots yields hourly slots 10:00-16:00 over the next five days.
// Deterministic relative to the clock, so demos behave predictably.
func (r *Resolver) simulatedSlots() []time.Time {
	now := r.now().In(r.location)
	var slots []time.Time
	for offset := 0; offset < simulatedDays; offset++ {
		day := now.AddDate(0, 0, offset)
		for hour := 10; hour < 17; hour++ {
			slot := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, r.location)
			if slot.Before(now) {
				continue
			}
			slots = append(slots, slot)
		}
	}
	return slots
}

// Book creates a provider event at start and returns its event ID. Tenants
// without an integration get ErrNoIntegration; the appointment itself is
// still stored by the caller.
func (r *Resolver) Book(ctx context.Context, tenantID string, start time.Time, attendee, summary string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "calendar.book")
	defer span.End()

	integration, err := r.store.ActiveForTenant(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if integration == nil {
		return "", ErrNoIntegration
	}

	if summary == "" {
		summary = "Appointment booked by assistant"
	}
	ev := Event{
		Summary:  summary,
		Start:    start,
		Duration: slotInterval,
		Timezone: integration.Timezone,
		Attendee: attendee,
	}

	eventID, err := r.provider.CreateEvent(ctx, integration.AccessToken, integration.CalendarID, ev)
	if !errors.Is(err, ErrTokenExpired) {
		if err != nil {
			span.RecordError(err)
		}
		return eventID, err
	}

	fresh, refreshErr := r.provider.RefreshAccessToken(ctx, integration.RefreshToken)
	if refreshErr != nil {
		span.RecordError(refreshErr)
		return "", refreshErr
	}
	if persistErr := r.store.UpdateAccessToken(ctx, tenantID, fresh); persistErr != nil {
		r.logger.Warn("failed to persist refreshed token", "tenant_id", tenantID, "error", persistErr)
	}
	return r.provider.CreateEvent(ctx, fresh, integration.CalendarID, ev)
}
