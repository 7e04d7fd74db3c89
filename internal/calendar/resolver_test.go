package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntegrations struct {
	integration  *Integration
	loadErr      error
	savedTokens  []string
	saveTokenErr error
}

func (f *fakeIntegrations) ActiveForTenant(ctx context.Context, tenantID string) (*Integration, error) {
	return f.integration, f.loadErr
}

func (f *fakeIntegrations) UpdateAccessToken(ctx context.Context, tenantID, accessToken string) error {
	f.savedTokens = append(f.savedTokens, accessToken)
	return f.saveTokenErr
}

type fakeProvider struct {
	busy          []Interval
	freeBusyErrs  []error // consumed per call; nil after exhaustion
	freeBusyCalls int
	tokensSeen    []string
	refreshToken  string
	refreshErr    error
	refreshCalls  int
	eventID       string
	createErr     error
}

func (f *fakeProvider) FreeBusy(ctx context.Context, accessToken, calendarID string, from, to time.Time, timezone string) ([]Interval, error) {
	f.freeBusyCalls++
	f.tokensSeen = append(f.tokensSeen, accessToken)
	if len(f.freeBusyErrs) > 0 {
		err := f.freeBusyErrs[0]
		f.freeBusyErrs = f.freeBusyErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.busy, nil
}

func (f *fakeProvider) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return f.refreshToken, nil
}

func (f *fakeProvider) CreateEvent(ctx context.Context, accessToken, calendarID string, ev Event) (string, error) {
	f.tokensSeen = append(f.tokensSeen, accessToken)
	if f.createErr != nil {
		err := f.createErr
		f.createErr = nil
		return "", err
	}
	return f.eventID, nil
}

func newTestResolver(store integrationSource, provider providerAPI, now time.Time) *Resolver {
	r := NewResolver(store, provider, time.UTC, 7, nil)
	r.now = func() time.Time { return now }
	return r
}

func TestAvailabilitySimulatedWithoutIntegration(t *testing.T) {
	now := time.Date(2025, 11, 19, 8, 0, 0, 0, time.UTC)
	r := newTestResolver(&fakeIntegrations{}, &fakeProvider{}, now)

	slots, err := r.Availability(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	// Hourly 10:00-16:00 across five days, none in the past.
	assert.Equal(t, 5*7, len(slots))
	assert.Equal(t, time.Date(2025, 11, 19, 10, 0, 0, 0, time.UTC), slots[0])
	for _, slot := range slots {
		assert.GreaterOrEqual(t, slot.Hour(), 10)
		assert.Less(t, slot.Hour(), 17)
		assert.Equal(t, 0, slot.Minute())
	}
}

func TestAvailabilityEmptyBusyYieldsFullGrid(t *testing.T) {
	now := time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC)
	store := &fakeIntegrations{integration: &Integration{
		TenantID: "tenant-1", AccessToken: "at", RefreshToken: "rt", CalendarID: "primary", Timezone: "UTC",
	}}
	r := newTestResolver(store, &fakeProvider{}, now)

	slots, err := r.Availability(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, slots, 10)

	assert.Equal(t, now, slots[0])
	for i := 1; i < len(slots); i++ {
		assert.Equal(t, 30*time.Minute, slots[i].Sub(slots[i-1]))
	}
}

func TestAvailabilityMidSlotStartOffersNextHalfHour(t *testing.T) {
	// A request at 10:10 must still offer 10:30, not jump to 11:00.
	now := time.Date(2025, 11, 19, 10, 10, 0, 0, time.UTC)
	store := &fakeIntegrations{integration: &Integration{
		TenantID: "tenant-1", AccessToken: "at", RefreshToken: "rt", CalendarID: "primary", Timezone: "UTC",
	}}
	r := newTestResolver(store, &fakeProvider{}, now)

	slots, err := r.Availability(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	assert.Equal(t, time.Date(2025, 11, 19, 10, 30, 0, 0, time.UTC), slots[0])
}

func TestAvailabilityHalfOpenBusyCheck(t *testing.T) {
	now := time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC)
	store := &fakeIntegrations{integration: &Integration{AccessToken: "at", CalendarID: "primary", Timezone: "UTC"}}
	provider := &fakeProvider{busy: []Interval{{
		Start: time.Date(2025, 11, 19, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 19, 11, 0, 0, 0, time.UTC),
	}}}
	r := newTestResolver(store, provider, now)

	slots, err := r.Availability(context.Background(), "tenant-1")
	require.NoError(t, err)

	set := make(map[time.Time]bool, len(slots))
	for _, s := range slots {
		set[s] = true
	}
	// 10:00 and 10:30 fall inside the interval; 11:00 touches only its end.
	assert.False(t, set[time.Date(2025, 11, 19, 10, 0, 0, 0, time.UTC)])
	assert.False(t, set[time.Date(2025, 11, 19, 10, 30, 0, 0, time.UTC)])
	assert.True(t, set[time.Date(2025, 11, 19, 11, 0, 0, 0, time.UTC)])
}

func TestAvailabilityRefreshesTokenOnce(t *testing.T) {
	now := time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC)
	store := &fakeIntegrations{integration: &Integration{
		TenantID: "tenant-1", AccessToken: "stale", RefreshToken: "rt", CalendarID: "primary", Timezone: "UTC",
	}}
	provider := &fakeProvider{
		freeBusyErrs: []error{ErrTokenExpired},
		refreshToken: "fresh",
	}
	r := newTestResolver(store, provider, now)

	slots, err := r.Availability(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.NotEmpty(t, slots)

	assert.Equal(t, 2, provider.freeBusyCalls)
	assert.Equal(t, 1, provider.refreshCalls)
	assert.Equal(t, []string{"stale", "fresh"}, provider.tokensSeen)
	assert.Equal(t, []string{"fresh"}, store.savedTokens, "refreshed token must be persisted")
}

func TestAvailabilityUnavailableAfterSecondFailure(t *testing.T) {
	now := time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC)
	store := &fakeIntegrations{integration: &Integration{AccessToken: "stale", RefreshToken: "rt", CalendarID: "primary"}}
	provider := &fakeProvider{
		freeBusyErrs: []error{ErrTokenExpired, errors.New("boom")},
		refreshToken: "fresh",
	}
	r := newTestResolver(store, provider, now)

	_, err := r.Availability(context.Background(), "tenant-1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, provider.refreshCalls, "refresh happens at most once")
}

func TestAvailabilityUnavailableWhenRefreshFails(t *testing.T) {
	now := time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC)
	store := &fakeIntegrations{integration: &Integration{AccessToken: "stale", RefreshToken: "rt", CalendarID: "primary"}}
	provider := &fakeProvider{
		freeBusyErrs: []error{ErrTokenExpired},
		refreshErr:   errors.New("invalid_grant"),
	}
	r := newTestResolver(store, provider, now)

	_, err := r.Availability(context.Background(), "tenant-1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, provider.freeBusyCalls)
}

func TestBookWithoutIntegration(t *testing.T) {
	r := newTestResolver(&fakeIntegrations{}, &fakeProvider{}, time.Now())
	_, err := r.Book(context.Background(), "tenant-1", time.Now().Add(24*time.Hour), "user@example.com", "")
	assert.ErrorIs(t, err, ErrNoIntegration)
}

func TestBookCreatesEvent(t *testing.T) {
	store := &fakeIntegrations{integration: &Integration{AccessToken: "at", CalendarID: "primary", Timezone: "UTC"}}
	provider := &fakeProvider{eventID: "evt-9"}
	r := newTestResolver(store, provider, time.Now())

	id, err := r.Book(context.Background(), "tenant-1", time.Now().Add(24*time.Hour), "user@example.com", "Consulta")
	require.NoError(t, err)
	assert.Equal(t, "evt-9", id)
}

func TestBookRetriesAfterRefresh(t *testing.T) {
	store := &fakeIntegrations{integration: &Integration{AccessToken: "stale", RefreshToken: "rt", CalendarID: "primary"}}
	provider := &fakeProvider{eventID: "evt-10", createErr: ErrTokenExpired, refreshToken: "fresh"}
	r := newTestResolver(store, provider, time.Now())

	id, err := r.Book(context.Background(), "tenant-1", time.Now().Add(24*time.Hour), "", "")
	require.NoError(t, err)
	assert.Equal(t, "evt-10", id)
	assert.Equal(t, []string{"fresh"}, store.savedTokens)
}
