package calendar

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration holds a tenant's connected calendar credentials. A tenant has
// at most one active integration, enforced by a partial unique index.
type Integration struct {
	TenantID     string
	AccessToken  string
	RefreshToken string
	CalendarID   string
	Timezone     string
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IntegrationStore reads and updates calendar integrations.
type IntegrationStore struct {
	pool querier
}

// NewIntegrationStore creates a store over a pgx pool.
func NewIntegrationStore(pool *pgxpool.Pool) *IntegrationStore {
	if pool == nil {
		panic("calendar: pgx pool required")
	}
	return &IntegrationStore{pool: pool}
}

func newIntegrationStoreWithQuerier(q querier) *IntegrationStore {
	return &IntegrationStore{pool: q}
}

// ActiveForTenant returns the tenant's active integration, or nil when the
// tenant has not connected a calendar.
func (s *IntegrationStore) ActiveForTenant(ctx context.Context, tenantID string) (*Integration, error) {
	var in Integration
	err := s.pool.QueryRow(ctx, `
		SELECT client_id, access_token, refresh_token, COALESCE(calendar_id, 'primary'), COALESCE(timezone, 'UTC')
		FROM calendar_integrations
		WHERE client_id = $1 AND is_active = TRUE
	`, tenantID).Scan(&in.TenantID, &in.AccessToken, &in.RefreshToken, &in.CalendarID, &in.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("calendar: load integration: %w", err)
	}
	return &in, nil
}

// UpdateAccessToken persists a freshly refreshed access token so later
// requests skip the refresh round-trip.
func (s *IntegrationStore) UpdateAccessToken(ctx context.Context, tenantID, accessToken string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE calendar_integrations
		SET access_token = $1, updated_at = NOW()
		WHERE client_id = $2 AND is_active = TRUE
	`, accessToken, tenantID)
	if err != nil {
		return fmt.Errorf("calendar: persist refreshed token: %w", err)
	}
	return nil
}
