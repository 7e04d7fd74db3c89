package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForTenantLoadsRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newStoreWithQuerier(mock, time.Minute, nil)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("tenant-1", "es", float32(0.3), 24).
		WillReturnRows(pgxmock.NewRows([]string{"custom_prompt", "assistant_language", "temperature", "session_limit"}).
			AddRow("Eres el asistente de Acme.", "es", float32(0.7), 30))

	cfg := store.ForTenant(context.Background(), "tenant-1")
	assert.Equal(t, "Eres el asistente de Acme.", cfg.SystemPrompt)
	assert.Equal(t, float32(0.7), cfg.Temperature)
	assert.Equal(t, 30, cfg.SessionLimit)
}

func TestForTenantCachesResult(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newStoreWithQuerier(mock, time.Minute, nil)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("tenant-1", "es", float32(0.3), 24).
		WillReturnRows(pgxmock.NewRows([]string{"custom_prompt", "assistant_language", "temperature", "session_limit"}).
			AddRow("prompt", "en", float32(0.3), 24))

	first := store.ForTenant(context.Background(), "tenant-1")
	second := store.ForTenant(context.Background(), "tenant-1")
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet(), "second read must come from the cache")
}

func TestForTenantMissingRowUsesDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newStoreWithQuerier(mock, time.Minute, nil)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	cfg := store.ForTenant(context.Background(), "tenant-missing")
	assert.Equal(t, Defaults(), cfg)
}

func TestForTenantErrorDegradesToDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newStoreWithQuerier(mock, time.Minute, nil)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	cfg := store.ForTenant(context.Background(), "tenant-1")
	assert.Equal(t, Defaults(), cfg)
}

func TestWithDefaultsOverridesFallback(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newStoreWithQuerier(mock, time.Minute, nil).
		WithDefaults(TenantConfig{Temperature: 0.5, SessionLimit: 40})

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("tenant-missing", "es", float32(0.5), 40).
		WillReturnError(pgx.ErrNoRows)

	cfg := store.ForTenant(context.Background(), "tenant-missing")
	assert.Equal(t, float32(0.5), cfg.Temperature)
	assert.Equal(t, 40, cfg.SessionLimit)
	assert.Equal(t, "es", cfg.Language, "unset fields keep the packaged defaults")
}

func TestWithDefaultsIgnoresZeroFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newStoreWithQuerier(mock, time.Minute, nil).
		WithDefaults(TenantConfig{})

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	assert.Equal(t, Defaults(), store.ForTenant(context.Background(), "tenant-missing"))
}

func TestInvalidateForcesReload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newStoreWithQuerier(mock, time.Minute, nil)

	row := func(prompt string) *pgxmock.Rows {
		return pgxmock.NewRows([]string{"custom_prompt", "assistant_language", "temperature", "session_limit"}).
			AddRow(prompt, "es", float32(0.3), 24)
	}
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(row("v1"))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(row("v2"))

	assert.Equal(t, "v1", store.ForTenant(context.Background(), "tenant-1").SystemPrompt)
	store.Invalidate("tenant-1")
	assert.Equal(t, "v2", store.ForTenant(context.Background(), "tenant-1").SystemPrompt)
}
