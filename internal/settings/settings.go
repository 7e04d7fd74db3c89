package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	gocache "github.com/patrickmn/go-cache"

	"github.com/evolvian/assistant-platform/pkg/logging"
)

// TenantConfig is the per-tenant assistant configuration. Zero rows and
// lookup failures both resolve to Defaults: a misconfigured tenant still
// gets answers.
type TenantConfig struct {
	SystemPrompt string
	Language     string
	Temperature  float32
	SessionLimit int
}

// Defaults returns the configuration used when a tenant has no settings row.
func Defaults() TenantConfig {
	return TenantConfig{
		SystemPrompt: "",
		Language:     "es",
		Temperature:  0.3,
		SessionLimit: 24,
	}
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads tenant settings with a TTL cache in front of PostgreSQL.
type Store struct {
	pool     rowQuerier
	cache    *gocache.Cache
	defaults TenantConfig
	logger   *logging.Logger
}

// NewStore creates a settings store. ttl bounds cache staleness.
func NewStore(pool *pgxpool.Pool, ttl time.Duration, logger *logging.Logger) *Store {
	if pool == nil {
		panic("settings: pgx pool required")
	}
	return newStoreWithQuerier(pool, ttl, logger)
}

func newStoreWithQuerier(q rowQuerier, ttl time.Duration, logger *logging.Logger) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		pool:     q,
		cache:    gocache.New(ttl, 2*ttl),
		defaults: Defaults(),
		logger:   logger.WithComponent("settings"),
	}
}

// WithDefaults overrides the fallback configuration used for tenants without
// a settings row. Zero fields keep the packaged defaults.
func (s *Store) WithDefaults(d TenantConfig) *Store {
	if d.Language == "" {
		d.Language = s.defaults.Language
	}
	if d.Temperature <= 0 {
		d.Temperature = s.defaults.Temperature
	}
	if d.SessionLimit <= 0 {
		d.SessionLimit = s.defaults.SessionLimit
	}
	s.defaults = d
	return s
}

// ForTenant returns the tenant's configuration. Errors degrade to Defaults
// with a warning; they never fail the request.
func (s *Store) ForTenant(ctx context.Context, tenantID string) TenantConfig {
	if cached, ok := s.cache.Get(tenantID); ok {
		return cached.(TenantConfig)
	}

	cfg, err := s.load(ctx, tenantID)
	if err != nil {
		s.logger.Warn("failed to load tenant settings, using defaults", "tenant_id", tenantID, "error", err)
		return s.defaults
	}

	s.cache.Set(tenantID, cfg, gocache.DefaultExpiration)
	return cfg
}

// Invalidate drops the cached entry so the next read hits the database.
func (s *Store) Invalidate(tenantID string) {
	s.cache.Delete(tenantID)
}

func (s *Store) load(ctx context.Context, tenantID string) (TenantConfig, error) {
	cfg := s.defaults
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(custom_prompt, ''), COALESCE(assistant_language, $2),
		       COALESCE(temperature, $3), COALESCE(session_limit, $4)
		FROM client_settings
		WHERE client_id = $1
	`, tenantID, cfg.Language, cfg.Temperature, cfg.SessionLimit).
		Scan(&cfg.SystemPrompt, &cfg.Language, &cfg.Temperature, &cfg.SessionLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.defaults, nil
	}
	if err != nil {
		return s.defaults, fmt.Errorf("settings: load tenant %s: %w", tenantID, err)
	}
	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = s.defaults.SessionLimit
	}
	return cfg, nil
}
