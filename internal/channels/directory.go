// Package channels maps external channel addresses (WhatsApp numbers,
// inbound mailboxes) to tenants.
package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotLinked means the address is not associated with any tenant.
var ErrNotLinked = errors.New("channels: address not linked to a tenant")

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Directory resolves which tenant owns a channel address.
type Directory struct {
	q rowQuerier
}

// NewDirectory builds the directory on a pgx pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	if pool == nil {
		panic("channels: pool required")
	}
	return &Directory{q: pool}
}

func newDirectoryWithQuerier(q rowQuerier) *Directory {
	return &Directory{q: q}
}

// TenantFor returns the tenant owning the given address on the given
// channel kind ("whatsapp", "email").
func (d *Directory) TenantFor(ctx context.Context, kind, address string) (string, error) {
	var tenantID string
	err := d.q.QueryRow(ctx,
		`SELECT client_id FROM channels WHERE type = $1 AND value = $2`,
		kind, address).Scan(&tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotLinked
	}
	if err != nil {
		return "", fmt.Errorf("channels: tenant lookup: %w", err)
	}
	return tenantID, nil
}
