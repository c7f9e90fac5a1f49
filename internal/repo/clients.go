package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ResolveClient deduplicates a contact within the tenant's namespace. Phone
// is the dedup key: the newest client with the same (tenant, phone) wins, and
// an incoming name only backfills a null one. Returns nil when neither name
// nor phone is present, since no client can be identified or created.
func (r *Repository) ResolveClient(ctx context.Context, tenantID int64, name, phone *string) (*int64, error) {
	if isBlank(name) && isBlank(phone) {
		return nil, nil
	}

	if !isBlank(phone) {
		var id int64
		err := r.pool.QueryRow(ctx, `
SELECT id FROM clients
WHERE tenant_id = $1 AND phone = $2
ORDER BY id DESC
LIMIT 1;`, tenantID, *phone).Scan(&id)
		switch {
		case err == nil:
			if !isBlank(name) {
				if _, err := r.pool.Exec(ctx, `UPDATE clients SET name = COALESCE(name, $2) WHERE id = $1;`, id, *name); err != nil {
					return nil, fmt.Errorf("backfill client name: %w", err)
				}
			}
			return &id, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("lookup client by phone: %w", err)
		}
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO clients (tenant_id, name, phone)
VALUES ($1, $2, $3)
RETURNING id;`, tenantID, name, phone).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return &id, nil
}

// GetClientByID returns a client scoped to the tenant.
func (r *Repository) GetClientByID(ctx context.Context, tenantID, id int64) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, tenant_id, name, phone, created_at
FROM clients
WHERE tenant_id = $1 AND id = $2;`, tenantID, id)

	var c Client
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get client by id: %w", err)
	}
	return &c, nil
}

// DeleteClient removes a client; leads referencing it keep existing with the
// reference cleared at the schema level.
func (r *Repository) DeleteClient(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}
