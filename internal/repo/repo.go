package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides typed access to Postgres resources.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

// New opens a new connection pool to the database with the desired search_path.
func New(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &Repository{
		pool:   pool,
		logger: logger.With("component", "repo"),
		schema: schema,
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the connection pool.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx executes fn within a database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// RunMigrations applies schema migrations on the connected database.
func (r *Repository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return ApplyMigrations(ctx, r.pool, filesystem, "postgres")
}

const tenantColumns = `id, chat_id, token, created_at`

// GetOrCreateTenantByChatID resolves the tenant bound to the given chat,
// creating it with a freshly issued capability token when absent. The token
// is collision-checked against existing tenants inside the same transaction.
// Idempotent per chat id.
func (r *Repository) GetOrCreateTenantByChatID(ctx context.Context, chatID int64) (*Tenant, error) {
	var tenant *Tenant
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE chat_id = $1;`, chatID)
		t, err := scanTenantPG(row)
		if err == nil {
			tenant = t
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("get tenant by chat id: %w", err)
		}

		token, err := issueTokenPG(ctx, tx)
		if err != nil {
			return err
		}

		row = tx.QueryRow(ctx, `
INSERT INTO tenants (chat_id, token)
VALUES ($1, $2)
RETURNING `+tenantColumns+`;`, chatID, token)
		t, err = scanTenantPG(row)
		if err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}
		tenant = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func issueTokenPG(ctx context.Context, tx pgx.Tx) (string, error) {
	for {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE token = $1);`, token).Scan(&exists); err != nil {
			return "", fmt.Errorf("check token uniqueness: %w", err)
		}
		if !exists {
			return token, nil
		}
	}
}

// GetTenantByToken authenticates a webhook call. Returns ErrNotFound for an
// unknown token so the ingress path can answer without leaking more.
func (r *Repository) GetTenantByToken(ctx context.Context, token string) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE token = $1;`, token)
	t, err := scanTenantPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by token: %w", err)
	}
	return t, nil
}

// DeleteTenant removes a tenant; its clients and leads cascade at the schema level.
func (r *Repository) DeleteTenant(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTenantPG(row pgx.Row) (*Tenant, error) {
	var t Tenant
	if err := row.Scan(&t.ID, &t.ChatID, &t.Token, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
