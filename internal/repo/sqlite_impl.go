package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// -- Tenants --

func (r *SQLiteRepository) GetOrCreateTenantByChatID(ctx context.Context, chatID int64) (*Tenant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const sel = `SELECT id, chat_id, token, created_at FROM tenants WHERE chat_id = ? LIMIT 1;`
	t, err := scanTenant(tx.QueryRowContext(ctx, sel, chatID))
	if err == nil {
		return t, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get tenant by chat id: %w", err)
	}

	token, err := issueToken(ctx, tx)
	if err != nil {
		return nil, err
	}

	const ins = `
INSERT INTO tenants (chat_id, token, created_at)
VALUES (?, ?, ?)
RETURNING id, chat_id, token, created_at;`
	t, err = scanTenant(tx.QueryRowContext(ctx, ins, chatID, token, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return t, tx.Commit()
}

func issueToken(ctx context.Context, tx *sql.Tx) (string, error) {
	for {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM tenants WHERE token = ? LIMIT 1;`, token).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return token, nil
		}
		if err != nil {
			return "", fmt.Errorf("check token uniqueness: %w", err)
		}
	}
}

func (r *SQLiteRepository) GetTenantByToken(ctx context.Context, token string) (*Tenant, error) {
	const q = `SELECT id, chat_id, token, created_at FROM tenants WHERE token = ? LIMIT 1;`
	t, err := scanTenant(r.db.QueryRowContext(ctx, q, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by token: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) DeleteTenant(ctx context.Context, id int64) error {
	ct, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTenant(row *sql.Row) (*Tenant, error) {
	var t Tenant
	if err := row.Scan(&t.ID, &t.ChatID, &t.Token, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// -- Clients --

func (r *SQLiteRepository) ResolveClient(ctx context.Context, tenantID int64, name, phone *string) (*int64, error) {
	if isBlank(name) && isBlank(phone) {
		return nil, nil
	}

	if !isBlank(phone) {
		var id int64
		const q = `
SELECT id FROM clients
WHERE tenant_id = ? AND phone = ?
ORDER BY id DESC
LIMIT 1;`
		err := r.db.QueryRowContext(ctx, q, tenantID, *phone).Scan(&id)
		switch {
		case err == nil:
			if !isBlank(name) {
				if _, err := r.db.ExecContext(ctx, `UPDATE clients SET name = COALESCE(name, ?) WHERE id = ?;`, *name, id); err != nil {
					return nil, fmt.Errorf("backfill client name: %w", err)
				}
			}
			return &id, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("lookup client by phone: %w", err)
		}
	}

	var id int64
	const ins = `
INSERT INTO clients (tenant_id, name, phone, created_at)
VALUES (?, ?, ?, ?)
RETURNING id;`
	if err := r.db.QueryRowContext(ctx, ins, tenantID, name, phone, time.Now().UTC()).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return &id, nil
}

func (r *SQLiteRepository) GetClientByID(ctx context.Context, tenantID, id int64) (*Client, error) {
	const q = `
SELECT id, tenant_id, name, phone, created_at
FROM clients
WHERE tenant_id = ? AND id = ?
LIMIT 1;`
	var c Client
	err := r.db.QueryRowContext(ctx, q, tenantID, id).Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client by id: %w", err)
	}
	return &c, nil
}

func (r *SQLiteRepository) DeleteClient(ctx context.Context, id int64) error {
	ct, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Leads --

const leadColumnsSQLite = `id, tenant_id, client_id, source, name, phone, text, status, created_at, remote_chat_id, remote_message_id`

func (r *SQLiteRepository) CreateLead(ctx context.Context, lead NewLead) (int64, error) {
	status := lead.Status
	if status == "" {
		status = StatusNew
	}
	const q = `
INSERT INTO leads (tenant_id, client_id, source, name, phone, text, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id;`
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		lead.TenantID,
		lead.ClientID,
		lead.Source,
		lead.Name,
		lead.Phone,
		lead.Text,
		status,
		time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert lead: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) GetLeadByID(ctx context.Context, id int64) (*Lead, error) {
	const q = `SELECT ` + leadColumnsSQLite + ` FROM leads WHERE id = ? LIMIT 1;`
	lead, err := scanLead(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead by id: %w", err)
	}
	return lead, nil
}

func (r *SQLiteRepository) SetLeadStatus(ctx context.Context, id int64, status Status) error {
	ct, err := r.db.ExecContext(ctx, `UPDATE leads SET status = ? WHERE id = ?;`, status, id)
	if err != nil {
		return fmt.Errorf("set lead status: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) BindLeadMessage(ctx context.Context, leadID, chatID, messageID int64) error {
	const q = `UPDATE leads SET remote_chat_id = ?, remote_message_id = ? WHERE id = ?;`
	ct, err := r.db.ExecContext(ctx, q, chatID, messageID, leadID)
	if err != nil {
		return fmt.Errorf("bind lead message: %w", err)
	}
	if n, _ := ct.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListLeadsForDay(ctx context.Context, tenantID int64, day time.Time) ([]Lead, error) {
	start, end := dayBounds(day)
	const q = `
SELECT ` + leadColumnsSQLite + `
FROM leads
WHERE tenant_id = ? AND created_at >= ? AND created_at < ?
ORDER BY created_at ASC, id ASC;`
	rows, err := r.db.QueryContext(ctx, q, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list leads for day: %w", err)
	}
	return collectLeads(rows)
}

func (r *SQLiteRepository) ListRecentLeads(ctx context.Context, tenantID int64, limit int) ([]Lead, error) {
	const q = `
SELECT ` + leadColumnsSQLite + `
FROM leads
WHERE tenant_id = ?
ORDER BY id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, tenantID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent leads: %w", err)
	}
	return collectLeads(rows)
}

func (r *SQLiteRepository) SearchLeads(ctx context.Context, tenantID int64, query string, limit int) ([]Lead, error) {
	pattern := "%" + query + "%"
	const q = `
SELECT ` + leadColumnsSQLite + `
FROM leads
WHERE tenant_id = ? AND (
    COALESCE(name, '') LIKE ? OR COALESCE(phone, '') LIKE ? OR text LIKE ?
)
ORDER BY id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, tenantID, pattern, pattern, pattern, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search leads: %w", err)
	}
	return collectLeads(rows)
}

func scanLead(row *sql.Row) (*Lead, error) {
	var l Lead
	if err := row.Scan(&l.ID, &l.TenantID, &l.ClientID, &l.Source, &l.Name, &l.Phone, &l.Text, &l.Status, &l.CreatedAt, &l.ChatID, &l.MessageID); err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLeads(rows *sql.Rows) ([]Lead, error) {
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ClientID, &l.Source, &l.Name, &l.Phone, &l.Text, &l.Status, &l.CreatedAt, &l.ChatID, &l.MessageID); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}
