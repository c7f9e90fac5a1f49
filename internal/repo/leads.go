package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const leadColumns = `id, tenant_id, client_id, source, name, phone, text, status, created_at, remote_chat_id, remote_message_id`

// CreateLead stores one inbound contact event. Text is mandatory, everything
// else optional; tenant existence is the caller's responsibility.
func (r *Repository) CreateLead(ctx context.Context, lead NewLead) (int64, error) {
	status := lead.Status
	if status == "" {
		status = StatusNew
	}
	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO leads (tenant_id, client_id, source, name, phone, text, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id;`,
		lead.TenantID,
		lead.ClientID,
		lead.Source,
		lead.Name,
		lead.Phone,
		lead.Text,
		status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert lead: %w", err)
	}
	return id, nil
}

// GetLeadByID returns a lead or ErrNotFound.
func (r *Repository) GetLeadByID(ctx context.Context, id int64) (*Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1;`, id)
	lead, err := scanLeadPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead by id: %w", err)
	}
	return lead, nil
}

// SetLeadStatus overwrites the status unconditionally; any-to-any transitions
// are permitted by design.
func (r *Repository) SetLeadStatus(ctx context.Context, id int64, status Status) error {
	ct, err := r.pool.Exec(ctx, `UPDATE leads SET status = $2 WHERE id = $1;`, id, status)
	if err != nil {
		return fmt.Errorf("set lead status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BindLeadMessage records the single outstanding notification for the lead,
// replacing any prior binding.
func (r *Repository) BindLeadMessage(ctx context.Context, leadID, chatID, messageID int64) error {
	ct, err := r.pool.Exec(ctx, `
UPDATE leads SET remote_chat_id = $2, remote_message_id = $3 WHERE id = $1;`, leadID, chatID, messageID)
	if err != nil {
		return fmt.Errorf("bind lead message: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLeadsForDay returns the tenant's leads created on the given UTC
// calendar date, oldest first.
func (r *Repository) ListLeadsForDay(ctx context.Context, tenantID int64, day time.Time) ([]Lead, error) {
	start, end := dayBounds(day)
	rows, err := r.pool.Query(ctx, `
SELECT `+leadColumns+`
FROM leads
WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC, id ASC;`, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list leads for day: %w", err)
	}
	return collectLeadsPG(rows)
}

// ListRecentLeads returns the tenant's most recent leads, newest first. The
// limit is clamped to [MinListLimit, MaxListLimit].
func (r *Repository) ListRecentLeads(ctx context.Context, tenantID int64, limit int) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+leadColumns+`
FROM leads
WHERE tenant_id = $1
ORDER BY id DESC
LIMIT $2;`, tenantID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent leads: %w", err)
	}
	return collectLeadsPG(rows)
}

// SearchLeads matches the query as a substring of name, phone or text,
// newest first. The caller rejects empty queries before calling.
func (r *Repository) SearchLeads(ctx context.Context, tenantID int64, query string, limit int) ([]Lead, error) {
	pattern := "%" + query + "%"
	rows, err := r.pool.Query(ctx, `
SELECT `+leadColumns+`
FROM leads
WHERE tenant_id = $1 AND (
    COALESCE(name, '') LIKE $2 OR COALESCE(phone, '') LIKE $2 OR text LIKE $2
)
ORDER BY id DESC
LIMIT $3;`, tenantID, pattern, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search leads: %w", err)
	}
	return collectLeadsPG(rows)
}

func scanLeadPG(row pgx.Row) (*Lead, error) {
	var l Lead
	if err := row.Scan(&l.ID, &l.TenantID, &l.ClientID, &l.Source, &l.Name, &l.Phone, &l.Text, &l.Status, &l.CreatedAt, &l.ChatID, &l.MessageID); err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLeadsPG(rows pgx.Rows) ([]Lead, error) {
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		lead, err := scanLeadPG(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, *lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}
