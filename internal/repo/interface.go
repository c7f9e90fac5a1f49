package repo

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

// ErrNotFound is returned when a tenant, client or lead does not exist.
var ErrNotFound = errors.New("not found")

// Limits applied to list queries before they hit the database.
const (
	MinListLimit = 1
	MaxListLimit = 100
)

// Store defines the interface for data persistence. Every query that takes a
// tenant id is scoped to that tenant; cross-tenant reads are a correctness
// violation, not just an access-control concern.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Tenants
	GetOrCreateTenantByChatID(ctx context.Context, chatID int64) (*Tenant, error)
	GetTenantByToken(ctx context.Context, token string) (*Tenant, error)
	DeleteTenant(ctx context.Context, id int64) error

	// Clients
	ResolveClient(ctx context.Context, tenantID int64, name, phone *string) (*int64, error)
	GetClientByID(ctx context.Context, tenantID, id int64) (*Client, error)
	DeleteClient(ctx context.Context, id int64) error

	// Leads
	CreateLead(ctx context.Context, lead NewLead) (int64, error)
	GetLeadByID(ctx context.Context, id int64) (*Lead, error)
	SetLeadStatus(ctx context.Context, id int64, status Status) error
	BindLeadMessage(ctx context.Context, leadID, chatID, messageID int64) error
	ListLeadsForDay(ctx context.Context, tenantID int64, day time.Time) ([]Lead, error)
	ListRecentLeads(ctx context.Context, tenantID int64, limit int) ([]Lead, error)
	SearchLeads(ctx context.Context, tenantID int64, query string, limit int) ([]Lead, error)
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*SQLiteRepository)(nil)
)

func clampLimit(limit int) int {
	if limit < MinListLimit {
		return MinListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// dayBounds returns the half-open UTC range [start, end) covering the
// calendar date of day.
func dayBounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
