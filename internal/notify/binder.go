// Package notify keeps the single outstanding chat notification of a lead in
// sync with its stored state. It is the only path that renders leads into the
// chat transport.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NixLone/Inbox-SaaS/internal/metrics"
	"github.com/NixLone/Inbox-SaaS/internal/repo"
	"github.com/NixLone/Inbox-SaaS/internal/tg"
)

// Binder maps a lead to at most one outstanding chat message.
type Binder struct {
	store   repo.Store
	api     tg.BotAPI
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Binder.
func New(store repo.Store, api tg.BotAPI, logger *slog.Logger, metricRegistry *metrics.Metrics) *Binder {
	return &Binder{
		store:   store,
		api:     api,
		logger:  logger.With("component", "notify"),
		metrics: metricRegistry,
	}
}

// Notify sends the first notification for a lead into the tenant's chat and
// binds the resulting message to the lead. When the tenant has no chat bound
// yet this is a no-op: the lead stays stored, delivery is simply deferred.
func (b *Binder) Notify(ctx context.Context, tenant *repo.Tenant, lead *repo.Lead) error {
	if tenant.ChatID == nil {
		b.logger.Debug("tenant has no chat bound, skipping notification", "tenant_id", tenant.ID, "lead_id", lead.ID)
		return nil
	}

	text, keyboard := Render(lead)
	messageID, err := b.api.SendMessage(ctx, *tenant.ChatID, text, keyboard)
	if err != nil {
		return fmt.Errorf("send lead notification: %w", err)
	}

	if err := b.store.BindLeadMessage(ctx, lead.ID, *tenant.ChatID, messageID); err != nil {
		return fmt.Errorf("bind lead message: %w", err)
	}
	return nil
}

// ApplyStatus persists the new status and, when the lead has a bound chat
// message, edits that exact message with the fresh rendering. Status and edit
// are two separate transactions; concurrent calls resolve last-write-wins.
func (b *Binder) ApplyStatus(ctx context.Context, leadID int64, status repo.Status) error {
	if err := b.store.SetLeadStatus(ctx, leadID, status); err != nil {
		return fmt.Errorf("set lead status: %w", err)
	}

	lead, err := b.store.GetLeadByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("reload lead: %w", err)
	}

	if lead.ChatID == nil || lead.MessageID == nil {
		// Nothing to edit; the status change is already persisted.
		return nil
	}

	text, keyboard := Render(lead)
	if err := b.api.EditMessageText(ctx, *lead.ChatID, *lead.MessageID, text, keyboard); err != nil {
		if b.metrics != nil {
			b.metrics.Errors.WithLabelValues("notify_edit").Inc()
		}
		return fmt.Errorf("edit lead notification: %w", err)
	}
	return nil
}
