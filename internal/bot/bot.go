// Package bot runs the operator side of the lead relay: a long-poll loop over
// the Telegram transport, the command dispatcher and the inline action
// callbacks that mutate lead status.
package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/NixLone/Inbox-SaaS/internal/metrics"
	"github.com/NixLone/Inbox-SaaS/internal/notify"
	"github.com/NixLone/Inbox-SaaS/internal/repo"
	"github.com/NixLone/Inbox-SaaS/internal/tg"
)

const (
	defaultLastLimit = 20
	findResultCap    = 50
)

// Config tunes the poll loop.
type Config struct {
	PollTimeout  time.Duration
	PollInterval time.Duration
	ErrorBackoff time.Duration
}

// Bot dispatches operator commands and inline callbacks pulled from the chat
// transport.
type Bot struct {
	store   repo.Store
	api     tg.BotAPI
	binder  *notify.Binder
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
}

// New creates a Bot.
func New(store repo.Store, api tg.BotAPI, binder *notify.Binder, logger *slog.Logger, metricRegistry *metrics.Metrics, cfg Config) *Bot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 2 * time.Second
	}
	return &Bot{
		store:   store,
		api:     api,
		binder:  binder,
		logger:  logger.With("component", "bot"),
		metrics: metricRegistry,
		cfg:     cfg,
	}
}

// Run polls for updates until ctx is cancelled. The poll cursor is owned by
// this loop alone: it advances past every update in a fetched batch, whether
// or not handling succeeded, so one bad event can never stall the loop.
func (b *Bot) Run(ctx context.Context) error {
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := b.api.GetUpdates(ctx, offset, b.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("poll updates failed", "error", err)
			if b.metrics != nil {
				b.metrics.Errors.WithLabelValues("bot_poll").Inc()
			}
			if err := sleep(ctx, b.cfg.ErrorBackoff); err != nil {
				return err
			}
			continue
		}

		offset = b.processBatch(ctx, offset, updates)

		if err := sleep(ctx, b.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// processBatch dispatches each update and returns the next cursor position:
// one past the highest update id seen, regardless of handler errors.
func (b *Bot) processBatch(ctx context.Context, offset int64, updates []tg.Update) int64 {
	for _, update := range updates {
		if update.UpdateID >= offset {
			offset = update.UpdateID + 1
		}

		var err error
		switch {
		case update.Message != nil:
			err = b.handleMessage(ctx, update.Message)
		case update.CallbackQuery != nil:
			err = b.handleCallback(ctx, update.CallbackQuery)
		}
		if err != nil {
			b.logger.Error("failed handling update", "error", err, "update_id", update.UpdateID)
			if b.metrics != nil {
				b.metrics.Errors.WithLabelValues("bot_update").Inc()
			}
		}
	}
	return offset
}

func (b *Bot) handleMessage(ctx context.Context, msg *tg.Message) error {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if text == "" {
		return b.reply(ctx, chatID, textNotText)
	}
	if !strings.HasPrefix(text, "/") {
		return b.reply(ctx, chatID, textNotCommand)
	}

	cmd, arg := parseCommand(text)
	b.countCommand(cmd)

	switch cmd {
	case cmdStart:
		tenant, err := b.store.GetOrCreateTenantByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		return b.reply(ctx, chatID, startText(tenant.Token))

	case cmdHelp:
		return b.reply(ctx, chatID, textHelp)

	case cmdToken:
		tenant, err := b.store.GetOrCreateTenantByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		return b.reply(ctx, chatID, "Token: "+tenant.Token)

	case cmdToday:
		tenant, err := b.store.GetOrCreateTenantByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		leads, err := b.store.ListLeadsForDay(ctx, tenant.ID, time.Now().UTC())
		if err != nil {
			return err
		}
		return b.reply(ctx, chatID, renderLeadList(leads))

	case cmdDay:
		day, err := time.ParseInLocation("2006-01-02", arg, time.UTC)
		if err != nil {
			return b.reply(ctx, chatID, textUsageDay)
		}
		tenant, err := b.store.GetOrCreateTenantByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		leads, err := b.store.ListLeadsForDay(ctx, tenant.ID, day)
		if err != nil {
			return err
		}
		return b.reply(ctx, chatID, renderLeadList(leads))

	case cmdLast:
		limit := defaultLastLimit
		if arg != "" {
			parsed, err := strconv.Atoi(arg)
			if err != nil {
				return b.reply(ctx, chatID, textUsageLast)
			}
			limit = parsed
		}
		tenant, err := b.store.GetOrCreateTenantByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		leads, err := b.store.ListRecentLeads(ctx, tenant.ID, limit)
		if err != nil {
			return err
		}
		return b.reply(ctx, chatID, renderLeadList(leads))

	case cmdFind:
		if arg == "" {
			return b.reply(ctx, chatID, textUsageFind)
		}
		tenant, err := b.store.GetOrCreateTenantByChatID(ctx, chatID)
		if err != nil {
			return err
		}
		leads, err := b.store.SearchLeads(ctx, tenant.ID, arg, findResultCap)
		if err != nil {
			return err
		}
		return b.reply(ctx, chatID, renderLeadList(leads))
	}

	return b.reply(ctx, chatID, textUnknownCommand)
}

// handleCallback acknowledges the callback unconditionally, then validates
// the payload. Malformed payloads are dropped without any store mutation.
func (b *Bot) handleCallback(ctx context.Context, cq *tg.CallbackQuery) error {
	if cq.ID != "" {
		if err := b.api.AnswerCallbackQuery(ctx, cq.ID); err != nil {
			b.logger.Warn("failed answering callback", "error", err)
		}
	}

	leadID, status, ok := parseCallbackData(cq.Data)
	if !ok || cq.Message == nil {
		b.countCallback("invalid")
		return nil
	}

	if err := b.binder.ApplyStatus(ctx, leadID, status); err != nil {
		b.countCallback("error")
		return err
	}
	b.countCallback("applied")
	return nil
}

// parseCallbackData parses the opaque action token lead:<id>:<status>.
func parseCallbackData(data string) (int64, repo.Status, bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) != 3 || parts[0] != "lead" {
		return 0, "", false
	}
	leadID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	status, ok := repo.ParseStatus(parts[2])
	if !ok {
		return 0, "", false
	}
	return leadID, status, true
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) error {
	_, err := b.api.SendMessage(ctx, chatID, text, nil)
	return err
}

func (b *Bot) countCommand(cmd command) {
	if b.metrics == nil {
		return
	}
	label := string(cmd)
	if cmd == cmdUnknown {
		label = "unknown"
	}
	b.metrics.BotCommands.WithLabelValues(strings.TrimPrefix(label, "/")).Inc()
}

func (b *Bot) countCallback(result string) {
	if b.metrics != nil {
		b.metrics.BotCallbacks.WithLabelValues(result).Inc()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
