package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NixLone/Inbox-SaaS/internal/repo"

	"github.com/google/uuid"
)

// webhookPayload is the lead event pushed by an external integrator.
type webhookPayload struct {
	Source string `json:"source"`
	Text   string `json:"text"`
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// handleWebhook is the ingress path: authenticate the token, resolve the
// client, store the lead, then attempt the first notification. Each call
// creates exactly one lead; notification delivery is best-effort and never
// rolls the lead back.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := s.logger.With("request_id", uuid.NewString())

	tenant, err := s.lookupTenant(ctx, r.PathValue("token"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.countWebhook("unknown_token")
			writeError(w, http.StatusNotFound, "unknown token")
			return
		}
		logger.Error("failed resolving tenant", "error", err)
		s.countWebhook("error")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.countWebhook("bad_request")
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	payload.Source = strings.TrimSpace(payload.Source)
	payload.Text = strings.TrimSpace(payload.Text)
	if payload.Source == "" || payload.Text == "" {
		s.countWebhook("bad_request")
		writeError(w, http.StatusBadRequest, "source and text are required")
		return
	}

	name := optional(payload.Name)
	phone := optional(payload.Phone)

	clientID, err := s.deps.Store.ResolveClient(ctx, tenant.ID, name, phone)
	if err != nil {
		logger.Error("failed resolving client", "error", err, "tenant_id", tenant.ID)
		s.countWebhook("error")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	leadID, err := s.deps.Store.CreateLead(ctx, repo.NewLead{
		TenantID: tenant.ID,
		ClientID: clientID,
		Source:   payload.Source,
		Name:     name,
		Phone:    phone,
		Text:     payload.Text,
		Status:   repo.StatusNew,
	})
	if err != nil {
		logger.Error("failed creating lead", "error", err, "tenant_id", tenant.ID)
		s.countWebhook("error")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if s.metrics != nil {
		s.metrics.LeadsCreated.Inc()
	}

	if err := s.notifyLead(ctx, tenant, leadID); err != nil {
		// The lead is stored; delivery failures stay invisible to the caller.
		logger.Warn("failed notifying lead", "error", err, "lead_id", leadID)
		if s.metrics != nil {
			s.metrics.Errors.WithLabelValues("webhook_notify").Inc()
		}
	}

	s.countWebhook("ok")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lead_id": leadID})
}

func (s *Server) notifyLead(ctx context.Context, tenant *repo.Tenant, leadID int64) error {
	if s.deps.Binder == nil {
		return nil
	}
	lead, err := s.deps.Store.GetLeadByID(ctx, leadID)
	if err != nil {
		return err
	}
	return s.deps.Binder.Notify(ctx, tenant, lead)
}

// handleDebugLeads lists a tenant's recent leads. Read-only.
func (s *Server) handleDebugLeads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, err := s.lookupTenant(ctx, r.PathValue("token"))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown token")
			return
		}
		s.logger.Error("failed resolving tenant", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	leads, err := s.deps.Store.ListRecentLeads(ctx, tenant.ID, limit)
	if err != nil {
		s.logger.Error("failed listing leads", "error", err, "tenant_id", tenant.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]leadDTO, 0, len(leads))
	for _, lead := range leads {
		out = append(out, toLeadDTO(lead))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "leads": out})
}

// lookupTenant resolves a capability token, going through the Redis cache
// when one is configured. Tenants are immutable after creation, so cached
// entries are safe to serve for the full TTL.
func (s *Server) lookupTenant(ctx context.Context, token string) (*repo.Tenant, error) {
	if token == "" {
		return nil, repo.ErrNotFound
	}

	cacheKey := "tenant:token:" + token
	if s.deps.Cache != nil {
		var cached repo.Tenant
		found, err := s.deps.Cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn("tenant cache read failed", "error", err)
		} else if found {
			return &cached, nil
		}
	}

	tenant, err := s.deps.Store.GetTenantByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.SetJSON(ctx, cacheKey, tenant, s.cacheTTL); err != nil {
			s.logger.Warn("tenant cache write failed", "error", err)
		}
	}
	return tenant, nil
}

func (s *Server) countWebhook(status string) {
	if s.metrics != nil {
		s.metrics.WebhookRequests.WithLabelValues(status).Inc()
	}
}

type leadDTO struct {
	ID        int64     `json:"id"`
	ClientID  *int64    `json:"client_id,omitempty"`
	Source    string    `json:"source"`
	Name      *string   `json:"name,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toLeadDTO(lead repo.Lead) leadDTO {
	return leadDTO{
		ID:        lead.ID,
		ClientID:  lead.ClientID,
		Source:    lead.Source,
		Name:      lead.Name,
		Phone:     lead.Phone,
		Text:      lead.Text,
		Status:    string(lead.Status),
		CreatedAt: lead.CreatedAt,
	}
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
