package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NixLone/Inbox-SaaS/internal/notify"
	"github.com/NixLone/Inbox-SaaS/internal/repo"
	"github.com/NixLone/Inbox-SaaS/internal/tg"
	"github.com/NixLone/Inbox-SaaS/migrations"
)

type sentMessage struct {
	chatID   int64
	text     string
	keyboard *tg.InlineKeyboardMarkup
}

type fakeBot struct {
	sent   []sentMessage
	nextID int64
}

func (f *fakeBot) SendMessage(_ context.Context, chatID int64, text string, keyboard *tg.InlineKeyboardMarkup) (int64, error) {
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, keyboard: keyboard})
	f.nextID++
	return f.nextID, nil
}

func (f *fakeBot) EditMessageText(context.Context, int64, int64, string, *tg.InlineKeyboardMarkup) error {
	return nil
}

func (f *fakeBot) AnswerCallbackQuery(context.Context, string) error { return nil }

func (f *fakeBot) GetUpdates(context.Context, int64, time.Duration) ([]tg.Update, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *fakeBot, *repo.SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := repo.NewSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	bot := &fakeBot{}
	binder := notify.New(store, bot, logger, nil)
	server := New("127.0.0.1:0", logger, nil, Dependencies{Store: store, Binder: binder}, Config{})
	return server, bot, store
}

// seedUnboundTenant inserts a tenant row that has a token but no chat yet,
// the state of a tenant created out of band before its first /start.
func seedUnboundTenant(t *testing.T, store *repo.SQLiteRepository, token string) int64 {
	t.Helper()
	var id int64
	err := store.DB().QueryRowContext(context.Background(), `
INSERT INTO tenants (chat_id, token, created_at)
VALUES (NULL, ?, ?) RETURNING id;`, token, time.Now().UTC()).Scan(&id)
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return id
}

func postWebhook(t *testing.T, server *Server, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+token, strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestWebhookUnknownToken(t *testing.T) {
	server, bot, store := newTestServer(t)

	rec := postWebhook(t, server, "no-such-token", `{"source":"site","text":"hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(bot.sent) != 0 {
		t.Fatal("expected no outgoing message")
	}

	var count int
	if err := store.DB().QueryRowContext(context.Background(), `SELECT COUNT(*) FROM leads;`).Scan(&count); err != nil {
		t.Fatalf("count leads: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no leads stored, got %d", count)
	}
}

func TestWebhookStoresLeadWithoutChatBinding(t *testing.T) {
	server, bot, store := newTestServer(t)
	tenantID := seedUnboundTenant(t, store, "tok-unbound")

	rec := postWebhook(t, server, "tok-unbound", `{"source":"instagram","name":"Anna","phone":"+371000","text":"I want to book"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok response, got %v", body)
	}
	leadID := int64(body["lead_id"].(float64))

	lead, err := store.GetLeadByID(context.Background(), leadID)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if lead.TenantID != tenantID || lead.Status != repo.StatusNew {
		t.Fatalf("unexpected lead %+v", lead)
	}
	if lead.ChatID != nil || lead.MessageID != nil {
		t.Fatal("expected no message binding for an unbound tenant")
	}
	if len(bot.sent) != 0 {
		t.Fatal("expected no chat delivery for an unbound tenant")
	}
}

func TestWebhookNotifiesBoundTenant(t *testing.T) {
	server, bot, store := newTestServer(t)
	ctx := context.Background()

	tenant, err := store.GetOrCreateTenantByChatID(ctx, 777)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	rec := postWebhook(t, server, tenant.Token, `{"source":"site","text":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	leadID := int64(decodeBody(t, rec)["lead_id"].(float64))

	if len(bot.sent) != 1 || bot.sent[0].chatID != 777 {
		t.Fatalf("expected one notification to chat 777, got %+v", bot.sent)
	}
	if bot.sent[0].keyboard == nil {
		t.Fatal("expected the action keyboard on the notification")
	}

	lead, _ := store.GetLeadByID(ctx, leadID)
	if lead.ChatID == nil || *lead.ChatID != 777 || lead.MessageID == nil {
		t.Fatalf("expected a message binding, got {%v, %v}", lead.ChatID, lead.MessageID)
	}
}

func TestWebhookDeduplicatesClientByPhone(t *testing.T) {
	server, _, store := newTestServer(t)
	ctx := context.Background()

	tenant, _ := store.GetOrCreateTenantByChatID(ctx, 777)

	first := postWebhook(t, server, tenant.Token, `{"source":"site","phone":"+371555","text":"first"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("first call: expected 200, got %d", first.Code)
	}
	second := postWebhook(t, server, tenant.Token, `{"source":"instagram","name":"Anna","phone":"+371555","text":"second"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("second call: expected 200, got %d", second.Code)
	}

	firstLead, _ := store.GetLeadByID(ctx, int64(decodeBody(t, first)["lead_id"].(float64)))
	secondLead, _ := store.GetLeadByID(ctx, int64(decodeBody(t, second)["lead_id"].(float64)))

	if firstLead.ClientID == nil || secondLead.ClientID == nil {
		t.Fatal("expected both leads to reference a client")
	}
	if *firstLead.ClientID != *secondLead.ClientID {
		t.Fatalf("expected one client, got %d and %d", *firstLead.ClientID, *secondLead.ClientID)
	}

	client, err := store.GetClientByID(ctx, tenant.ID, *firstLead.ClientID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if client.Name == nil || *client.Name != "Anna" {
		t.Fatalf("expected the name backfilled to Anna, got %v", client.Name)
	}
}

func TestWebhookValidation(t *testing.T) {
	server, _, store := newTestServer(t)
	tenant, _ := store.GetOrCreateTenantByChatID(context.Background(), 777)

	cases := []struct {
		name string
		body string
	}{
		{"missing source", `{"text":"hi"}`},
		{"missing text", `{"source":"site"}`},
		{"blank fields", `{"source":"  ","text":"  "}`},
		{"invalid json", `{"source":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postWebhook(t, server, tenant.Token, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	var count int
	if err := store.DB().QueryRowContext(context.Background(), `SELECT COUNT(*) FROM leads;`).Scan(&count); err != nil {
		t.Fatalf("count leads: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no leads from rejected requests, got %d", count)
	}
}

func TestDebugLeads(t *testing.T) {
	server, _, store := newTestServer(t)
	ctx := context.Background()

	tenant, _ := store.GetOrCreateTenantByChatID(ctx, 777)
	for _, text := range []string{"a", "b"} {
		if _, err := store.CreateLead(ctx, repo.NewLead{TenantID: tenant.ID, Source: "site", Text: text}); err != nil {
			t.Fatalf("create lead: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/leads/"+tenant.Token, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	leads := decodeBody(t, rec)["leads"].([]any)
	if len(leads) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(leads))
	}
	newest := leads[0].(map[string]any)
	if newest["text"] != "b" || newest["status"] != "new" {
		t.Fatalf("expected newest lead first, got %v", newest)
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/leads/"+tenant.Token+"?limit=abc", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad limit, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/leads/no-such-token", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown token, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decodeBody(t, rec)["status"] != "ok" {
		t.Fatalf("unexpected health body %s", rec.Body.String())
	}
}

func TestBasePathMount(t *testing.T) {
	server, _, _ := newTestServer(t)
	mounted := New("127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)), nil, server.deps, Config{BasePath: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	mounted.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 under the base path, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	mounted.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside the base path, got %d", rec.Code)
	}
}
