package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/outflowhq/outflow/internal/config"
	"github.com/outflowhq/outflow/internal/db"
	"github.com/outflowhq/outflow/internal/dispatch"
	"github.com/outflowhq/outflow/internal/models"
	"github.com/outflowhq/outflow/internal/repository"
	"github.com/outflowhq/outflow/internal/tracking"
)

type testServer struct {
	*Server
	campaigns *repository.CampaignRepository
	sends     *repository.SendRepository
	apiKeys   *repository.APIKeyRepository
}

func newTestServer(t *testing.T, authEnabled bool) *testServer {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatal(err)
	}

	schedule, err := dispatch.NewSchedule(filepath.Join(tmpDir, "schedule.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { schedule.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := config.Default()
	cfg.Auth.Enabled = authEnabled

	contacts := repository.NewContactRepository(database.DB)
	templates := repository.NewTemplateRepository(database.DB)
	campaigns := repository.NewCampaignRepository(database.DB)
	sends := repository.NewSendRepository(database.DB)
	apiKeys := repository.NewAPIKeyRepository(database.DB)

	scheduler := dispatch.NewScheduler(campaigns, sends, schedule, cfg.Pacing, logger)
	sink := tracking.NewSink(sends, campaigns, nil, logger)

	srv := NewServer(cfg, Deps{
		Contacts:  contacts,
		Templates: templates,
		Campaigns: campaigns,
		Sends:     sends,
		APIKeys:   apiKeys,
		Scheduler: scheduler,
		Sink:      sink,
	}, logger)

	return &testServer{Server: srv, campaigns: campaigns, sends: sends, apiKeys: apiKeys}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" {
		t.Errorf("unexpected health status %q", resp.Status)
	}
}

func TestContactCRUD(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/contacts", ContactRequest{
		Email:     "ada@example.com",
		FirstName: "Ada",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[models.Contact](t, rec)

	// Duplicate email conflicts.
	rec = ts.do(t, http.MethodPost, "/api/v1/contacts", ContactRequest{Email: "ada@example.com"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate email, got %d", rec.Code)
	}

	// Invalid email rejected.
	rec = ts.do(t, http.MethodPost, "/api/v1/contacts", ContactRequest{Email: "not-an-email"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad email, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/contacts/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/contacts/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodDelete, "/api/v1/contacts/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestTemplateCreateDerivesVariables(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/templates", TemplateRequest{
		Name:    "intro",
		Subject: "Hi {{firstName}}",
		Body:    "Greetings from {{company}}, {{firstName}}!",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	tmpl := decode[models.Template](t, rec)
	if len(tmpl.Variables) != 2 || tmpl.Variables[0] != "firstName" || tmpl.Variables[1] != "company" {
		t.Errorf("expected derived variables [firstName company], got %v", tmpl.Variables)
	}
}

func TestTemplateDeleteBlockedByActiveCampaign(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/templates", TemplateRequest{
		Name: "t", Subject: "s", Body: "b",
	})
	tmpl := decode[models.Template](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns", CampaignRequest{
		Name:       "c",
		TemplateID: tmpl.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodDelete, "/api/v1/templates/"+tmpl.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while a draft campaign references the template, got %d", rec.Code)
	}
}

func TestCampaignLifecycle(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/templates", TemplateRequest{
		Name: "t", Subject: "Hi {{firstName}}", Body: "b",
	})
	tmpl := decode[models.Template](t, rec)

	var ids []string
	for i := 0; i < 3; i++ {
		rec = ts.do(t, http.MethodPost, "/api/v1/contacts", ContactRequest{
			Email: fmt.Sprintf("user%d@example.com", i),
		})
		ids = append(ids, decode[models.Contact](t, rec).ID)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns", CampaignRequest{
		Name:       "launch",
		TemplateID: tmpl.ID,
		ContactIDs: ids,
		DailyLimit: 50,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	campaign := decode[models.Campaign](t, rec)
	if campaign.Status != models.StatusDraft {
		t.Errorf("expected draft, got %s", campaign.Status)
	}

	// Pausing a draft is invalid.
	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns/"+campaign.ID+"/pause", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 pausing a draft, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns/"+campaign.ID+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decode[dispatch.StartResult](t, rec)
	if result.EmailsScheduled != 3 {
		t.Errorf("expected 3 emails scheduled, got %d", result.EmailsScheduled)
	}

	// Deleting while sending is blocked.
	rec = ts.do(t, http.MethodDelete, "/api/v1/campaigns/"+campaign.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 deleting a sending campaign, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns/"+campaign.ID+"/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns/"+campaign.ID+"/resume", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 resuming, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns/"+campaign.ID+"/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodDelete, "/api/v1/campaigns/"+campaign.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 deleting a paused campaign, got %d", rec.Code)
	}
}

func TestCampaignStartWithoutContacts(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodPost, "/api/v1/templates", TemplateRequest{
		Name: "t", Subject: "s", Body: "b",
	})
	tmpl := decode[models.Template](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns", CampaignRequest{
		Name:       "empty",
		TemplateID: tmpl.ID,
	})
	campaign := decode[models.Campaign](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/v1/campaigns/"+campaign.ID+"/start", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 starting without contacts, got %d", rec.Code)
	}
}

func TestTrackOpenAlwaysServesPixel(t *testing.T) {
	ts := newTestServer(t, true) // tracking stays public even with auth on

	rec := ts.do(t, http.MethodGet, "/t/o/unknown-id", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown tracking id, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), tracking.Pixel) {
		t.Error("response body is not the tracking pixel")
	}
	if cc := rec.Header().Get("Cache-Control"); cc == "" {
		t.Error("expected no-cache headers on pixel response")
	}
}

func TestTrackClickRedirects(t *testing.T) {
	ts := newTestServer(t, false)

	campaign := &models.Campaign{Name: "c"}
	if err := ts.campaigns.Create(campaign); err != nil {
		t.Fatal(err)
	}
	err := ts.sends.Create(&models.EmailSend{
		CampaignID: campaign.ID,
		ContactID:  "x",
		TrackingID: "tid",
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodGet, "/t/c/tid?u=https%3A%2F%2Fexample.com%2Fpage", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/page" {
		t.Errorf("unexpected redirect target %q", loc)
	}

	got, err := ts.campaigns.GetByID(campaign.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ClickCount != 1 {
		t.Errorf("expected click counted, got %d", got.ClickCount)
	}
}

func TestTrackClickRejectsBadTarget(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodGet, "/t/c/tid?u=javascript%3Aalert(1)", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-http target, got %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(t, http.MethodGet, "/api/v1/contacts", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	token, _, err := ts.apiKeys.Create("test")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec2 := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Errorf("expected 200 with valid key, got %d: %s", rec2.Code, rec2.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
	req.Header.Set("X-API-Key", "ok_nope.bad")
	rec3 := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec3, req)
	if rec3.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bogus key, got %d", rec3.Code)
	}
}

func TestAnalytics(t *testing.T) {
	ts := newTestServer(t, false)

	campaign := &models.Campaign{Name: "c"}
	if err := ts.campaigns.Create(campaign); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if err := ts.campaigns.IncrementSent(campaign.ID); err != nil {
			t.Fatal(err)
		}
	}
	if err := ts.campaigns.IncrementOpened(campaign.ID); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/analytics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decode[AnalyticsResponse](t, rec)
	if resp.Campaigns != 1 || resp.EmailsSent != 4 || resp.TotalOpens != 1 {
		t.Errorf("unexpected totals %+v", resp)
	}
	if resp.OpenRate != 0.25 {
		t.Errorf("expected open rate 0.25, got %v", resp.OpenRate)
	}
}
