package dispatch

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/outflowhq/outflow/internal/db"
	"github.com/outflowhq/outflow/internal/models"
	"github.com/outflowhq/outflow/internal/repository"
)

type fixture struct {
	campaigns *repository.CampaignRepository
	contacts  *repository.ContactRepository
	templates *repository.TemplateRepository
	sends     *repository.SendRepository
	schedule  *Schedule
	scheduler *Scheduler
	logger    *slog.Logger
}

func newFixture(t *testing.T) *fixture {
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

	schedule, err := NewSchedule(filepath.Join(tmpDir, "schedule.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { schedule.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	f := &fixture{
		campaigns: repository.NewCampaignRepository(database.DB),
		contacts:  repository.NewContactRepository(database.DB),
		templates: repository.NewTemplateRepository(database.DB),
		sends:     repository.NewSendRepository(database.DB),
		schedule:  schedule,
		logger:    logger,
	}
	f.scheduler = NewScheduler(f.campaigns, f.sends, schedule, defaultPacing(), logger)
	return f
}

func (f *fixture) createCampaign(t *testing.T, contactIDs []string, dailyLimit int) *models.Campaign {
	t.Helper()

	tmpl := &models.Template{Name: "t", Subject: "Hi {{firstName}}", Body: "Hello"}
	if err := f.templates.Create(tmpl); err != nil {
		t.Fatal(err)
	}

	c := &models.Campaign{
		Name:       "test",
		TemplateID: tmpl.ID,
		ContactIDs: contactIDs,
		DailyLimit: dailyLimit,
	}
	if err := f.campaigns.Create(c); err != nil {
		t.Fatal(err)
	}
	return c
}

func contactIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "contact-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	return ids
}

func TestStartSchedulesBatch(t *testing.T) {
	f := newFixture(t)
	campaign := f.createCampaign(t, contactIDs(100), 50)

	result, err := f.scheduler.Start(campaign.ID)
	if err != nil {
		t.Fatal(err)
	}

	if result.EmailsScheduled != 50 {
		t.Errorf("expected 50 emails scheduled, got %d", result.EmailsScheduled)
	}
	if result.WindowHours != 2 {
		t.Errorf("expected 2h window, got %v", result.WindowHours)
	}

	got, err := f.campaigns.GetByID(campaign.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusSending {
		t.Errorf("expected sending, got %s", got.Status)
	}

	n, err := f.schedule.Size()
	if err != nil {
		t.Fatal(err)
	}
	if n != 50 {
		t.Errorf("expected 50 schedule entries, got %d", n)
	}
}

func TestStartSkipsAlreadySentContacts(t *testing.T) {
	f := newFixture(t)
	ids := contactIDs(10)
	campaign := f.createCampaign(t, ids, 50)

	// Simulate a prior partial run.
	for i, id := range ids[:4] {
		err := f.sends.Create(&models.EmailSend{
			CampaignID: campaign.ID,
			ContactID:  id,
			TrackingID: "t" + string(rune('0'+i)),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	result, err := f.scheduler.Start(campaign.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.EmailsScheduled != 6 {
		t.Errorf("expected 6 remaining scheduled, got %d", result.EmailsScheduled)
	}
}

func TestStartIdempotentReentry(t *testing.T) {
	f := newFixture(t)
	campaign := f.createCampaign(t, contactIDs(5), 50)

	if _, err := f.scheduler.Start(campaign.ID); err != nil {
		t.Fatal(err)
	}
	// Second start while sending must not error.
	result, err := f.scheduler.Start(campaign.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.EmailsScheduled != 5 {
		t.Errorf("expected re-entry to re-derive remaining, got %d", result.EmailsScheduled)
	}
}

func TestStartCompletesWhenNothingRemains(t *testing.T) {
	f := newFixture(t)
	ids := contactIDs(2)
	campaign := f.createCampaign(t, ids, 50)

	if err := f.campaigns.UpdateStatus(campaign.ID, models.StatusSending, models.StatusDraft); err != nil {
		t.Fatal(err)
	}
	for i, id := range ids {
		err := f.sends.Create(&models.EmailSend{
			CampaignID: campaign.ID,
			ContactID:  id,
			TrackingID: "t" + string(rune('0'+i)),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	result, err := f.scheduler.Start(campaign.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Completed {
		t.Error("expected completed result")
	}

	got, err := f.campaigns.GetByID(campaign.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

func TestStartRejectsCompletedCampaign(t *testing.T) {
	f := newFixture(t)
	campaign := f.createCampaign(t, contactIDs(2), 50)

	if err := f.campaigns.UpdateStatus(campaign.ID, models.StatusSending, models.StatusDraft); err != nil {
		t.Fatal(err)
	}
	if err := f.campaigns.UpdateStatus(campaign.ID, models.StatusCompleted, models.StatusSending); err != nil {
		t.Fatal(err)
	}

	if _, err := f.scheduler.Start(campaign.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestStartRejectsPausedCampaign(t *testing.T) {
	f := newFixture(t)
	campaign := f.createCampaign(t, contactIDs(2), 50)

	if err := f.campaigns.UpdateStatus(campaign.ID, models.StatusSending, models.StatusDraft); err != nil {
		t.Fatal(err)
	}
	if err := f.campaigns.UpdateStatus(campaign.ID, models.StatusPaused, models.StatusSending); err != nil {
		t.Fatal(err)
	}

	if _, err := f.scheduler.Start(campaign.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestStartRequiresTemplateAndContacts(t *testing.T) {
	f := newFixture(t)

	noTemplate := &models.Campaign{Name: "no template", ContactIDs: contactIDs(2)}
	if err := f.campaigns.Create(noTemplate); err != nil {
		t.Fatal(err)
	}
	if _, err := f.scheduler.Start(noTemplate.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState without template, got %v", err)
	}

	noContacts := f.createCampaign(t, nil, 50)
	if _, err := f.scheduler.Start(noContacts.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState without contacts, got %v", err)
	}
}

func TestStartUnknownCampaign(t *testing.T) {
	f := newFixture(t)

	if _, err := f.scheduler.Start("no-such-id"); !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestStartStaggersEntries(t *testing.T) {
	f := newFixture(t)
	campaign := f.createCampaign(t, contactIDs(4), 50)

	before := time.Now()
	if _, err := f.scheduler.Start(campaign.ID); err != nil {
		t.Fatal(err)
	}

	// Only the first entry is due immediately; the rest sit in the future.
	due, err := f.schedule.ClaimDue(before.Add(time.Second), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 {
		t.Errorf("expected exactly 1 entry due at start, got %d", len(due))
	}

	remaining, err := f.schedule.Size()
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 3 {
		t.Errorf("expected 3 future entries, got %d", remaining)
	}
}
