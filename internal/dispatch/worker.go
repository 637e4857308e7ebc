package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow/internal/mailer"
	"github.com/outflowhq/outflow/internal/metrics"
	"github.com/outflowhq/outflow/internal/models"
	"github.com/outflowhq/outflow/internal/render"
	"github.com/outflowhq/outflow/internal/repository"
	"github.com/outflowhq/outflow/internal/tracking"
)

// WorkerConfig controls the dispatch loop
type WorkerConfig struct {
	// Concurrency is the maximum number of in-flight deliveries.
	Concurrency int
	// PollInterval is how often the schedule is checked for due entries.
	PollInterval time.Duration
	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration
	// BaseURL is the externally reachable address tracking links point at.
	BaseURL string
}

// Worker drains the durable schedule: it claims due entries, re-checks the
// owning campaign is still sending, renders the email, and delivers it.
// Each entry is handled independently so one bad recipient never stalls
// the rest of a batch.
type Worker struct {
	campaigns *repository.CampaignRepository
	contacts  *repository.ContactRepository
	templates *repository.TemplateRepository
	sends     *repository.SendRepository
	schedule  *Schedule
	scheduler *Scheduler
	transport mailer.Transport
	metrics   *metrics.Metrics
	cfg       WorkerConfig
	logger    *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewWorker(
	campaigns *repository.CampaignRepository,
	contacts *repository.ContactRepository,
	templates *repository.TemplateRepository,
	sends *repository.SendRepository,
	schedule *Schedule,
	scheduler *Scheduler,
	transport mailer.Transport,
	m *metrics.Metrics,
	cfg WorkerConfig,
	logger *slog.Logger,
) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	return &Worker{
		campaigns: campaigns,
		contacts:  contacts,
		templates: templates,
		sends:     sends,
		schedule:  schedule,
		scheduler: scheduler,
		transport: transport,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.With("component", "worker"),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the dispatch loop
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("dispatch worker started",
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval,
	)
}

// Stop signals the loop to exit and waits for in-flight deliveries
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("dispatch worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	// Drain immediately on startup to pick up entries that came due while
	// the process was down.
	w.tick()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Worker) tick() {
	w.startDueCampaigns()
	w.dispatchDue()

	if w.metrics != nil {
		if n, err := w.schedule.Size(); err == nil {
			w.metrics.SetScheduleSize(n)
		}
	}
}

// startDueCampaigns promotes scheduled campaigns whose start time has
// passed into a dispatch run.
func (w *Worker) startDueCampaigns() {
	due, err := w.campaigns.ListScheduledDue(time.Now())
	if err != nil {
		w.logger.Error("failed to list due campaigns", "error", err)
		return
	}

	for _, c := range due {
		if _, err := w.scheduler.Start(c.ID); err != nil {
			w.logger.Error("failed to start scheduled campaign", "campaign_id", c.ID, "error", err)
		}
	}
}

func (w *Worker) dispatchDue() {
	entries, err := w.schedule.ClaimDue(time.Now(), w.cfg.Concurrency*4)
	if err != nil {
		w.logger.Error("failed to claim due entries", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, e := range entries {
		select {
		case <-w.stopCh:
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(e *Entry) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := w.dispatchOne(e); err != nil {
				w.logger.Error("dispatch failed",
					"campaign_id", e.CampaignID,
					"contact_id", e.ContactID,
					"error", err,
				)
			}
		}(e)
	}

	wg.Wait()
}

// dispatchOne delivers a single scheduled email. The campaign status is
// re-checked at claim time, so pausing a campaign stops deliveries even
// for entries already enqueued.
func (w *Worker) dispatchOne(e *Entry) error {
	start := time.Now()

	campaign, err := w.campaigns.GetByID(e.CampaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil || campaign.Status != models.StatusSending {
		// Paused, deleted, or completed since scheduling; drop the entry.
		return nil
	}

	contact, err := w.contacts.GetByID(e.ContactID)
	if err != nil {
		return fmt.Errorf("failed to load contact: %w", err)
	}
	if contact == nil {
		w.logger.Warn("contact gone, skipping", "campaign_id", e.CampaignID, "contact_id", e.ContactID)
		return nil
	}

	tmpl, err := w.templates.GetByID(e.TemplateID)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}
	if tmpl == nil {
		w.logger.Warn("template gone, skipping", "campaign_id", e.CampaignID, "template_id", e.TemplateID)
		return nil
	}

	vars := render.ContactVars(contact)
	subject := render.Render(tmpl.Subject, vars)
	body := render.Render(tmpl.Body, vars)

	trackingID := uuid.New().String()
	body = tracking.RewriteLinks(body, w.cfg.BaseURL, trackingID)
	body = tracking.InjectPixel(body, w.cfg.BaseURL, trackingID)

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SendTimeout)
	defer cancel()

	msg := &mailer.Message{
		To:      contact.Email,
		ToName:  contact.FirstName + " " + contact.LastName,
		Subject: subject,
		HTML:    body,
	}

	if err := w.transport.Send(ctx, msg); err != nil {
		if w.metrics != nil {
			w.metrics.EmailFailed()
		}
		return fmt.Errorf("delivery to %s failed: %w", contact.Email, err)
	}

	send := &models.EmailSend{
		CampaignID: e.CampaignID,
		ContactID:  e.ContactID,
		TrackingID: trackingID,
	}
	err = w.sends.Create(send)
	if errors.Is(err, repository.ErrDuplicateSend) {
		// Another worker already recorded this recipient; the email went
		// out twice but the counter must not.
		w.logger.Warn("duplicate send suppressed", "campaign_id", e.CampaignID, "contact_id", e.ContactID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}

	if err := w.campaigns.IncrementSent(e.CampaignID); err != nil {
		w.logger.Error("failed to bump sent counter", "campaign_id", e.CampaignID, "error", err)
	}

	if w.metrics != nil {
		w.metrics.EmailSent()
		w.metrics.ObserveDispatch(time.Since(start))
	}

	w.logger.Info("email dispatched",
		"campaign_id", e.CampaignID,
		"contact_id", e.ContactID,
		"to", contact.Email,
	)

	return w.maybeComplete(campaign)
}

// maybeComplete moves a campaign to completed once every assigned contact
// has a send record.
func (w *Worker) maybeComplete(campaign *models.Campaign) error {
	n, err := w.sends.CountByCampaign(campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to count sends: %w", err)
	}
	if n < len(campaign.ContactIDs) {
		return nil
	}

	err = w.campaigns.UpdateStatus(campaign.ID, models.StatusCompleted, models.StatusSending)
	if err != nil && !errors.Is(err, repository.ErrInvalidTransition) {
		return err
	}
	if err == nil {
		w.logger.Info("campaign completed", "campaign_id", campaign.ID)
	}
	return nil
}
