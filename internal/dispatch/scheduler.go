package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow/internal/config"
	"github.com/outflowhq/outflow/internal/models"
	"github.com/outflowhq/outflow/internal/repository"
)

var (
	// ErrCampaignNotFound means the campaign id resolves to nothing.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrInvalidState means the campaign cannot start dispatching from its
	// current status (paused, completed, or a draft failing the start
	// guards).
	ErrInvalidState = errors.New("campaign cannot be dispatched in its current state")
)

// StartResult reports what a dispatch run scheduled.
type StartResult struct {
	EmailsScheduled int     `json:"emails_scheduled"`
	IntervalMinutes float64 `json:"interval_minutes"`
	WindowHours     float64 `json:"window_hours"`
	Completed       bool    `json:"completed"`
}

// Scheduler plans dispatch runs: it resolves the not-yet-contacted
// recipients of a campaign, computes pacing, and enqueues one durable
// schedule entry per recipient for the workers to pick up.
type Scheduler struct {
	campaigns *repository.CampaignRepository
	sends     *repository.SendRepository
	schedule  *Schedule
	pacing    config.PacingConfig
	logger    *slog.Logger
}

func NewScheduler(
	campaigns *repository.CampaignRepository,
	sends *repository.SendRepository,
	schedule *Schedule,
	pacing config.PacingConfig,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		campaigns: campaigns,
		sends:     sends,
		schedule:  schedule,
		pacing:    pacing,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start begins (or re-enters) a dispatch run for a campaign. Calling it
// again for a campaign that is already sending is safe: remaining work is
// re-derived from send records and duplicate deliveries are blocked by the
// unique send constraint, so the worst case is discarded schedule entries.
func (s *Scheduler) Start(campaignID string) (*StartResult, error) {
	campaign, err := s.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}

	switch campaign.Status {
	case models.StatusDraft, models.StatusScheduled:
		if campaign.TemplateID == "" {
			return nil, fmt.Errorf("%w: no template assigned", ErrInvalidState)
		}
		if len(campaign.ContactIDs) == 0 {
			return nil, fmt.Errorf("%w: no contacts assigned", ErrInvalidState)
		}
		err := s.campaigns.UpdateStatus(campaignID, models.StatusSending,
			models.StatusDraft, models.StatusScheduled, models.StatusSending)
		if err != nil && !errors.Is(err, repository.ErrInvalidTransition) {
			return nil, err
		}
	case models.StatusSending:
		// Idempotent re-entry; a prior run may have been interrupted.
	default:
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidState, campaign.Status)
	}

	sent, err := s.sends.SentContactIDs(campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sent contacts: %w", err)
	}

	remaining := RemainingContacts(campaign.ContactIDs, sent)
	if len(remaining) == 0 {
		if err := s.campaigns.UpdateStatus(campaignID, models.StatusCompleted, models.StatusSending); err != nil &&
			!errors.Is(err, repository.ErrInvalidTransition) {
			return nil, err
		}
		s.logger.Info("campaign completed, nothing to schedule", "campaign_id", campaignID)
		return &StartResult{Completed: true}, nil
	}

	plan := ComputePlan(len(remaining), campaign.DailyLimit, campaign.DelayBetweenEmails, s.pacing)

	now := time.Now()
	interval := time.Duration(plan.IntervalMinutes * float64(time.Minute))

	for i, contactID := range remaining[:plan.BatchSize] {
		entry := &Entry{
			ID:         uuid.New().String(),
			CampaignID: campaignID,
			ContactID:  contactID,
			TemplateID: campaign.TemplateID,
			NotBefore:  now.Add(time.Duration(i) * interval),
			CreatedAt:  now,
		}
		if err := s.schedule.Enqueue(entry); err != nil {
			return nil, fmt.Errorf("failed to enqueue dispatch entry: %w", err)
		}
	}

	s.logger.Info("dispatch run scheduled",
		"campaign_id", campaignID,
		"emails", plan.BatchSize,
		"remaining", len(remaining),
		"window_hours", plan.WindowHours,
		"interval_minutes", plan.IntervalMinutes,
	)

	return &StartResult{
		EmailsScheduled: plan.BatchSize,
		IntervalMinutes: plan.IntervalMinutes,
		WindowHours:     plan.WindowHours,
	}, nil
}
