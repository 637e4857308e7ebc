package tracking

import (
	"fmt"
	"log/slog"

	"github.com/outflowhq/outflow/internal/metrics"
	"github.com/outflowhq/outflow/internal/models"
	"github.com/outflowhq/outflow/internal/repository"
)

// Sink ingests open and click signals from tracking endpoints. Unknown
// tracking IDs are dropped silently; the endpoints never reveal to the
// caller whether an ID was real.
type Sink struct {
	sends     *repository.SendRepository
	campaigns *repository.CampaignRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewSink(
	sends *repository.SendRepository,
	campaigns *repository.CampaignRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Sink {
	return &Sink{
		sends:     sends,
		campaigns: campaigns,
		metrics:   m,
		logger:    logger.With("component", "tracking"),
	}
}

// RecordOpen handles one pixel load. Every load appends an open event, but
// the campaign open counter moves only when this is the first open of the
// send: the conditional flip on the send record decides, so concurrent
// loads of the same pixel bump it exactly once.
func (s *Sink) RecordOpen(trackingID, userAgent, sourceAddr string) error {
	send, err := s.sends.GetByTrackingID(trackingID)
	if err != nil {
		return fmt.Errorf("failed to look up tracking id: %w", err)
	}
	if send == nil {
		s.logger.Debug("unknown tracking id", "tracking_id", trackingID)
		return nil
	}

	ev := &models.OpenEvent{
		SendID:     send.ID,
		UserAgent:  userAgent,
		SourceAddr: sourceAddr,
	}
	if err := s.sends.AddOpenEvent(ev); err != nil {
		return err
	}

	flipped, err := s.sends.MarkOpened(send.ID)
	if err != nil {
		return fmt.Errorf("failed to mark send opened: %w", err)
	}
	if flipped {
		if err := s.campaigns.IncrementOpened(send.CampaignID); err != nil {
			return fmt.Errorf("failed to bump open counter: %w", err)
		}
	}

	if s.metrics != nil {
		s.metrics.OpenRecorded()
	}

	s.logger.Info("open recorded",
		"campaign_id", send.CampaignID,
		"send_id", send.ID,
		"first_open", flipped,
	)
	return nil
}

// RecordClick handles one tracked link click; same first-signal counter
// contract as RecordOpen. A click also implies the message was opened.
func (s *Sink) RecordClick(trackingID string) error {
	send, err := s.sends.GetByTrackingID(trackingID)
	if err != nil {
		return fmt.Errorf("failed to look up tracking id: %w", err)
	}
	if send == nil {
		s.logger.Debug("unknown tracking id", "tracking_id", trackingID)
		return nil
	}

	flipped, err := s.sends.MarkClicked(send.ID)
	if err != nil {
		return fmt.Errorf("failed to mark send clicked: %w", err)
	}
	if flipped {
		if err := s.campaigns.IncrementClicked(send.CampaignID); err != nil {
			return fmt.Errorf("failed to bump click counter: %w", err)
		}
	}

	if opened, err := s.sends.MarkOpened(send.ID); err == nil && opened {
		if err := s.campaigns.IncrementOpened(send.CampaignID); err != nil {
			s.logger.Error("failed to bump open counter", "campaign_id", send.CampaignID, "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.ClickRecorded()
	}

	s.logger.Info("click recorded",
		"campaign_id", send.CampaignID,
		"send_id", send.ID,
		"first_click", flipped,
	)
	return nil
}
