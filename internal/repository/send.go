package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow/internal/models"
)

type SendRepository struct {
	db *sql.DB
}

func NewSendRepository(db *sql.DB) *SendRepository {
	return &SendRepository{db: db}
}

// Create records a delivered email. The UNIQUE(campaign_id, contact_id)
// constraint makes this the idempotency point for the whole dispatch path:
// a violation means another worker got there first and is reported as
// ErrDuplicateSend, which callers treat as success-without-counting.
func (r *SendRepository) Create(s *models.EmailSend) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.SentAt.IsZero() {
		s.SentAt = time.Now()
	}

	_, err := r.db.Exec(`
		INSERT INTO email_sends (id, campaign_id, contact_id, tracking_id, opened, clicked, sent_at)
		VALUES (?, ?, ?, ?, 0, 0, ?)`,
		s.ID, s.CampaignID, s.ContactID, s.TrackingID, s.SentAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSend
		}
		return fmt.Errorf("failed to create send record: %w", err)
	}
	return nil
}

// GetByTrackingID returns a send by its tracking ID, or nil if unknown
func (r *SendRepository) GetByTrackingID(trackingID string) (*models.EmailSend, error) {
	s := &models.EmailSend{}
	var opened, clicked int

	err := r.db.QueryRow(`
		SELECT id, campaign_id, contact_id, tracking_id, opened, clicked, sent_at
		FROM email_sends WHERE tracking_id = ?`, trackingID,
	).Scan(&s.ID, &s.CampaignID, &s.ContactID, &s.TrackingID, &opened, &clicked, &s.SentAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.Opened = opened != 0
	s.Clicked = clicked != 0
	return s, nil
}

// SentContactIDs returns the set of contact ids already sent to under a
// campaign. This, not the campaign counters, is the ground truth the
// recipient resolver works from.
func (r *SendRepository) SentContactIDs(campaignID string) (map[string]struct{}, error) {
	rows, err := r.db.Query("SELECT contact_id FROM email_sends WHERE campaign_id = ?", campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sent := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		sent[id] = struct{}{}
	}
	return sent, rows.Err()
}

// CountByCampaign returns the number of distinct send records for a campaign
func (r *SendRepository) CountByCampaign(campaignID string) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM email_sends WHERE campaign_id = ?", campaignID).Scan(&n)
	return n, err
}

// ListByCampaign returns all send records for a campaign
func (r *SendRepository) ListByCampaign(campaignID string) ([]models.EmailSend, error) {
	rows, err := r.db.Query(`
		SELECT id, campaign_id, contact_id, tracking_id, opened, clicked, sent_at
		FROM email_sends WHERE campaign_id = ? ORDER BY sent_at`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sends := []models.EmailSend{}
	for rows.Next() {
		var s models.EmailSend
		var opened, clicked int
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.ContactID, &s.TrackingID, &opened, &clicked, &s.SentAt); err != nil {
			return nil, err
		}
		s.Opened = opened != 0
		s.Clicked = clicked != 0
		sends = append(sends, s)
	}
	return sends, nil
}

// MarkOpened flips the opened flag if it is not set yet. The conditional
// UPDATE makes check-and-flip atomic: exactly one of any number of
// concurrent opens observes flipped=true and gets to bump the campaign
// counter.
func (r *SendRepository) MarkOpened(sendID string) (flipped bool, err error) {
	res, err := r.db.Exec("UPDATE email_sends SET opened = 1 WHERE id = ? AND opened = 0", sendID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkClicked flips the clicked flag if it is not set yet; same contract
// as MarkOpened.
func (r *SendRepository) MarkClicked(sendID string) (flipped bool, err error) {
	res, err := r.db.Exec("UPDATE email_sends SET clicked = 1 WHERE id = ? AND clicked = 0", sendID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AddOpenEvent appends an open event for a send
func (r *SendRepository) AddOpenEvent(ev *models.OpenEvent) error {
	if ev.OpenedAt.IsZero() {
		ev.OpenedAt = time.Now()
	}

	res, err := r.db.Exec(`
		INSERT INTO email_opens (send_id, user_agent, source_addr, opened_at)
		VALUES (?, ?, ?, ?)`,
		ev.SendID, ev.UserAgent, ev.SourceAddr, ev.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record open event: %w", err)
	}

	ev.ID, err = res.LastInsertId()
	return err
}

// CountOpenEvents returns the number of open events recorded for a send
func (r *SendRepository) CountOpenEvents(sendID string) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM email_opens WHERE send_id = ?", sendID).Scan(&n)
	return n, err
}

// RecentOpens returns the latest open events joined with campaign info
func (r *SendRepository) RecentOpens(limit int) ([]models.OpenEventWithCampaign, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(`
		SELECT o.id, o.send_id, o.user_agent, o.source_addr, o.opened_at, s.campaign_id, c.name
		FROM email_opens o
		JOIN email_sends s ON o.send_id = s.id
		JOIN campaigns c ON s.campaign_id = c.id
		ORDER BY o.opened_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	opens := []models.OpenEventWithCampaign{}
	for rows.Next() {
		var o models.OpenEventWithCampaign
		var userAgent, sourceAddr sql.NullString
		if err := rows.Scan(&o.ID, &o.SendID, &userAgent, &sourceAddr, &o.OpenedAt, &o.CampaignID, &o.CampaignName); err != nil {
			return nil, err
		}
		o.UserAgent = userAgent.String
		o.SourceAddr = sourceAddr.String
		opens = append(opens, o)
	}
	return opens, nil
}
