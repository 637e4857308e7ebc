package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new campaign in draft status
func (r *CampaignRepository) Create(c *models.Campaign) error {
	c.ID = uuid.New().String()
	if c.Status == "" {
		c.Status = models.StatusDraft
	}
	if c.DailyLimit <= 0 {
		c.DailyLimit = 50
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	contacts, err := marshalStrings(c.ContactIDs)
	if err != nil {
		return fmt.Errorf("failed to encode contact ids: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO campaigns (id, name, template_id, contact_ids, status, sent_count, open_count, click_count,
			daily_limit, delay_between_emails, scheduled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.TemplateID, contacts, c.Status, c.DailyLimit, c.DelayBetweenEmails,
		c.ScheduledAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, or nil if not found
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	row := r.db.QueryRow(`
		SELECT id, name, template_id, contact_ids, status, sent_count, open_count, click_count,
			daily_limit, delay_between_emails, scheduled_at, created_at, updated_at
		FROM campaigns WHERE id = ?`, id)

	c, err := scanCampaign(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

type scanFunc func(dest ...any) error

func scanCampaign(scan scanFunc) (*models.Campaign, error) {
	c := &models.Campaign{}
	var contacts sql.NullString
	var scheduledAt sql.NullTime

	err := scan(&c.ID, &c.Name, &c.TemplateID, &contacts, &c.Status, &c.SentCount, &c.OpenCount,
		&c.ClickCount, &c.DailyLimit, &c.DelayBetweenEmails, &scheduledAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if contacts.Valid && contacts.String != "" {
		if err := json.Unmarshal([]byte(contacts.String), &c.ContactIDs); err != nil {
			return nil, fmt.Errorf("failed to decode contact ids: %w", err)
		}
	}
	if scheduledAt.Valid {
		c.ScheduledAt = &scheduledAt.Time
	}
	return c, nil
}

// List returns campaigns with optional filtering
func (r *CampaignRepository) List(filter models.CampaignListFilter) ([]models.Campaign, int, error) {
	countQuery := "SELECT COUNT(*) FROM campaigns WHERE 1=1"
	args := []any{}

	if filter.Status != "" {
		countQuery += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		countQuery += " AND name LIKE ?"
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, name, template_id, contact_ids, status, sent_count, open_count, click_count,
			daily_limit, delay_between_emails, scheduled_at, created_at, updated_at
		FROM campaigns WHERE 1=1`

	args = []any{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		query += " AND name LIKE ?"
		args = append(args, "%"+filter.Search+"%")
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *c)
	}

	return campaigns, total, nil
}

// Update updates campaign settings (not status or counters)
func (r *CampaignRepository) Update(c *models.Campaign) error {
	c.UpdatedAt = time.Now()

	contacts, err := marshalStrings(c.ContactIDs)
	if err != nil {
		return fmt.Errorf("failed to encode contact ids: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE campaigns SET name = ?, template_id = ?, contact_ids = ?, daily_limit = ?,
			delay_between_emails = ?, scheduled_at = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.TemplateID, contacts, c.DailyLimit, c.DelayBetweenEmails,
		c.ScheduledAt, c.UpdatedAt, c.ID,
	)
	return err
}

// Delete deletes a campaign. Callers must check Deletable on the status
// first; sends cascade away with the campaign.
func (r *CampaignRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM campaigns WHERE id = ?", id)
	return err
}

// UpdateStatus moves a campaign to a new status, but only when its current
// status is one of from. The conditional UPDATE is what keeps transitions
// race-safe under concurrent workers; no row updated means the campaign was
// missing or already moved, and ErrInvalidTransition is returned.
func (r *CampaignRepository) UpdateStatus(id string, to models.CampaignStatus, from ...models.CampaignStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("at least one source status is required")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []any{to, time.Now(), id}
	for _, s := range from {
		args = append(args, s)
	}

	res, err := r.db.Exec(
		"UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ? AND status IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// IncrementSent atomically bumps the sent counter
func (r *CampaignRepository) IncrementSent(id string) error {
	_, err := r.db.Exec("UPDATE campaigns SET sent_count = sent_count + 1, updated_at = ? WHERE id = ?", time.Now(), id)
	return err
}

// IncrementOpened atomically bumps the opened counter
func (r *CampaignRepository) IncrementOpened(id string) error {
	_, err := r.db.Exec("UPDATE campaigns SET open_count = open_count + 1, updated_at = ? WHERE id = ?", time.Now(), id)
	return err
}

// IncrementClicked atomically bumps the clicked counter
func (r *CampaignRepository) IncrementClicked(id string) error {
	_, err := r.db.Exec("UPDATE campaigns SET click_count = click_count + 1, updated_at = ? WHERE id = ?", time.Now(), id)
	return err
}

// ListScheduledDue returns scheduled campaigns whose scheduled_at has passed
func (r *CampaignRepository) ListScheduledDue(now time.Time) ([]models.Campaign, error) {
	rows, err := r.db.Query(`
		SELECT id, name, template_id, contact_ids, status, sent_count, open_count, click_count,
			daily_limit, delay_between_emails, scheduled_at, created_at, updated_at
		FROM campaigns
		WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?`,
		models.StatusScheduled, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, nil
}

// CountActiveByTemplate counts non-completed campaigns referencing a
// template. Used to block template deletion while campaigns depend on it.
func (r *CampaignRepository) CountActiveByTemplate(templateID string) (int, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM campaigns WHERE template_id = ? AND status != ?",
		templateID, models.StatusCompleted,
	).Scan(&n)
	return n, err
}

// CountInFlightByContact counts sending/paused campaigns that include a
// contact. Used to block contact deletion mid-campaign.
func (r *CampaignRepository) CountInFlightByContact(contactID string) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM campaigns WHERE status IN (?, ?) AND contact_ids LIKE ?`,
		models.StatusSending, models.StatusPaused, `%"`+contactID+`"%`,
	).Scan(&n)
	return n, err
}

// Totals aggregates counters across all campaigns for analytics
func (r *CampaignRepository) Totals() (campaigns, sent, opened, clicked int, err error) {
	err = r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(sent_count), 0), COALESCE(SUM(open_count), 0), COALESCE(SUM(click_count), 0)
		FROM campaigns`,
	).Scan(&campaigns, &sent, &opened, &clicked)
	return
}
