package models

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusScheduled CampaignStatus = "scheduled"
	StatusSending   CampaignStatus = "sending"
	StatusPaused    CampaignStatus = "paused"
	StatusCompleted CampaignStatus = "completed"
)

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusSending, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether a status change from s to next is legal.
// Status is only ever mutated through these transitions; counters are not.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusScheduled || next == StatusSending
	case StatusScheduled:
		return next == StatusSending || next == StatusDraft
	case StatusSending:
		return next == StatusPaused || next == StatusCompleted
	case StatusPaused:
		return next == StatusSending
	case StatusCompleted:
		return false
	}
	return false
}

// Deletable reports whether a campaign in this status may be deleted.
// An actively sending campaign must be paused first.
func (s CampaignStatus) Deletable() bool {
	return s != StatusSending
}

// Campaign ties a template to a set of contacts and tracks progress
// counters. Counters are monotonically non-decreasing caches; the
// email_sends table is the ground truth for delivery state.
type Campaign struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	TemplateID         string         `json:"template_id"`
	ContactIDs         []string       `json:"contact_ids"`
	Status             CampaignStatus `json:"status"`
	SentCount          int            `json:"sent_count"`
	OpenCount          int            `json:"open_count"`
	ClickCount         int            `json:"click_count"`
	DailyLimit         int            `json:"daily_limit"`
	DelayBetweenEmails int            `json:"delay_between_emails"` // minutes, minimum spacing hint
	ScheduledAt        *time.Time     `json:"scheduled_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CampaignListFilter for filtering campaigns
type CampaignListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}
