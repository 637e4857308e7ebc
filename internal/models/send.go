package models

import "time"

// EmailSend records one delivered email. At most one row exists per
// (campaign, contact) pair; that unique key is what makes dispatch
// idempotent under concurrent and repeated runs.
type EmailSend struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	ContactID  string    `json:"contact_id"`
	TrackingID string    `json:"tracking_id"`
	Opened     bool      `json:"opened"`
	Clicked    bool      `json:"clicked"`
	SentAt     time.Time `json:"sent_at"`
}

// OpenEvent is one tracking-pixel hit against a send. Append-only; the
// first event for a send flips EmailSend.Opened.
type OpenEvent struct {
	ID         int64     `json:"id"`
	SendID     string    `json:"send_id"`
	UserAgent  string    `json:"user_agent"`
	SourceAddr string    `json:"source_addr"`
	OpenedAt   time.Time `json:"opened_at"`
}

// OpenEventWithCampaign includes joined campaign info for analytics views.
type OpenEventWithCampaign struct {
	OpenEvent
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
}
