package models

import "time"

// APIKey is a bearer credential for the JSON API. Only the bcrypt hash of
// the secret part is stored; the full token is shown once at creation.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	Revoked    bool       `json:"revoked"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}
