package models

import "time"

// Contact represents a person that campaigns can be sent to.
// CustomFields holds free-form key/value pairs used for template variables.
type Contact struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Company      string            `json:"company"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ContactListFilter for filtering contacts
type ContactListFilter struct {
	Search string
	Limit  int
	Offset int
}
