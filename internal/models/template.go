package models

import "time"

// Template is an email template with {{variable}} placeholders in the
// subject and body. Variables is derived from subject+body on every save.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Variables []string  `json:"variables"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateListFilter for filtering templates
type TemplateListFilter struct {
	Search string
	Limit  int
	Offset int
}
