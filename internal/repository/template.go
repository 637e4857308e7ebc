package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow/internal/models"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create creates a new template. Variables must already be derived from
// the subject and body by the caller.
func (r *TemplateRepository) Create(t *models.Template) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt

	vars, err := marshalStrings(t.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO templates (id, name, subject, body, variables, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Subject, t.Body, vars, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID returns a template by ID, or nil if not found
func (r *TemplateRepository) GetByID(id string) (*models.Template, error) {
	t := &models.Template{}
	var body, vars sql.NullString

	err := r.db.QueryRow(`
		SELECT id, name, subject, body, variables, created_at, updated_at
		FROM templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Subject, &body, &vars, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.Body = body.String
	if vars.Valid && vars.String != "" {
		if err := json.Unmarshal([]byte(vars.String), &t.Variables); err != nil {
			return nil, fmt.Errorf("failed to decode variables: %w", err)
		}
	}
	return t, nil
}

// List returns templates with optional filtering
func (r *TemplateRepository) List(filter models.TemplateListFilter) ([]models.Template, int, error) {
	countQuery := "SELECT COUNT(*) FROM templates WHERE 1=1"
	args := []any{}

	if filter.Search != "" {
		countQuery += " AND (name LIKE ? OR subject LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, name, subject, body, variables, created_at, updated_at
		FROM templates WHERE 1=1`

	args = []any{}
	if filter.Search != "" {
		query += " AND (name LIKE ? OR subject LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	query += " ORDER BY updated_at DESC"

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

	templates := []models.Template{}
	for rows.Next() {
		var t models.Template
		var body, vars sql.NullString

		err := rows.Scan(&t.ID, &t.Name, &t.Subject, &body, &vars, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}

		t.Body = body.String
		if vars.Valid && vars.String != "" {
			if err := json.Unmarshal([]byte(vars.String), &t.Variables); err != nil {
				return nil, 0, fmt.Errorf("failed to decode variables: %w", err)
			}
		}
		templates = append(templates, t)
	}

	return templates, total, nil
}

// Update updates a template. Variables must be re-derived by the caller
// whenever the subject or body changes.
func (r *TemplateRepository) Update(t *models.Template) error {
	t.UpdatedAt = time.Now()

	vars, err := marshalStrings(t.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE templates SET name = ?, subject = ?, body = ?, variables = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Subject, t.Body, vars, t.UpdatedAt, t.ID,
	)
	return err
}

// Delete deletes a template
func (r *TemplateRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM templates WHERE id = ?", id)
	return err
}

func marshalStrings(s []string) (string, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
