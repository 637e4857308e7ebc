package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow/internal/models"
)

type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create creates a new contact
func (r *ContactRepository) Create(c *models.Contact) error {
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	fields, err := marshalMap(c.CustomFields)
	if err != nil {
		return fmt.Errorf("failed to encode custom fields: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO contacts (id, email, first_name, last_name, company, custom_fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Email, c.FirstName, c.LastName, c.Company, fields, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// GetByID returns a contact by ID, or nil if not found
func (r *ContactRepository) GetByID(id string) (*models.Contact, error) {
	return r.scanOne(r.db.QueryRow(`
		SELECT id, email, first_name, last_name, company, custom_fields, created_at, updated_at
		FROM contacts WHERE id = ?`, id))
}

// GetByEmail returns a contact by email, or nil if not found
func (r *ContactRepository) GetByEmail(email string) (*models.Contact, error) {
	return r.scanOne(r.db.QueryRow(`
		SELECT id, email, first_name, last_name, company, custom_fields, created_at, updated_at
		FROM contacts WHERE email = ?`, email))
}

func (r *ContactRepository) scanOne(row *sql.Row) (*models.Contact, error) {
	c := &models.Contact{}
	var firstName, lastName, company, fields sql.NullString

	err := row.Scan(&c.ID, &c.Email, &firstName, &lastName, &company, &fields, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.FirstName = firstName.String
	c.LastName = lastName.String
	c.Company = company.String
	if fields.Valid && fields.String != "" {
		if err := json.Unmarshal([]byte(fields.String), &c.CustomFields); err != nil {
			return nil, fmt.Errorf("failed to decode custom fields: %w", err)
		}
	}
	return c, nil
}

// List returns contacts with optional filtering
func (r *ContactRepository) List(filter models.ContactListFilter) ([]models.Contact, int, error) {
	countQuery := "SELECT COUNT(*) FROM contacts WHERE 1=1"
	args := []any{}

	if filter.Search != "" {
		countQuery += " AND (email LIKE ? OR first_name LIKE ? OR last_name LIKE ? OR company LIKE ?)"
		s := "%" + filter.Search + "%"
		args = append(args, s, s, s, s)
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, email, first_name, last_name, company, custom_fields, created_at, updated_at
		FROM contacts WHERE 1=1`

	args = []any{}
	if filter.Search != "" {
		query += " AND (email LIKE ? OR first_name LIKE ? OR last_name LIKE ? OR company LIKE ?)"
		s := "%" + filter.Search + "%"
		args = append(args, s, s, s, s)
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

	contacts := []models.Contact{}
	for rows.Next() {
		var c models.Contact
		var firstName, lastName, company, fields sql.NullString

		err := rows.Scan(&c.ID, &c.Email, &firstName, &lastName, &company, &fields, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}

		c.FirstName = firstName.String
		c.LastName = lastName.String
		c.Company = company.String
		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &c.CustomFields); err != nil {
				return nil, 0, fmt.Errorf("failed to decode custom fields: %w", err)
			}
		}
		contacts = append(contacts, c)
	}

	return contacts, total, nil
}

// Update updates a contact
func (r *ContactRepository) Update(c *models.Contact) error {
	c.UpdatedAt = time.Now()

	fields, err := marshalMap(c.CustomFields)
	if err != nil {
		return fmt.Errorf("failed to encode custom fields: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE contacts SET email = ?, first_name = ?, last_name = ?, company = ?, custom_fields = ?, updated_at = ?
		WHERE id = ?`,
		c.Email, c.FirstName, c.LastName, c.Company, fields, c.UpdatedAt, c.ID,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// Delete deletes a contact
func (r *ContactRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM contacts WHERE id = ?", id)
	return err
}

func marshalMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
