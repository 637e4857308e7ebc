package repository

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicateSend means an email_sends row already exists for the
	// (campaign, contact) pair. Callers treat it as a benign race: another
	// worker already delivered to this contact.
	ErrDuplicateSend = errors.New("send already recorded for this contact")

	// ErrDuplicateEmail means a contact with this email already exists.
	ErrDuplicateEmail = errors.New("contact email already exists")

	// ErrInvalidTransition means a conditional status update matched no
	// row: the campaign was missing or not in an allowed source status.
	ErrInvalidTransition = errors.New("campaign is not in a valid status for this transition")
)

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
