package repository

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/outflowhq/outflow/internal/models"
)

// ErrInvalidAPIKey means the presented token did not match a live key.
var ErrInvalidAPIKey = errors.New("invalid API key")

const keyPrefix = "ok_"

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create generates a new API key and returns the full token. The token
// embeds the key ID so verification is a single lookup plus one bcrypt
// compare; only the hash of the secret part is stored.
func (r *APIKeyRepository) Create(name string) (token string, key *models.APIKey, err error) {
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate key: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash key: %w", err)
	}

	key = &models.APIKey{
		ID:        uuid.New().String(),
		Name:      name,
		KeyHash:   string(hash),
		CreatedAt: time.Now(),
	}

	_, err = r.db.Exec(`
		INSERT INTO api_keys (id, name, key_hash, revoked, created_at)
		VALUES (?, ?, ?, 0, ?)`,
		key.ID, key.Name, key.KeyHash, key.CreatedAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to store API key: %w", err)
	}

	return keyPrefix + key.ID + "." + secret, key, nil
}

// Verify checks a presented token and returns the matching key. The
// last-used timestamp is updated on success.
func (r *APIKeyRepository) Verify(token string) (*models.APIKey, error) {
	if !strings.HasPrefix(token, keyPrefix) {
		return nil, ErrInvalidAPIKey
	}

	id, secret, ok := strings.Cut(strings.TrimPrefix(token, keyPrefix), ".")
	if !ok || id == "" || secret == "" {
		return nil, ErrInvalidAPIKey
	}

	key := &models.APIKey{}
	var revoked int
	var lastUsed sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, name, key_hash, revoked, created_at, last_used_at
		FROM api_keys WHERE id = ?`, id,
	).Scan(&key.ID, &key.Name, &key.KeyHash, &revoked, &key.CreatedAt, &lastUsed)

	if err == sql.ErrNoRows {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}

	if revoked != 0 {
		return nil, ErrInvalidAPIKey
	}
	if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(secret)) != nil {
		return nil, ErrInvalidAPIKey
	}

	key.Revoked = false
	if lastUsed.Valid {
		key.LastUsedAt = &lastUsed.Time
	}

	now := time.Now()
	if _, err := r.db.Exec("UPDATE api_keys SET last_used_at = ? WHERE id = ?", now, key.ID); err == nil {
		key.LastUsedAt = &now
	}

	return key, nil
}

// List returns all API keys (without hashes in the caller-facing fields)
func (r *APIKeyRepository) List() ([]models.APIKey, error) {
	rows, err := r.db.Query(`
		SELECT id, name, revoked, created_at, last_used_at
		FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		var revoked int
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &revoked, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		k.Revoked = revoked != 0
		if lastUsed.Valid {
			k.LastUsedAt = &lastUsed.Time
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Revoke marks a key as revoked
func (r *APIKeyRepository) Revoke(id string) error {
	res, err := r.db.Exec("UPDATE api_keys SET revoked = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidAPIKey
	}
	return nil
}
