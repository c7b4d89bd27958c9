package database

import (
	"database/sql"
	"fmt"
)

// CredentialRepository stores the raw cookie header per source. It is the
// concrete source.CredentialStore implementation.
type CredentialRepository struct {
	db *DB
}

func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) GetCookies(sourceID string) (string, error) {
	var cookies string
	err := r.db.QueryRow(`SELECT cookies FROM credentials WHERE source_id = ?`, sourceID).Scan(&cookies)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get cookies: %w", err)
	}
	return cookies, nil
}

func (r *CredentialRepository) SaveCookies(sourceID, cookies string) error {
	_, err := r.db.Exec(`
		INSERT INTO credentials (source_id, cookies, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(source_id) DO UPDATE SET cookies = excluded.cookies, updated_at = CURRENT_TIMESTAMP
	`, sourceID, cookies)
	if err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	return nil
}

func (r *CredentialRepository) HasCookies(sourceID string) (bool, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM credentials WHERE source_id = ? AND cookies != ''
	`, sourceID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check cookies: %w", err)
	}
	return count > 0, nil
}

func (r *CredentialRepository) RemoveCookies(sourceID string) error {
	if _, err := r.db.Exec(`DELETE FROM credentials WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to remove cookies: %w", err)
	}
	return nil
}
