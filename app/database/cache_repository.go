package database

import (
	"database/sql"
	"fmt"
	"time"
)

// CacheRepository persists serialized content pages (category lists, item
// listings, details, the digest artifact) keyed by a structured string.
type CacheRepository struct {
	db *DB
}

func NewCacheRepository(db *DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// GetEntry returns the cached row for a key, or nil when absent. Payload
// validity is the caller's concern: a payload that fails to decode is
// treated as a miss by consumers.
func (r *CacheRepository) GetEntry(key string) (*Entry, error) {
	var entry Entry
	var createdAt string

	err := r.db.QueryRow(`
		SELECT key, payload, created_at FROM cache_entries WHERE key = ?
	`, key).Scan(&entry.Key, &entry.Payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	entry.CreatedAt, err = parseTimestamp(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache timestamp: %w", err)
	}
	return &entry, nil
}

func (r *CacheRepository) SetEntry(key, payload string) error {
	_, err := r.db.Exec(`
		INSERT INTO cache_entries (key, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at
	`, key, payload, time.Now().UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

func (r *CacheRepository) DeleteEntry(key string) error {
	if _, err := r.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeleteByPrefix drops every entry whose key starts with prefix, e.g. all
// listing pages of one source.
func (r *CacheRepository) DeleteByPrefix(prefix string) error {
	if _, err := r.db.Exec(`DELETE FROM cache_entries WHERE key LIKE ? || '%'`, prefix); err != nil {
		return fmt.Errorf("failed to delete cache entries: %w", err)
	}
	return nil
}

func (r *CacheRepository) CountEntries() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}

const timestampLayout = "2006-01-02 15:04:05"

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
