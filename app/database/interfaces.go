package database

import "time"

// Entry is one cached payload row.
type Entry struct {
	Key       string
	Payload   string
	CreatedAt time.Time
}

// CacheStore is consumed by the API handlers, the digest aggregator and the
// background refresh tasks.
type CacheStore interface {
	GetEntry(key string) (*Entry, error)
	SetEntry(key, payload string) error
	DeleteEntry(key string) error
	DeleteByPrefix(prefix string) error
	CountEntries() (int, error)
}
