// Package cookies bridges cookies between the interactive login flow and
// the programmatic HTTP client. The credential store is the shared backing:
// the login flow deposits a raw cookie header there, adapters read a merged
// view back, and cookies rotated by API responses are flushed to the store
// synchronously so the next request sees them.
package cookies

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"threadhub/app/source"
)

// Reader yields the Cookie header value for a source's outbound requests.
type Reader interface {
	CookieHeader(sourceID string) string
}

// Writer absorbs Set-Cookie values from responses back into the shared
// store.
type Writer interface {
	SaveResponseCookies(sourceID string, setCookie []string) error
}

// Jar is both directions together. Adapters whose sources rotate session
// cookies in responses need the full jar, not just the read side.
type Jar interface {
	Reader
	Writer
}

// Absorb saves a response's Set-Cookie values through the jar. Rotation is
// best-effort: a failed save must never break the request that carried it,
// so failures are logged and swallowed.
func Absorb(w Writer, sourceID string, header http.Header) {
	if err := w.SaveResponseCookies(sourceID, header.Values("Set-Cookie")); err != nil {
		slog.Warn("Failed to save rotated cookies", "source", sourceID, "error", err)
	}
}

// StoreJar implements both directions over the credential store, keeping an
// in-memory merged view per source. Malformed cookie fragments are skipped
// individually, never fatal to the batch.
type StoreJar struct {
	store  source.CredentialStore
	mu     sync.Mutex
	merged map[string]map[string]string // sourceID -> name -> value
	order  map[string][]string          // insertion order per source, for stable headers
}

func NewStoreJar(store source.CredentialStore) *StoreJar {
	return &StoreJar{
		store:  store,
		merged: make(map[string]map[string]string),
		order:  make(map[string][]string),
	}
}

func (j *StoreJar) CookieHeader(sourceID string) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, loaded := j.merged[sourceID]; !loaded {
		j.loadLocked(sourceID)
	}
	return j.renderLocked(sourceID)
}

// SaveResponseCookies merges Set-Cookie values into the jar and flushes the
// store before returning; a follow-up request may happen immediately.
func (j *StoreJar) SaveResponseCookies(sourceID string, setCookie []string) error {
	if len(setCookie) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, loaded := j.merged[sourceID]; !loaded {
		j.loadLocked(sourceID)
	}

	for _, raw := range setCookie {
		// Only the leading name=value pair matters; attributes after the
		// first semicolon are the browser's business.
		pair, _, _ := strings.Cut(raw, ";")
		name, value, ok := parsePair(pair)
		if !ok {
			slog.Debug("Skipping malformed cookie", "source", sourceID, "cookie", raw)
			continue
		}
		j.setLocked(sourceID, name, value)
	}

	if err := j.store.SaveCookies(sourceID, j.renderLocked(sourceID)); err != nil {
		return fmt.Errorf("failed to flush cookies: %w", err)
	}
	return nil
}

// Invalidate drops the in-memory view so the next read goes back to the
// store. Used after the login flow replaces a source's cookies.
func (j *StoreJar) Invalidate(sourceID string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.merged, sourceID)
	delete(j.order, sourceID)
}

func (j *StoreJar) loadLocked(sourceID string) {
	j.merged[sourceID] = make(map[string]string)
	j.order[sourceID] = nil

	header, err := j.store.GetCookies(sourceID)
	if err != nil || header == "" {
		return
	}
	for _, pair := range strings.Split(header, ";") {
		name, value, ok := parsePair(pair)
		if !ok {
			continue
		}
		j.setLocked(sourceID, name, value)
	}
}

func (j *StoreJar) setLocked(sourceID, name, value string) {
	if _, exists := j.merged[sourceID][name]; !exists {
		j.order[sourceID] = append(j.order[sourceID], name)
	}
	j.merged[sourceID][name] = value
}

func (j *StoreJar) renderLocked(sourceID string) string {
	names := j.order[sourceID]
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+j.merged[sourceID][name])
	}
	return strings.Join(parts, "; ")
}

func parsePair(pair string) (string, string, bool) {
	name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(value), true
}
