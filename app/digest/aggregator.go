// Package digest builds the cross-source cover digest: the top items of a
// few sources, each with an optional narrative summary, merged into one
// persisted artifact.
package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"threadhub/app/database"
	"threadhub/app/source"
	"threadhub/app/summarize"
)

const (
	cacheKey = "digest"

	topN = 10

	// A persisted summary shorter than this is an implicit generation
	// failure and is never served as valid.
	minSummaryRunes = 120
)

// Artifact is the persisted digest document.
type Artifact struct {
	GeneratedAt time.Time `json:"generated_at"`
	Summary     string    `json:"summary"`
	Sections    []Section `json:"sections"`
}

type Section struct {
	SourceID   string        `json:"source_id"`
	SourceName string        `json:"source_name"`
	Summary    string        `json:"summary,omitempty"`
	Items      []source.Item `json:"items"`
}

type Aggregator struct {
	registry   *source.Registry
	sourceIDs  []string
	summarizer *summarize.Client
	cache      database.CacheStore

	fresh time.Duration
	stale time.Duration

	flight singleflight.Group
}

// New builds an aggregator over the given source ids (the cover sources).
func New(registry *source.Registry, sourceIDs []string, summarizer *summarize.Client,
	cache database.CacheStore, fresh, stale time.Duration) *Aggregator {
	return &Aggregator{
		registry:   registry,
		sourceIDs:  sourceIDs,
		summarizer: summarizer,
		cache:      cache,
		fresh:      fresh,
		stale:      stale,
	}
}

// Get returns the digest, serving the persisted artifact when it is still
// valid. needsRefresh reports that the served copy is old enough that the
// caller should schedule a background regeneration.
func (a *Aggregator) Get(ctx context.Context) (artifact *Artifact, needsRefresh bool, err error) {
	if cached := a.loadCached(); cached != nil {
		age := time.Since(cached.GeneratedAt)
		return cached, age > a.stale, nil
	}

	artifact, err = a.Refresh(ctx)
	return artifact, false, err
}

// Refresh regenerates and persists the digest. Concurrent callers collapse
// onto one generation.
func (a *Aggregator) Refresh(ctx context.Context) (*Artifact, error) {
	v, err, _ := a.flight.Do(cacheKey, func() (interface{}, error) {
		return a.generate(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// loadCached returns the persisted artifact when it is servable: present,
// decodable, younger than the freshness window and carrying a summary long
// enough to count as a real generation.
func (a *Aggregator) loadCached() *Artifact {
	entry, err := a.cache.GetEntry(cacheKey)
	if err != nil || entry == nil {
		return nil
	}

	var artifact Artifact
	if err := json.Unmarshal([]byte(entry.Payload), &artifact); err != nil {
		// Corrupt payload is a cache miss, never an error
		slog.Warn("Discarding undecodable digest cache entry", "error", err)
		return nil
	}

	if time.Since(artifact.GeneratedAt) > a.fresh {
		return nil
	}
	if utf8.RuneCountInString(artifact.Summary) < minSummaryRunes {
		return nil
	}
	return &artifact
}

func (a *Aggregator) generate(ctx context.Context) (*Artifact, error) {
	sections := a.fetchSections(ctx)

	nonEmpty := 0
	for _, s := range sections {
		nonEmpty += len(s.Items)
	}
	if nonEmpty == 0 {
		return nil, fmt.Errorf("no digest content available from any source")
	}

	a.summarizeSections(ctx, sections)

	artifact := &Artifact{
		GeneratedAt: time.Now().UTC(),
		Summary:     a.overallSummary(sections),
		Sections:    sections,
	}

	payload, err := json.Marshal(artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to encode digest: %w", err)
	}
	if err := a.cache.SetEntry(cacheKey, string(payload)); err != nil {
		// Persistence failure degrades to serving the in-memory copy
		slog.Warn("Failed to persist digest", "error", err)
	}

	return artifact, nil
}

// fetchSections pulls the top items of every cover source concurrently. A
// failing source contributes an empty section, never an aggregate failure.
func (a *Aggregator) fetchSections(ctx context.Context) []Section {
	sections := make([]Section, len(a.sourceIDs))

	var wg sync.WaitGroup
	for i, id := range a.sourceIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sections[i] = a.fetchSection(ctx, id)
		}(i, id)
	}
	wg.Wait()

	return sections
}

func (a *Aggregator) fetchSection(ctx context.Context, sourceID string) Section {
	section := Section{SourceID: sourceID, SourceName: sourceID}

	adapter, ok := a.registry.Get(sourceID)
	if !ok {
		slog.Warn("Digest source not registered", "source", sourceID)
		return section
	}
	section.SourceName = adapter.Name()

	categories, err := adapter.Categories(ctx)
	if err != nil || len(categories) == 0 {
		slog.Warn("Digest category fetch failed", "source", sourceID, "error", err)
		return section
	}

	items, err := adapter.Items(ctx, categories[0].ID, 1)
	if err != nil {
		slog.Warn("Digest item fetch failed", "source", sourceID, "error", err)
		return section
	}

	if len(items) > topN {
		items = items[:topN]
	}
	section.Items = items
	return section
}

// summarizeSections asks the summarization service for one narrative per
// non-empty section, all concurrently. Failures leave the section summary
// empty; the deterministic fallback covers them.
func (a *Aggregator) summarizeSections(ctx context.Context, sections []Section) {
	if !a.summarizer.Available() {
		return
	}

	var wg sync.WaitGroup
	for i := range sections {
		if len(sections[i].Items) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			lines := make([]string, 0, len(sections[i].Items))
			for _, item := range sections[i].Items {
				lines = append(lines, fmt.Sprintf("%s (%s, %d 回复)", item.Title, item.Author.Name, item.ReplyCount))
			}

			summary, err := a.summarizer.SummarizeSiteDigest(ctx, sections[i].SourceName, lines)
			if err != nil {
				slog.Warn("Section summarization failed", "source", sections[i].SourceID, "error", err)
				return
			}
			sections[i].Summary = summary
		}(i)
	}
	wg.Wait()
}

// overallSummary joins the per-section narratives, or falls back to a
// deterministic plain-text rendering of the fetched items when no narrative
// survived.
func (a *Aggregator) overallSummary(sections []Section) string {
	var narratives []string
	for _, s := range sections {
		if s.Summary != "" {
			narratives = append(narratives, fmt.Sprintf("%s:%s", s.SourceName, s.Summary))
		}
	}
	if len(narratives) > 0 {
		return strings.Join(narratives, "\n\n")
	}
	return fallbackSummary(sections)
}

func fallbackSummary(sections []Section) string {
	var b strings.Builder
	for _, s := range sections {
		if len(s.Items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s 热门:\n", s.SourceName)
		for i, item := range s.Items {
			fmt.Fprintf(&b, "%d. %s", i+1, item.Title)
			if item.ReplyCount > 0 {
				fmt.Fprintf(&b, "(%d 回复)", item.ReplyCount)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
