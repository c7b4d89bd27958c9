package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type stubAdapter struct {
	id string
}

func (s *stubAdapter) ID() string   { return s.id }
func (s *stubAdapter) Name() string { return s.id }
func (s *stubAdapter) Categories(ctx context.Context) ([]Category, error) {
	return nil, nil
}
func (s *stubAdapter) Items(ctx context.Context, categoryID string, page int) ([]Item, error) {
	return nil, nil
}
func (s *stubAdapter) Detail(ctx context.Context, itemID string, page int) (*PagedDetail, error) {
	return nil, nil
}
func (s *stubAdapter) PostReply(ctx context.Context, itemID, categoryID, text string) error {
	return ErrUnsupported
}
func (s *stubAdapter) CreateItem(ctx context.Context, categoryID, title, body string) (string, error) {
	return "", ErrUnsupported
}
func (s *stubAdapter) WebURL(item Item) string { return "" }
func (s *stubAdapter) SupportsPosting() bool   { return false }
func (s *stubAdapter) RequiresLogin() bool     { return false }

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&stubAdapter{id: "hackernews"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&stubAdapter{id: "hackernews"}); err == nil {
		t.Error("Expected error on duplicate source id")
	}

	if _, ok := r.Get("hackernews"); !ok {
		t.Error("Expected registered adapter to be found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Unknown id must not resolve")
	}
}

func TestRegistryAllIsSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"zhihu", "feeds", "hostloc"} {
		r.Register(&stubAdapter{id: id})
	}

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("Expected 3 adapters, got: %d", len(all))
	}
	if all[0].ID() != "feeds" || all[2].ID() != "zhihu" {
		t.Errorf("Expected sorted order, got: %s, %s, %s", all[0].ID(), all[1].ID(), all[2].ID())
	}
}

func TestChallengeErrorDetection(t *testing.T) {
	base := &ChallengeError{SourceID: "linuxdo", StatusCode: 403}
	wrapped := fmt.Errorf("detail fetch: %w", base)

	if !IsChallenge(wrapped) {
		t.Error("Expected wrapped challenge error to be recognized")
	}
	if IsChallenge(errors.New("timeout")) {
		t.Error("Plain error must not look like a challenge")
	}
}

func TestRelativeAge(t *testing.T) {
	if got := RelativeAge(time.Time{}); got != "Recent" {
		t.Errorf("Expected 'Recent' for zero time, got: %q", got)
	}
	if got := RelativeAge(time.Now().Add(-30 * time.Second)); got != "just now" {
		t.Errorf("Expected 'just now', got: %q", got)
	}
	if got := RelativeAge(time.Now().Add(-90 * time.Minute)); got != "1h ago" {
		t.Errorf("Expected '1h ago', got: %q", got)
	}
	if got := RelativeAge(time.Now().Add(-49 * time.Hour)); got != "2d ago" {
		t.Errorf("Expected '2d ago', got: %q", got)
	}
}

func TestFiltererExcludes(t *testing.T) {
	f := NewFilterer()
	config := &Config{
		Filters: []ConfigFilter{
			{Field: "title", Excludes: []string{"spam"}},
		},
	}

	items := []Item{
		{ID: "1", Title: "Interesting thread"},
		{ID: "2", Title: "SPAM giveaway"},
	}
	out := f.Run(items, config)
	if len(out) != 1 || out[0].ID != "1" {
		t.Errorf("Expected only item 1 to survive, got: %+v", out)
	}
}

func TestFiltererIncludes(t *testing.T) {
	f := NewFilterer()
	config := &Config{
		Filters: []ConfigFilter{
			{Field: "title", Includes: []string{"go", "rust"}},
		},
	}

	items := []Item{
		{ID: "1", Title: "Go generics"},
		{ID: "2", Title: "Python tips"},
	}
	out := f.Run(items, config)
	if len(out) != 1 || out[0].ID != "1" {
		t.Errorf("Expected include filter to keep only item 1, got: %+v", out)
	}
}

func TestConfigCacheDefaults(t *testing.T) {
	cc := NewConfigCache(t.TempDir())
	config := cc.GetConfig("unconfigured")
	if !config.Settings.Enabled {
		t.Error("Unconfigured sources should default to enabled")
	}
	if config.Settings.MaxItems != 50 {
		t.Errorf("Expected default max items 50, got: %d", config.Settings.MaxItems)
	}
}
