package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"threadhub/app/database"
	"threadhub/app/source"
)

// RefreshCategoriesTask re-fetches one source's category list and writes it
// through to the cache store.
type RefreshCategoriesTask struct {
	Task
	adapter source.Adapter
	cache   database.CacheStore
}

func NewRefreshCategoriesTask(adapter source.Adapter, cache database.CacheStore) *RefreshCategoriesTask {
	return &RefreshCategoriesTask{
		Task:    NewTask(TaskTypeRefreshCategories, adapter.ID()),
		adapter: adapter,
		cache:   cache,
	}
}

func (t *RefreshCategoriesTask) Execute(ctx context.Context) error {
	categories, err := t.adapter.Categories(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh categories for %s: %w", t.adapter.ID(), err)
	}

	payload, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	if err := t.cache.SetEntry("categories_"+t.adapter.ID(), string(payload)); err != nil {
		return fmt.Errorf("failed to cache categories: %w", err)
	}

	slog.Debug("Categories refreshed", "source", t.adapter.ID(), "count", len(categories))
	return nil
}
