package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"threadhub/app/database"
	"threadhub/app/source"
)

// PrefetchDetailTask speculatively fetches one item's first detail page so
// the interactive view can be served from cache. Speculative work is never
// retried; a superseded or cancelled prefetch just drops.
type PrefetchDetailTask struct {
	Task
	adapter source.Adapter
	cache   database.CacheStore
	itemID  string
}

func NewPrefetchDetailTask(adapter source.Adapter, cache database.CacheStore, itemID string) *PrefetchDetailTask {
	task := NewTask(TaskTypePrefetchDetail, adapter.ID())
	task.MaxRetries = 0

	return &PrefetchDetailTask{
		Task:    task,
		adapter: adapter,
		cache:   cache,
		itemID:  itemID,
	}
}

func (t *PrefetchDetailTask) Execute(ctx context.Context) error {
	detail, err := t.adapter.Detail(ctx, t.itemID, 1)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Detail prefetch cancelled", "source", t.adapter.ID(), "item", t.itemID)
			return nil
		}
		return fmt.Errorf("failed to prefetch detail %s/%s: %w", t.adapter.ID(), t.itemID, err)
	}

	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to encode detail: %w", err)
	}

	key := fmt.Sprintf("detail_%s_%s", t.adapter.ID(), t.itemID)
	if err := t.cache.SetEntry(key, string(payload)); err != nil {
		return fmt.Errorf("failed to cache detail: %w", err)
	}
	return nil
}
