package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"threadhub/app/digest"
)

// RefreshDigestTask regenerates the cover digest in the background. When
// force is false the task only regenerates if the persisted artifact asks
// for a refresh.
type RefreshDigestTask struct {
	Task
	aggregator *digest.Aggregator
	force      bool
}

func NewRefreshDigestTask(aggregator *digest.Aggregator, force bool) *RefreshDigestTask {
	return &RefreshDigestTask{
		Task:       NewTask(TaskTypeRefreshDigest, "digest"),
		aggregator: aggregator,
		force:      force,
	}
}

func (t *RefreshDigestTask) Execute(ctx context.Context) error {
	if !t.force {
		_, needsRefresh, err := t.aggregator.Get(ctx)
		if err == nil && !needsRefresh {
			slog.Debug("Digest still fresh, skipping refresh")
			return nil
		}
	}

	if _, err := t.aggregator.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh digest: %w", err)
	}

	slog.Debug("Digest refreshed")
	return nil
}
