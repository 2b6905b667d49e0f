// Package uploadqueue implements the durable upload queue and its
// reconciliation against the recording index.
//
// The queue is derived state: Reconcile prunes it to exactly the set of
// currently upload-eligible recordings and is idempotent, so it can be run
// on every app start, capture, and deletion without duplicating work.
package uploadqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aurasafe/recsync/internal/kvstore"
	"github.com/aurasafe/recsync/internal/logging"
	"github.com/aurasafe/recsync/internal/models"
	"github.com/aurasafe/recsync/internal/recindex"
)

// QueueKey is the fixed document key the queue is persisted under.
const QueueKey = "cloud_upload_queue"

type Queue struct {
	store kvstore.Store
	index *recindex.Index
	log   logging.Logger
}

func New(store kvstore.Store, index *recindex.Index, log logging.Logger) *Queue {
	return &Queue{store: store, index: index, log: log}
}

// Items returns the persisted queue, oldest RecordedAt first. Malformed
// persisted items are dropped, never the whole queue.
func (q *Queue) Items(ctx context.Context) ([]models.QueueItem, error) {
	raw, err := q.store.Get(ctx, QueueKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load upload queue: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		q.log.Warn(ctx, "upload queue document is malformed, starting empty", "error", err)
		return nil, nil
	}

	items := make([]models.QueueItem, 0, len(entries))
	for _, e := range entries {
		var item models.QueueItem
		if err := json.Unmarshal(e, &item); err != nil {
			q.log.Warn(ctx, "dropping malformed queue item", "error", err)
			continue
		}
		if err := item.Validate(); err != nil {
			q.log.Warn(ctx, "dropping invalid queue item", "error", err)
			continue
		}
		items = append(items, item)
	}

	sortOldestFirst(items)
	return items, nil
}

// Replace persists items as the complete queue document.
func (q *Queue) Replace(ctx context.Context, items []models.QueueItem) error {
	sortOldestFirst(items)

	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode upload queue: %w", err)
	}
	if err := q.store.Set(ctx, QueueKey, b); err != nil {
		return fmt.Errorf("failed to persist upload queue: %w", err)
	}
	return nil
}

// Clear drops every queued item.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.store.Delete(ctx, QueueKey); err != nil {
		return fmt.Errorf("failed to clear upload queue: %w", err)
	}
	return nil
}

// Reconcile derives the queue from the current recording set:
//
//  1. Items whose recording no longer exists are pruned.
//  2. Items still marked uploading were orphaned by a crash mid-upload;
//     they are reset to queued so the next run re-attempts them from the
//     start.
//  3. Upload-eligible recordings not yet queued are appended as fresh
//     queued items and marked pending in the index.
//  4. The queue is re-sorted oldest-RecordedAt-first and persisted.
//
// Calling it twice with the same recordings yields the same queue.
func (q *Queue) Reconcile(ctx context.Context, recordings []models.Recording, now time.Time) ([]models.QueueItem, error) {
	items, err := q.Items(ctx)
	if err != nil {
		return nil, err
	}

	present := make(map[string]struct{}, len(recordings))
	for _, r := range recordings {
		present[r.ID] = struct{}{}
	}

	kept := items[:0]
	queued := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := present[item.LocalRecordingID]; !ok {
			q.log.Debug(ctx, "pruning queue item without backing recording", "id", item.LocalRecordingID)
			continue
		}
		if item.Status == models.QueueStatusUploading {
			q.log.Warn(ctx, "requeueing upload orphaned by interrupted run", "id", item.LocalRecordingID)
			item.Status = models.QueueStatusQueued
			item.NextRetryAt = nil
			item.UpdatedAt = now
		}
		kept = append(kept, item)
		queued[item.LocalRecordingID] = struct{}{}
	}

	for _, r := range recordings {
		if !r.UploadEligible() {
			continue
		}
		if _, already := queued[r.ID]; already {
			continue
		}

		kept = append(kept, models.NewQueueItem(r, now))

		pending := models.CloudSyncPending
		if err := q.index.UpdateSyncFields(ctx, r.ID, recindex.SyncFieldsPatch{CloudSyncState: &pending}); err != nil {
			q.log.Warn(ctx, "failed to mark recording pending", "id", r.ID, "error", err)
		}
	}

	if err := q.Replace(ctx, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

func sortOldestFirst(items []models.QueueItem) {
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].RecordedAt.Before(items[b].RecordedAt)
	})
}
