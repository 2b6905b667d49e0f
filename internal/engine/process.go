package engine

import (
	"context"
	"errors"

	"github.com/aurasafe/recsync/internal/cloudapi"
	"github.com/aurasafe/recsync/internal/common"
	"github.com/aurasafe/recsync/internal/events"
	"github.com/aurasafe/recsync/internal/filestore"
	"github.com/aurasafe/recsync/internal/models"
	"github.com/aurasafe/recsync/internal/recindex"
)

// ProcessQueue drains the upload queue until it is empty, a pause condition
// holds, or every remaining item is waiting out its retry delay. Concurrent
// callers join the already-running pass instead of starting a second one.
func (e *Engine) ProcessQueue(ctx context.Context) error {
	_, err, _ := e.sf.Do("process_queue", func() (any, error) {
		return nil, e.run(ctx)
	})
	return err
}

func (e *Engine) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cfg := e.config()
		if pause := cfg.PauseState(); pause != "" {
			e.update(func() {
				e.state = pause
				e.activeID = ""
				e.activeProgress = 0
			})
			return nil
		}

		if e.files.Status() == filestore.StorageCritical {
			e.log.Warn(ctx, "critical disk space, deferring uploads")
			e.update(func() {
				e.state = models.EngineIdle
				e.activeID = ""
				e.activeProgress = 0
			})
			return nil
		}

		items, err := e.queue.Items(ctx)
		if err != nil {
			return err
		}

		now := e.now()
		next := -1
		for i := range items {
			if items[i].Eligible(now) {
				next = i
				break
			}
		}
		if next < 0 {
			e.update(func() {
				e.queueLen = len(items)
				e.state = models.EngineIdle
				e.activeID = ""
				e.activeProgress = 0
			})
			return nil
		}

		if stop := e.uploadOne(ctx, items, next); stop {
			return nil
		}
	}
}

// uploadOne performs a single upload attempt for items[i]. It returns true
// when the whole run must stop (a policy pause); transport failures schedule
// a retry and let the loop move on to the next eligible item.
func (e *Engine) uploadOne(ctx context.Context, items []models.QueueItem, i int) (stop bool) {
	item := &items[i]

	item.Status = models.QueueStatusUploading
	item.UpdatedAt = e.now()
	if err := e.queue.Replace(ctx, items); err != nil {
		e.log.Warn(ctx, "failed to persist queue before upload", "id", item.LocalRecordingID, "error", err)
	}

	uploading := models.CloudSyncUploading
	if err := e.index.UpdateSyncFields(ctx, item.LocalRecordingID, recindex.SyncFieldsPatch{CloudSyncState: &uploading}); err != nil {
		e.log.Warn(ctx, "failed to mark recording uploading", "id", item.LocalRecordingID, "error", err)
	}

	e.update(func() {
		e.state = models.EngineUploading
		e.activeID = item.LocalRecordingID
		e.activeProgress = 0
		e.queueLen = len(items)
	})
	e.tracker.Track(ctx, events.UploadStarted, map[string]any{
		"local_recording_id": item.LocalRecordingID,
		"size_bytes":         item.SizeBytes,
		"attempt":            item.AttemptCount + 1,
	})

	dest, err := e.api.CreateUploadDestination(ctx, cloudapi.UploadDestinationRequest{
		LocalRecordingID: item.LocalRecordingID,
		SizeBytes:        item.SizeBytes,
		DurationMs:       item.DurationMs,
		RecordedAt:       item.RecordedAt,
		ContextType:      item.ContextType,
		ContextID:        item.ContextID,
		Source:           item.Source,
	})
	if err != nil {
		if isPolicyPause(err) {
			e.policyPause(ctx, items, i, err)
			return true
		}
		e.failItem(ctx, items, i, err)
		return false
	}

	item.CloudRecordingID = dest.RecordingID
	item.UpdatedAt = e.now()
	if err := e.queue.Replace(ctx, items); err != nil {
		e.log.Warn(ctx, "failed to persist cloud recording id", "id", item.LocalRecordingID, "error", err)
	}

	lastQuarter := 0
	err = e.upload(ctx, dest.SignedURL, item.LocalURI, func(frac float64) {
		e.update(func() {
			e.activeProgress = frac
		})
		// Quarter-step analytics so a long upload emits four events, not
		// one per chunk.
		if q := int(frac * 4); q > lastQuarter && q <= 4 {
			lastQuarter = q
			e.tracker.Track(ctx, events.UploadProgress, map[string]any{
				"local_recording_id": item.LocalRecordingID,
				"progress":           frac,
			})
		}
	})
	if err != nil {
		e.failItem(ctx, items, i, err)
		return false
	}

	if err := e.api.MarkUploadComplete(ctx, dest.RecordingID, item.SizeBytes, item.DurationMs, common.RecordingMimeType); err != nil {
		if isPolicyPause(err) {
			e.policyPause(ctx, items, i, err)
			return true
		}
		e.failItem(ctx, items, i, err)
		return false
	}

	e.finishItem(ctx, items, i, dest.RecordingID)
	return false
}

// finishItem removes the completed item from the queue and marks the
// recording uploaded.
func (e *Engine) finishItem(ctx context.Context, items []models.QueueItem, i int, cloudRecordingID string) {
	localID := items[i].LocalRecordingID
	remaining := append(items[:i:i], items[i+1:]...)
	if err := e.queue.Replace(ctx, remaining); err != nil {
		e.log.Warn(ctx, "failed to persist queue after upload", "id", localID, "error", err)
	}

	uploaded := models.CloudSyncUploaded
	uploadedAt := e.now()
	clearErr := ""
	err := e.index.UpdateSyncFields(ctx, localID, recindex.SyncFieldsPatch{
		CloudSyncState:   &uploaded,
		CloudRecordingID: &cloudRecordingID,
		CloudUploadedAt:  &uploadedAt,
		CloudLastError:   &clearErr,
	})
	if err != nil {
		e.log.Warn(ctx, "failed to mark recording uploaded", "id", localID, "error", err)
	}

	e.update(func() {
		e.activeProgress = 1
		e.lastError = ""
		e.queueLen = len(remaining)
	})
	e.tracker.Track(ctx, events.UploadSucceeded, map[string]any{
		"local_recording_id": localID,
		"cloud_recording_id": cloudRecordingID,
	})
	e.log.Info(ctx, "uploaded recording", "id", localID, "cloud_id", cloudRecordingID)
}

// policyPause handles an account-level refusal: the item goes back to queued
// untouched (no attempt consumed, no retry timer) and the engine pauses.
func (e *Engine) policyPause(ctx context.Context, items []models.QueueItem, i int, cause error) {
	item := &items[i]
	item.Status = models.QueueStatusQueued
	item.NextRetryAt = nil
	item.UpdatedAt = e.now()
	if err := e.queue.Replace(ctx, items); err != nil {
		e.log.Warn(ctx, "failed to persist queue after policy pause", "id", item.LocalRecordingID, "error", err)
	}

	paused := models.CloudSyncPaused
	if err := e.index.UpdateSyncFields(ctx, item.LocalRecordingID, recindex.SyncFieldsPatch{CloudSyncState: &paused}); err != nil {
		e.log.Warn(ctx, "failed to mark recording paused", "id", item.LocalRecordingID, "error", err)
	}

	e.update(func() {
		e.state = models.EnginePausedNonPro
		e.lastError = cause.Error()
		e.activeID = ""
		e.activeProgress = 0
		e.queueLen = len(items)
	})
	e.log.Info(ctx, "uploads paused by account policy", "id", item.LocalRecordingID, "reason", cause)
}

// failItem records a transport failure: the attempt counter goes up, the item
// waits out a backoff delay, and the loop is free to try the next item.
func (e *Engine) failItem(ctx context.Context, items []models.QueueItem, i int, cause error) {
	item := &items[i]
	item.AttemptCount++
	delay := retryDelay(item.AttemptCount, e.jitter)
	retryAt := e.now().Add(delay)

	item.Status = models.QueueStatusFailed
	item.NextRetryAt = &retryAt
	item.LastError = cause.Error()
	item.UpdatedAt = e.now()
	if err := e.queue.Replace(ctx, items); err != nil {
		e.log.Warn(ctx, "failed to persist queue after upload failure", "id", item.LocalRecordingID, "error", err)
	}

	if item.CloudRecordingID != "" {
		_ = e.api.MarkUploadFailed(ctx, item.CloudRecordingID, "UPLOAD_FAILED", cause.Error())
	}

	failed := models.CloudSyncFailed
	msg := cause.Error()
	if err := e.index.UpdateSyncFields(ctx, item.LocalRecordingID, recindex.SyncFieldsPatch{
		CloudSyncState: &failed,
		CloudLastError: &msg,
	}); err != nil {
		e.log.Warn(ctx, "failed to mark recording failed", "id", item.LocalRecordingID, "error", err)
	}

	e.update(func() {
		e.state = models.EngineError
		e.lastError = msg
		e.activeID = ""
		e.activeProgress = 0
		e.queueLen = len(items)
	})
	e.tracker.Track(ctx, events.UploadFailed, map[string]any{
		"local_recording_id": item.LocalRecordingID,
		"attempt":            item.AttemptCount,
		"error":              msg,
	})
	e.tracker.Track(ctx, events.UploadRetryScheduled, map[string]any{
		"local_recording_id": item.LocalRecordingID,
		"attempt":            item.AttemptCount,
		"delay_ms":           delay.Milliseconds(),
	})
	e.log.Error(ctx, "upload attempt failed", "id", item.LocalRecordingID, "attempt", item.AttemptCount, "retry_in", delay, "error", cause)
}

func isPolicyPause(err error) bool {
	return errors.Is(err, common.ErrProRequired) || errors.Is(err, common.ErrGraceReadOnly)
}
