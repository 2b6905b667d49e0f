package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/aurasafe/recsync/internal/cloudapi"
	"github.com/aurasafe/recsync/internal/events"
	"github.com/aurasafe/recsync/internal/filestore"
	"github.com/aurasafe/recsync/internal/models"
	"github.com/aurasafe/recsync/internal/recindex"
)

// autoDownloadBatchLimit caps how many cloud recordings one reconciliation
// pass pulls down.
const autoDownloadBatchLimit = 20

// DownloadResult summarizes one auto-download pass.
type DownloadResult struct {
	Succeeded int
	Failed    int
}

// ProcessAutoDownloads pulls recordings that exist only in cloud storage down
// onto this device: list pending, download each through a signed URL, persist
// and index it locally, then delete the cloud object (best effort) and
// acknowledge completion. One failed item never aborts the rest of the batch.
//
// Without cloud read access the pass is a silent no-op; read access can lapse
// while downloads are pending and that is not an error.
func (e *Engine) ProcessAutoDownloads(ctx context.Context) (DownloadResult, error) {
	if !e.config().HasCloudReadAccess {
		return DownloadResult{}, nil
	}

	pending, err := e.api.ListPendingAutoDownloads(ctx, autoDownloadBatchLimit)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("failed to list pending downloads: %w", err)
	}
	if len(pending) == 0 {
		return DownloadResult{}, nil
	}

	var res DownloadResult
	for _, cr := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := e.downloadOne(ctx, cr); err != nil {
			res.Failed++
			e.log.Error(ctx, "auto-download failed", "cloud_id", cr.ID, "error", err)
			e.tracker.Track(ctx, events.DownloadFailed, map[string]any{
				"cloud_recording_id": cr.ID,
				"error":              err.Error(),
			})
			continue
		}

		res.Succeeded++
		e.tracker.Track(ctx, events.DownloadSucceeded, map[string]any{
			"cloud_recording_id": cr.ID,
		})
	}

	e.log.Info(ctx, "auto-download pass finished", "succeeded", res.Succeeded, "failed", res.Failed)
	return res, nil
}

func (e *Engine) downloadOne(ctx context.Context, cr cloudapi.CloudRecording) error {
	e.tracker.Track(ctx, events.DownloadStarted, map[string]any{
		"cloud_recording_id": cr.ID,
	})

	url, err := e.api.GetDownloadURL(ctx, cr.ID)
	if err != nil {
		return fmt.Errorf("failed to get download url: %w", err)
	}

	dir, err := e.files.EnsureSessionDir(filestore.AutoDownloadDirName)
	if err != nil {
		return err
	}

	temp := filepath.Join(dir, uuid.NewString()+".m4a")
	if _, err := e.download(ctx, url, temp); err != nil {
		return fmt.Errorf("failed to download recording: %w", err)
	}

	rec, err := e.files.PersistFromTemp(ctx, temp, filestore.PersistParams{
		SessionID:   filestore.AutoDownloadDirName,
		CreatedAt:   cr.RecordedAt,
		DurationMs:  cr.DurationMs,
		ContextType: models.ContextTypeManual,
		Source:      models.SourceCloudDownload,
	})
	if err != nil {
		return err
	}

	// Keep the cloud provenance on the local record.
	cloudID := cr.ID
	if err := e.index.UpdateSyncFields(ctx, rec.ID, recindex.SyncFieldsPatch{CloudRecordingID: &cloudID}); err != nil {
		e.log.Warn(ctx, "failed to record cloud provenance", "id", rec.ID, "error", err)
	}

	// The local copy is now authoritative. A leftover object only costs
	// storage, so the delete is best effort.
	if cr.Bucket != "" && cr.ObjectPath != "" {
		if err := e.objects.RemoveObject(ctx, cr.Bucket, cr.ObjectPath); err != nil {
			e.log.Warn(ctx, "failed to delete cloud object", "bucket", cr.Bucket, "path", cr.ObjectPath, "error", err)
		}
	}

	if err := e.api.CompleteAutoDownload(ctx, cr.ID); err != nil {
		return fmt.Errorf("failed to acknowledge download: %w", err)
	}

	e.log.Info(ctx, "downloaded cloud recording", "cloud_id", cr.ID, "local_id", rec.ID, "uri", rec.URI)
	return nil
}
