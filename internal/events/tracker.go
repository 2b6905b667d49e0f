// Package events is the fire-and-forget analytics sink for cloud-sync
// lifecycle events. Tracking must never block or fail the engine.
package events

import (
	"context"

	"github.com/aurasafe/recsync/internal/logging"
)

// Event names emitted by the sync engine.
const (
	UploadStarted        = "safety_audio_cloud_upload_started"
	UploadProgress       = "safety_audio_cloud_upload_progress"
	UploadSucceeded      = "safety_audio_cloud_upload_succeeded"
	UploadFailed         = "safety_audio_cloud_upload_failed"
	UploadRetryScheduled = "safety_audio_cloud_upload_retry_scheduled"
	DownloadStarted      = "safety_audio_cloud_download_started"
	DownloadSucceeded    = "safety_audio_cloud_download_succeeded"
	DownloadFailed       = "safety_audio_cloud_download_failed"
)

// Tracker receives named events with free-form properties.
type Tracker interface {
	Track(ctx context.Context, name string, props map[string]any)
}

// LogTracker writes events to the structured log. The default sink on
// builds without an analytics pipeline.
type LogTracker struct {
	log logging.Logger
}

func NewLogTracker(log logging.Logger) *LogTracker {
	return &LogTracker{log: log}
}

func (t *LogTracker) Track(ctx context.Context, name string, props map[string]any) {
	args := make([]any, 0, len(props)*2+2)
	args = append(args, "event", name)
	for k, v := range props {
		args = append(args, k, v)
	}
	t.log.Info(ctx, "track", args...)
}

// NopTracker discards every event.
type NopTracker struct{}

func (NopTracker) Track(ctx context.Context, name string, props map[string]any) {}
