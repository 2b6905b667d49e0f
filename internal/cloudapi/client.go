// Package cloudapi is the device-side client for the backend cloud-sync API.
// Uploads and downloads themselves go straight to object storage through
// signed URLs; this client only negotiates descriptors and acknowledges
// outcomes.
package cloudapi

import (
	"context"
	"time"

	"github.com/aurasafe/recsync/internal/models"
)

// UploadDestinationRequest carries the recording metadata the backend needs
// to create a cloud-side record and sign an upload destination.
type UploadDestinationRequest struct {
	LocalRecordingID string                 `json:"localRecordingId"`
	SizeBytes        int64                  `json:"sizeBytes"`
	DurationMs       int64                  `json:"durationMs"`
	RecordedAt       time.Time              `json:"recordedAt"`
	ContextType      models.ContextType     `json:"contextType"`
	ContextID        *string                `json:"contextId"`
	Source           models.RecordingSource `json:"source"`
}

// UploadDestination is the backend's answer: the cloud recording id plus a
// signed URL the file is PUT to.
type UploadDestination struct {
	RecordingID string `json:"recordingId"`
	SignedURL   string `json:"signedUrl"`
}

// CloudRecording describes a recording that exists in cloud storage but not
// on this device.
type CloudRecording struct {
	ID         string    `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	DurationMs int64     `json:"duration_ms"`
	Bucket     string    `json:"bucket"`
	ObjectPath string    `json:"object_path"`
}

// Client is the backend cloud-sync API surface consumed by the engine.
//
// CreateUploadDestination returns common.ErrProRequired or
// common.ErrGraceReadOnly (match with errors.Is) when the account may not
// upload right now; those are policy pauses, not failures.
type Client interface {
	CreateUploadDestination(ctx context.Context, req UploadDestinationRequest) (*UploadDestination, error)
	MarkUploadComplete(ctx context.Context, recordingID string, sizeBytes, durationMs int64, mimeType string) error
	// MarkUploadFailed is best effort; callers ignore its error.
	MarkUploadFailed(ctx context.Context, recordingID, errorCode, errorMessage string) error
	ListPendingAutoDownloads(ctx context.Context, limit int) ([]CloudRecording, error)
	GetDownloadURL(ctx context.Context, recordingID string) (string, error)
	CompleteAutoDownload(ctx context.Context, recordingID string) error
}
