// Package models defines the device-side data model for recording
// synchronization: locally captured recordings, upload queue items, and the
// sync engine's externally visible state.
package models

import (
	"fmt"
	"time"
)

// RetentionWindow is how long a captured recording is kept on the device.
// ExpiresAt is always CreatedAt + RetentionWindow exactly.
const RetentionWindow = 7 * 24 * time.Hour

// ContextType classifies what activity a recording was captured for.
type ContextType string

const (
	ContextTypeBooking      ContextType = "booking"
	ContextTypeLiveLocation ContextType = "live_location"
	ContextTypeManual       ContextType = "manual"
)

func (c ContextType) IsValid() bool {
	switch c {
	case ContextTypeBooking, ContextTypeLiveLocation, ContextTypeManual:
		return true
	}
	return false
}

// RecordingSource says how a recording came to exist on this device.
type RecordingSource string

const (
	SourceManual           RecordingSource = "manual"
	SourceAutoBooking      RecordingSource = "auto_booking"
	SourceAutoLiveLocation RecordingSource = "auto_live_location"
	SourceRestarted        RecordingSource = "restarted"

	// SourceCloudDownload marks recordings pulled down from the backend.
	// They already live in cloud storage and must never be re-queued
	// for upload.
	SourceCloudDownload RecordingSource = "cloud_download"
)

func (s RecordingSource) IsValid() bool {
	switch s {
	case SourceManual, SourceAutoBooking, SourceAutoLiveLocation, SourceRestarted, SourceCloudDownload:
		return true
	}
	return false
}

// CloudSyncState tracks a recording's progress toward cloud storage.
// The empty string means the recording has never entered the sync pipeline.
type CloudSyncState string

const (
	CloudSyncNone      CloudSyncState = ""
	CloudSyncPending   CloudSyncState = "pending"
	CloudSyncUploading CloudSyncState = "uploading"
	CloudSyncUploaded  CloudSyncState = "uploaded"
	CloudSyncFailed    CloudSyncState = "failed"
	CloudSyncPaused    CloudSyncState = "paused"
)

func (s CloudSyncState) IsValid() bool {
	switch s {
	case CloudSyncNone, CloudSyncPending, CloudSyncUploading, CloudSyncUploaded, CloudSyncFailed, CloudSyncPaused:
		return true
	}
	return false
}

// Recording is one locally captured audio segment with retention and sync
// metadata. One record exists per captured segment; URI is owned exclusively
// by this recording until it is deleted.
type Recording struct {
	ID         string    `json:"id"`
	URI        string    `json:"uri"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	DurationMs int64     `json:"durationMs"`
	SizeBytes  int64     `json:"sizeBytes"`

	ContextType ContextType `json:"contextType"`
	ContextID   *string     `json:"contextId"`

	Source RecordingSource `json:"source"`

	CloudSyncState   CloudSyncState `json:"cloudSyncState"`
	CloudRecordingID string         `json:"cloudRecordingId,omitempty"`
	CloudUploadedAt  *time.Time     `json:"cloudUploadedAt,omitempty"`
	CloudLastError   string         `json:"cloudLastError,omitempty"`
}

// Validate reports whether the recording satisfies the persisted-record
// schema. The index load path drops records that fail validation instead of
// failing the whole load.
func (r *Recording) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("recording has no id")
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("recording %s has no createdAt", r.ID)
	}
	if r.DurationMs < 0 || r.SizeBytes < 0 {
		return fmt.Errorf("recording %s has negative duration or size", r.ID)
	}
	if !r.ContextType.IsValid() {
		return fmt.Errorf("recording %s has invalid contextType %q", r.ID, r.ContextType)
	}
	if !r.Source.IsValid() {
		return fmt.Errorf("recording %s has invalid source %q", r.ID, r.Source)
	}
	if !r.CloudSyncState.IsValid() {
		return fmt.Errorf("recording %s has invalid cloudSyncState %q", r.ID, r.CloudSyncState)
	}
	return nil
}

// UploadEligible reports whether the recording should ever be placed on the
// upload queue: cloud downloads never go back up, a recording without a
// local file has nothing to upload, and an uploaded recording is done.
func (r *Recording) UploadEligible() bool {
	if r.Source == SourceCloudDownload {
		return false
	}
	if r.URI == "" {
		return false
	}
	return r.CloudSyncState != CloudSyncUploaded
}

// Expired reports whether the retention window has passed at the given time.
func (r *Recording) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
