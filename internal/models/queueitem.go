package models

import (
	"fmt"
	"time"
)

// QueueItemStatus is the lifecycle state of an upload work item.
type QueueItemStatus string

const (
	QueueStatusQueued    QueueItemStatus = "queued"
	QueueStatusUploading QueueItemStatus = "uploading"
	QueueStatusFailed    QueueItemStatus = "failed"
)

func (s QueueItemStatus) IsValid() bool {
	switch s {
	case QueueStatusQueued, QueueStatusUploading, QueueStatusFailed:
		return true
	}
	return false
}

// QueueItem is the upload work-unit derived from an eligible recording.
// At most one exists per recording id. The queue is derived state: it is
// pruned and rebuilt against the recording index during reconciliation and
// is never authoritative over the recording itself.
type QueueItem struct {
	LocalRecordingID string          `json:"localRecordingId"`
	LocalURI         string          `json:"localUri"`
	SizeBytes        int64           `json:"sizeBytes"`
	DurationMs       int64           `json:"durationMs"`
	RecordedAt       time.Time       `json:"recordedAt"`
	ContextType      ContextType     `json:"contextType"`
	ContextID        *string         `json:"contextId"`
	Source           RecordingSource `json:"source"`
	CloudRecordingID string          `json:"cloudRecordingId,omitempty"`

	Status       QueueItemStatus `json:"status"`
	AttemptCount int             `json:"attemptCount"`
	NextRetryAt  *time.Time      `json:"nextRetryAt"`
	LastError    string          `json:"lastError,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// NewQueueItem derives a fresh queued item from an upload-eligible recording.
func NewQueueItem(r Recording, now time.Time) QueueItem {
	return QueueItem{
		LocalRecordingID: r.ID,
		LocalURI:         r.URI,
		SizeBytes:        r.SizeBytes,
		DurationMs:       r.DurationMs,
		RecordedAt:       r.CreatedAt,
		ContextType:      r.ContextType,
		ContextID:        r.ContextID,
		Source:           r.Source,
		CloudRecordingID: r.CloudRecordingID,
		Status:           QueueStatusQueued,
		AttemptCount:     0,
		NextRetryAt:      nil,
		UpdatedAt:        now,
	}
}

// Validate reports whether the persisted queue item is well-formed. The
// queue load path drops items that fail validation instead of failing the
// whole load.
func (q *QueueItem) Validate() error {
	if q.LocalRecordingID == "" {
		return fmt.Errorf("queue item has no localRecordingId")
	}
	if !q.Status.IsValid() {
		return fmt.Errorf("queue item %s has invalid status %q", q.LocalRecordingID, q.Status)
	}
	if !q.ContextType.IsValid() {
		return fmt.Errorf("queue item %s has invalid contextType %q", q.LocalRecordingID, q.ContextType)
	}
	if !q.Source.IsValid() {
		return fmt.Errorf("queue item %s has invalid source %q", q.LocalRecordingID, q.Source)
	}
	if q.AttemptCount < 0 {
		return fmt.Errorf("queue item %s has negative attemptCount", q.LocalRecordingID)
	}
	return nil
}

// Eligible reports whether the item may be picked for upload at the given
// time: queued items always, failed items once their retry time has passed.
// An item already marked uploading is in flight (or was orphaned by a crash
// and will be re-queued during reconciliation).
func (q *QueueItem) Eligible(now time.Time) bool {
	switch q.Status {
	case QueueStatusQueued:
		return true
	case QueueStatusFailed:
		return q.NextRetryAt == nil || !now.Before(*q.NextRetryAt)
	default:
		return false
	}
}
