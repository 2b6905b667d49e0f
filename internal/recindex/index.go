// Package recindex implements the persistent recording index: the durable
// mapping from recording id to recording metadata.
//
// The whole index is one JSON document in the key-value store. Every write
// rewrites the full snapshot, so a crash mid-write leaves either the old or
// the new index — never a torn record. Malformed persisted entries are
// dropped during load; corruption of one entry must not take down the rest.
package recindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/aurasafe/recsync/internal/common"
	"github.com/aurasafe/recsync/internal/kvstore"
	"github.com/aurasafe/recsync/internal/logging"
	"github.com/aurasafe/recsync/internal/models"
)

// IndexKey is the fixed document key the index is persisted under.
const IndexKey = "recordings_index"

type Index struct {
	store kvstore.Store
	log   logging.Logger
}

func New(store kvstore.Store, log logging.Logger) *Index {
	return &Index{store: store, log: log}
}

// SyncFieldsPatch is a partial update of the cloud-sync-related fields of a
// recording. Nil fields are left unchanged; a pointer to the zero value
// clears the field.
type SyncFieldsPatch struct {
	CloudSyncState   *models.CloudSyncState
	CloudRecordingID *string
	CloudUploadedAt  *time.Time
	CloudLastError   *string
}

// List returns all recordings, newest first by CreatedAt.
func (i *Index) List(ctx context.Context) ([]models.Recording, error) {
	return i.load(ctx)
}

// Add upserts a recording by id, keeping newest-first order, and persists
// the full index.
func (i *Index) Add(ctx context.Context, rec models.Recording) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("refusing to index invalid recording: %w", err)
	}

	recs, err := i.load(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for n := range recs {
		if recs[n].ID == rec.ID {
			recs[n] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		recs = append(recs, rec)
	}

	return i.save(ctx, recs)
}

// Remove drops the recording with the given id and, when deleteFile is set,
// deletes its backing file. Removing an unknown id is a no-op.
func (i *Index) Remove(ctx context.Context, id string, deleteFile bool) error {
	return i.RemoveBatch(ctx, []string{id}, deleteFile)
}

// RemoveBatch drops every recording whose id is in ids.
func (i *Index) RemoveBatch(ctx context.Context, ids []string, deleteFiles bool) error {
	recs, err := i.load(ctx)
	if err != nil {
		return err
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := recs[:0]
	for _, r := range recs {
		if _, gone := drop[r.ID]; !gone {
			kept = append(kept, r)
			continue
		}
		if deleteFiles && r.URI != "" {
			if err := removeFile(r.URI); err != nil {
				i.log.Warn(ctx, "failed to delete recording file", "id", r.ID, "uri", r.URI, "error", err)
			}
		}
	}

	return i.save(ctx, kept)
}

// UpdateSyncFields applies a partial update of the cloud-sync fields of one
// recording and persists the index. Returns common.ErrNotFound when the id
// is unknown.
func (i *Index) UpdateSyncFields(ctx context.Context, id string, patch SyncFieldsPatch) error {
	recs, err := i.load(ctx)
	if err != nil {
		return err
	}

	for n := range recs {
		if recs[n].ID != id {
			continue
		}
		if patch.CloudSyncState != nil {
			recs[n].CloudSyncState = *patch.CloudSyncState
		}
		if patch.CloudRecordingID != nil {
			recs[n].CloudRecordingID = *patch.CloudRecordingID
		}
		if patch.CloudUploadedAt != nil {
			t := *patch.CloudUploadedAt
			recs[n].CloudUploadedAt = &t
		}
		if patch.CloudLastError != nil {
			recs[n].CloudLastError = *patch.CloudLastError
		}
		return i.save(ctx, recs)
	}

	return fmt.Errorf("recording %s: %w", id, common.ErrNotFound)
}

// RemoveExpired drops every recording past its retention window, deleting
// the backing files, and returns how many were removed.
func (i *Index) RemoveExpired(ctx context.Context, now time.Time) (int, error) {
	recs, err := i.load(ctx)
	if err != nil {
		return 0, err
	}

	var expired []string
	for _, r := range recs {
		if r.Expired(now) {
			expired = append(expired, r.ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if err := i.RemoveBatch(ctx, expired, true); err != nil {
		return 0, err
	}
	i.log.Info(ctx, "removed expired recordings", "count", len(expired))
	return len(expired), nil
}

func (i *Index) load(ctx context.Context) ([]models.Recording, error) {
	raw, err := i.store.Get(ctx, IndexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load recording index: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		i.log.Warn(ctx, "recording index document is malformed, starting empty", "error", err)
		return nil, nil
	}

	recs := make([]models.Recording, 0, len(entries))
	for _, e := range entries {
		var r models.Recording
		if err := json.Unmarshal(e, &r); err != nil {
			i.log.Warn(ctx, "dropping malformed recording entry", "error", err)
			continue
		}
		if err := r.Validate(); err != nil {
			i.log.Warn(ctx, "dropping invalid recording entry", "error", err)
			continue
		}
		recs = append(recs, r)
	}

	sortNewestFirst(recs)
	return recs, nil
}

func (i *Index) save(ctx context.Context, recs []models.Recording) error {
	sortNewestFirst(recs)

	b, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to encode recording index: %w", err)
	}
	if err := i.store.Set(ctx, IndexKey, b); err != nil {
		return fmt.Errorf("failed to persist recording index: %w", err)
	}
	return nil
}

func sortNewestFirst(recs []models.Recording) {
	sort.SliceStable(recs, func(a, b int) bool {
		return recs[a].CreatedAt.After(recs[b].CreatedAt)
	})
}

// removeFile deletes a file, treating "already gone" as success.
func removeFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
