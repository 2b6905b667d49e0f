// Package filestore owns the on-device directory layout and file lifecycle
// for captured recordings: session directories, moving finished captures out
// of temp storage, deletion, and free-space accounting.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aurasafe/recsync/internal/logging"
	"github.com/aurasafe/recsync/internal/models"
	"github.com/aurasafe/recsync/internal/recindex"
)

const (
	// AutoDownloadDirName is the session directory recordings pulled down
	// from the cloud are persisted into.
	AutoDownloadDirName = "auto-download"

	warningFreeBytes  = 500 << 20 // 500 MiB
	criticalFreeBytes = 200 << 20 // 200 MiB

	defaultExt = ".m4a"
)

// FreeSpaceUnknown is returned by FreeSpace when the platform cannot report
// available disk space.
const FreeSpaceUnknown = int64(-1)

// StorageStatus classifies remaining disk space. Critical blocks new
// recording starts and new upload attempts; enforcement belongs to the
// callers that consult it (the capture pipeline and the sync engine).
type StorageStatus string

const (
	StorageOK       StorageStatus = "ok"
	StorageWarning  StorageStatus = "warning"
	StorageCritical StorageStatus = "critical"
)

type Store struct {
	root  string
	index *recindex.Index
	log   logging.Logger
}

// New returns a Store rooted at root. The directory is created lazily.
func New(root string, index *recindex.Index, log logging.Logger) *Store {
	return &Store{root: root, index: index, log: log}
}

// EnsureRootDir creates the recordings root if absent and returns its path.
func (s *Store) EnsureRootDir() (string, error) {
	if err := os.MkdirAll(s.root, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", s.root, err)
	}
	return s.root, nil
}

// EnsureSessionDir creates the per-session directory if absent and returns
// its path. Idempotent.
func (s *Store) EnsureSessionDir(sessionID string) (string, error) {
	if _, err := s.EnsureRootDir(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, sanitizeComponent(sessionID))
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// PersistParams describes the captured segment being persisted.
type PersistParams struct {
	SessionID   string
	CreatedAt   time.Time
	DurationMs  int64
	ContextType models.ContextType
	ContextID   *string
	Source      models.RecordingSource
}

// PersistFromTemp moves a finished capture from tempPath into the session
// directory, stats it, registers the resulting Recording in the index, and
// returns it. The destination name combines the sanitized capture timestamp
// with a generated id so concurrent segments never collide.
func (s *Store) PersistFromTemp(ctx context.Context, tempPath string, p PersistParams) (models.Recording, error) {
	dir, err := s.EnsureSessionDir(p.SessionID)
	if err != nil {
		return models.Recording{}, err
	}

	id := uuid.NewString()
	ext := filepath.Ext(tempPath)
	if ext == "" {
		ext = defaultExt
	}
	dest := filepath.Join(dir, sanitizeTimestamp(p.CreatedAt)+"_"+id+ext)

	if err := moveFile(tempPath, dest); err != nil {
		return models.Recording{}, fmt.Errorf("failed to persist capture: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return models.Recording{}, fmt.Errorf("failed to stat persisted capture: %w", err)
	}

	rec := models.Recording{
		ID:          id,
		URI:         dest,
		CreatedAt:   p.CreatedAt,
		ExpiresAt:   p.CreatedAt.Add(models.RetentionWindow),
		DurationMs:  p.DurationMs,
		SizeBytes:   info.Size(),
		ContextType: p.ContextType,
		ContextID:   p.ContextID,
		Source:      p.Source,
	}

	if err := s.index.Add(ctx, rec); err != nil {
		return models.Recording{}, fmt.Errorf("failed to register recording: %w", err)
	}

	s.log.Info(ctx, "persisted recording", "id", rec.ID, "uri", rec.URI, "bytes", rec.SizeBytes)
	return rec, nil
}

// DeleteFile removes the file at uri. A file that is already gone is not an
// error.
func (s *Store) DeleteFile(uri string) error {
	err := os.Remove(uri)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", uri, err)
	}
	return nil
}

// Status classifies the currently available disk space. Unknown free space
// reads as OK: without a number there is nothing to enforce.
func (s *Store) Status() StorageStatus {
	free := s.FreeSpace()
	switch {
	case free == FreeSpaceUnknown:
		return StorageOK
	case free < criticalFreeBytes:
		return StorageCritical
	case free < warningFreeBytes:
		return StorageWarning
	default:
		return StorageOK
	}
}

// RemoveMissingFiles drops every indexed recording whose backing file no
// longer exists and returns how many were removed. Files deleted behind our
// back (an OS storage wipe, a file manager) leave the index and the
// filesystem diverged; this brings the index back to reality.
func (s *Store) RemoveMissingFiles(ctx context.Context) (int, error) {
	recs, err := s.index.List(ctx)
	if err != nil {
		return 0, err
	}

	var missing []string
	for _, r := range recs {
		if r.URI == "" {
			continue
		}
		if _, err := os.Stat(r.URI); errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, r.ID)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	// Nothing to delete on disk: the files are already gone.
	if err := s.index.RemoveBatch(ctx, missing, false); err != nil {
		return 0, err
	}
	s.log.Info(ctx, "dropped recordings with missing files", "count", len(missing))
	return len(missing), nil
}

// moveFile renames src to dest, falling back to copy+remove when the two
// paths live on different filesystems (common for platform temp dirs).
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return err
	}

	return os.Remove(src)
}

// sanitizeTimestamp renders t as a filename-safe UTC timestamp.
func sanitizeTimestamp(t time.Time) string {
	return strings.NewReplacer(":", "-", "+", "_").Replace(t.UTC().Format(time.RFC3339))
}

// sanitizeComponent strips path separators and other characters that are
// unsafe in a directory name.
func sanitizeComponent(name string) string {
	if name == "" {
		return "untitled"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, name)
}
