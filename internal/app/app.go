// Package app wires the sync agent together: local database, recording
// index, file store, upload queue, backend client, and the engine.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aurasafe/recsync/internal/cloudapi"
	"github.com/aurasafe/recsync/internal/config"
	"github.com/aurasafe/recsync/internal/engine"
	"github.com/aurasafe/recsync/internal/events"
	"github.com/aurasafe/recsync/internal/filestore"
	"github.com/aurasafe/recsync/internal/kvstore"
	"github.com/aurasafe/recsync/internal/logging"
	"github.com/aurasafe/recsync/internal/models"
	"github.com/aurasafe/recsync/internal/objstore"
	"github.com/aurasafe/recsync/internal/recindex"
	"github.com/aurasafe/recsync/internal/uploadqueue"

	_ "modernc.org/sqlite"
)

type App struct {
	Config *config.Config
	Log    logging.Logger

	Index  *recindex.Index
	Files  *filestore.Store
	Queue  *uploadqueue.Queue
	API    *cloudapi.HTTPClient
	Engine *engine.Engine

	db *sql.DB
}

func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o770); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	kv, db, err := kvstore.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	index := recindex.New(kv, log)
	files := filestore.New(filepath.Join(cfg.DataDir, "recordings"), index, log)
	queue := uploadqueue.New(kv, index, log)

	api := cloudapi.NewHTTPClient(cfg.ServerBaseURL, cfg.AccessToken, cfg.RefreshToken, log)
	api.SetTimeout(cfg.HTTPTimeout)

	var remover objstore.Remover = objstore.NopRemover{}
	if cfg.S3AccessKey != "" {
		remover, err = objstore.NewS3Remover(ctx, objstore.Config{
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to init object storage: %w", err)
		}
	}

	// A headless agent has no subscription or connectivity signal of its
	// own. Start permissive; the backend's policy answers and transport
	// errors pull the engine into the right paused state.
	eng := engine.New(engine.Params{
		Queue:   queue,
		Index:   index,
		Files:   files,
		API:     api,
		Objects: remover,
		Tracker: events.NewLogTracker(log),
		Log:     log,
		InitialConfig: models.SyncConfig{
			IsProActive:        true,
			HasCloudReadAccess: true,
			IsConnected:        true,
			IsWifi:             true,
			WifiOnlyUpload:     cfg.WifiOnlyUpload,
		},
	})

	return &App{
		Config: cfg,
		Log:    log,
		Index:  index,
		Files:  files,
		Queue:  queue,
		API:    api,
		Engine: eng,
		db:     db,
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// GCReport summarizes one garbage-collection pass.
type GCReport struct {
	Expired int
	Missing int
}

// GC removes recordings past retention and index entries whose files have
// disappeared.
func (a *App) GC(ctx context.Context) (GCReport, error) {
	expired, err := a.Index.RemoveExpired(ctx, time.Now().UTC())
	if err != nil {
		return GCReport{}, err
	}
	missing, err := a.Files.RemoveMissingFiles(ctx)
	if err != nil {
		return GCReport{Expired: expired}, err
	}
	return GCReport{Expired: expired, Missing: missing}, nil
}

// Sync runs one full sync pass: garbage collection, queue reconciliation,
// then queue processing.
func (a *App) Sync(ctx context.Context) (models.Snapshot, error) {
	if _, err := a.GC(ctx); err != nil {
		return a.Engine.Snapshot(), err
	}

	recs, err := a.Index.List(ctx)
	if err != nil {
		return a.Engine.Snapshot(), err
	}
	if err := a.Engine.Reconcile(ctx, recs); err != nil {
		return a.Engine.Snapshot(), err
	}
	if err := a.Engine.ProcessQueue(ctx); err != nil {
		return a.Engine.Snapshot(), err
	}
	return a.Engine.Snapshot(), nil
}
