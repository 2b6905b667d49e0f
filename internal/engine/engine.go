// Package engine drives recording synchronization: it drains the upload
// queue one item at a time under the account/connectivity pause rules,
// schedules retries with capped exponential backoff, and reconciles
// cloud-only recordings back onto the device.
//
// A process owns exactly one Engine for its lifetime. All engine state is
// guarded by one mutex and the processing loop is serialized through
// singleflight, so at most one upload is ever in flight.
package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aurasafe/recsync/internal/cloudapi"
	"github.com/aurasafe/recsync/internal/events"
	"github.com/aurasafe/recsync/internal/filestore"
	"github.com/aurasafe/recsync/internal/logging"
	"github.com/aurasafe/recsync/internal/models"
	"github.com/aurasafe/recsync/internal/netx"
	"github.com/aurasafe/recsync/internal/objstore"
	"github.com/aurasafe/recsync/internal/recindex"
	"github.com/aurasafe/recsync/internal/uploadqueue"
)

// Params wires an Engine to its collaborators.
type Params struct {
	Queue   *uploadqueue.Queue
	Index   *recindex.Index
	Files   *filestore.Store
	API     cloudapi.Client
	Objects objstore.Remover
	Tracker events.Tracker
	Log     logging.Logger

	// InitialConfig seeds the sync config before the first Configure call.
	InitialConfig models.SyncConfig
}

type Engine struct {
	mu             sync.Mutex
	cfg            models.SyncConfig
	state          models.EngineState
	activeID       string
	activeProgress float64
	lastError      string
	queueLen       int
	subs           map[int]func(models.Snapshot)
	nextSubID      int

	queue   *uploadqueue.Queue
	index   *recindex.Index
	files   *filestore.Store
	api     cloudapi.Client
	objects objstore.Remover
	tracker events.Tracker
	log     logging.Logger

	sf singleflight.Group

	// Overridable for tests.
	now      func() time.Time
	jitter   func(max time.Duration) time.Duration
	upload   func(ctx context.Context, url, path string, progress func(float64)) error
	download func(ctx context.Context, url, destPath string) (int64, error)
}

func New(p Params) *Engine {
	e := &Engine{
		cfg:      p.InitialConfig,
		subs:     make(map[int]func(models.Snapshot)),
		queue:    p.Queue,
		index:    p.Index,
		files:    p.Files,
		api:      p.API,
		objects:  p.Objects,
		tracker:  p.Tracker,
		log:      p.Log,
		now:      func() time.Time { return time.Now().UTC() },
		jitter:   defaultJitter,
		upload:   netx.UploadFile,
		download: netx.DownloadFile,
	}
	if e.objects == nil {
		e.objects = objstore.NopRemover{}
	}
	if e.tracker == nil {
		e.tracker = events.NopTracker{}
	}
	if e.log == nil {
		e.log = logging.NewNopLogger()
	}

	e.state = models.EngineIdle
	if pause := e.cfg.PauseState(); pause != "" {
		e.state = pause
	}
	return e
}

func defaultJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// Snapshot returns the current externally visible engine state.
func (e *Engine) Snapshot() models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() models.Snapshot {
	return models.Snapshot{
		State:                        e.state,
		ActiveUploadLocalRecordingID: e.activeID,
		ActiveUploadProgress:         e.activeProgress,
		LastError:                    e.lastError,
		QueueLength:                  e.queueLen,
		Config:                       e.cfg,
	}
}

// Subscribe registers a listener for state-change snapshots and returns an
// unsubscribe function. Listeners are invoked synchronously with immutable
// snapshot values and must not call back into the engine.
func (e *Engine) Subscribe(fn func(models.Snapshot)) func() {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// update applies mutate under the lock, then notifies subscribers with the
// resulting snapshot outside of it.
func (e *Engine) update(mutate func()) {
	e.mu.Lock()
	mutate()
	snap := e.snapshotLocked()
	subs := make([]func(models.Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (e *Engine) config() models.SyncConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Configure merges the patch into the live config. When the queue is empty
// the idle/paused display state is recomputed immediately; when the patch
// turns the pro subscription active a processing run is kicked off.
func (e *Engine) Configure(ctx context.Context, patch models.ConfigPatch) {
	e.mu.Lock()
	wasPro := e.cfg.IsProActive
	e.cfg = patch.Apply(e.cfg)
	cfg := e.cfg
	e.mu.Unlock()

	items, err := e.queue.Items(ctx)
	if err != nil {
		e.log.Warn(ctx, "failed to read queue during configure", "error", err)
	}

	e.update(func() {
		e.queueLen = len(items)
		if len(items) == 0 && err == nil {
			if pause := cfg.PauseState(); pause != "" {
				e.state = pause
			} else {
				e.state = models.EngineIdle
			}
		}
	})

	if cfg.IsProActive && !wasPro {
		go func() {
			if err := e.ProcessQueue(context.WithoutCancel(ctx)); err != nil {
				e.log.Warn(ctx, "processing run after configure failed", "error", err)
			}
		}()
	}
}

// Reconcile derives the upload queue from the given recording set and, when
// the pro subscription is active, triggers a processing run.
func (e *Engine) Reconcile(ctx context.Context, recordings []models.Recording) error {
	items, err := e.queue.Reconcile(ctx, recordings, e.now())
	if err != nil {
		return err
	}

	e.update(func() {
		e.queueLen = len(items)
	})

	if e.config().IsProActive {
		go func() {
			if err := e.ProcessQueue(context.WithoutCancel(ctx)); err != nil {
				e.log.Warn(ctx, "processing run after reconcile failed", "error", err)
			}
		}()
	}
	return nil
}

// ClearQueue drops every pending upload. Recordings themselves are untouched
// and will be re-queued by the next reconciliation if still eligible.
func (e *Engine) ClearQueue(ctx context.Context) error {
	if err := e.queue.Clear(ctx); err != nil {
		return err
	}

	e.update(func() {
		e.queueLen = 0
		e.activeID = ""
		e.activeProgress = 0
		if pause := e.cfg.PauseState(); pause != "" {
			e.state = pause
		} else {
			e.state = models.EngineIdle
		}
	})
	return nil
}
