package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurasafe/recsync/internal/cloudapi"
	"github.com/aurasafe/recsync/internal/common"
	"github.com/aurasafe/recsync/internal/filestore"
	"github.com/aurasafe/recsync/internal/kvstore"
	"github.com/aurasafe/recsync/internal/logging"
	"github.com/aurasafe/recsync/internal/models"
	"github.com/aurasafe/recsync/internal/recindex"
	"github.com/aurasafe/recsync/internal/uploadqueue"

	_ "modernc.org/sqlite"
)

type fakeAPI struct {
	mu sync.Mutex

	createErr   error
	completeErr error
	listErr     error
	urlErrs     map[string]error
	ackErr      error

	pending []cloudapi.CloudRecording

	created      []cloudapi.UploadDestinationRequest
	completed    []string
	markedFailed []string
	listLimits   []int
	urlRequests  []string
	acked        []string

	nextID int
}

func (f *fakeAPI) CreateUploadDestination(ctx context.Context, req cloudapi.UploadDestinationRequest) (*cloudapi.UploadDestination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	f.nextID++
	return &cloudapi.UploadDestination{
		RecordingID: fmt.Sprintf("cloud-%d", f.nextID),
		SignedURL:   "https://signed.example/" + req.LocalRecordingID,
	}, nil
}

func (f *fakeAPI) MarkUploadComplete(ctx context.Context, recordingID string, sizeBytes, durationMs int64, mimeType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = append(f.completed, recordingID)
	return nil
}

func (f *fakeAPI) MarkUploadFailed(ctx context.Context, recordingID, errorCode, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedFailed = append(f.markedFailed, recordingID)
	return nil
}

func (f *fakeAPI) ListPendingAutoDownloads(ctx context.Context, limit int) ([]cloudapi.CloudRecording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listLimits = append(f.listLimits, limit)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pending, nil
}

func (f *fakeAPI) GetDownloadURL(ctx context.Context, recordingID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.urlErrs[recordingID]; err != nil {
		return "", err
	}
	f.urlRequests = append(f.urlRequests, recordingID)
	return "https://signed.example/dl/" + recordingID, nil
}

func (f *fakeAPI) CompleteAutoDownload(ctx context.Context, recordingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, recordingID)
	return nil
}

func (f *fakeAPI) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeRemover struct {
	mu      sync.Mutex
	err     error
	removed []string
}

func (r *fakeRemover) RemoveObject(ctx context.Context, bucket, objectPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.removed = append(r.removed, bucket+"/"+objectPath)
	return nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []string
}

func (t *recordingTracker) Track(ctx context.Context, name string, props map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, name)
}

func (t *recordingTracker) names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

func (t *recordingTracker) count(name string) int {
	n := 0
	for _, e := range t.names() {
		if e == name {
			n++
		}
	}
	return n
}

type fixture struct {
	engine  *Engine
	api     *fakeAPI
	objects *fakeRemover
	tracker *recordingTracker
	index   *recindex.Index
	queue   *uploadqueue.Queue
	files   *filestore.Store
	dir     string
	now     time.Time
}

func proConfig() models.SyncConfig {
	return models.SyncConfig{
		IsProActive:        true,
		HasCloudReadAccess: true,
		IsConnected:        true,
		IsWifi:             true,
	}
}

func setup(t *testing.T, cfg models.SyncConfig) *fixture {
	t.Helper()

	kv, db, err := kvstore.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logging.NewNopLogger()
	idx := recindex.New(kv, log)
	dir := filepath.Join(t.TempDir(), "recordings")
	files := filestore.New(dir, idx, log)
	queue := uploadqueue.New(kv, idx, log)
	api := &fakeAPI{}
	objects := &fakeRemover{}
	tracker := &recordingTracker{}

	e := New(Params{
		Queue:         queue,
		Index:         idx,
		Files:         files,
		API:           api,
		Objects:       objects,
		Tracker:       tracker,
		Log:           log,
		InitialConfig: cfg,
	})

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	e.jitter = func(time.Duration) time.Duration { return 0 }
	e.upload = func(ctx context.Context, url, path string, progress func(float64)) error {
		if progress != nil {
			progress(0.5)
			progress(1)
		}
		return nil
	}
	e.download = func(ctx context.Context, url, destPath string) (int64, error) {
		b := []byte("cloud-bytes")
		if err := os.WriteFile(destPath, b, 0o600); err != nil {
			return 0, err
		}
		return int64(len(b)), nil
	}

	return &fixture{
		engine: e, api: api, objects: objects, tracker: tracker,
		index: idx, queue: queue, files: files, dir: dir, now: now,
	}
}

// addRecording creates a backing file, indexes a recording for it, and
// returns the record.
func (f *fixture) addRecording(t *testing.T, id string, createdAt time.Time) models.Recording {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.dir, 0o770))
	path := filepath.Join(f.dir, id+".m4a")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o600))

	rec := models.Recording{
		ID:          id,
		URI:         path,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(models.RetentionWindow),
		DurationMs:  60_000,
		SizeBytes:   5,
		ContextType: models.ContextTypeManual,
		Source:      models.SourceManual,
	}
	require.NoError(t, f.index.Add(context.Background(), rec))
	return rec
}

// seedQueue reconciles the queue directly, without the engine's background
// processing kick.
func (f *fixture) seedQueue(t *testing.T) []models.QueueItem {
	t.Helper()
	recs, err := f.index.List(context.Background())
	require.NoError(t, err)
	items, err := f.queue.Reconcile(context.Background(), recs, f.now)
	require.NoError(t, err)
	return items
}

func TestProcessQueue_NonProMakesNoNetworkCalls(t *testing.T) {
	f := setup(t, models.SyncConfig{IsConnected: true, IsWifi: true})
	ctx := context.Background()

	f.addRecording(t, "rec1", f.now.Add(-time.Hour))
	f.seedQueue(t)

	require.NoError(t, f.engine.ProcessQueue(ctx))

	snap := f.engine.Snapshot()
	assert.Equal(t, models.EnginePausedNonPro, snap.State)
	assert.Zero(t, f.api.createdCount())

	// The item stays queued for when the subscription comes back.
	items, err := f.queue.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.QueueStatusQueued, items[0].Status)
}

func TestProcessQueue_PausePriority(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.SyncConfig
		want models.EngineState
	}{
		{"offline", models.SyncConfig{IsProActive: true}, models.EnginePausedNetwork},
		{"wifi only on cellular", models.SyncConfig{IsProActive: true, IsConnected: true, WifiOnlyUpload: true}, models.EnginePausedWifiOnly},
		{"non pro wins over offline", models.SyncConfig{}, models.EnginePausedNonPro},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.cfg)
			f.addRecording(t, "rec1", f.now.Add(-time.Hour))
			f.seedQueue(t)

			require.NoError(t, f.engine.ProcessQueue(context.Background()))
			assert.Equal(t, tt.want, f.engine.Snapshot().State)
			assert.Zero(t, f.api.createdCount())
		})
	}
}

func TestProcessQueue_UploadsOldestFirstEndToEnd(t *testing.T) {
	f := setup(t, proConfig())
	ctx := context.Background()

	f.addRecording(t, "newer", f.now.Add(-time.Hour))
	f.addRecording(t, "older", f.now.Add(-2*time.Hour))
	f.seedQueue(t)

	require.NoError(t, f.engine.ProcessQueue(ctx))

	require.Len(t, f.api.created, 2)
	assert.Equal(t, "older", f.api.created[0].LocalRecordingID)
	assert.Equal(t, "newer", f.api.created[1].LocalRecordingID)
	assert.Len(t, f.api.completed, 2)

	items, err := f.queue.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	recs, err := f.index.List(ctx)
	require.NoError(t, err)
	for _, r := range recs {
		assert.Equal(t, models.CloudSyncUploaded, r.CloudSyncState)
		assert.NotEmpty(t, r.CloudRecordingID)
		require.NotNil(t, r.CloudUploadedAt)
		assert.Equal(t, f.now, r.CloudUploadedAt.UTC())
		assert.False(t, r.UploadEligible())
	}

	snap := f.engine.Snapshot()
	assert.Equal(t, models.EngineIdle, snap.State)
	assert.Empty(t, snap.LastError)
	assert.Zero(t, snap.QueueLength)

	assert.Equal(t, 2, f.tracker.count("safety_audio_cloud_upload_started"))
	assert.Equal(t, 2, f.tracker.count("safety_audio_cloud_upload_succeeded"))
	assert.Zero(t, f.tracker.count("safety_audio_cloud_upload_failed"))
}

func TestProcessQueue_SubscriberSeesProgress(t *testing.T) {
	f := setup(t, proConfig())

	f.addRecording(t, "rec1", f.now.Add(-time.Hour))
	f.seedQueue(t)

	var progress []float64
	unsubscribe := f.engine.Subscribe(func(s models.Snapshot) {
		if s.State == models.EngineUploading {
			progress = append(progress, s.ActiveUploadProgress)
		}
	})
	defer unsubscribe()

	require.NoError(t, f.engine.ProcessQueue(context.Background()))

	require.NotEmpty(t, progress)
	assert.Contains(t, progress, 0.5)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestProcessQueue_TransportFailureSchedulesRetry(t *testing.T) {
	f := setup(t, proConfig())
	ctx := context.Background()

	f.addRecording(t, "rec1", f.now.Add(-time.Hour))
	f.seedQueue(t)

	f.engine.upload = func(ctx context.Context, url, path string, progress func(float64)) error {
		return errors.New("connection reset")
	}

	require.NoError(t, f.engine.ProcessQueue(ctx))

	items, err := f.queue.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	assert.Equal(t, 1, item.AttemptCount)
	require.NotNil(t, item.NextRetryAt)
	assert.Equal(t, f.now.Add(15*time.Second), item.NextRetryAt.UTC())
	assert.Contains(t, item.LastError, "connection reset")

	// The backend learned about the failure for its own bookkeeping.
	require.Len(t, f.api.markedFailed, 1)

	recs, err := f.index.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.CloudSyncFailed, recs[0].CloudSyncState)
	assert.Contains(t, recs[0].CloudLastError, "connection reset")

	// The run ends with nothing eligible; the failure stays visible.
	snap := f.engine.Snapshot()
	assert.Equal(t, models.EngineIdle, snap.State)
	assert.Contains(t, snap.LastError, "connection reset")
	assert.Equal(t, 1, f.tracker.count("safety_audio_cloud_upload_retry_scheduled"))
}

func TestProcessQueue_SkipsItemsWaitingOutBackoff(t *testing.T) {
	f := setup(t, proConfig())
	ctx := context.Background()

	f.addRecording(t, "waiting", f.now.Add(-2*time.Hour))
	f.addRecording(t, "fresh", f.now.Add(-time.Hour))
	items := f.seedQueue(t)
	require.Len(t, items, 2)

	retryAt := f.now.Add(10 * time.Minute)
	items[0].Status = models.QueueStatusFailed
	items[0].AttemptCount = 2
	items[0].NextRetryAt = &retryAt
	require.NoError(t, f.queue.Replace(ctx, items))

	require.NoError(t, f.engine.ProcessQueue(ctx))

	require.Len(t, f.api.created, 1)
	assert.Equal(t, "fresh", f.api.created[0].LocalRecordingID)

	items, err := f.queue.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "waiting", items[0].LocalRecordingID)
	assert.Equal(t, 2, items[0].AttemptCount)
}

func TestProcessQueue_ResumesUploadOrphanedByCrash(t *testing.T) {
	f := setup(t, proConfig())
	ctx := context.Background()

	f.addRecording(t, "rec1", f.now.Add(-time.Hour))
	items := f.seedQueue(t)
	require.Len(t, items, 1)

	// Simulate a process death mid-upload: the item was persisted as
	// uploading and never finished.
	items[0].Status = models.QueueStatusUploading
	require.NoError(t, f.queue.Replace(ctx, items))

	// The next start reconciles and processes; the orphan must be
	// re-attempted from the start, not stranded.
	f.seedQueue(t)
	require.NoError(t, f.engine.ProcessQueue(ctx))

	require.Equal(t, 1, f.api.createdCount())
	assert.Len(t, f.api.completed, 1)

	items, err := f.queue.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	recs, err := f.index.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.CloudSyncUploaded, recs[0].CloudSyncState)
}

func TestProcessQueue_PolicyRefusalPausesWithoutConsumingAttempt(t *testing.T) {
	f := setup(t, proConfig())
	ctx := context.Background()

	f.addRecording(t, "rec1", f.now.Add(-time.Hour))
	f.seedQueue(t)

	f.api.createErr = fmt.Errorf("account: %w", common.ErrProRequired)

	require.NoError(t, f.engine.ProcessQueue(ctx))

	snap := f.engine.Snapshot()
	assert.Equal(t, models.EnginePausedNonPro, snap.State)
	assert.NotEmpty(t, snap.LastError)

	items, err := f.queue.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.QueueStatusQueued, items[0].Status)
	assert.Zero(t, items[0].AttemptCount)
	assert.Nil(t, items[0].NextRetryAt)

	recs, err := f.index.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.CloudSyncPaused, recs[0].CloudSyncState)

	assert.Empty(t, f.api.markedFailed)
	assert.Zero(t, f.tracker.count("safety_audio_cloud_upload_failed"))
}

func TestProcessQueue_ConcurrentCallersShareOneRun(t *testing.T) {
	f := setup(t, proConfig())
	ctx := context.Background()

	f.addRecording(t, "rec1", f.now.Add(-time.Hour))
	f.seedQueue(t)

	release := make(chan struct{})
	f.engine.upload = func(ctx context.Context, url, path string, progress func(float64)) error {
		<-release
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.engine.ProcessQueue(ctx)
		}()
	}

	// Let all callers reach the in-flight upload, then let it finish.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.api.createdCount())
}

func TestRetryDelay(t *testing.T) {
	noJitter := func(time.Duration) time.Duration { return 0 }

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 15 * time.Second},
		{2, 30 * time.Second},
		{3, time.Minute},
		{4, 2 * time.Minute},
		{5, 4 * time.Minute},
		{6, 30 * time.Minute},
		{12, 30 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.attempt, noJitter), "attempt %d", tt.attempt)
	}

	// Jitter shifts the delay but never past the cap region semantics.
	full := func(max time.Duration) time.Duration { return max }
	assert.Equal(t, 18*time.Second, retryDelay(1, full))
	// The fixed slow probe carries no jitter at all.
	assert.Equal(t, 30*time.Minute, retryDelay(6, full))
}

func TestConfigure_RecomputesStateWhenQueueEmpty(t *testing.T) {
	f := setup(t, proConfig())
	ctx := context.Background()

	assert.Equal(t, models.EngineIdle, f.engine.Snapshot().State)

	wifiOnly := true
	f.engine.Configure(ctx, models.ConfigPatch{WifiOnlyUpload: &wifiOnly})
	assert.Equal(t, models.EngineIdle, f.engine.Snapshot().State)

	onCellular := false
	f.engine.Configure(ctx, models.ConfigPatch{IsWifi: &onCellular})
	assert.Equal(t, models.EnginePausedWifiOnly, f.engine.Snapshot().State)

	onWifi := true
	f.engine.Configure(ctx, models.ConfigPatch{IsWifi: &onWifi})
	assert.Equal(t, models.EngineIdle, f.engine.Snapshot().State)
}

func TestConfigure_BecomingProTriggersProcessing(t *testing.T) {
	f := setup(t, models.SyncConfig{IsConnected: true, IsWifi: true})
	ctx := context.Background()

	f.addRecording(t, "rec1", f.now.Add(-time.Hour))
	f.seedQueue(t)

	pro := true
	f.engine.Configure(ctx, models.ConfigPatch{IsProActive: &pro})

	require.Eventually(t, func() bool {
		return f.api.createdCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribe_UnsubscribeStopsNotifications(t *testing.T) {
	f := setup(t, proConfig())
	ctx := context.Background()

	var calls int
	unsubscribe := f.engine.Subscribe(func(models.Snapshot) { calls++ })

	wifiOnly := true
	f.engine.Configure(ctx, models.ConfigPatch{WifiOnlyUpload: &wifiOnly})
	require.Positive(t, calls)

	unsubscribe()
	before := calls
	off := false
	f.engine.Configure(ctx, models.ConfigPatch{WifiOnlyUpload: &off})
	assert.Equal(t, before, calls)
}

func TestClearQueue(t *testing.T) {
	f := setup(t, proConfig())
	ctx := context.Background()

	f.addRecording(t, "rec1", f.now.Add(-time.Hour))
	f.seedQueue(t)

	require.NoError(t, f.engine.ClearQueue(ctx))

	items, err := f.queue.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	snap := f.engine.Snapshot()
	assert.Equal(t, models.EngineIdle, snap.State)
	assert.Zero(t, snap.QueueLength)
}
