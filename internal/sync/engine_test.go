package sync

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/fieldtrack/fieldtrack/internal/model"
	"github.com/fieldtrack/fieldtrack/internal/store"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeRemote is an in-memory remote store. Every accepted push gets the
// next server timestamp. Failures are injected per entity id.
type fakeRemote struct {
	mu       gosync.Mutex
	serverTS time.Time
	jobs     map[string]JobRow
	clients  map[string]ClientRow

	failJob    map[string]error
	pullErr    error
	callLog    []string
	pullGate   chan struct{} // when set, Pull blocks until released
	pullCount  int
	pushedJobs []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		serverTS: testNow,
		jobs:     make(map[string]JobRow),
		clients:  make(map[string]ClientRow),
		failJob:  make(map[string]error),
	}
}

func (f *fakeRemote) nextTS() time.Time {
	f.serverTS = f.serverTS.Add(time.Second)
	return f.serverTS
}

func (f *fakeRemote) PushJob(ctx context.Context, row JobRow) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callLog = append(f.callLog, "push")
	if err := f.failJob[row.ID]; err != nil {
		return time.Time{}, err
	}
	row.UpdatedAt = f.nextTS()
	f.jobs[row.ID] = row
	f.pushedJobs = append(f.pushedJobs, row.ID)
	return row.UpdatedAt, nil
}

func (f *fakeRemote) PushClient(ctx context.Context, row ClientRow) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callLog = append(f.callLog, "push")
	row.UpdatedAt = f.nextTS()
	f.clients[row.Ref] = row
	return row.UpdatedAt, nil
}

func (f *fakeRemote) Pull(ctx context.Context, since time.Time) (*PullResult, error) {
	f.mu.Lock()
	gate := f.pullGate
	f.pullCount++
	f.callLog = append(f.callLog, "pull")
	if f.pullErr != nil {
		err := f.pullErr
		f.mu.Unlock()
		return nil, err
	}
	result := &PullResult{}
	for _, row := range f.jobs {
		if row.UpdatedAt.After(since) {
			result.Jobs = append(result.Jobs, row)
		}
	}
	for _, row := range f.clients {
		if row.UpdatedAt.After(since) {
			result.Clients = append(result.Clients, row)
		}
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return result, nil
}

func setupEngine(t *testing.T) (*Engine, *store.Store, *fakeRemote) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	remote := newFakeRemote()
	engine := NewEngine(st, remote)
	t.Cleanup(engine.Dispose)
	return engine, st, remote
}

func putDirtyJob(t *testing.T, st *store.Store, id string) model.Job {
	t.Helper()

	j := model.NewJob(id, "ACME1", "Acme", testNow)
	if err := st.PutJob(j); err != nil {
		t.Fatalf("PutJob failed: %v", err)
	}
	return j
}

func TestPushMarksSynced(t *testing.T) {
	engine, st, remote := setupEngine(t)

	putDirtyJob(t, st, "j1")
	putDirtyJob(t, st, "j2")

	if err := engine.SyncToServer(); err != nil {
		t.Fatalf("SyncToServer failed: %v", err)
	}

	dirty, _ := st.ListDirtyJobs()
	if len(dirty) != 0 {
		t.Errorf("expected no dirty jobs after push, got %d", len(dirty))
	}

	j1, _ := st.GetJob("j1")
	if j1.SyncedAt.IsZero() {
		t.Error("push did not record the server timestamp")
	}
	if len(remote.jobs) != 2 {
		t.Errorf("remote has %d jobs, want 2", len(remote.jobs))
	}
}

func TestPushPartialFailureRetries(t *testing.T) {
	engine, st, remote := setupEngine(t)

	putDirtyJob(t, st, "j1")
	putDirtyJob(t, st, "j2")
	putDirtyJob(t, st, "j3")
	remote.failJob["j2"] = &model.NetworkError{Op: "push", Err: errors.New("connection reset")}

	err := engine.SyncToServer()
	if err == nil {
		t.Fatal("expected error from partial push failure")
	}

	// Successes are not rolled back; only the failure stays dirty.
	dirty, _ := st.ListDirtyJobs()
	if len(dirty) != 1 || dirty[0].ID != "j2" {
		t.Fatalf("expected only j2 dirty, got %+v", dirty)
	}

	// Next pass retries the same work.
	delete(remote.failJob, "j2")
	if err := engine.SyncToServer(); err != nil {
		t.Fatalf("retry pass failed: %v", err)
	}
	dirty, _ = st.ListDirtyJobs()
	if len(dirty) != 0 {
		t.Errorf("expected j2 synced on retry, still dirty: %+v", dirty)
	}
}

func TestPullReplacesOnNewerTimestamp(t *testing.T) {
	engine, st, remote := setupEngine(t)

	// Device B holds J1 synced at T1.
	j := putDirtyJob(t, st, "j1")
	if err := st.MarkJobSynced(j.ID, testNow); err != nil {
		t.Fatalf("MarkJobSynced failed: %v", err)
	}

	// Device A's edit landed on the server with a later updated_at.
	row := jobToRow(j)
	row.Notes = "edited on device A"
	row.UpdatedAt = testNow.Add(time.Minute)
	remote.jobs["j1"] = row

	if err := engine.SyncFromServer(); err != nil {
		t.Fatalf("SyncFromServer failed: %v", err)
	}

	got, _ := st.GetJob("j1")
	if got.Notes != "edited on device A" {
		t.Errorf("remote edit not applied: %q", got.Notes)
	}
	if got.Dirty {
		t.Error("pulled job must not be dirty")
	}

	w, _ := st.Watermark()
	if !w.Equal(row.UpdatedAt) {
		t.Errorf("watermark = %v, want max observed %v", w, row.UpdatedAt)
	}
}

func TestPullEqualTimestampNeverReplaces(t *testing.T) {
	engine, st, remote := setupEngine(t)

	j := putDirtyJob(t, st, "j1")
	j.Notes = "local copy"
	if err := st.PutJob(j); err != nil {
		t.Fatalf("PutJob failed: %v", err)
	}
	if err := st.MarkJobSynced(j.ID, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("MarkJobSynced failed: %v", err)
	}

	row := jobToRow(j)
	row.Notes = "stale server copy"
	row.UpdatedAt = testNow.Add(time.Minute) // equal, not newer
	remote.jobs["j1"] = row

	if err := engine.SyncFromServer(); err != nil {
		t.Fatalf("SyncFromServer failed: %v", err)
	}

	got, _ := st.GetJob("j1")
	if got.Notes != "local copy" {
		t.Errorf("equal timestamp replaced local: %q", got.Notes)
	}
}

func TestPullInsertsUnknownEntities(t *testing.T) {
	engine, st, remote := setupEngine(t)

	remote.clients["ACME1"] = ClientRow{Ref: "ACME1", Name: "Acme", CreatedAt: testNow, LastUsedAt: testNow, UpdatedAt: testNow.Add(time.Second)}
	remote.jobs["j9"] = JobRow{ID: "j9", ClientRef: "ACME1", ClientName: "Acme", Priority: 3, Location: "on_site", CreatedAt: testNow, UpdatedAt: testNow.Add(2 * time.Second)}

	if err := engine.SyncFromServer(); err != nil {
		t.Fatalf("SyncFromServer failed: %v", err)
	}

	if _, err := st.GetJob("j9"); err != nil {
		t.Errorf("pulled job not inserted: %v", err)
	}
	if _, err := st.GetClient("ACME1"); err != nil {
		t.Errorf("pulled client not inserted: %v", err)
	}
}

func TestPullIsIdempotent(t *testing.T) {
	engine, st, remote := setupEngine(t)

	remote.jobs["j1"] = JobRow{ID: "j1", ClientRef: "ACME1", ClientName: "Acme", Priority: 3, Location: "on_site", CreatedAt: testNow, UpdatedAt: testNow.Add(time.Second)}

	if err := engine.SyncFromServer(); err != nil {
		t.Fatalf("first pull failed: %v", err)
	}
	first, _ := st.GetJob("j1")
	w1, _ := st.Watermark()

	// Replay the identical batch.
	if err := engine.SyncFromServer(); err != nil {
		t.Fatalf("replayed pull failed: %v", err)
	}
	second, _ := st.GetJob("j1")
	w2, _ := st.Watermark()

	if second.Notes != first.Notes || !second.SyncedAt.Equal(first.SyncedAt) {
		t.Errorf("replay changed local state: %+v vs %+v", first, second)
	}
	if !w1.Equal(w2) {
		t.Errorf("replay moved the watermark: %v vs %v", w1, w2)
	}

	jobs, _ := st.ListJobs()
	if len(jobs) != 1 {
		t.Errorf("replay duplicated entities: %d jobs", len(jobs))
	}
}

func TestPullNeverOverwritesDirtyLocal(t *testing.T) {
	engine, st, remote := setupEngine(t)

	j := putDirtyJob(t, st, "j1")
	j.Notes = "unsaved local edit"
	if err := st.PutJob(j); err != nil {
		t.Fatalf("PutJob failed: %v", err)
	}

	row := jobToRow(j)
	row.Notes = "remote edit"
	row.UpdatedAt = testNow.Add(time.Hour)
	remote.jobs["j1"] = row

	if err := engine.SyncFromServer(); err != nil {
		t.Fatalf("SyncFromServer failed: %v", err)
	}

	got, _ := st.GetJob("j1")
	if got.Notes != "unsaved local edit" || !got.Dirty {
		t.Errorf("dirty local was overwritten by pull: %+v", got)
	}
}

func TestPullAppliesRemoteDelete(t *testing.T) {
	engine, st, remote := setupEngine(t)

	j := putDirtyJob(t, st, "j1")
	if err := st.MarkJobSynced(j.ID, testNow); err != nil {
		t.Fatalf("MarkJobSynced failed: %v", err)
	}
	if err := st.AddAttachment(model.Attachment{ID: "p1", JobID: "j1", Kind: model.AttachmentPhoto, Payload: []byte{1}, CreatedAt: testNow}); err != nil {
		t.Fatalf("AddAttachment failed: %v", err)
	}

	remote.jobs["j1"] = JobRow{ID: "j1", Deleted: true, UpdatedAt: testNow.Add(time.Minute)}

	if err := engine.SyncFromServer(); err != nil {
		t.Fatalf("SyncFromServer failed: %v", err)
	}

	if _, err := st.GetJob("j1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("remote delete not applied locally: %v", err)
	}
	atts, _ := st.ListAttachments("j1")
	if len(atts) != 0 {
		t.Errorf("attachments survived remote delete: %d", len(atts))
	}
}

func TestPushSendsTombstoneAndFinalizes(t *testing.T) {
	engine, st, remote := setupEngine(t)

	j := putDirtyJob(t, st, "j1")
	if err := st.MarkJobSynced(j.ID, testNow); err != nil {
		t.Fatalf("MarkJobSynced failed: %v", err)
	}
	if err := st.DeleteJob("j1", testNow.Add(time.Minute)); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}

	if err := engine.SyncToServer(); err != nil {
		t.Fatalf("SyncToServer failed: %v", err)
	}

	if !remote.jobs["j1"].Deleted {
		t.Error("tombstone not pushed as deleted row")
	}
	if _, err := st.GetJob("j1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("tombstone not finalized after ack: %v", err)
	}
}

func TestForceSyncPushesBeforePull(t *testing.T) {
	engine, st, remote := setupEngine(t)

	putDirtyJob(t, st, "j1")

	if err := engine.ForceSync(); err != nil {
		t.Fatalf("ForceSync failed: %v", err)
	}

	sawPush := false
	for _, call := range remote.callLog {
		if call == "push" {
			sawPush = true
		}
		if call == "pull" && !sawPush {
			t.Fatal("pull ran before push in ForceSync")
		}
	}
	if !sawPush {
		t.Fatal("ForceSync never pushed")
	}
}

func TestForceSyncBroadcastsPeerNotice(t *testing.T) {
	engine, _, _ := setupEngine(t)

	events, cancel := engine.Notifier().Subscribe()
	defer cancel()

	if err := engine.ForceSync(); err != nil {
		t.Fatalf("ForceSync failed: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == EventPeerSync {
				return
			}
		case <-deadline:
			t.Fatal("no peer-sync notice observed")
		}
	}
}

func TestPullErrorLeavesStateUnchanged(t *testing.T) {
	engine, st, remote := setupEngine(t)

	putDirtyJob(t, st, "j1")
	before, _ := st.Watermark()
	remote.pullErr = &model.NetworkError{Op: "pull", Err: errors.New("timeout")}

	events, cancel := engine.Notifier().Subscribe()
	defer cancel()

	err := engine.SyncFromServer()
	if err == nil {
		t.Fatal("expected pull error")
	}
	var netErr *model.NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("expected NetworkError, got %v", err)
	}

	after, _ := st.Watermark()
	if !before.Equal(after) {
		t.Errorf("failed pull moved the watermark: %v -> %v", before, after)
	}
	dirty, _ := st.ListDirtyJobs()
	if len(dirty) != 1 {
		t.Errorf("failed pull changed dirty set: %+v", dirty)
	}

	deadline := time.After(time.Second)
	sawError := false
	for !sawError {
		select {
		case ev := <-events:
			if ev.Kind == EventSyncError {
				sawError = true
			}
		case <-deadline:
			t.Fatal("no sync-error event observed")
		}
	}

	// The engine settles back to idle after reporting the failure.
	for engine.State() != StateIdle {
		select {
		case <-deadline:
			t.Fatalf("engine stuck in state %s after error", engine.State())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestConcurrentPullsCoalesce(t *testing.T) {
	engine, _, remote := setupEngine(t)

	gate := make(chan struct{})
	remote.mu.Lock()
	remote.pullGate = gate
	remote.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- engine.SyncFromServer() }()

	// Wait for the first pull to be in flight.
	for {
		remote.mu.Lock()
		n := remote.pullCount
		remote.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// Three requests while one is active: coalesced into one re-run.
	for i := 0; i < 3; i++ {
		if err := engine.SyncFromServer(); err != nil {
			t.Fatalf("coalesced pull returned error: %v", err)
		}
	}

	remote.mu.Lock()
	remote.pullGate = nil
	remote.mu.Unlock()
	close(gate)

	if err := <-done; err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	remote.mu.Lock()
	n := remote.pullCount
	remote.mu.Unlock()
	if n != 2 {
		t.Errorf("expected exactly 2 pulls (in-flight + one deferred re-run), got %d", n)
	}
}

func TestApplyChangeEvent(t *testing.T) {
	engine, st, _ := setupEngine(t)

	before, _ := st.Watermark()

	row := JobRow{ID: "j1", ClientRef: "ACME1", ClientName: "Acme", Priority: 3, Location: "on_site", CreatedAt: testNow, UpdatedAt: testNow.Add(time.Second)}
	data := mustJSON(t, row)

	engine.ApplyChangeEvent(model.ChangeEvent{Type: model.ChangeInsert, Table: model.TableJobs, Row: data})

	got, err := st.GetJob("j1")
	if err != nil {
		t.Fatalf("feed insert not applied: %v", err)
	}
	if got.Dirty {
		t.Error("feed-applied job must not be dirty")
	}

	// Feed delivery is best-effort, so it must never move the pull
	// watermark; only a completed pull may.
	after, _ := st.Watermark()
	if !after.Equal(before) {
		t.Errorf("feed event moved the watermark: %v -> %v", before, after)
	}

	// Delete events carry the id only.
	engine.ApplyChangeEvent(model.ChangeEvent{Type: model.ChangeDelete, Table: model.TableJobs, ID: "j1"})
	if _, err := st.GetJob("j1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("feed delete not applied: %v", err)
	}
}

func TestFeedEventCannotHideConcurrentRowsFromPoll(t *testing.T) {
	engine, st, remote := setupEngine(t)

	t1 := testNow.Add(time.Second)
	t2 := testNow.Add(time.Minute)

	// A row stamped t1 sits on the server, its feed event lost.
	remote.jobs["j-lost"] = JobRow{ID: "j-lost", ClientRef: "ACME1", ClientName: "Acme", Priority: 3, Location: "on_site", CreatedAt: testNow, UpdatedAt: t1}

	// A later row's feed event does arrive.
	delivered := JobRow{ID: "j-live", ClientRef: "ACME1", ClientName: "Acme", Priority: 3, Location: "on_site", CreatedAt: testNow, UpdatedAt: t2}
	remote.jobs["j-live"] = delivered
	engine.ApplyChangeEvent(model.ChangeEvent{Type: model.ChangeUpdate, Table: model.TableJobs, Row: mustJSON(t, delivered)})

	if _, err := st.GetJob("j-live"); err != nil {
		t.Fatalf("delivered feed event not applied: %v", err)
	}

	// The next poll must still see everything past the old watermark,
	// including the row whose event was lost.
	if err := engine.SyncFromServer(); err != nil {
		t.Fatalf("SyncFromServer failed: %v", err)
	}

	if _, err := st.GetJob("j-lost"); err != nil {
		t.Errorf("row stamped before the feed event was never pulled: %v", err)
	}

	w, _ := st.Watermark()
	if !w.Equal(t2) {
		t.Errorf("watermark = %v, want max pulled %v", w, t2)
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return data
}
