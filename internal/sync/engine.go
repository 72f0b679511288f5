// Package sync reconciles the local store against the remote store:
// push of dirty entities, watermark-bounded pull, last-write-wins
// conflict resolution, a realtime change feed with a polling fallback,
// and typed change notifications for the UI layer.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"time"

	"github.com/fieldtrack/fieldtrack/internal/logger"
	"github.com/fieldtrack/fieldtrack/internal/model"
	"github.com/fieldtrack/fieldtrack/internal/store"
)

// State is the engine's position in the sync cycle.
type State int

const (
	StateIdle State = iota
	StatePulling
	StateMerging
	StatePushing
	StateError
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePulling:
		return "pulling"
	case StateMerging:
		return "merging"
	case StatePushing:
		return "pushing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Feed is a push-based source of remote change events. Subscribe blocks
// until the channel closes or degrades; the engine does not resubscribe,
// the periodic poll is the availability fallback.
type Feed interface {
	Subscribe(ctx context.Context, onEvent func(model.ChangeEvent)) error
}

// Engine orchestrates push and pull passes over one user's data. It is
// explicitly constructed and disposed; nothing about it is ambient
// global state.
type Engine struct {
	store    *store.Store
	remote   Remote
	feed     Feed
	notifier *Notifier

	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	// passMu serializes push/pull passes: one logical actor.
	passMu gosync.Mutex

	// mu guards state and the pull-coalescing flags.
	mu         gosync.Mutex
	state      State
	userID     string
	pullActive bool
	pullQueued bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithFeed attaches a realtime change feed.
func WithFeed(f Feed) Option {
	return func(e *Engine) { e.feed = f }
}

// WithPollInterval overrides the fallback poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

// NewEngine creates an engine over the given store and remote.
func NewEngine(st *store.Store, remote Remote, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:        st,
		remote:       remote,
		notifier:     NewNotifier(),
		pollInterval: 30 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Notifier exposes the engine's event stream.
func (e *Engine) Notifier() *Notifier {
	return e.notifier
}

// State returns the engine's current position in the sync cycle.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Init starts syncing for a user: establishes the realtime subscription,
// performs one immediate pull, then starts the periodic poll fallback.
// The poll runs at a fixed interval regardless of push/pull outcomes.
func (e *Engine) Init(userID string) {
	e.mu.Lock()
	e.userID = userID
	e.mu.Unlock()

	logger.Info("Sync engine starting", logger.F("userID", userID))

	if e.feed != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			// The feed does not retry itself. When it drops, the poll
			// below keeps the device eventually consistent.
			if err := e.feed.Subscribe(e.ctx, e.ApplyChangeEvent); err != nil && e.ctx.Err() == nil {
				logger.Warn("Realtime channel degraded, relying on poll", logger.F("error", err))
			}
		}()
	}

	if err := e.SyncFromServer(); err != nil {
		logger.Warn("Initial pull failed", logger.F("error", err))
	}

	e.wg.Add(1)
	go e.pollLoop()
}

// Dispose stops the poll and the realtime subscription and waits for
// in-flight work to finish.
func (e *Engine) Dispose() {
	e.cancel()
	e.wg.Wait()
	logger.Info("Sync engine stopped")
}

func (e *Engine) pollLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.SyncFromServer(); err != nil {
				logger.Debug("Poll pull failed", logger.F("error", err))
			}
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.notifier.Publish(Event{Kind: EventStateChanged, State: s})
}

// fail reports a non-fatal sync error and returns the engine to Idle.
// Dirty flags and the watermark are untouched; the next pass retries.
func (e *Engine) fail(err error) {
	logger.Error("Sync pass failed", logger.F("error", err))
	e.setState(StateError)
	e.notifier.Publish(Event{Kind: EventSyncError, Err: err})
	e.setState(StateIdle)
}

// SyncToServer pushes all dirty entities, each uploaded individually.
// An entity is marked confirmed-synced only on its own acknowledgment;
// a partial-batch failure leaves the failed entities dirty for the next
// pass and does not roll back the successes.
func (e *Engine) SyncToServer() error {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	e.setState(StatePushing)

	pushed, err := e.pushDirty()
	if err != nil {
		e.fail(err)
		return err
	}

	e.setState(StateIdle)
	if pushed > 0 {
		logger.Info("Push completed", logger.F("pushed", pushed))
	}
	return nil
}

func (e *Engine) pushDirty() (int, error) {
	pushed := 0
	var firstErr error

	// Clients first: jobs reference them by code.
	clients, err := e.store.ListDirtyClients()
	if err != nil {
		return 0, err
	}
	for _, c := range clients {
		updatedAt, err := e.remote.PushClient(e.ctx, clientToRow(c))
		if err != nil {
			logger.Warn("Client push failed, will retry",
				logger.F("ref", c.Ref), logger.F("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := e.store.MarkClientSynced(c.Ref, updatedAt); err != nil {
			return pushed, err
		}
		pushed++
	}

	jobs, err := e.store.ListDirtyJobs()
	if err != nil {
		return pushed, err
	}
	for _, j := range jobs {
		updatedAt, err := e.remote.PushJob(e.ctx, jobToRow(j))
		if err != nil {
			logger.Warn("Job push failed, will retry",
				logger.F("id", j.ID), logger.F("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := e.store.MarkJobSynced(j.ID, updatedAt); err != nil {
			return pushed, err
		}
		pushed++
	}

	return pushed, firstErr
}

// SyncFromServer pulls remote changes past the watermark and merges them.
// Only one pull runs at a time; a request arriving while one is in
// flight is coalesced into a single deferred re-run, never dropped and
// never queued twice.
func (e *Engine) SyncFromServer() error {
	e.mu.Lock()
	if e.pullActive {
		e.pullQueued = true
		e.mu.Unlock()
		return nil
	}
	e.pullActive = true
	e.mu.Unlock()

	err := e.pullOnce()
	for {
		e.mu.Lock()
		if e.pullQueued {
			e.pullQueued = false
			e.mu.Unlock()
			err = e.pullOnce()
			continue
		}
		e.pullActive = false
		e.mu.Unlock()
		return err
	}
}

func (e *Engine) pullOnce() error {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	e.setState(StatePulling)

	watermark, err := e.store.Watermark()
	if err != nil {
		e.fail(err)
		return err
	}

	result, err := e.remote.Pull(e.ctx, watermark)
	if err != nil {
		e.fail(err)
		return err
	}

	e.setState(StateMerging)

	applied := 0
	maxSeen := watermark

	for _, row := range result.Clients {
		if row.UpdatedAt.After(maxSeen) {
			maxSeen = row.UpdatedAt
		}
		ok, err := e.applyClientRow(row)
		if err != nil {
			e.fail(err)
			return err
		}
		if ok {
			applied++
		}
	}

	for _, row := range result.Jobs {
		if row.UpdatedAt.After(maxSeen) {
			maxSeen = row.UpdatedAt
		}
		ok, err := e.applyJobRow(row)
		if err != nil {
			e.fail(err)
			return err
		}
		if ok {
			applied++
		}
	}

	// Advance only to the maximum updated_at actually observed. Using
	// "now" would skip records written between request and response and
	// break under clock skew.
	if maxSeen.After(watermark) {
		if err := e.store.SetWatermark(maxSeen); err != nil {
			e.fail(err)
			return err
		}
	}

	e.setState(StateIdle)
	if applied > 0 {
		e.notifier.Publish(Event{Kind: EventDataChanged, Pulled: applied})
		logger.Info("Pull completed",
			logger.F("applied", applied),
			logger.F("watermark", maxSeen))
	}
	return nil
}

// ForceSync runs push then pull synchronously. Pull follows push so the
// device's own just-uploaded changes are not reconciled back as
// conflicts, then peers are told to sync too.
func (e *Engine) ForceSync() error {
	pushErr := e.SyncToServer()
	pullErr := e.SyncFromServer()

	e.notifier.Publish(Event{Kind: EventPeerSync})

	if pushErr != nil {
		return pushErr
	}
	return pullErr
}

// ApplyChangeEvent routes one realtime feed event through the same
// conflict-resolution path as a pull row. A late or replayed event is
// harmless: the merge is idempotent. The watermark is never advanced
// here: feed delivery is best-effort, and a watermark moved past an
// undelivered row would hide that row from every future pull. The poll
// re-delivers feed-applied rows instead, which the merge absorbs as a
// no-op.
func (e *Engine) ApplyChangeEvent(ev model.ChangeEvent) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	var (
		applied bool
		err     error
	)

	switch ev.Table {
	case model.TableJobs:
		row := JobRow{ID: ev.ID, Deleted: true}
		if ev.Type != model.ChangeDelete {
			if err := json.Unmarshal(ev.Row, &row); err != nil {
				logger.Warn("Bad feed event row", logger.F("error", err))
				return
			}
		}
		applied, err = e.applyJobRow(row)
	case model.TableClients:
		row := ClientRow{Ref: ev.ID, Deleted: true}
		if ev.Type != model.ChangeDelete {
			if err := json.Unmarshal(ev.Row, &row); err != nil {
				logger.Warn("Bad feed event row", logger.F("error", err))
				return
			}
		}
		applied, err = e.applyClientRow(row)
	default:
		logger.Debug("Ignoring feed event for unknown table", logger.F("table", ev.Table))
		return
	}

	if err != nil {
		logger.Warn("Feed event merge failed", logger.F("error", err))
		return
	}

	if applied {
		e.notifier.Publish(Event{Kind: EventDataChanged, Pulled: 1})
	}
}

// applyJobRow merges one remote job row. Returns true when local state
// changed.
func (e *Engine) applyJobRow(row JobRow) (bool, error) {
	var local *model.Job
	j, err := e.store.GetJob(row.ID)
	switch {
	case err == nil:
		local = &j
	case errors.Is(err, model.ErrNotFound):
		local = nil
	default:
		return false, err
	}

	res := ResolveJob(local, row)
	logger.Debug("Resolved job row",
		logger.F("id", row.ID),
		logger.F("resolution", res.String()))

	switch res {
	case InsertRemote, ApplyRemote:
		return true, e.store.PutJob(rowToJob(row))
	case DeleteLocal:
		return true, e.store.RemoveJob(row.ID)
	case DeferToPush:
		// Informational, not a failure: the pending local edit wins this
		// pass and the push that follows re-converges both stores.
		if row.UpdatedAt.After(local.SyncedAt) {
			logger.Info("Conflict discarded: dirty local edit takes precedence",
				logger.F("id", row.ID),
				logger.F("remoteUpdatedAt", row.UpdatedAt))
		}
		return false, nil
	default:
		return false, nil
	}
}

// applyClientRow merges one remote client row.
func (e *Engine) applyClientRow(row ClientRow) (bool, error) {
	var local *model.Client
	c, err := e.store.GetClient(row.Ref)
	switch {
	case err == nil:
		local = &c
	case errors.Is(err, model.ErrNotFound):
		local = nil
	default:
		return false, err
	}

	res := ResolveClient(local, row)
	logger.Debug("Resolved client row",
		logger.F("ref", row.Ref),
		logger.F("resolution", res.String()))

	switch res {
	case InsertRemote, ApplyRemote:
		return true, e.store.PutClient(rowToClient(row))
	case DeleteLocal:
		return true, e.store.RemoveClient(row.Ref)
	case DeferToPush:
		if row.UpdatedAt.After(local.SyncedAt) {
			logger.Info("Conflict discarded: dirty local edit takes precedence",
				logger.F("ref", row.Ref),
				logger.F("remoteUpdatedAt", row.UpdatedAt))
		}
		return false, nil
	default:
		return false, nil
	}
}

// DirtyCount reports how many entities await upload.
func (e *Engine) DirtyCount() (int, error) {
	return e.store.DirtyCount()
}

// Watermark reports the engine's pull watermark.
func (e *Engine) Watermark() (time.Time, error) {
	return e.store.Watermark()
}
