package sync

import (
	gosync "sync"
	"time"
)

// AutoSync debounces sync triggers fired after local mutations. A burst
// of edits produces one push once the configured quiet period elapses.
// The periodic pull fallback lives in the engine itself; this type only
// owns the local-change debounce.
type AutoSync struct {
	engine       *Engine
	debounceTime time.Duration
	pending      bool
	mu           gosync.Mutex
	stopCh       chan struct{}
	stopOnce     gosync.Once
}

// NewAutoSync creates a debounced trigger around the engine.
func NewAutoSync(engine *Engine, debounce time.Duration) *AutoSync {
	if debounce <= 0 {
		debounce = 5 * time.Second
	}
	return &AutoSync{
		engine:       engine,
		debounceTime: debounce,
		stopCh:       make(chan struct{}),
	}
}

// TriggerSync marks that a sync is needed. Repeated triggers inside the
// quiet period coalesce into one run.
func (a *AutoSync) TriggerSync() {
	a.mu.Lock()
	if !a.pending {
		a.pending = true
		go a.debouncedSync()
	}
	a.mu.Unlock()
}

func (a *AutoSync) debouncedSync() {
	timer := time.NewTimer(a.debounceTime)
	defer timer.Stop()

	select {
	case <-timer.C:
		a.performSync()
	case <-a.stopCh:
		return
	}
}

func (a *AutoSync) performSync() {
	a.mu.Lock()
	a.pending = false
	a.mu.Unlock()

	// Errors already surface through the engine's notifier.
	_ = a.engine.ForceSync()
}

// SyncNowIfPending flushes a scheduled sync immediately, for clean
// shutdown paths.
func (a *AutoSync) SyncNowIfPending() error {
	a.mu.Lock()
	isPending := a.pending
	a.pending = false
	a.mu.Unlock()

	if !isPending {
		return nil
	}
	return a.engine.ForceSync()
}

// IsPending returns true if a sync is scheduled or running.
func (a *AutoSync) IsPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Stop cancels any scheduled sync.
func (a *AutoSync) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}
