package cli

import (
	"fmt"
	"time"

	"github.com/fieldtrack/fieldtrack/internal/config"
	"github.com/fieldtrack/fieldtrack/internal/store"
	"github.com/fieldtrack/fieldtrack/internal/sync"
)

// buildEngine constructs a sync engine for the logged-in account, or a
// local-only placeholder when logged out. The returned dispose func is
// always safe to call.
func buildEngine(st *store.Store) (*sync.Engine, func()) {
	client, err := sync.NewClient()
	if err != nil || !client.IsLoggedIn() {
		return nil, func() {}
	}

	opts := []sync.Option{sync.WithFeed(client.Feed())}
	if cfg, err := config.Load(); err == nil && cfg.PollSeconds > 0 {
		opts = append(opts, sync.WithPollInterval(time.Duration(cfg.PollSeconds)*time.Second))
	}

	engine := sync.NewEngine(st, client.Remote(), opts...)
	engine.Init(client.UserID())
	return engine, engine.Dispose
}

// MaybeSyncAfterChange syncs after a write operation if the --sync flag
// is set or the auto-sync interval is due.
func MaybeSyncAfterChange(st *store.Store, forceSync bool) {
	client, err := sync.NewClient()
	if err != nil || !client.IsLoggedIn() {
		return
	}

	if !forceSync && !client.ShouldAutoSync() {
		return
	}

	fmt.Println("🔄 Syncing changes...")
	engine := sync.NewEngine(st, client.Remote())
	defer engine.Dispose()

	before, _ := engine.DirtyCount()
	if err := engine.ForceSync(); err != nil {
		fmt.Printf("⚠️  Sync failed: %v\n", err)
		return
	}
	_ = client.UpdateSyncTime()

	after, _ := engine.DirtyCount()
	fmt.Printf("✓ Synced (↑%d)\n", before-after)
}
