package sync

import (
	"testing"
	"time"

	"github.com/fieldtrack/fieldtrack/internal/model"
)

var (
	t1 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 = time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
)

func TestResolveJob(t *testing.T) {
	clean := func(syncedAt time.Time) *model.Job {
		return &model.Job{ID: "j1", Dirty: false, SyncedAt: syncedAt}
	}
	dirty := func(syncedAt time.Time) *model.Job {
		return &model.Job{ID: "j1", Dirty: true, SyncedAt: syncedAt}
	}

	tests := []struct {
		name  string
		local *model.Job
		row   JobRow
		want  Resolution
	}{
		{"absent locally", nil, JobRow{ID: "j1", UpdatedAt: t2}, InsertRemote},
		{"absent locally, remote delete", nil, JobRow{ID: "j1", Deleted: true}, KeepLocal},
		{"remote strictly newer", clean(t1), JobRow{ID: "j1", UpdatedAt: t2}, ApplyRemote},
		{"equal timestamps never replace", clean(t2), JobRow{ID: "j1", UpdatedAt: t2}, KeepLocal},
		{"remote older", clean(t2), JobRow{ID: "j1", UpdatedAt: t1}, KeepLocal},
		{"dirty local deferred", dirty(t1), JobRow{ID: "j1", UpdatedAt: t2}, DeferToPush},
		{"dirty local deferred even for delete", dirty(t1), JobRow{ID: "j1", Deleted: true, UpdatedAt: t2}, DeferToPush},
		{"remote delete", clean(t1), JobRow{ID: "j1", Deleted: true, UpdatedAt: t2}, DeleteLocal},
		{"never-synced local, remote row", clean(time.Time{}), JobRow{ID: "j1", UpdatedAt: t1}, ApplyRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveJob(tt.local, tt.row); got != tt.want {
				t.Errorf("ResolveJob = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveClient(t *testing.T) {
	local := &model.Client{Ref: "ACME1", SyncedAt: t1}

	if got := ResolveClient(local, ClientRow{Ref: "ACME1", UpdatedAt: t2}); got != ApplyRemote {
		t.Errorf("newer remote client: got %s, want apply_remote", got)
	}
	if got := ResolveClient(local, ClientRow{Ref: "ACME1", UpdatedAt: t1}); got != KeepLocal {
		t.Errorf("equal timestamp client: got %s, want keep_local", got)
	}
	if got := ResolveClient(nil, ClientRow{Ref: "ACME1", UpdatedAt: t1}); got != InsertRemote {
		t.Errorf("unknown client: got %s, want insert_remote", got)
	}
}
