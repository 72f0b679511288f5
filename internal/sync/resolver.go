package sync

import (
	"time"

	"github.com/fieldtrack/fieldtrack/internal/model"
)

// Resolution is the outcome of comparing a local entity against an
// incoming remote row.
type Resolution int

const (
	// KeepLocal leaves the local version untouched.
	KeepLocal Resolution = iota
	// ApplyRemote replaces the local version with the remote row.
	ApplyRemote
	// InsertRemote inserts a row that has no local counterpart.
	InsertRemote
	// DeleteLocal removes the local version (remote delete observed).
	DeleteLocal
	// DeferToPush skips the remote row because the local version is
	// dirty: push runs before incoming changes are applied to that id,
	// so unsaved local edits are never silently discarded mid-pass.
	DeferToPush
)

// String returns a human-readable representation of the resolution.
func (r Resolution) String() string {
	switch r {
	case KeepLocal:
		return "keep_local"
	case ApplyRemote:
		return "apply_remote"
	case InsertRemote:
		return "insert_remote"
	case DeleteLocal:
		return "delete_local"
	case DeferToPush:
		return "defer_to_push"
	default:
		return "unknown"
	}
}

// resolve implements last-write-wins by server timestamp. The remote row
// replaces the local entity iff its updated_at is strictly newer than the
// local last-confirmed-sync timestamp; equal timestamps never replace.
//
// Two devices that edited the same entity while both offline still end up
// with whichever push landed later on the server; the loser's edits are
// discarded by a later ApplyRemote. That limitation is accepted, not
// papered over.
func resolve(localExists, localDirty bool, localSyncedAt, remoteUpdatedAt time.Time, remoteDeleted bool) Resolution {
	if !localExists {
		if remoteDeleted {
			// Delete for an id we never had: nothing to do, idempotent.
			return KeepLocal
		}
		return InsertRemote
	}

	if localDirty {
		return DeferToPush
	}

	if remoteDeleted {
		return DeleteLocal
	}

	if remoteUpdatedAt.After(localSyncedAt) {
		return ApplyRemote
	}
	return KeepLocal
}

// ResolveJob decides what to retain for a job. local is nil when the id
// is unknown locally.
func ResolveJob(local *model.Job, row JobRow) Resolution {
	if local == nil {
		return resolve(false, false, time.Time{}, row.UpdatedAt, row.Deleted)
	}
	return resolve(true, local.Dirty, local.SyncedAt, row.UpdatedAt, row.Deleted)
}

// ResolveClient decides what to retain for a client.
func ResolveClient(local *model.Client, row ClientRow) Resolution {
	if local == nil {
		return resolve(false, false, time.Time{}, row.UpdatedAt, row.Deleted)
	}
	return resolve(true, local.Dirty, local.SyncedAt, row.UpdatedAt, row.Deleted)
}
