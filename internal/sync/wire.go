package sync

import (
	"time"

	"github.com/fieldtrack/fieldtrack/internal/model"
)

// JobRow is the remote store row shape for a job. UpdatedAt is server
// maintained and is the conflict-resolution clock.
type JobRow struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id,omitempty"`
	ClientRef        string              `json:"client_ref"`
	ClientName       string              `json:"client_name"`
	Notes            string              `json:"notes"`
	Priority         int                 `json:"priority"`
	Location         string              `json:"location"`
	Completed        bool                `json:"completed"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	Sessions         []model.TimeSession `json:"sessions"`
	TotalDurationMin int                 `json:"total_duration_min"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at,omitempty"`
	Deleted          bool                `json:"deleted"`
}

// ClientRow is the remote store row shape for a client. The reference
// code is the row key within a user's namespace.
type ClientRow struct {
	Ref        string    `json:"ref"`
	UserID     string    `json:"user_id,omitempty"`
	Name       string    `json:"name"`
	Tier       string    `json:"tier,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
	Deleted    bool      `json:"deleted"`
}

// PullResult is one page of remote changes past the watermark.
type PullResult struct {
	Jobs    []JobRow    `json:"jobs"`
	Clients []ClientRow `json:"clients"`
}

// jobToRow converts a local job to its wire shape for upload.
func jobToRow(j model.Job) JobRow {
	return JobRow{
		ID:               j.ID,
		ClientRef:        j.ClientRef,
		ClientName:       j.ClientName,
		Notes:            j.Notes,
		Priority:         j.Priority,
		Location:         string(j.Location),
		Completed:        j.Completed,
		CompletedAt:      j.CompletedAt,
		Sessions:         j.Sessions,
		TotalDurationMin: j.TotalDurationMin,
		CreatedAt:        j.CreatedAt,
		Deleted:          j.Tombstoned(),
	}
}

// rowToJob converts a pulled row into a clean local job: not dirty,
// synced at the row's server timestamp.
func rowToJob(row JobRow) model.Job {
	sessions := row.Sessions
	if sessions == nil {
		sessions = []model.TimeSession{}
	}
	return model.Job{
		ID:               row.ID,
		ClientRef:        row.ClientRef,
		ClientName:       row.ClientName,
		Notes:            row.Notes,
		Priority:         row.Priority,
		Location:         model.Location(row.Location),
		Completed:        row.Completed,
		CompletedAt:      row.CompletedAt,
		Sessions:         sessions,
		TotalDurationMin: row.TotalDurationMin,
		CreatedAt:        row.CreatedAt,
		Dirty:            false,
		SyncedAt:         row.UpdatedAt,
	}
}

func clientToRow(c model.Client) ClientRow {
	return ClientRow{
		Ref:        c.Ref,
		Name:       c.Name,
		Tier:       string(c.Tier),
		CreatedAt:  c.CreatedAt,
		LastUsedAt: c.LastUsedAt,
		Deleted:    c.DeletedAt != nil,
	}
}

func rowToClient(row ClientRow) model.Client {
	return model.Client{
		Ref:        row.Ref,
		Name:       row.Name,
		Tier:       model.SupportTier(row.Tier),
		CreatedAt:  row.CreatedAt,
		LastUsedAt: row.LastUsedAt,
		Dirty:      false,
		SyncedAt:   row.UpdatedAt,
	}
}
