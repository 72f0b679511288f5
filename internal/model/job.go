package model

import (
	"fmt"
	"time"
)

// Priority levels for jobs
const (
	PriorityUrgent = 1 // Most urgent
	PriorityHigh   = 2
	PriorityMedium = 3
	PriorityLow    = 4
	PriorityNone   = 5 // Default
)

// Location describes where the work happens.
type Location string

const (
	LocationOnSite Location = "on_site"
	LocationRemote Location = "remote"
)

// ValidatePriority rejects values outside the defined range. Invalid
// input is an error for the caller, never silently replaced.
func ValidatePriority(p int) error {
	if p < PriorityUrgent || p > PriorityNone {
		return &ValidationError{
			Field: "priority",
			Msg:   fmt.Sprintf("must be between %d (urgent) and %d (none), got %d", PriorityUrgent, PriorityNone, p),
		}
	}
	return nil
}

// ParseLocation converts user input into a Location.
func ParseLocation(s string) (Location, error) {
	switch Location(s) {
	case LocationOnSite, LocationRemote:
		return Location(s), nil
	}
	return "", &ValidationError{
		Field: "location",
		Msg:   fmt.Sprintf("must be %q or %q, got %q", LocationOnSite, LocationRemote, s),
	}
}

// TimeSession is one continuous interval of work within a Job.
// DurationMin is nil while the session is open and is always >= 1
// once the session is closed.
type TimeSession struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	DurationMin *int       `json:"duration_min,omitempty"`
}

// Open reports whether the session has no end time yet.
func (s TimeSession) Open() bool {
	return s.EndedAt == nil
}

// Job is a unit of work for a client.
//
// Dirty and SyncedAt together form the sync watermark: a job is either
// dirty (locally modified, not yet confirmed uploaded) or carries the
// timestamp of its last confirmed sync. DeletedAt is the local tombstone;
// a tombstoned job stays in the store until the remote delete is acked.
type Job struct {
	ID               string        `json:"id"`
	ClientRef        string        `json:"client_ref"`
	ClientName       string        `json:"client_name"`
	Notes            string        `json:"notes"`
	Priority         int           `json:"priority"`
	Location         Location      `json:"location"`
	Completed        bool          `json:"completed"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	Sessions         []TimeSession `json:"sessions"`
	TotalDurationMin int           `json:"total_duration_min"`
	CreatedAt        time.Time     `json:"created_at"`
	Dirty            bool          `json:"dirty"`
	SyncedAt         time.Time     `json:"synced_at"`
	DeletedAt        *time.Time    `json:"deleted_at,omitempty"`
}

// NewJob creates a job with defaults. New jobs are born dirty: they have
// never been uploaded.
func NewJob(id, clientRef, clientName string, now time.Time) Job {
	return Job{
		ID:         id,
		ClientRef:  clientRef,
		ClientName: clientName,
		Priority:   PriorityNone,
		Location:   LocationOnSite,
		Sessions:   []TimeSession{},
		CreatedAt:  now,
		Dirty:      true,
	}
}

// OpenSession returns the job's open session, if any.
func (j *Job) OpenSession() *TimeSession {
	for i := range j.Sessions {
		if j.Sessions[i].Open() {
			return &j.Sessions[i]
		}
	}
	return nil
}

// Tombstoned reports whether the job was deleted locally but the remote
// deletion has not been confirmed yet.
func (j *Job) Tombstoned() bool {
	return j.DeletedAt != nil
}
