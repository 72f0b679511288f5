package model

import "encoding/json"

// ChangeEventType is the kind of change carried on the feed.
type ChangeEventType string

const (
	ChangeInsert ChangeEventType = "insert"
	ChangeUpdate ChangeEventType = "update"
	ChangeDelete ChangeEventType = "delete"
)

// Feed table names.
const (
	TableJobs    = "jobs"
	TableClients = "clients"
)

// ChangeEvent is one entry on the remote change feed. Row carries the
// full wire row for inserts and updates; deletes carry the id only.
type ChangeEvent struct {
	Type  ChangeEventType `json:"event_type"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row,omitempty"`
	ID    string          `json:"id,omitempty"`
}
