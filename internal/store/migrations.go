package store

import "fmt"

// migrate runs all database migrations
func (s *Store) migrate() error {
	migrations := []string{
		migrationCreateClients,
		migrationCreateJobs,
		migrationCreateAttachments,
		migrationCreateSyncState,
	}

	for i, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

const migrationCreateClients = `
CREATE TABLE IF NOT EXISTS clients (
    ref TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    tier TEXT DEFAULT '',
    created_at TEXT NOT NULL,
    last_used_at TEXT NOT NULL,
    dirty INTEGER DEFAULT 1,
    synced_at TEXT,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_clients_dirty ON clients(dirty);
`

const migrationCreateJobs = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    client_ref TEXT NOT NULL,
    client_name TEXT NOT NULL,
    notes TEXT DEFAULT '',
    priority INTEGER DEFAULT 5,
    location TEXT DEFAULT 'on_site',
    completed INTEGER DEFAULT 0,
    completed_at TEXT,
    sessions TEXT NOT NULL DEFAULT '[]',
    total_duration_min INTEGER DEFAULT 0,
    created_at TEXT NOT NULL,
    dirty INTEGER DEFAULT 1,
    synced_at TEXT,
    deleted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_client ON jobs(client_ref);
CREATE INDEX IF NOT EXISTS idx_jobs_dirty ON jobs(dirty);
`

const migrationCreateAttachments = `
CREATE TABLE IF NOT EXISTS attachments (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    payload BLOB NOT NULL,
    caption TEXT DEFAULT '',
    created_at TEXT NOT NULL,
    FOREIGN KEY (job_id) REFERENCES jobs(id)
);

CREATE INDEX IF NOT EXISTS idx_attachments_job ON attachments(job_id);
`

const migrationCreateSyncState = `
CREATE TABLE IF NOT EXISTS sync_state (
    key TEXT PRIMARY KEY,
    value TEXT
);
`
