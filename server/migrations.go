package server

// migrate runs database migrations.
func (s *Server) migrate() error {
	migrations := []string{
		migrationUsers,
		migrationSessions,
		migrationClients,
		migrationJobs,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

const migrationUsers = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    username VARCHAR(255) UNIQUE NOT NULL,
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
`

const migrationSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id),
    token VARCHAR(64) UNIQUE NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sessions_token ON sessions(token);
`

const migrationClients = `
CREATE TABLE IF NOT EXISTS clients (
    user_id UUID NOT NULL REFERENCES users(id),
    ref TEXT NOT NULL,
    name TEXT NOT NULL,
    tier TEXT DEFAULT '',
    deleted BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    last_used_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    PRIMARY KEY (user_id, ref)
);

CREATE INDEX IF NOT EXISTS idx_clients_updated ON clients(user_id, updated_at);
`

const migrationJobs = `
CREATE TABLE IF NOT EXISTS jobs (
    user_id UUID NOT NULL REFERENCES users(id),
    id TEXT NOT NULL,
    client_ref TEXT NOT NULL,
    client_name TEXT NOT NULL,
    notes TEXT DEFAULT '',
    priority INTEGER DEFAULT 3,
    location TEXT DEFAULT 'on_site',
    completed BOOLEAN DEFAULT FALSE,
    completed_at TIMESTAMPTZ,
    sessions JSONB DEFAULT '[]',
    total_duration_min INTEGER DEFAULT 0,
    deleted BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    PRIMARY KEY (user_id, id)
);

CREATE INDEX IF NOT EXISTS idx_jobs_updated ON jobs(user_id, updated_at);
`
