// Package store is the durable on-device store for jobs, clients and
// attachments, plus the sync bookkeeping (dirty index, tombstones,
// watermark). It is the source of truth while the device is offline.
//
// All operations are atomic per entity; multi-entity invariants are
// enforced by callers before the single put. Underlying I/O failures are
// reported as model.ErrStorageUnavailable so the sync engine can treat
// them as retryable.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fieldtrack/fieldtrack/internal/logger"
	"github.com/fieldtrack/fieldtrack/internal/model"
)

const watermarkKey = "pull_watermark"

// Store wraps the SQLite database connection
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database path (~/.fieldtrack/fieldtrack.db)
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".fieldtrack", "fieldtrack.db"), nil
}

// Open opens or creates the SQLite database
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: sqlDB}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// OpenDefault opens the database at the default path
func OpenDefault() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// storageErr maps a driver failure onto the retryable taxonomy.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrStorageUnavailable, op, err)
}

// --- Jobs ---

// PutJob upserts a job, replacing any existing row for its id.
func (s *Store) PutJob(j model.Job) error {
	sessions, err := json.Marshal(j.Sessions)
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, client_ref, client_name, notes, priority, location,
			completed, completed_at, sessions, total_duration_min, created_at,
			dirty, synced_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			client_ref = excluded.client_ref,
			client_name = excluded.client_name,
			notes = excluded.notes,
			priority = excluded.priority,
			location = excluded.location,
			completed = excluded.completed,
			completed_at = excluded.completed_at,
			sessions = excluded.sessions,
			total_duration_min = excluded.total_duration_min,
			created_at = excluded.created_at,
			dirty = excluded.dirty,
			synced_at = excluded.synced_at,
			deleted_at = excluded.deleted_at`,
		j.ID, j.ClientRef, j.ClientName, j.Notes, j.Priority, string(j.Location),
		boolToInt(j.Completed), timePtrToNull(j.CompletedAt), string(sessions),
		j.TotalDurationMin, formatTime(j.CreatedAt), boolToInt(j.Dirty),
		nullableTime(j.SyncedAt), timePtrToNull(j.DeletedAt),
	)
	if err != nil {
		return storageErr("put job", err)
	}
	return nil
}

// GetJob returns the job with the given id, tombstoned or not.
func (s *Store) GetJob(id string) (model.Job, error) {
	row := s.db.QueryRow(`
		SELECT id, client_ref, client_name, notes, priority, location,
			completed, completed_at, sessions, total_duration_min, created_at,
			dirty, synced_at, deleted_at
		FROM jobs WHERE id = ?`, id)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, model.ErrNotFound
	}
	if err != nil {
		return model.Job{}, storageErr("get job", err)
	}
	return j, nil
}

// ListJobs returns all live (non-tombstoned) jobs.
func (s *Store) ListJobs() ([]model.Job, error) {
	return s.queryJobs(`WHERE deleted_at IS NULL ORDER BY created_at DESC`)
}

// ListJobsByClient returns live jobs for one client reference.
func (s *Store) ListJobsByClient(ref string) ([]model.Job, error) {
	return s.queryJobs(`WHERE deleted_at IS NULL AND client_ref = ? ORDER BY created_at DESC`, ref)
}

// ListDirtyJobs returns every job awaiting upload, tombstones included.
func (s *Store) ListDirtyJobs() ([]model.Job, error) {
	return s.queryJobs(`WHERE dirty = 1 ORDER BY created_at ASC`)
}

func (s *Store) queryJobs(clause string, args ...interface{}) ([]model.Job, error) {
	rows, err := s.db.Query(`
		SELECT id, client_ref, client_name, notes, priority, location,
			completed, completed_at, sessions, total_duration_min, created_at,
			dirty, synced_at, deleted_at
		FROM jobs `+clause, args...)
	if err != nil {
		return nil, storageErr("list jobs", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, storageErr("scan job", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list jobs", err)
	}
	return jobs, nil
}

// DeleteJob tombstones a job for eventual remote deletion. Its
// attachments are removed synchronously, in the same transaction,
// before the tombstone is written.
func (s *Store) DeleteJob(id string, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("delete job", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM attachments WHERE job_id = ?`, id); err != nil {
		return storageErr("delete attachments", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET deleted_at = ?, dirty = 1 WHERE id = ?`,
		formatTime(now), id)
	if err != nil {
		return storageErr("tombstone job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return storageErr("delete job", err)
	}
	return nil
}

// RemoveJob hard-deletes a job row and any attachments. Called once the
// remote deletion is confirmed, or when a remote delete event arrives.
func (s *Store) RemoveJob(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("remove job", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM attachments WHERE job_id = ?`, id); err != nil {
		return storageErr("remove attachments", err)
	}
	if _, err := tx.Exec(`DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return storageErr("remove job", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("remove job", err)
	}
	return nil
}

// MarkJobSynced clears the dirty flag and records the server timestamp.
// Tombstoned jobs are hard-deleted instead: the ack confirms the remote
// delete landed.
func (s *Store) MarkJobSynced(id string, serverUpdatedAt time.Time) error {
	j, err := s.GetJob(id)
	if err != nil {
		return err
	}
	if j.Tombstoned() {
		return s.RemoveJob(id)
	}

	_, err = s.db.Exec(`UPDATE jobs SET dirty = 0, synced_at = ? WHERE id = ?`,
		formatTime(serverUpdatedAt), id)
	if err != nil {
		return storageErr("mark job synced", err)
	}
	return nil
}

// FindOpenSession scans live jobs for a running session. Returns
// model.ErrNotFound when no session is open.
func (s *Store) FindOpenSession() (model.Job, model.TimeSession, error) {
	jobs, err := s.ListJobs()
	if err != nil {
		return model.Job{}, model.TimeSession{}, err
	}
	for _, j := range jobs {
		if open := j.OpenSession(); open != nil {
			return j, *open, nil
		}
	}
	return model.Job{}, model.TimeSession{}, model.ErrNotFound
}

// --- Clients ---

// PutClient upserts a client keyed by its reference code.
func (s *Store) PutClient(c model.Client) error {
	_, err := s.db.Exec(`
		INSERT INTO clients (ref, name, tier, created_at, last_used_at, dirty, synced_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ref) DO UPDATE SET
			name = excluded.name,
			tier = excluded.tier,
			created_at = excluded.created_at,
			last_used_at = excluded.last_used_at,
			dirty = excluded.dirty,
			synced_at = excluded.synced_at,
			deleted_at = excluded.deleted_at`,
		c.Ref, c.Name, string(c.Tier), formatTime(c.CreatedAt),
		formatTime(c.LastUsedAt), boolToInt(c.Dirty), nullableTime(c.SyncedAt),
		timePtrToNull(c.DeletedAt),
	)
	if err != nil {
		return storageErr("put client", err)
	}
	return nil
}

// CreateClient inserts a new client after checking reference uniqueness
// against the full local set. Duplicate refs are a ValidationError.
func (s *Store) CreateClient(c model.Client) error {
	c.Ref = model.NormalizeRef(c.Ref)
	if c.Ref == "" {
		return &model.ValidationError{Field: "ref", Msg: "reference code required"}
	}

	_, err := s.GetClient(c.Ref)
	if err == nil {
		return &model.ValidationError{Field: "ref", Msg: fmt.Sprintf("reference %q already exists", c.Ref)}
	}
	if !errors.Is(err, model.ErrNotFound) {
		return err
	}

	return s.PutClient(c)
}

// GetClient returns the client with the given reference code.
func (s *Store) GetClient(ref string) (model.Client, error) {
	row := s.db.QueryRow(`
		SELECT ref, name, tier, created_at, last_used_at, dirty, synced_at, deleted_at
		FROM clients WHERE ref = ?`, model.NormalizeRef(ref))

	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Client{}, model.ErrNotFound
	}
	if err != nil {
		return model.Client{}, storageErr("get client", err)
	}
	return c, nil
}

// ListClients returns all live clients.
func (s *Store) ListClients() ([]model.Client, error) {
	return s.queryClients(`WHERE deleted_at IS NULL ORDER BY ref ASC`)
}

// ListDirtyClients returns clients awaiting upload, tombstones included.
func (s *Store) ListDirtyClients() ([]model.Client, error) {
	return s.queryClients(`WHERE dirty = 1 ORDER BY ref ASC`)
}

func (s *Store) queryClients(clause string, args ...interface{}) ([]model.Client, error) {
	rows, err := s.db.Query(`
		SELECT ref, name, tier, created_at, last_used_at, dirty, synced_at, deleted_at
		FROM clients `+clause, args...)
	if err != nil {
		return nil, storageErr("list clients", err)
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, storageErr("scan client", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list clients", err)
	}
	return clients, nil
}

// MarkClientSynced clears the dirty flag; tombstoned clients are
// hard-deleted once the ack confirms the remote delete.
func (s *Store) MarkClientSynced(ref string, serverUpdatedAt time.Time) error {
	c, err := s.GetClient(ref)
	if err != nil {
		return err
	}
	if c.DeletedAt != nil {
		if _, err := s.db.Exec(`DELETE FROM clients WHERE ref = ?`, c.Ref); err != nil {
			return storageErr("remove client", err)
		}
		return nil
	}

	_, err = s.db.Exec(`UPDATE clients SET dirty = 0, synced_at = ? WHERE ref = ?`,
		formatTime(serverUpdatedAt), c.Ref)
	if err != nil {
		return storageErr("mark client synced", err)
	}
	return nil
}

// RemoveClient hard-deletes a client row.
func (s *Store) RemoveClient(ref string) error {
	if _, err := s.db.Exec(`DELETE FROM clients WHERE ref = ?`, model.NormalizeRef(ref)); err != nil {
		return storageErr("remove client", err)
	}
	return nil
}

// RenameClientRef renames a client's reference code and cascades: every
// job carrying the old code is rewritten to the new code and name and
// re-marked dirty. The old client row is tombstoned and a fresh row is
// created under the new ref, both dirty, so the remote store converges.
// Returns the number of jobs rewritten.
func (s *Store) RenameClientRef(oldRef, newRef, newName string, now time.Time) (int, error) {
	oldRef = model.NormalizeRef(oldRef)
	newRef = model.NormalizeRef(newRef)
	if newRef == "" {
		return 0, &model.ValidationError{Field: "ref", Msg: "reference code required"}
	}
	if newRef == oldRef {
		return 0, &model.ValidationError{Field: "ref", Msg: "new reference equals old reference"}
	}

	old, err := s.GetClient(oldRef)
	if err != nil {
		return 0, err
	}

	// Uniqueness against the full local set, before any write.
	if _, err := s.GetClient(newRef); err == nil {
		return 0, &model.ValidationError{Field: "ref", Msg: fmt.Sprintf("reference %q already exists", newRef)}
	} else if !errors.Is(err, model.ErrNotFound) {
		return 0, err
	}
	if newName == "" {
		newName = old.Name
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("rename client", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO clients (ref, name, tier, created_at, last_used_at, dirty, synced_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, 1, NULL, NULL)`,
		newRef, newName, string(old.Tier), formatTime(old.CreatedAt), formatTime(now))
	if err != nil {
		return 0, storageErr("rename client", err)
	}

	_, err = tx.Exec(`UPDATE clients SET deleted_at = ?, dirty = 1 WHERE ref = ?`,
		formatTime(now), oldRef)
	if err != nil {
		return 0, storageErr("rename client", err)
	}

	res, err := tx.Exec(`
		UPDATE jobs SET client_ref = ?, client_name = ?, dirty = 1
		WHERE client_ref = ?`,
		newRef, newName, oldRef)
	if err != nil {
		return 0, storageErr("rename client jobs", err)
	}
	rewritten, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, storageErr("rename client", err)
	}
	return int(rewritten), nil
}

// --- Attachments ---

// AddAttachment stores a media payload owned by a job.
func (s *Store) AddAttachment(a model.Attachment) error {
	if _, err := s.GetJob(a.JobID); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO attachments (id, job_id, kind, payload, caption, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.JobID, string(a.Kind), a.Payload, a.Caption, formatTime(a.CreatedAt))
	if err != nil {
		return storageErr("add attachment", err)
	}
	return nil
}

// ListAttachments returns all attachments owned by a job.
func (s *Store) ListAttachments(jobID string) ([]model.Attachment, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, kind, payload, caption, created_at
		FROM attachments WHERE job_id = ? ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, storageErr("list attachments", err)
	}
	defer rows.Close()

	var atts []model.Attachment
	for rows.Next() {
		var a model.Attachment
		var kind, created string
		if err := rows.Scan(&a.ID, &a.JobID, &kind, &a.Payload, &a.Caption, &created); err != nil {
			return nil, storageErr("scan attachment", err)
		}
		a.Kind = model.AttachmentKind(kind)
		a.CreatedAt = parseTime(created)
		atts = append(atts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list attachments", err)
	}
	return atts, nil
}

// DeleteAttachment removes a single attachment.
func (s *Store) DeleteAttachment(id string) error {
	res, err := s.db.Exec(`DELETE FROM attachments WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete attachment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Sync bookkeeping ---

// Watermark returns the last successfully pulled remote timestamp.
// The epoch on first run.
func (s *Store) Watermark() (time.Time, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, watermarkKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Unix(0, 0).UTC(), nil
	}
	if err != nil {
		return time.Time{}, storageErr("get watermark", err)
	}
	return parseTime(value), nil
}

// SetWatermark records the new pull watermark. Callers only ever advance
// it to the maximum updated_at actually observed, never to "now".
func (s *Store) SetWatermark(t time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		watermarkKey, formatTime(t))
	if err != nil {
		return storageErr("set watermark", err)
	}
	return nil
}

// DirtyCount returns how many entities await upload, for the unsynced
// indicator.
func (s *Store) DirtyCount() (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT (SELECT COUNT(*) FROM jobs WHERE dirty = 1)
		     + (SELECT COUNT(*) FROM clients WHERE dirty = 1)`).Scan(&n)
	if err != nil {
		return 0, storageErr("dirty count", err)
	}
	return n, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(r rowScanner) (model.Job, error) {
	var j model.Job
	var location, sessions, created string
	var completed, dirty int
	var completedAt, syncedAt, deletedAt sql.NullString

	err := r.Scan(&j.ID, &j.ClientRef, &j.ClientName, &j.Notes, &j.Priority,
		&location, &completed, &completedAt, &sessions, &j.TotalDurationMin,
		&created, &dirty, &syncedAt, &deletedAt)
	if err != nil {
		return model.Job{}, err
	}

	j.Location = model.Location(location)
	j.Completed = completed != 0
	j.Dirty = dirty != 0
	j.CreatedAt = parseTime(created)
	j.CompletedAt = nullToTimePtr(completedAt)
	j.DeletedAt = nullToTimePtr(deletedAt)
	if syncedAt.Valid {
		j.SyncedAt = parseTime(syncedAt.String)
	}

	if err := json.Unmarshal([]byte(sessions), &j.Sessions); err != nil {
		return model.Job{}, fmt.Errorf("failed to decode sessions: %w", err)
	}
	if j.Sessions == nil {
		j.Sessions = []model.TimeSession{}
	}
	return j, nil
}

func scanClient(r rowScanner) (model.Client, error) {
	var c model.Client
	var tier, created, lastUsed string
	var dirty int
	var syncedAt, deletedAt sql.NullString

	err := r.Scan(&c.Ref, &c.Name, &tier, &created, &lastUsed, &dirty, &syncedAt, &deletedAt)
	if err != nil {
		return model.Client{}, err
	}

	c.Tier = model.SupportTier(tier)
	c.CreatedAt = parseTime(created)
	c.LastUsedAt = parseTime(lastUsed)
	c.Dirty = dirty != 0
	c.DeletedAt = nullToTimePtr(deletedAt)
	if syncedAt.Valid {
		c.SyncedAt = parseTime(syncedAt.String)
	}
	return c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a stored RFC 3339 timestamp. A corrupt value is
// logged and read as the zero time, which the sync layer treats as
// never-synced; that re-uploads or re-pulls the row rather than losing
// it.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		logger.Warn("Corrupt stored timestamp", logger.F("value", s), logger.F("error", err))
		return time.Time{}
	}
	return t
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func timePtrToNull(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullToTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
