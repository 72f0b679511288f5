package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// jobRow is the wire shape for a job. updated_at is assigned by the
// server on every accepted push and drives conflict resolution on the
// devices.
type jobRow struct {
	ID               string          `json:"id"`
	ClientRef        string          `json:"client_ref"`
	ClientName       string          `json:"client_name"`
	Notes            string          `json:"notes"`
	Priority         int             `json:"priority"`
	Location         string          `json:"location"`
	Completed        bool            `json:"completed"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	Sessions         json.RawMessage `json:"sessions"`
	TotalDurationMin int             `json:"total_duration_min"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Deleted          bool            `json:"deleted"`
}

// clientRow is the wire shape for a client reference.
type clientRow struct {
	Ref        string    `json:"ref"`
	Name       string    `json:"name"`
	Tier       string    `json:"tier,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Deleted    bool      `json:"deleted"`
}

// pullResponse is one page of changes past the requested watermark.
type pullResponse struct {
	Jobs    []jobRow    `json:"jobs"`
	Clients []clientRow `json:"clients"`
}

type ackResponse struct {
	UpdatedAt time.Time `json:"updated_at"`
}

// handleSyncPull returns every row with updated_at strictly past the
// since watermark, ascending. Tombstoned rows are included so devices
// learn about deletes.
func (s *Server) handleSyncPull(c echo.Context) error {
	userID := c.Get("user_id").(string)

	since := time.Unix(0, 0).UTC()
	if v := c.QueryParam("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid since timestamp"})
		}
		since = parsed
	}

	resp := pullResponse{Jobs: []jobRow{}, Clients: []clientRow{}}

	clientRows, err := s.db.Query(`
		SELECT ref, name, tier, deleted, created_at, last_used_at, updated_at
		FROM clients
		WHERE user_id = $1 AND updated_at > $2
		ORDER BY updated_at ASC`,
		userID, since,
	)
	if err != nil {
		c.Logger().Error("db error:", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	defer clientRows.Close()
	for clientRows.Next() {
		var row clientRow
		if err := clientRows.Scan(&row.Ref, &row.Name, &row.Tier, &row.Deleted,
			&row.CreatedAt, &row.LastUsedAt, &row.UpdatedAt); err != nil {
			c.Logger().Error("scan error:", err)
			continue
		}
		resp.Clients = append(resp.Clients, row)
	}

	jobRows, err := s.db.Query(`
		SELECT id, client_ref, client_name, notes, priority, location,
		       completed, completed_at, sessions, total_duration_min,
		       deleted, created_at, updated_at
		FROM jobs
		WHERE user_id = $1 AND updated_at > $2
		ORDER BY updated_at ASC`,
		userID, since,
	)
	if err != nil {
		c.Logger().Error("db error:", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	defer jobRows.Close()
	for jobRows.Next() {
		var row jobRow
		var sessions []byte
		if err := jobRows.Scan(&row.ID, &row.ClientRef, &row.ClientName, &row.Notes,
			&row.Priority, &row.Location, &row.Completed, &row.CompletedAt,
			&sessions, &row.TotalDurationMin, &row.Deleted,
			&row.CreatedAt, &row.UpdatedAt); err != nil {
			c.Logger().Error("scan error:", err)
			continue
		}
		row.Sessions = json.RawMessage(sessions)
		resp.Jobs = append(resp.Jobs, row)
	}

	c.Logger().Infof("Sync pull for user %s: %d jobs, %d clients since %s",
		userID, len(resp.Jobs), len(resp.Clients), since.Format(time.RFC3339Nano))

	return c.JSON(http.StatusOK, resp)
}

// handleSyncPushJob upserts one job row, stamps it with the server
// clock, acknowledges with the assigned timestamp, and fans the change
// out to the user's other devices.
func (s *Server) handleSyncPushJob(c echo.Context) error {
	userID := c.Get("user_id").(string)

	var row jobRow
	if err := c.Bind(&row); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if row.ID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "id required"})
	}
	if row.Sessions == nil {
		row.Sessions = json.RawMessage("[]")
	}

	err := s.db.QueryRow(`
		INSERT INTO jobs (user_id, id, client_ref, client_name, notes, priority,
		                  location, completed, completed_at, sessions,
		                  total_duration_min, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (user_id, id) DO UPDATE SET
			client_ref = $3,
			client_name = $4,
			notes = $5,
			priority = $6,
			location = $7,
			completed = $8,
			completed_at = $9,
			sessions = $10,
			total_duration_min = $11,
			deleted = $12,
			updated_at = NOW()
		RETURNING updated_at`,
		userID, row.ID, row.ClientRef, row.ClientName, row.Notes, row.Priority,
		row.Location, row.Completed, row.CompletedAt, string(row.Sessions),
		row.TotalDurationMin, row.Deleted, row.CreatedAt,
	).Scan(&row.UpdatedAt)

	if err != nil {
		c.Logger().Error("db error:", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	s.broadcastJob(userID, row)

	return c.JSON(http.StatusOK, ackResponse{UpdatedAt: row.UpdatedAt})
}

// handleSyncPushClient upserts one client reference row.
func (s *Server) handleSyncPushClient(c echo.Context) error {
	userID := c.Get("user_id").(string)

	var row clientRow
	if err := c.Bind(&row); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if row.Ref == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "ref required"})
	}

	err := s.db.QueryRow(`
		INSERT INTO clients (user_id, ref, name, tier, deleted, created_at,
		                     last_used_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id, ref) DO UPDATE SET
			name = $3,
			tier = $4,
			deleted = $5,
			last_used_at = $7,
			updated_at = NOW()
		RETURNING updated_at`,
		userID, row.Ref, row.Name, row.Tier, row.Deleted,
		row.CreatedAt, row.LastUsedAt,
	).Scan(&row.UpdatedAt)

	if err != nil {
		c.Logger().Error("db error:", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	s.broadcastClient(userID, row)

	return c.JSON(http.StatusOK, ackResponse{UpdatedAt: row.UpdatedAt})
}
