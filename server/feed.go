package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/fieldtrack/fieldtrack/internal/logger"
	"github.com/fieldtrack/fieldtrack/internal/model"
)

// feedHub fans change events out to a user's connected devices. Events
// are delivered best-effort: a device that misses one catches up on its
// next pull, so a slow socket is dropped rather than allowed to stall
// the push path.
type feedHub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]bool // userID -> connections
}

func newFeedHub() *feedHub {
	return &feedHub{
		conns: make(map[string]map[*websocket.Conn]bool),
	}
}

func (h *feedHub) add(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]bool)
	}
	h.conns[userID][conn] = true
}

func (h *feedHub) remove(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[userID], conn)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// publish sends one event to every device of the user. Write failures
// evict the connection.
func (h *feedHub) publish(userID string, ev model.ChangeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Failed to encode feed event", logger.F("error", err))
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns[userID]))
	for conn := range h.conns[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()

		if err != nil {
			logger.Warn("Dropping slow feed connection", logger.F("error", err))
			h.remove(userID, conn)
			_ = conn.Close(websocket.StatusPolicyViolation, "write timeout")
		}
	}
}

func (h *feedHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.conns {
		for conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(h.conns, userID)
	}
}

// handleFeed upgrades the request to a WebSocket and streams change
// events until the device disconnects.
func (s *Server) handleFeed(c echo.Context) error {
	userID := c.Get("user_id").(string)

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		c.Logger().Error("websocket upgrade failed:", err)
		return nil
	}

	s.feed.add(userID, conn)
	defer s.feed.remove(userID, conn)

	logger.Info("Feed connected", logger.F("userID", userID))

	// The feed is write-only; reading serves to detect disconnects.
	ctx := c.Request().Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	logger.Info("Feed disconnected", logger.F("userID", userID))
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

func (s *Server) broadcastJob(userID string, row jobRow) {
	s.feed.publish(userID, rowEvent(model.TableJobs, row.ID, row.Deleted, row))
}

func (s *Server) broadcastClient(userID string, row clientRow) {
	s.feed.publish(userID, rowEvent(model.TableClients, row.Ref, row.Deleted, row))
}

// rowEvent shapes a change event: deletes carry the id only, everything
// else carries the full row.
func rowEvent(table, id string, deleted bool, row interface{}) model.ChangeEvent {
	if deleted {
		return model.ChangeEvent{Type: model.ChangeDelete, Table: table, ID: id}
	}
	data, err := json.Marshal(row)
	if err != nil {
		return model.ChangeEvent{Type: model.ChangeDelete, Table: table, ID: id}
	}
	return model.ChangeEvent{Type: model.ChangeUpdate, Table: table, Row: data, ID: id}
}
