package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/fieldtrack/fieldtrack/internal/logger"
	"github.com/fieldtrack/fieldtrack/internal/model"
)

// Realtime subscribes to the server's WebSocket change feed and forwards
// decoded events into the engine. It deliberately does not reconnect:
// when the channel drops, the periodic poll keeps the device eventually
// consistent, so a flapping socket can never turn into a retry storm.
type Realtime struct {
	feedURL string
	token   string
}

// NewRealtime builds an adapter for the given server base URL.
func NewRealtime(serverURL, token string) *Realtime {
	return &Realtime{
		feedURL: wsURL(serverURL) + "/api/v1/feed",
		token:   token,
	}
}

// wsURL rewrites an http(s) base URL to its ws(s) counterpart.
func wsURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://")
	default:
		return serverURL
	}
}

// Subscribe connects to the feed and invokes onEvent for every change
// event until ctx is cancelled or the channel degrades. The returned
// error describes why delivery stopped; ctx cancellation returns nil.
func (r *Realtime) Subscribe(ctx context.Context, onEvent func(model.ChangeEvent)) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.token)

	conn, _, err := websocket.Dial(ctx, r.feedURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return &model.NetworkError{Op: "subscribe", Err: err}
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	logger.Info("Realtime channel connected", logger.F("url", r.feedURL))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &model.NetworkError{Op: "subscribe", Err: fmt.Errorf("read: %w", err)}
		}

		var ev model.ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Warn("Dropping undecodable feed event", logger.F("error", err))
			continue
		}

		logger.Debug("Feed event",
			logger.F("type", ev.Type),
			logger.F("table", ev.Table))
		onEvent(ev)
	}
}
