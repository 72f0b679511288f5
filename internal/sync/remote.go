package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fieldtrack/fieldtrack/internal/logger"
	"github.com/fieldtrack/fieldtrack/internal/model"
)

// Remote is the engine's view of the remote store. Pushes are per-entity
// upserts keyed by id and must be idempotent; each returns the
// server-assigned updated_at that becomes the entity's confirmed sync
// timestamp. Pull returns every row with updated_at strictly past the
// watermark, ascending.
type Remote interface {
	PushJob(ctx context.Context, row JobRow) (time.Time, error)
	PushClient(ctx context.Context, row ClientRow) (time.Time, error)
	Pull(ctx context.Context, since time.Time) (*PullResult, error)
}

// httpRemote talks to the fieldtrack server's sync API.
type httpRemote struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type ackResponse struct {
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *httpRemote) PushJob(ctx context.Context, row JobRow) (time.Time, error) {
	return r.push(ctx, "/api/v1/sync/jobs", row)
}

func (r *httpRemote) PushClient(ctx context.Context, row ClientRow) (time.Time, error) {
	return r.push(ctx, "/api/v1/sync/clients", row)
}

func (r *httpRemote) push(ctx context.Context, path string, row interface{}) (time.Time, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to encode row: %w", err)
	}

	reqURL := r.baseURL + path
	logger.Debug("HTTP Request",
		logger.F("method", "POST"),
		logger.F("url", reqURL),
		logger.F("bodySize", len(body)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return time.Time{}, &model.NetworkError{Op: "push", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return time.Time{}, &model.NetworkError{
			Op:  "push",
			Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var ack ackResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return time.Time{}, &model.NetworkError{Op: "push", Err: fmt.Errorf("bad ack: %w", err)}
	}
	return ack.UpdatedAt, nil
}

func (r *httpRemote) Pull(ctx context.Context, since time.Time) (*PullResult, error) {
	reqURL := fmt.Sprintf("%s/api/v1/sync?since=%s",
		r.baseURL, url.QueryEscape(since.UTC().Format(time.RFC3339Nano)))

	logger.Debug("HTTP Request",
		logger.F("method", "GET"),
		logger.F("url", reqURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &model.NetworkError{Op: "pull", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &model.NetworkError{
			Op:  "pull",
			Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var result PullResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &model.NetworkError{Op: "pull", Err: fmt.Errorf("bad response: %w", err)}
	}

	logger.Debug("Pull response",
		logger.F("jobs", len(result.Jobs)),
		logger.F("clients", len(result.Clients)))
	return &result, nil
}
