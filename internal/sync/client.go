package sync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fieldtrack/fieldtrack/internal/logger"
)

// Config holds the sync account state: which server, which user, and the
// bearer token that scopes every remote call.
type Config struct {
	ServerURL  string `json:"server_url"`
	Token      string `json:"token"`
	UserID     string `json:"user_id"`
	LastSyncAt int64  `json:"last_sync_at"`
}

// Client manages the sync account and builds the Remote used by the
// engine. It is the process's "current user id" provider.
type Client struct {
	config     *Config
	configPath string
	httpClient *http.Client
}

// NewClient creates a new sync client
func NewClient() (*Client, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(home, ".fieldtrack", "sync.json")

	c := &Client{
		configPath: configPath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	c.loadConfig()

	return c, nil
}

func (c *Client) loadConfig() {
	data, err := os.ReadFile(c.configPath)
	if err != nil {
		c.config = &Config{
			ServerURL: "http://localhost:8080",
		}
		return
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		// A corrupt sync.json means logged out with defaults; a partially
		// decoded token would be worse than none.
		logger.Warn("Corrupt sync config, using defaults",
			logger.F("path", c.configPath),
			logger.F("error", err))
		c.config = &Config{
			ServerURL: "http://localhost:8080",
		}
		return
	}
	c.config = cfg
}

func (c *Client) saveConfig() error {
	dir := filepath.Dir(c.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c.config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.configPath, data, 0600)
}

// SetServer sets the sync server URL
func (c *Client) SetServer(url string) error {
	c.config.ServerURL = strings.TrimRight(url, "/")
	return c.saveConfig()
}

// IsLoggedIn returns true if user is logged in
func (c *Client) IsLoggedIn() bool {
	return c.config.Token != ""
}

// UserID returns the authenticated user's id, empty when logged out.
func (c *Client) UserID() string {
	return c.config.UserID
}

// ServerURL returns the configured server base URL.
func (c *Client) ServerURL() string {
	return c.config.ServerURL
}

// Remote returns the HTTP remote store bound to this account.
func (c *Client) Remote() Remote {
	return &httpRemote{
		baseURL:    c.config.ServerURL,
		token:      c.config.Token,
		httpClient: c.httpClient,
	}
}

// Feed returns the realtime change feed adapter bound to this account.
func (c *Client) Feed() *Realtime {
	return NewRealtime(c.config.ServerURL, c.config.Token)
}

// ShouldAutoSync reports whether the background catch-up interval has
// elapsed since the last recorded sync.
func (c *Client) ShouldAutoSync() bool {
	if !c.IsLoggedIn() {
		return false
	}
	last := time.Unix(c.config.LastSyncAt, 0)
	return time.Since(last) > 12*time.Hour
}

// UpdateSyncTime records a completed sync.
func (c *Client) UpdateSyncTime() error {
	c.config.LastSyncAt = time.Now().Unix()
	return c.saveConfig()
}

// Register creates a new account
func (c *Client) Register(username, email, password string) error {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})

	resp, err := c.httpClient.Post(
		c.config.ServerURL+"/api/v1/register",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("register failed: %s", string(respBody))
	}

	var result struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}

	c.config.Token = result.Token
	c.config.UserID = result.UserID
	return c.saveConfig()
}

// Login authenticates with username and password
func (c *Client) Login(username, password string) error {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	resp, err := c.httpClient.Post(
		c.config.ServerURL+"/api/v1/login",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed: %s", string(respBody))
	}

	var result struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}

	c.config.Token = result.Token
	c.config.UserID = result.UserID
	return c.saveConfig()
}

// Logout clears the session
func (c *Client) Logout() error {
	c.config.Token = ""
	c.config.UserID = ""
	return c.saveConfig()
}
