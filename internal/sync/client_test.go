package sync

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testClient(t *testing.T, contents string) *Client {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sync.json")
	if contents != "" {
		if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}

	c := &Client{
		configPath: path,
		httpClient: &http.Client{Timeout: time.Second},
	}
	c.loadConfig()
	return c
}

func TestLoadConfigMissingFile(t *testing.T) {
	c := testClient(t, "")

	if c.ServerURL() != "http://localhost:8080" {
		t.Errorf("ServerURL = %q, want default", c.ServerURL())
	}
	if c.IsLoggedIn() {
		t.Error("fresh client reports logged in")
	}
}

func TestLoadConfigCorruptFile(t *testing.T) {
	c := testClient(t, "{truncated")

	// Corrupt state must not surface as a half-decoded account.
	if c.ServerURL() != "http://localhost:8080" {
		t.Errorf("ServerURL = %q, want default after corrupt config", c.ServerURL())
	}
	if c.IsLoggedIn() {
		t.Error("corrupt config reports logged in")
	}
	if c.UserID() != "" {
		t.Errorf("UserID = %q, want empty", c.UserID())
	}
}

func TestLoadConfigValidFile(t *testing.T) {
	c := testClient(t, `{"server_url":"https://sync.example.net","token":"tok","user_id":"u1"}`)

	if c.ServerURL() != "https://sync.example.net" {
		t.Errorf("ServerURL = %q", c.ServerURL())
	}
	if !c.IsLoggedIn() {
		t.Error("valid config reports logged out")
	}
	if c.UserID() != "u1" {
		t.Errorf("UserID = %q, want u1", c.UserID())
	}
}
