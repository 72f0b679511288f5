package model

import (
	"strings"
	"time"
)

// SupportTier classifies how a client is serviced. Optional.
type SupportTier string

const (
	TierNone     SupportTier = ""
	TierStandard SupportTier = "standard"
	TierPriority SupportTier = "priority"
	TierContract SupportTier = "contract"
)

// Client is a billing/reference entity independent of jobs. Ref is the
// user-chosen natural key, always stored uppercased; uniqueness is
// enforced against the full local set before insert or rename.
type Client struct {
	Ref        string      `json:"ref"`
	Name       string      `json:"name"`
	Tier       SupportTier `json:"tier,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	LastUsedAt time.Time   `json:"last_used_at"`
	Dirty      bool        `json:"dirty"`
	SyncedAt   time.Time   `json:"synced_at"`
	DeletedAt  *time.Time  `json:"deleted_at,omitempty"`
}

// NormalizeRef canonicalizes a client reference code.
func NormalizeRef(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}
