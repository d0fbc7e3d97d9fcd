// Package connections persists per-organization provider connections, including lookups
// across the legacy locations older schema versions wrote to.
package connections

import (
	"time"

	"github.com/jrsteele09/go-integrations-server/providers"
)

// Connection is one organization's authorization with one provider. Token fields hold
// envelope-sealed values, never plaintext.
type Connection struct {
	OrganizationID             string            `json:"organizationId"`
	Provider                   providers.Name    `json:"provider"`
	ConnectionID               string            `json:"connectionId,omitempty"`
	AccountEmail               string            `json:"accountEmail"`
	AccountName                string            `json:"accountName"`
	AccountID                  string            `json:"accountId"`
	AccessToken                string            `json:"accessToken"`
	RefreshToken               string            `json:"refreshToken,omitempty"`
	TokenExpiresAt             *time.Time        `json:"tokenExpiresAt"`
	Scopes                     []string          `json:"scopes"`
	IsActive                   bool              `json:"isActive"`
	ConnectedAt                time.Time         `json:"connectedAt"`
	ConnectedBy                string            `json:"connectedBy,omitempty"`
	LastRefreshedAt            *time.Time        `json:"lastRefreshedAt,omitempty"`
	ConsecutiveRefreshFailures int               `json:"consecutiveRefreshFailures"`
	RequiresReconnection       bool              `json:"requiresReconnection"`
	LastRefreshError           string            `json:"lastRefreshError,omitempty"`
	Metadata                   map[string]string `json:"metadata,omitempty"`
	UpdatedAt                  time.Time         `json:"updatedAt"`

	// Set on legacy or duplicate records that have been superseded.
	MigratedTo     string     `json:"migratedTo,omitempty"`
	MigratedAt     *time.Time `json:"migratedAt,omitempty"`
	MigrationRunID string     `json:"migrationRunId,omitempty"`
}

// Usable reports whether the connection may authorize API calls.
func (c *Connection) Usable() bool {
	return c.IsActive && !c.RequiresReconnection && c.MigratedTo == ""
}

func (c *Connection) Migrated() bool {
	return c.MigratedTo != ""
}

// ExpiresWithin reports whether the access token expires before now+window. Tokens
// without an expiry never do.
func (c *Connection) ExpiresWithin(now time.Time, window time.Duration) bool {
	if c.TokenExpiresAt == nil {
		return false
	}
	return c.TokenExpiresAt.Before(now.Add(window))
}

// Key addresses a connection. ConnectionID is required for multi-connection providers;
// UserID only matters for the per-user legacy location.
type Key struct {
	OrganizationID string
	Provider       providers.Name
	ConnectionID   string
	UserID         string
}

// KeyOf returns the key addressing c.
func KeyOf(c *Connection) Key {
	return Key{OrganizationID: c.OrganizationID, Provider: c.Provider, ConnectionID: c.ConnectionID}
}
