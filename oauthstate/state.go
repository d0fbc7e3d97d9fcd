// Package oauthstate stores the short-lived state tokens that correlate an OAuth callback
// with the request that initiated it.
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-integrations-server/providers"
)

// DefaultTTL is how long an initiated authorization stays valid.
const DefaultTTL = time.Hour

// State binds an in-flight authorization to its organization, user and return URL.
type State struct {
	State          string         `json:"state"`
	Provider       providers.Name `json:"provider"`
	OrganizationID string         `json:"organizationId"`
	UserID         string         `json:"userId"`
	RedirectURL    string         `json:"redirectUrl"`
	CreatedAt      time.Time      `json:"createdAt"`
	ExpiresAt      time.Time      `json:"expiresAt"`
}

// Expired reports whether the state may no longer be used at now.
func (s *State) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Repo persists states. Get returns errors.ErrStateNotFound for unknown states.
type Repo interface {
	Create(ctx context.Context, state *State) error
	Get(ctx context.Context, state string) (*State, error)
	Delete(ctx context.Context, state string) error
	// DeleteExpired removes states that expired before now and reports how many it removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// NewStateToken returns 32 random bytes, hex encoded.
func NewStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validate(s *State) error {
	if s == nil {
		return errors.New("state cannot be nil")
	}
	if s.State == "" {
		return errors.New("state cannot be empty")
	}
	if s.ExpiresAt.IsZero() {
		return errors.New("state needs an expiry")
	}
	return nil
}
