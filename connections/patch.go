package connections

import (
	"time"

	"github.com/jrsteele09/go-integrations-server/docstore"
)

// Patch is a partial update. Nil fields are left untouched. An empty RefreshToken is treated
// like nil: providers omit the refresh token to mean "unchanged".
type Patch struct {
	AccountEmail               *string
	AccountName                *string
	AccountID                  *string
	AccessToken                *string
	RefreshToken               *string
	TokenExpiresAt             *time.Time
	ClearTokenExpiry           bool
	Scopes                     []string
	IsActive                   *bool
	ConnectedAt                *time.Time
	ConnectedBy                *string
	LastRefreshedAt            *time.Time
	ConsecutiveRefreshFailures *int
	RequiresReconnection       *bool
	// LastRefreshError set to "" removes the field.
	LastRefreshError *string
	Metadata         map[string]string
}

// Fields returns the document fields the patch writes, stamped with updatedAt.
func (p Patch) Fields(now time.Time) map[string]any {
	f := map[string]any{"updatedAt": now.UTC()}
	setString := func(name string, v *string) {
		if v != nil {
			f[name] = *v
		}
	}
	setString("accountEmail", p.AccountEmail)
	setString("accountName", p.AccountName)
	setString("accountId", p.AccountID)
	setString("accessToken", p.AccessToken)
	setString("connectedBy", p.ConnectedBy)
	if p.RefreshToken != nil && *p.RefreshToken != "" {
		f["refreshToken"] = *p.RefreshToken
	}
	switch {
	case p.ClearTokenExpiry:
		f["tokenExpiresAt"] = nil
	case p.TokenExpiresAt != nil:
		f["tokenExpiresAt"] = p.TokenExpiresAt.UTC()
	}
	if p.Scopes != nil {
		f["scopes"] = p.Scopes
	}
	if p.IsActive != nil {
		f["isActive"] = *p.IsActive
	}
	if p.ConnectedAt != nil {
		f["connectedAt"] = p.ConnectedAt.UTC()
	}
	if p.LastRefreshedAt != nil {
		f["lastRefreshedAt"] = p.LastRefreshedAt.UTC()
	}
	if p.ConsecutiveRefreshFailures != nil {
		f["consecutiveRefreshFailures"] = *p.ConsecutiveRefreshFailures
	}
	if p.RequiresReconnection != nil {
		f["requiresReconnection"] = *p.RequiresReconnection
	}
	if p.LastRefreshError != nil {
		if *p.LastRefreshError == "" {
			f["lastRefreshError"] = docstore.DeleteField
		} else {
			f["lastRefreshError"] = *p.LastRefreshError
		}
	}
	if p.Metadata != nil {
		f["metadata"] = p.Metadata
	}
	return f
}
