package connections

import (
	"time"

	"github.com/jrsteele09/go-integrations-server/docstore"
)

// legacyAliases maps canonical field names to names used by earlier schema versions.
var legacyAliases = map[string][]string{
	"accountEmail":   {"email", "userEmail", "account_email"},
	"accountName":    {"displayName", "name", "account_name"},
	"accountId":      {"account_id", "teamId"},
	"accessToken":    {"access_token", "token"},
	"refreshToken":   {"refresh_token"},
	"tokenExpiresAt": {"expiresAt", "expiry_date", "expires_at"},
	"connectedAt":    {"createdAt", "created_at"},
	"updatedAt":      {"updated_at", "lastUpdated"},
	"scopes":         {"scope"},
}

// decode reads a connection document, accepting legacy field names and shapes.
func decode(doc *docstore.Document, key Key) (*Connection, error) {
	data := normalizeLegacyFields(doc.Data)

	var c Connection
	if err := docstore.Decode(&docstore.Document{Path: doc.Path, Data: data}, &c); err != nil {
		return nil, err
	}
	if c.OrganizationID == "" {
		c.OrganizationID = key.OrganizationID
	}
	if c.Provider == "" {
		c.Provider = key.Provider
	}
	if c.ConnectionID == "" {
		c.ConnectionID = key.ConnectionID
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = doc.UpdateTime
	}
	return &c, nil
}

func normalizeLegacyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	for canonical, aliases := range legacyAliases {
		if present(out[canonical]) {
			continue
		}
		for _, alias := range aliases {
			if present(out[alias]) {
				out[canonical] = out[alias]
				break
			}
		}
	}

	// Records written before deactivation existed have no isActive flag.
	if _, ok := out["isActive"]; !ok {
		out["isActive"] = present(out["accessToken"])
	}
	for _, field := range []string{"tokenExpiresAt", "connectedAt", "updatedAt", "lastRefreshedAt", "migratedAt"} {
		if t, ok := epochMillis(out[field]); ok {
			out[field] = t
		}
	}
	if s, ok := out["scopes"].(string); ok {
		out["scopes"] = splitScopes(s)
	}
	return out
}

func present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	default:
		return true
	}
}

// epochMillis converts millisecond epoch numbers, as older clients wrote them, to times.
func epochMillis(v any) (time.Time, bool) {
	n, ok := v.(float64)
	if !ok || n <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(n)).UTC(), true
}

func splitScopes(s string) []string {
	var scopes []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == ',' {
			if start >= 0 {
				scopes = append(scopes, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		scopes = append(scopes, s[start:])
	}
	return scopes
}

// fields converts a full connection into document fields.
func fields(c *Connection) (map[string]any, error) {
	return docstore.Fields(c)
}

// keyFromRecord derives the canonical key for a record found at a legacy location.
func keyFromRecord(c *Connection, multi bool) Key {
	k := Key{OrganizationID: c.OrganizationID, Provider: c.Provider}
	if multi {
		k.ConnectionID = c.ConnectionID
		if k.ConnectionID == "" {
			k.ConnectionID = c.AccountID
		}
	}
	return k
}
