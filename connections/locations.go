package connections

import (
	"sort"

	"github.com/jrsteele09/go-integrations-server/docstore"
)

const (
	LocationCanonical          = "canonical"
	LocationGlobal             = "global"
	LocationOrganizationLegacy = "organization-legacy"
	LocationUser               = "user"
)

// Location is a place a connection record may live. Path returns "" when the key lacks
// what the location needs (e.g. no user id).
type Location struct {
	Name     string
	Priority int
	Path     func(Key) string
}

// Canonical is the current location: organizations/{org}/integrations/{provider}, or
// .../integrations/{provider}/connections/{connectionId} for multi-connection providers.
var Canonical = Location{Name: LocationCanonical, Priority: 0, Path: CanonicalPath}

func CanonicalPath(k Key) string {
	base := docstore.Join("organizations", k.OrganizationID, "integrations", k.Provider.String())
	if k.ConnectionID == "" {
		return base
	}
	return docstore.Join(base, "connections", k.ConnectionID)
}

// DefaultLegacyLocations lists earlier schema locations, most authoritative first.
func DefaultLegacyLocations() []Location {
	return []Location{
		{
			Name:     LocationGlobal,
			Priority: 1,
			Path: func(k Key) string {
				return docstore.Join("oauthConnections", k.OrganizationID+"_"+k.Provider.String())
			},
		},
		{
			Name:     LocationOrganizationLegacy,
			Priority: 2,
			Path: func(k Key) string {
				return docstore.Join("organizations", k.OrganizationID, "cloudIntegrations", k.Provider.String())
			},
		},
		{
			Name:     LocationUser,
			Priority: 3,
			Path: func(k Key) string {
				if k.UserID == "" {
					return ""
				}
				return docstore.Join("users", k.UserID, "integrations", k.Provider.String())
			},
		},
	}
}

func sortLocations(locations []Location) []Location {
	sorted := append([]Location(nil), locations...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return sorted
}
