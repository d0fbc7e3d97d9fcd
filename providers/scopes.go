package providers

import (
	"slices"
	"sort"
)

// Feature is a consuming application whose requirements contribute to a provider's scopes.
type Feature string

const (
	FeatureCallSheets    Feature = "callsheets"
	FeatureTimecards     Feature = "timecards"
	FeatureLicenses      Feature = "licenses"
	FeatureNotifications Feature = "notifications"
)

// BoxCanonicalScope is the one scope Box accepts on its consent screen.
const BoxCanonicalScope = "root_readwrite"

// FeatureScopes lists the scopes each feature needs from each provider.
var FeatureScopes = map[Name]map[Feature][]string{
	Google: {
		FeatureCallSheets: {"openid", "email", "profile", "https://www.googleapis.com/auth/drive.file"},
		FeatureTimecards:  {"https://www.googleapis.com/auth/spreadsheets"},
		FeatureLicenses:   {"https://www.googleapis.com/auth/drive.readonly", "email"},
	},
	Box: {
		FeatureCallSheets: {"root_readwrite"},
		FeatureLicenses:   {"root_readonly"},
		FeatureTimecards:  {"manage_webhook"},
	},
	Dropbox: {
		FeatureCallSheets: {"account_info.read", "files.content.write", "sharing.write"},
		FeatureLicenses:   {"account_info.read", "files.content.read"},
	},
	Slack: {
		FeatureCallSheets:    {"chat:write", "files:write"},
		FeatureNotifications: {"chat:write", "channels:read", "users:read", "users:read.email"},
	},
}

// UnionScopes returns the sorted union of every feature's scopes for provider.
func UnionScopes(provider Name) []string {
	seen := map[string]struct{}{}
	for _, scopes := range FeatureScopes[provider] {
		for _, s := range scopes {
			seen[s] = struct{}{}
		}
	}
	union := make([]string, 0, len(seen))
	for s := range seen {
		union = append(union, s)
	}
	sort.Strings(union)
	return union
}

// CollapseToSingleScope returns scopes unchanged when it has at most one entry, otherwise
// the canonical scope alone.
func CollapseToSingleScope(scopes []string, canonical string) []string {
	if len(scopes) <= 1 {
		return slices.Clone(scopes)
	}
	return []string{canonical}
}
