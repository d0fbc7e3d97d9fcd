package connections

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/go-integrations-server/docstore"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// Candidate is a connection record considered for de-duplication.
type Candidate struct {
	Path       string
	Location   Location
	Connection *Connection
}

// DedupeGroup is the set of records sharing one account email.
type DedupeGroup struct {
	Email    string
	Survivor Candidate
	Losers   []Candidate
}

// SelectSurvivors groups candidates by case-insensitive account email and keeps exactly one
// per group: the canonical record if present, otherwise the most recently updated one.
// Records without an email cannot be matched and each form their own group.
func SelectSurvivors(candidates []Candidate) []DedupeGroup {
	byEmail := map[string][]Candidate{}
	var order []string
	var groups []DedupeGroup

	for _, c := range candidates {
		email := strings.ToLower(strings.TrimSpace(c.Connection.AccountEmail))
		if email == "" {
			groups = append(groups, DedupeGroup{Survivor: c})
			continue
		}
		if _, ok := byEmail[email]; !ok {
			order = append(order, email)
		}
		byEmail[email] = append(byEmail[email], c)
	}

	for _, email := range order {
		members := byEmail[email]
		sort.SliceStable(members, func(i, j int) bool { return outranks(members[i], members[j]) })
		groups = append(groups, DedupeGroup{Email: email, Survivor: members[0], Losers: members[1:]})
	}
	return groups
}

func outranks(a, b Candidate) bool {
	aCanonical, bCanonical := a.Location.Name == LocationCanonical, b.Location.Name == LocationCanonical
	if aCanonical != bCanonical {
		return aCanonical
	}
	aUpdated, bUpdated := lastTouched(a.Connection), lastTouched(b.Connection)
	if !aUpdated.Equal(bUpdated) {
		return aUpdated.After(bUpdated)
	}
	if a.Location.Priority != b.Location.Priority {
		return a.Location.Priority < b.Location.Priority
	}
	return a.Path < b.Path
}

func lastTouched(c *Connection) time.Time {
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.ConnectedAt
}

// DedupeReport summarises a Deduplicate run.
type DedupeReport struct {
	RunID     string        `json:"runId"`
	DryRun    bool          `json:"dryRun"`
	Groups    []DedupeGroup `json:"-"`
	Annotated int           `json:"annotated"`
	Migrated  int           `json:"migrated"`
}

// Deduplicate collects an organization's records for provider across the canonical and
// legacy locations (including each user id's per-user location), keeps one per account email
// and annotates the rest with migratedTo. A legacy survivor is copied to the canonical
// location when that location is free. Records are never hard-deleted.
func (s *Store) Deduplicate(ctx context.Context, organizationID string, provider providers.Name, userIDs []string, dryRun bool) (*DedupeReport, error) {
	candidates, err := s.collect(ctx, organizationID, provider, userIDs)
	if err != nil {
		return nil, err
	}

	report := &DedupeReport{RunID: ulid.Make().String(), DryRun: dryRun, Groups: SelectSurvivors(candidates)}
	now := s.now().UTC()
	var writes []docstore.Write
	canonicalTaken := map[string]bool{}
	for _, c := range candidates {
		if c.Location.Name == LocationCanonical {
			canonicalTaken[c.Path] = true
		}
	}

	for _, g := range report.Groups {
		target := g.Survivor.Path
		if g.Survivor.Location.Name != LocationCanonical {
			key := keyFromRecord(g.Survivor.Connection, s.multi[provider])
			key.OrganizationID, key.Provider = organizationID, provider
			canonicalPath := CanonicalPath(key)
			if !canonicalTaken[canonicalPath] {
				migrationWrites, _, err := s.migrationWrites(g.Survivor.Path, g.Survivor.Connection, key, report.RunID)
				if err != nil {
					return nil, err
				}
				writes = append(writes, migrationWrites...)
				canonicalTaken[canonicalPath] = true
				target = canonicalPath
				report.Migrated++
			}
		}
		for _, loser := range g.Losers {
			writes = append(writes, docstore.MergeWrite(loser.Path, annotation(target, report.RunID, now)))
			report.Annotated++
		}
	}

	log.Info().Str("organizationId", organizationID).Str("provider", provider.String()).Str("runId", report.RunID).
		Int("candidates", len(candidates)).Int("annotated", report.Annotated).Int("migrated", report.Migrated).
		Bool("dryRun", dryRun).Msg("connection de-duplication")

	if dryRun || len(writes) == 0 {
		return report, nil
	}
	if err := docstore.CommitChunked(ctx, s.docs, writes, docstore.DefaultChunkSize); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) collect(ctx context.Context, organizationID string, provider providers.Name, userIDs []string) ([]Candidate, error) {
	var candidates []Candidate
	seen := map[string]bool{}
	add := func(path string, loc Location, key Key) error {
		if path == "" || seen[path] {
			return nil
		}
		seen[path] = true
		c, err := s.read(ctx, path, key)
		if errors.Is(err, interrors.ErrConnectionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if c.Migrated() {
			return nil
		}
		candidates = append(candidates, Candidate{Path: path, Location: loc, Connection: c})
		return nil
	}

	base := Key{OrganizationID: organizationID, Provider: provider}
	if s.multi[provider] {
		docs, err := s.docs.List(ctx, docstore.Join("organizations", organizationID, "integrations", provider.String(), "connections"))
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			key := base
			key.ConnectionID = doc.ID()
			if err := add(doc.Path, Canonical, key); err != nil {
				return nil, err
			}
		}
	} else if err := add(CanonicalPath(base), Canonical, base); err != nil {
		return nil, err
	}

	for _, loc := range s.legacy {
		keys := []Key{base}
		for _, uid := range userIDs {
			k := base
			k.UserID = uid
			keys = append(keys, k)
		}
		for _, k := range keys {
			if err := add(loc.Path(k), loc, k); err != nil {
				return nil, err
			}
		}
	}
	return candidates, nil
}
