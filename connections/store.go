package connections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-integrations-server/docstore"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/jrsteele09/go-integrations-server/providers"
)

// Match is a connection found by Find together with where it was found.
type Match struct {
	Connection *Connection
	Location   Location
	Path       string
}

// Legacy reports whether the match came from a pre-migration location.
func (m *Match) Legacy() bool {
	return m.Location.Name != LocationCanonical
}

// Store reads and writes connection documents.
type Store struct {
	docs   docstore.Store
	legacy []Location
	multi  map[providers.Name]bool
	now    func() time.Time
}

type Option func(*Store)

func WithLegacyLocations(locations ...Location) Option {
	return func(s *Store) {
		s.legacy = sortLocations(locations)
	}
}

// WithMultiConnectionProviders names providers whose connections live in a
// connections subcollection.
func WithMultiConnectionProviders(names ...providers.Name) Option {
	return func(s *Store) {
		for _, n := range names {
			s.multi[n] = true
		}
	}
}

func WithNowTime(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(docs docstore.Store, opts ...Option) *Store {
	s := &Store{
		docs:   docs,
		legacy: sortLocations(DefaultLegacyLocations()),
		multi:  map[providers.Name]bool{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Docs exposes the underlying document store for callers batching related writes.
func (s *Store) Docs() docstore.Store {
	return s.docs
}

func (s *Store) IsMultiConnection(provider providers.Name) bool {
	return s.multi[provider]
}

// Find looks in the canonical location first and then in each legacy location in priority
// order. Legacy records that were already migrated are ignored.
func (s *Store) Find(ctx context.Context, key Key) (*Match, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	canonicalPath := CanonicalPath(key)
	c, err := s.read(ctx, canonicalPath, key)
	if err == nil {
		return &Match{Connection: c, Location: Canonical, Path: canonicalPath}, nil
	}
	if !errors.Is(err, interrors.ErrConnectionNotFound) {
		return nil, err
	}

	// Legacy locations hold one record per provider. For a multi-connection key the
	// record must name the requested connection itself.
	recordKey := key
	recordKey.ConnectionID = ""
	for _, loc := range s.legacy {
		path := loc.Path(key)
		if path == "" {
			continue
		}
		c, err := s.read(ctx, path, recordKey)
		if errors.Is(err, interrors.ErrConnectionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if c.Migrated() {
			continue
		}
		if key.ConnectionID != "" && keyFromRecord(c, true).ConnectionID != key.ConnectionID {
			continue
		}
		return &Match{Connection: c, Location: loc, Path: path}, nil
	}
	return nil, interrors.Wrapf(interrors.ErrConnectionNotFound, "%s/%s", key.OrganizationID, key.Provider)
}

// Get reads the canonical record only.
func (s *Store) Get(ctx context.Context, key Key) (*Connection, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return s.read(ctx, CanonicalPath(key), key)
}

// Upsert merges patch into the canonical record and returns the stored result.
func (s *Store) Upsert(ctx context.Context, key Key, patch Patch) (*Connection, error) {
	w, err := s.UpsertWrite(key, patch)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Commit(ctx, []docstore.Write{w}); err != nil {
		return nil, err
	}
	return s.Get(ctx, key)
}

// UpsertWrite builds the merge write Upsert would commit, for batching with other writes.
func (s *Store) UpsertWrite(key Key, patch Patch) (docstore.Write, error) {
	if err := validateKey(key); err != nil {
		return docstore.Write{}, err
	}
	f := patch.Fields(s.now())
	f["organizationId"] = key.OrganizationID
	f["provider"] = key.Provider.String()
	if key.ConnectionID != "" {
		f["connectionId"] = key.ConnectionID
	}
	return docstore.MergeWrite(CanonicalPath(key), f), nil
}

// UpdateAt merges patch into the record at path, which may be a legacy location.
func (s *Store) UpdateAt(ctx context.Context, path string, patch Patch) error {
	return s.docs.Merge(ctx, path, patch.Fields(s.now()))
}

// Delete removes the canonical record.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.docs.Delete(ctx, CanonicalPath(key))
}

// ListByOrganization returns every canonical connection of an organization.
func (s *Store) ListByOrganization(ctx context.Context, organizationID string) ([]*Connection, error) {
	if organizationID == "" {
		return nil, errors.New("organization id cannot be empty")
	}
	collection := docstore.Join("organizations", organizationID, "integrations")
	docs, err := s.docs.List(ctx, collection)
	if err != nil {
		return nil, err
	}

	var out []*Connection
	for _, doc := range docs {
		provider := providers.Name(doc.ID())
		if s.multi[provider] {
			continue
		}
		c, err := decode(doc, Key{OrganizationID: organizationID, Provider: provider})
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	for provider := range s.multi {
		multiDocs, err := s.docs.List(ctx, docstore.Join(collection, provider.String(), "connections"))
		if err != nil {
			return nil, err
		}
		for _, doc := range multiDocs {
			c, err := decode(doc, Key{OrganizationID: organizationID, Provider: provider, ConnectionID: doc.ID()})
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// LegacyRecord is an unmigrated record at a legacy location, with the key that finds it
// again (including the user id for per-user locations).
type LegacyRecord struct {
	Match
	Key Key
}

// ListLegacy returns provider's unmigrated legacy records in an organization whose canonical
// location is still free, at most one per canonical path and in location priority order.
// userIDs widen the search to per-user locations. Multi-connection records that name no
// connection cannot be addressed and are left out.
func (s *Store) ListLegacy(ctx context.Context, organizationID string, provider providers.Name, userIDs []string) ([]*LegacyRecord, error) {
	if organizationID == "" {
		return nil, errors.New("organization id cannot be empty")
	}
	var out []*LegacyRecord
	seen := map[string]bool{}
	claimed := map[string]bool{}
	for _, loc := range s.legacy {
		for _, uid := range append([]string{""}, userIDs...) {
			lookup := Key{OrganizationID: organizationID, Provider: provider, UserID: uid}
			path := loc.Path(lookup)
			if path == "" || seen[path] {
				continue
			}
			seen[path] = true

			c, err := s.read(ctx, path, lookup)
			if errors.Is(err, interrors.ErrConnectionNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if c.Migrated() {
				continue
			}
			key := keyFromRecord(c, s.multi[provider])
			if s.multi[provider] && key.ConnectionID == "" {
				continue
			}
			canonical := CanonicalPath(key)
			if claimed[canonical] {
				continue
			}
			claimed[canonical] = true
			if _, err := s.docs.Get(ctx, canonical); err == nil {
				continue
			} else if !errors.Is(err, docstore.ErrNotFound) {
				return nil, err
			}

			c.ConnectionID = key.ConnectionID
			key.UserID = uid
			out = append(out, &LegacyRecord{Match: Match{Connection: c, Location: loc, Path: path}, Key: key})
		}
	}
	return out, nil
}

// MigrateLegacy copies a legacy match to the canonical location and marks the legacy
// record as migrated, in one batch. It returns the canonical connection.
func (s *Store) MigrateLegacy(ctx context.Context, m *Match, runID string) (*Connection, error) {
	if m == nil || !m.Legacy() {
		return nil, errors.New("match is not a legacy record")
	}
	key := keyFromRecord(m.Connection, s.multi[m.Connection.Provider])
	writes, migrated, err := s.migrationWrites(m.Path, m.Connection, key, runID)
	if err != nil {
		return nil, err
	}
	if err := s.docs.Commit(ctx, writes); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", m.Path, err)
	}
	return migrated, nil
}

func (s *Store) migrationWrites(legacyPath string, legacy *Connection, key Key, runID string) ([]docstore.Write, *Connection, error) {
	now := s.now().UTC()
	migrated := *legacy
	migrated.OrganizationID = key.OrganizationID
	migrated.Provider = key.Provider
	migrated.ConnectionID = key.ConnectionID
	migrated.MigratedTo, migrated.MigratedAt, migrated.MigrationRunID = "", nil, ""
	migrated.UpdatedAt = now
	if migrated.ConnectedAt.IsZero() {
		migrated.ConnectedAt = legacy.UpdatedAt
	}

	f, err := fields(&migrated)
	if err != nil {
		return nil, nil, err
	}
	f["migratedFrom"] = legacyPath

	canonicalPath := CanonicalPath(key)
	return []docstore.Write{
		docstore.SetWrite(canonicalPath, f),
		docstore.MergeWrite(legacyPath, annotation(canonicalPath, runID, now)),
	}, &migrated, nil
}

func annotation(target, runID string, now time.Time) map[string]any {
	a := map[string]any{"migratedTo": target, "migratedAt": now}
	if runID != "" {
		a["migrationRunId"] = runID
	}
	return a
}

func (s *Store) read(ctx context.Context, path string, key Key) (*Connection, error) {
	doc, err := s.docs.Get(ctx, path)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, interrors.Wrapf(interrors.ErrConnectionNotFound, "%s", path)
	}
	if err != nil {
		return nil, err
	}
	return decode(doc, key)
}

func validateKey(k Key) error {
	if k.OrganizationID == "" || k.Provider == "" {
		return errors.New("connection key needs an organization and provider")
	}
	return nil
}
