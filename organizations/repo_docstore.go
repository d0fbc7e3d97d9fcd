package organizations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-integrations-server/docstore"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
)

// Collection holds one document per organization.
const Collection = "organizations"

var _ Repo = (*DocRepo)(nil)

// DocRepo stores organizations as organizations/{id} documents.
type DocRepo struct {
	store docstore.Store
}

func NewDocRepo(store docstore.Store) *DocRepo {
	return &DocRepo{store: store}
}

// Path returns the document path of an organization.
func Path(organizationID string) string {
	return docstore.Join(Collection, organizationID)
}

// Upsert merges org into its document, assigning an id when empty.
func (r *DocRepo) Upsert(ctx context.Context, org *Organization) error {
	if org == nil {
		return errors.New("organization cannot be nil")
	}
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	fields, err := docstore.Fields(org)
	if err != nil {
		return err
	}
	return r.store.Merge(ctx, Path(org.ID), fields)
}

// Delete removes the organization document only; subcollections are left for cleanup jobs.
func (r *DocRepo) Delete(ctx context.Context, organizationID string) error {
	return r.store.Delete(ctx, Path(organizationID))
}

func (r *DocRepo) Get(ctx context.Context, organizationID string) (*Organization, error) {
	if organizationID == "" {
		return nil, errors.New("organization id cannot be empty")
	}
	doc, err := r.store.Get(ctx, Path(organizationID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, interrors.Wrapf(interrors.ErrNotFound, "organization %s", organizationID)
	}
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

// List returns organizations ordered by id. A non-positive limit returns everything from offset.
func (r *DocRepo) List(ctx context.Context, offset, limit int) ([]*Organization, error) {
	docs, err := r.store.List(ctx, Collection)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return nil, nil
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}

	orgs := make([]*Organization, 0, len(docs))
	for _, doc := range docs {
		org, err := decode(doc)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

func decode(doc *docstore.Document) (*Organization, error) {
	var org Organization
	if err := docstore.Decode(doc, &org); err != nil {
		return nil, fmt.Errorf("organization %s: %w", doc.ID(), err)
	}
	if org.ID == "" {
		org.ID = doc.ID()
	}
	return &org, nil
}
