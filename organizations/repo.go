package organizations

import "context"

type Repo interface {
	Upsert(ctx context.Context, org *Organization) error
	Delete(ctx context.Context, organizationID string) error
	Get(ctx context.Context, organizationID string) (*Organization, error)
	List(ctx context.Context, offset, limit int) ([]*Organization, error)
}
