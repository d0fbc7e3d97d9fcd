package oauthstate

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/go-integrations-server/docstore"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
)

// Collection holds one document per state, keyed by the state value.
const Collection = "oauthStates"

// DocRepo stores states in the document store.
type DocRepo struct {
	store docstore.Store
}

var _ Repo = (*DocRepo)(nil)

func NewDocRepo(store docstore.Store) *DocRepo {
	return &DocRepo{store: store}
}

func (r *DocRepo) Create(ctx context.Context, s *State) error {
	if err := validate(s); err != nil {
		return err
	}
	f, err := docstore.Fields(s)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, docstore.Join(Collection, s.State), f)
}

func (r *DocRepo) Get(ctx context.Context, state string) (*State, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}
	doc, err := r.store.Get(ctx, docstore.Join(Collection, state))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, interrors.ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	var s State
	if err := docstore.Decode(doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *DocRepo) Delete(ctx context.Context, state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	return r.store.Delete(ctx, docstore.Join(Collection, state))
}

func (r *DocRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	docs, err := r.store.List(ctx, Collection)
	if err != nil {
		return 0, err
	}
	var writes []docstore.Write
	for _, doc := range docs {
		var s State
		if err := docstore.Decode(doc, &s); err != nil || s.Expired(now) {
			writes = append(writes, docstore.DeleteWrite(doc.Path))
		}
	}
	if err := docstore.CommitChunked(ctx, r.store, writes, docstore.DefaultChunkSize); err != nil {
		return 0, err
	}
	return len(writes), nil
}
