package oauthstate

import (
	"context"
	"errors"
	"sync"
	"time"

	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
)

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu     sync.RWMutex
	states map[string]State
}

var _ Repo = (*InMemoryRepo)(nil)

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		states: make(map[string]State),
	}
}

func (r *InMemoryRepo) Create(_ context.Context, s *State) error {
	if err := validate(s); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modifications
	r.states[s.State] = *s
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, state string) (*State, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.states[state]
	if !ok {
		return nil, interrors.ErrStateNotFound
	}
	return &s, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

func (r *InMemoryRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, s := range r.states {
		if s.Expired(now) {
			delete(r.states, key)
			removed++
		}
	}
	return removed, nil
}
