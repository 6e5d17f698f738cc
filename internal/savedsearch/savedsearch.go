// Package savedsearch keeps named search bookmarks. A bookmark stores the
// canonical query string, so restoring one goes back through search.Parse.
package savedsearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"socialdash/internal/search"
)

var (
	ErrNotFound = errors.New("saved search not found")
	ErrInvalid  = errors.New("invalid saved search")
)

const maxNameLen = 120

type SavedSearch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// Params decodes the stored query.
func (s SavedSearch) Params() search.Params {
	return search.Parse(s.Query)
}

// Store persists saved searches. List returns newest first.
type Store interface {
	List(ctx context.Context) ([]SavedSearch, error)
	Get(ctx context.Context, id string) (SavedSearch, error)
	Insert(ctx context.Context, s SavedSearch) error
	Delete(ctx context.Context, id string) error
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) List(ctx context.Context) ([]SavedSearch, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (SavedSearch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return SavedSearch{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// Create stores p under name. The name defaults to the keyword when blank.
func (s *Service) Create(ctx context.Context, name string, p search.Params) (SavedSearch, error) {
	p = p.Normalize()
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(p.Keyword)
	}
	if name == "" {
		return SavedSearch{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(name) > maxNameLen {
		return SavedSearch{}, fmt.Errorf("%w: name is too long", ErrInvalid)
	}
	rec := SavedSearch{
		ID:        uuid.New().String(),
		Name:      name,
		Query:     p.Encode(),
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return SavedSearch{}, err
	}
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.store.Delete(ctx, id)
}
