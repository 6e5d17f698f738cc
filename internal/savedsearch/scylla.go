package savedsearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
)

type ScyllaStore struct {
	session  *gocql.Session
	keyspace string
}

func NewScyllaStore(session *gocql.Session, keyspace string) *ScyllaStore {
	return &ScyllaStore{session: session, keyspace: keyspace}
}

func (s *ScyllaStore) EnsureSchema(ctx context.Context) error {
	return s.session.Query(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.saved_searches (
		id uuid PRIMARY KEY,
		name text,
		query text,
		created_at timestamp
	)`, s.keyspace)).WithContext(ctx).Exec()
}

// List scans the whole table; bookmarks are few.
func (s *ScyllaStore) List(ctx context.Context) ([]SavedSearch, error) {
	out := make([]SavedSearch, 0)
	iter := s.session.Query(fmt.Sprintf(`SELECT id, name, query, created_at FROM %s.saved_searches`, s.keyspace)).
		WithContext(ctx).Iter()
	var it SavedSearch
	for iter.Scan(&it.ID, &it.Name, &it.Query, &it.CreatedAt) {
		out = append(out, it)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *ScyllaStore) Get(ctx context.Context, id string) (SavedSearch, error) {
	var it SavedSearch
	err := s.session.Query(fmt.Sprintf(`SELECT id, name, query, created_at FROM %s.saved_searches WHERE id=?`, s.keyspace), id).
		WithContext(ctx).
		Scan(&it.ID, &it.Name, &it.Query, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return SavedSearch{}, ErrNotFound
		}
		return SavedSearch{}, err
	}
	return it, nil
}

func (s *ScyllaStore) Insert(ctx context.Context, it SavedSearch) error {
	return s.session.Query(fmt.Sprintf(`INSERT INTO %s.saved_searches (id, name, query, created_at) VALUES (?, ?, ?, ?)`, s.keyspace),
		it.ID, it.Name, it.Query, it.CreatedAt).WithContext(ctx).Exec()
}

func (s *ScyllaStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.session.Query(fmt.Sprintf(`DELETE FROM %s.saved_searches WHERE id=?`, s.keyspace), id).
		WithContext(ctx).Exec()
}
