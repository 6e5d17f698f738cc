package savedsearch

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS saved_searches (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		query text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now()
	)`)
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]SavedSearch, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, name, query, created_at FROM saved_searches ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]SavedSearch, 0)
	for rows.Next() {
		var it SavedSearch
		if err := rows.Scan(&it.ID, &it.Name, &it.Query, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (SavedSearch, error) {
	var it SavedSearch
	err := s.pool.QueryRow(ctx, `SELECT id::text, name, query, created_at FROM saved_searches WHERE id = $1::uuid`, id).
		Scan(&it.ID, &it.Name, &it.Query, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SavedSearch{}, ErrNotFound
		}
		return SavedSearch{}, err
	}
	return it, nil
}

func (s *PostgresStore) Insert(ctx context.Context, it SavedSearch) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO saved_searches (id, name, query, created_at) VALUES ($1::uuid, $2, $3, $4)`,
		it.ID, it.Name, it.Query, it.CreatedAt)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM saved_searches WHERE id = $1::uuid`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
