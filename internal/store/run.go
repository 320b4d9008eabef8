// Package store persists solve runs in Postgres. Value functions are
// stored as pgvector columns so runs can be compared by distance.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/solverlab/bellman/internal/domain"
)

type RunStore struct {
	db *pgxpool.Pool
}

func NewRunStore(db *pgxpool.Pool) *RunStore {
	return &RunStore{db: db}
}

var _ domain.RunStore = (*RunStore)(nil)

func (s *RunStore) Create(ctx context.Context, r *domain.Run) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	var vec *pgvector.Vector
	if len(r.ValueFunction) > 0 {
		v := pgvector.NewVector(r.ValueFunction)
		vec = &v
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO runs (id, name, gamma, epsilon, iterations, converged, states, actions, duration_ms, value_function, policy)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		r.ID, r.Name, r.Gamma, r.Epsilon, r.Iterations, r.Converged, r.States, r.Actions, r.DurationMS, vec, r.Policy,
	).Scan(&r.CreatedAt)
}

func (s *RunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	r := &domain.Run{}
	var vec pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT id, name, gamma, epsilon, iterations, converged, states, actions, duration_ms, COALESCE(value_function, '[]'), policy, created_at
		 FROM runs WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Name, &r.Gamma, &r.Epsilon, &r.Iterations, &r.Converged, &r.States, &r.Actions, &r.DurationMS, &vec, &r.Policy, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}
	r.ValueFunction = vec.Slice()
	return r, nil
}

func (s *RunStore) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, name, gamma, epsilon, iterations, converged, states, actions, duration_ms, policy, created_at
		 FROM runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var r domain.Run
		if err := rows.Scan(&r.ID, &r.Name, &r.Gamma, &r.Epsilon, &r.Iterations, &r.Converged, &r.States, &r.Actions, &r.DurationMS, &r.Policy, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListSimilar orders other runs with the same state count by the L2
// distance between their value functions and the reference run's.
func (s *RunStore) ListSimilar(ctx context.Context, id uuid.UUID, limit int) ([]domain.RunWithDistance, error) {
	if limit <= 0 {
		limit = 10
	}
	ref, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(ref.ValueFunction) == 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(ref.ValueFunction)

	rows, err := s.db.Query(ctx,
		`SELECT id, name, gamma, epsilon, iterations, converged, states, actions, duration_ms, policy, created_at,
		        value_function <-> $1 AS distance
		 FROM runs
		 WHERE id <> $2 AND states = $3 AND value_function IS NOT NULL
		 ORDER BY value_function <-> $1
		 LIMIT $4`,
		vec, id, ref.States, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunWithDistance
	for rows.Next() {
		var r domain.RunWithDistance
		if err := rows.Scan(&r.ID, &r.Name, &r.Gamma, &r.Epsilon, &r.Iterations, &r.Converged, &r.States, &r.Actions, &r.DurationMS, &r.Policy, &r.CreatedAt, &r.Distance); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *RunStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
