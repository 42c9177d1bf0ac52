package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lantern-quiz-service/internal/domain"
)

// WindowStore keeps the single activity window in the activities table.
// A missing row is an unbounded window.
type WindowStore struct {
	pool *pgxpool.Pool
}

func NewWindowStore(pool *pgxpool.Pool) *WindowStore {
	return &WindowStore{pool: pool}
}

func (s *WindowStore) Window(ctx context.Context) (domain.Window, error) {
	var (
		w          domain.Window
		start, end *time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT name, start_at, end_at FROM activities WHERE id = 1`).
		Scan(&w.Name, &start, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Window{}, nil
	}
	if err != nil {
		return domain.Window{}, fmt.Errorf("load window: %w", err)
	}
	if start != nil {
		w.Start = *start
	}
	if end != nil {
		w.End = *end
	}
	return w, nil
}

func (s *WindowStore) SetWindow(ctx context.Context, w domain.Window) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activities (id, name, start_at, end_at) VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at
	`, w.Name, nullableTime(w.Start), nullableTime(w.End))
	if err != nil {
		return fmt.Errorf("save window: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
