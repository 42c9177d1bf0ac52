package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lantern-quiz-service/internal/domain"
)

// Store implements the riddle store and the attempt ledger on Postgres.
// ClaimWin relies on a conditional UPDATE whose affected-row count is the
// only arbiter of the race; the attempt insert shares its transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const riddleColumns = `id, question, remark, options, answer, solved, COALESCE(solver_id, ''), created_at`

func (s *Store) GetRiddle(ctx context.Context, riddleID string) (domain.Riddle, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+riddleColumns+` FROM riddles WHERE id = $1`, riddleID)
	r, err := scanRiddle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Riddle{}, domain.ErrRiddleNotFound
	}
	if err != nil {
		return domain.Riddle{}, fmt.Errorf("get riddle: %w", err)
	}
	return r, nil
}

func (s *Store) ListUnsolved(ctx context.Context, q domain.UnsolvedQuery) ([]domain.Riddle, error) {
	q = q.Normalize()
	exclude := q.ExcludeIDs
	if exclude == nil {
		exclude = []string{}
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+riddleColumns+`
		FROM riddles
		WHERE NOT solved AND NOT (id = ANY($1))
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`, exclude, q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		return nil, fmt.Errorf("list unsolved: %w", err)
	}
	defer rows.Close()

	riddles := make([]domain.Riddle, 0, q.PageSize)
	for rows.Next() {
		r, err := scanRiddle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan riddle: %w", err)
		}
		riddles = append(riddles, r)
	}
	return riddles, rows.Err()
}

// PutRiddle upserts riddle content without touching solved state.
func (s *Store) PutRiddle(ctx context.Context, r domain.Riddle) error {
	options := r.Options
	if options == nil {
		options = []string{}
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO riddles (id, question, remark, options, answer)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (id) DO UPDATE
		SET question = EXCLUDED.question, remark = EXCLUDED.remark, options = EXCLUDED.options, answer = EXCLUDED.answer
	`, r.ID, r.Question, r.Remark, string(raw), r.Answer)
	if err != nil {
		return fmt.Errorf("put riddle: %w", err)
	}
	return nil
}

// DeleteRiddle removes a riddle; attempts go with it via ON DELETE CASCADE.
func (s *Store) DeleteRiddle(ctx context.Context, riddleID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM riddles WHERE id = $1`, riddleID)
	if err != nil {
		return fmt.Errorf("delete riddle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRiddleNotFound
	}
	return nil
}

func (s *Store) ClaimWin(ctx context.Context, attempt domain.Attempt) (domain.Claim, error) {
	var claim domain.Claim
	err := s.pool.BeginTxFunc(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE riddles SET solved = TRUE, solver_id = $1
			WHERE id = $2 AND NOT solved
		`, attempt.ParticipantID, attempt.RiddleID)
		if err != nil {
			return err
		}

		solverID := attempt.ParticipantID
		won := tag.RowsAffected() == 1
		if !won {
			var current *string
			err := tx.QueryRow(ctx, `SELECT solver_id FROM riddles WHERE id = $1`, attempt.RiddleID).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRiddleNotFound
			}
			if err != nil {
				return err
			}
			if current == nil {
				// Reset between our UPDATE and this read; contest again.
				return fmt.Errorf("%w: riddle %s reset during claim", domain.ErrConflict, attempt.RiddleID)
			}
			solverID = *current
		}

		attempt.Correct = won
		attempt.Late = !won
		if err := insertAttempt(ctx, tx, attempt); err != nil {
			return err
		}
		claim = domain.Claim{Won: won, SolverID: solverID, Attempt: attempt}
		return nil
	})
	if err != nil {
		return domain.Claim{}, mapError(err)
	}
	return claim, nil
}

func (s *Store) ResetRiddle(ctx context.Context, riddleID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE riddles SET solved = FALSE, solver_id = NULL WHERE id = $1`, riddleID)
	if err != nil {
		return fmt.Errorf("reset riddle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRiddleNotFound
	}
	return nil
}

func (s *Store) HasAttempted(ctx context.Context, participantID, riddleID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM attempts WHERE participant_id = $1 AND riddle_id = $2)
	`, participantID, riddleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has attempted: %w", err)
	}
	return exists, nil
}

func (s *Store) Record(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	if err := insertAttempt(ctx, s.pool, attempt); err != nil {
		return domain.Attempt{}, mapError(err)
	}
	return attempt, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func insertAttempt(ctx context.Context, db execer, a domain.Attempt) error {
	_, err := db.Exec(ctx, `
		INSERT INTO attempts (id, participant_id, riddle_id, correct, late, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.ParticipantID, a.RiddleID, a.Correct, a.Late, a.SubmittedAt)
	return err
}

func scanRiddle(row pgx.Row) (domain.Riddle, error) {
	var (
		r       domain.Riddle
		options []byte
	)
	if err := row.Scan(&r.ID, &r.Question, &r.Remark, &options, &r.Answer, &r.Solved, &r.SolverID, &r.CreatedAt); err != nil {
		return domain.Riddle{}, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &r.Options); err != nil {
			return domain.Riddle{}, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	return r, nil
}
