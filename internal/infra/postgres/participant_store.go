package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lantern-quiz-service/internal/domain"
)

type ParticipantStore struct {
	pool *pgxpool.Pool
}

func NewParticipantStore(pool *pgxpool.Pool) *ParticipantStore {
	return &ParticipantStore{pool: pool}
}

func (s *ParticipantStore) CreateParticipant(ctx context.Context, p domain.Participant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participants (id, display_name, avatar, code, registered_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.DisplayName, p.Avatar, p.Code, p.RegisteredAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == "participants_code_key" {
		return domain.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

func (s *ParticipantStore) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	var p domain.Participant
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, avatar, code, registered_at FROM participants WHERE id = $1
	`, participantID).Scan(&p.ID, &p.DisplayName, &p.Avatar, &p.Code, &p.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}
