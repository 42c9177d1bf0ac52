package app

import (
	"context"
	"fmt"

	"lantern-quiz-service/internal/domain"
)

// RecordService serves leaderboard and history views derived from the ledger.
type RecordService struct {
	projection RecordProjection
}

func NewRecordService(projection RecordProjection) *RecordService {
	return &RecordService{projection: projection}
}

// Leaderboard lists winning attempts, earliest first.
func (s *RecordService) Leaderboard(ctx context.Context, q domain.RecordQuery) (domain.RecordPage, error) {
	page, err := s.projection.ListSolved(ctx, q.Normalize())
	if err != nil {
		return domain.RecordPage{}, fmt.Errorf("leaderboard: %w: %w", domain.ErrEngineUnavailable, err)
	}
	return page, nil
}

// History lists one participant's attempts, newest first.
func (s *RecordService) History(ctx context.Context, participantID string) ([]domain.Record, error) {
	records, err := s.projection.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("history: %w: %w", domain.ErrEngineUnavailable, err)
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records, nil
}
