package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"lantern-quiz-service/internal/domain"
)

// Records serves the leaderboard and history projections through bun.
type Records struct {
	db *bun.DB
}

func NewRecords(db *bun.DB) *Records {
	return &Records{db: db}
}

type recordRow struct {
	AttemptID      string    `bun:"attempt_id"`
	ParticipantID  string    `bun:"participant_id"`
	DisplayName    string    `bun:"display_name"`
	RiddleID       string    `bun:"riddle_id"`
	RiddleQuestion string    `bun:"riddle_question"`
	Correct        bool      `bun:"correct"`
	Late           bool      `bun:"late"`
	SubmittedAt    time.Time `bun:"submitted_at"`
}

func (r recordRow) toDomain() domain.Record {
	return domain.Record{
		AttemptID:      r.AttemptID,
		ParticipantID:  r.ParticipantID,
		DisplayName:    r.DisplayName,
		RiddleID:       r.RiddleID,
		RiddleQuestion: r.RiddleQuestion,
		Correct:        r.Correct,
		Late:           r.Late,
		SubmittedAt:    r.SubmittedAt,
	}
}

func (s *Records) baseQuery() *bun.SelectQuery {
	return s.db.NewSelect().
		TableExpr("attempts AS a").
		Join("JOIN participants AS p ON p.id = a.participant_id").
		Join("JOIN riddles AS r ON r.id = a.riddle_id")
}

func (s *Records) ListSolved(ctx context.Context, q domain.RecordQuery) (domain.RecordPage, error) {
	q = q.Normalize()

	filter := func(sq *bun.SelectQuery) *bun.SelectQuery {
		sq = sq.Where("a.correct")
		if kw := strings.TrimSpace(q.Keyword); kw != "" {
			sq = sq.Where("p.display_name ILIKE ? ESCAPE '\\'", "%"+escapeLike(kw)+"%")
		}
		return sq
	}

	total, err := filter(s.baseQuery()).Count(ctx)
	if err != nil {
		return domain.RecordPage{}, fmt.Errorf("count solved: %w", err)
	}

	var rows []recordRow
	err = filter(s.baseQuery()).
		ColumnExpr("a.id AS attempt_id, a.participant_id, p.display_name, a.riddle_id").
		ColumnExpr("r.question AS riddle_question, a.correct, a.late, a.submitted_at").
		OrderExpr("a.submitted_at ASC, a.id ASC").
		Limit(q.PageSize).
		Offset(q.Offset()).
		Scan(ctx, &rows)
	if err != nil {
		return domain.RecordPage{}, fmt.Errorf("list solved: %w", err)
	}

	list := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toDomain())
	}
	return domain.NewRecordPage(q, total, list), nil
}

func (s *Records) ListByParticipant(ctx context.Context, participantID string) ([]domain.Record, error) {
	var rows []recordRow
	err := s.baseQuery().
		ColumnExpr("a.id AS attempt_id, a.participant_id, p.display_name, a.riddle_id").
		ColumnExpr("r.question AS riddle_question, a.correct, a.late, a.submitted_at").
		Where("a.participant_id = ?", participantID).
		OrderExpr("a.submitted_at DESC, a.id DESC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	list := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toDomain())
	}
	return list, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
