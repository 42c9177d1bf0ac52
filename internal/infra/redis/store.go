package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"lantern-quiz-service/internal/domain"
)

// Store implements every storage port on Redis so several engine instances
// can share one riddle state. Arbitration happens inside Lua scripts.
//
// Layout:
//
//	HSET lantern:riddle:{id}       question remark options answer solved solver_id created_at
//	HSET lantern:attempts:{id}     {participantID} {attempt JSON}
//	ZADD lantern:history:{pid}     {submitted ms} {attempt JSON}
//	ZADD lantern:solved            {submitted ms} {winning attempt JSON}
//	ZADD lantern:riddles:unsolved  {created ms} {riddleID}
type Store struct {
	client *redis.Client
	now    func() time.Time
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, now: time.Now}
}

func (s *Store) PutRiddle(ctx context.Context, r domain.Riddle) error {
	options := r.Options
	if options == nil {
		options = []string{}
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	err = putScript.Run(ctx, s.client,
		[]string{riddleKey(r.ID), unsolvedKey},
		r.ID, r.Question, r.Remark, string(raw), r.Answer, created.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("put riddle: %w", err)
	}
	return nil
}

// DeleteRiddle removes a riddle together with its attempts.
func (s *Store) DeleteRiddle(ctx context.Context, riddleID string) error {
	n, err := deleteScript.Run(ctx, s.client,
		[]string{riddleKey(riddleID), attemptsKey(riddleID), unsolvedKey, solvedKey},
		riddleID, historyPrefix,
	).Int()
	if err != nil {
		return fmt.Errorf("delete riddle: %w", err)
	}
	if n == 0 {
		return domain.ErrRiddleNotFound
	}
	return nil
}

func (s *Store) GetRiddle(ctx context.Context, riddleID string) (domain.Riddle, error) {
	fields, err := s.client.HGetAll(ctx, riddleKey(riddleID)).Result()
	if err != nil {
		return domain.Riddle{}, fmt.Errorf("get riddle: %w", err)
	}
	if len(fields) == 0 {
		return domain.Riddle{}, domain.ErrRiddleNotFound
	}
	return riddleFromHash(riddleID, fields)
}

func (s *Store) ListUnsolved(ctx context.Context, q domain.UnsolvedQuery) ([]domain.Riddle, error) {
	q = q.Normalize()
	ids, err := s.client.ZRange(ctx, unsolvedKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list unsolved: %w", err)
	}

	excluded := make(map[string]struct{}, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	open := ids[:0]
	for _, id := range ids {
		if _, skip := excluded[id]; !skip {
			open = append(open, id)
		}
	}

	offset := (q.Page - 1) * q.PageSize
	if offset >= len(open) {
		return []domain.Riddle{}, nil
	}
	end := offset + q.PageSize
	if end > len(open) {
		end = len(open)
	}

	riddles := make([]domain.Riddle, 0, end-offset)
	for _, id := range open[offset:end] {
		r, err := s.GetRiddle(ctx, id)
		if errors.Is(err, domain.ErrRiddleNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		riddles = append(riddles, r)
	}
	return riddles, nil
}

func (s *Store) ClaimWin(ctx context.Context, attempt domain.Attempt) (domain.Claim, error) {
	won, late := attempt, attempt
	won.Correct, won.Late = true, false
	late.Correct, late.Late = false, true

	wonJSON, err := json.Marshal(won)
	if err != nil {
		return domain.Claim{}, fmt.Errorf("marshal attempt: %w", err)
	}
	lateJSON, err := json.Marshal(late)
	if err != nil {
		return domain.Claim{}, fmt.Errorf("marshal attempt: %w", err)
	}

	reply, err := claimScript.Run(ctx, s.client,
		[]string{
			riddleKey(attempt.RiddleID),
			attemptsKey(attempt.RiddleID),
			participantsKey,
			historyKey(attempt.ParticipantID),
			unsolvedKey,
			solvedKey,
		},
		attempt.ParticipantID, attempt.RiddleID, string(wonJSON), string(lateJSON), attempt.SubmittedAt.UnixMilli(),
	).StringSlice()
	if err != nil {
		return domain.Claim{}, fmt.Errorf("claim: %w", err)
	}
	if err := replyError(reply); err != nil {
		return domain.Claim{}, err
	}

	switch reply[0] {
	case replyWon:
		return domain.Claim{Won: true, SolverID: attempt.ParticipantID, Attempt: won}, nil
	case replyLate:
		solver := ""
		if len(reply) > 1 {
			solver = reply[1]
		}
		return domain.Claim{Won: false, SolverID: solver, Attempt: late}, nil
	}
	return domain.Claim{}, fmt.Errorf("claim: unexpected reply %q", reply[0])
}

func (s *Store) ResetRiddle(ctx context.Context, riddleID string) error {
	n, err := resetScript.Run(ctx, s.client, []string{riddleKey(riddleID), unsolvedKey}, riddleID).Int()
	if err != nil {
		return fmt.Errorf("reset riddle: %w", err)
	}
	if n == 0 {
		return domain.ErrRiddleNotFound
	}
	return nil
}

func (s *Store) HasAttempted(ctx context.Context, participantID, riddleID string) (bool, error) {
	ok, err := s.client.HExists(ctx, attemptsKey(riddleID), participantID).Result()
	if err != nil {
		return false, fmt.Errorf("has attempted: %w", err)
	}
	return ok, nil
}

func (s *Store) Record(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("marshal attempt: %w", err)
	}
	reply, err := recordScript.Run(ctx, s.client,
		[]string{
			riddleKey(attempt.RiddleID),
			attemptsKey(attempt.RiddleID),
			participantsKey,
			historyKey(attempt.ParticipantID),
		},
		attempt.ParticipantID, string(raw), attempt.SubmittedAt.UnixMilli(),
	).StringSlice()
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("record attempt: %w", err)
	}
	if err := replyError(reply); err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

func (s *Store) ListSolved(ctx context.Context, q domain.RecordQuery) (domain.RecordPage, error) {
	q = q.Normalize()
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))

	if keyword == "" {
		total, err := s.client.ZCard(ctx, solvedKey).Result()
		if err != nil {
			return domain.RecordPage{}, fmt.Errorf("count solved: %w", err)
		}
		start := int64(q.Offset())
		members, err := s.client.ZRange(ctx, solvedKey, start, start+int64(q.PageSize)-1).Result()
		if err != nil {
			return domain.RecordPage{}, fmt.Errorf("list solved: %w", err)
		}
		list, err := s.records(ctx, members)
		if err != nil {
			return domain.RecordPage{}, err
		}
		return domain.NewRecordPage(q, int(total), list), nil
	}

	members, err := s.client.ZRange(ctx, solvedKey, 0, -1).Result()
	if err != nil {
		return domain.RecordPage{}, fmt.Errorf("list solved: %w", err)
	}
	all, err := s.records(ctx, members)
	if err != nil {
		return domain.RecordPage{}, err
	}
	matched := make([]domain.Record, 0, len(all))
	for _, rec := range all {
		if strings.Contains(strings.ToLower(rec.DisplayName), keyword) {
			matched = append(matched, rec)
		}
	}
	offset := q.Offset()
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return domain.NewRecordPage(q, len(matched), matched[offset:end]), nil
}

func (s *Store) ListByParticipant(ctx context.Context, participantID string) ([]domain.Record, error) {
	members, err := s.client.ZRevRange(ctx, historyKey(participantID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return s.records(ctx, members)
}

// records decodes attempt members and joins display data in one pipeline.
func (s *Store) records(ctx context.Context, members []string) ([]domain.Record, error) {
	attempts := make([]domain.Attempt, 0, len(members))
	for _, m := range members {
		var a domain.Attempt
		if err := json.Unmarshal([]byte(m), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		attempts = append(attempts, a)
	}

	pipe := s.client.Pipeline()
	names := make([]*redis.StringCmd, len(attempts))
	questions := make([]*redis.StringCmd, len(attempts))
	for i, a := range attempts {
		names[i] = pipe.HGet(ctx, participantsKey, a.ParticipantID)
		questions[i] = pipe.HGet(ctx, riddleKey(a.RiddleID), "question")
	}
	if len(attempts) > 0 {
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("join records: %w", err)
		}
	}

	list := make([]domain.Record, 0, len(attempts))
	for i, a := range attempts {
		rec := domain.Record{
			AttemptID:     a.ID,
			ParticipantID: a.ParticipantID,
			RiddleID:      a.RiddleID,
			Correct:       a.Correct,
			Late:          a.Late,
			SubmittedAt:   a.SubmittedAt,
		}
		if raw, err := names[i].Result(); err == nil {
			var p domain.Participant
			if json.Unmarshal([]byte(raw), &p) == nil {
				rec.DisplayName = p.DisplayName
			}
		}
		if q, err := questions[i].Result(); err == nil {
			rec.RiddleQuestion = q
		}
		list = append(list, rec)
	}
	return list, nil
}

func (s *Store) CreateParticipant(ctx context.Context, p domain.Participant) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	reply, err := registerScript.Run(ctx, s.client,
		[]string{participantsKey, codesKey},
		p.ID, p.Code, raw,
	).StringSlice()
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return replyError(reply)
}

func (s *Store) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	raw, err := s.client.HGet(ctx, participantsKey, participantID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	var p domain.Participant
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Participant{}, fmt.Errorf("decode participant: %w", err)
	}
	return p, nil
}

func (s *Store) Window(ctx context.Context) (domain.Window, error) {
	fields, err := s.client.HGetAll(ctx, windowKey).Result()
	if err != nil {
		return domain.Window{}, fmt.Errorf("load window: %w", err)
	}
	w := domain.Window{Name: fields["name"]}
	if w.Start, err = parseTime(fields["start"]); err != nil {
		return domain.Window{}, fmt.Errorf("load window start: %w", err)
	}
	if w.End, err = parseTime(fields["end"]); err != nil {
		return domain.Window{}, fmt.Errorf("load window end: %w", err)
	}
	return w, nil
}

func (s *Store) SetWindow(ctx context.Context, w domain.Window) error {
	err := s.client.HSet(ctx, windowKey,
		"name", w.Name,
		"start", formatTime(w.Start),
		"end", formatTime(w.End),
	).Err()
	if err != nil {
		return fmt.Errorf("save window: %w", err)
	}
	return nil
}

func replyError(reply []string) error {
	if len(reply) == 0 {
		return errors.New("empty script reply")
	}
	switch reply[0] {
	case replyNotFound:
		return domain.ErrRiddleNotFound
	case replyNoParticipant:
		return domain.ErrParticipantNotFound
	case replyDuplicate:
		return domain.ErrDuplicateAttempt
	case replyCodeTaken:
		return domain.ErrCodeTaken
	}
	return nil
}

func riddleFromHash(riddleID string, fields map[string]string) (domain.Riddle, error) {
	r := domain.Riddle{
		ID:       riddleID,
		Question: fields["question"],
		Remark:   fields["remark"],
		Answer:   fields["answer"],
		Solved:   fields["solved"] == "1",
		SolverID: fields["solver_id"],
	}
	if raw := fields["options"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Options); err != nil {
			return domain.Riddle{}, fmt.Errorf("decode options: %w", err)
		}
		if len(r.Options) == 0 {
			r.Options = nil
		}
	}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		r.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
