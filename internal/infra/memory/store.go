package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"lantern-quiz-service/internal/domain"
)

type attemptKey struct {
	participantID string
	riddleID      string
}

// Store is an in-memory implementation of every storage port. A single mutex
// guards riddle state and the ledger so ClaimWin is one atomic unit.
type Store struct {
	mu           sync.RWMutex
	riddles      map[string]*domain.Riddle
	order        []string
	participants map[string]domain.Participant
	codes        map[string]string
	attempts     map[attemptKey]domain.Attempt
	window       domain.Window
}

func NewStore() *Store {
	return &Store{
		riddles:      make(map[string]*domain.Riddle),
		participants: make(map[string]domain.Participant),
		codes:        make(map[string]string),
		attempts:     make(map[attemptKey]domain.Attempt),
	}
}

// PutRiddle inserts or replaces riddle content. Solved state is taken as given.
func (s *Store) PutRiddle(_ context.Context, r domain.Riddle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.riddles[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	cp := cloneRiddle(r)
	s.riddles[r.ID] = &cp
	return nil
}

// DeleteRiddle removes a riddle and cascades to its attempts.
func (s *Store) DeleteRiddle(_ context.Context, riddleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.riddles[riddleID]; !ok {
		return domain.ErrRiddleNotFound
	}
	delete(s.riddles, riddleID)
	for i, id := range s.order {
		if id == riddleID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for key := range s.attempts {
		if key.riddleID == riddleID {
			delete(s.attempts, key)
		}
	}
	return nil
}

func (s *Store) GetRiddle(_ context.Context, riddleID string) (domain.Riddle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.riddles[riddleID]
	if !ok {
		return domain.Riddle{}, domain.ErrRiddleNotFound
	}
	return cloneRiddle(*r), nil
}

func (s *Store) ListUnsolved(_ context.Context, q domain.UnsolvedQuery) ([]domain.Riddle, error) {
	q = q.Normalize()
	excluded := make(map[string]struct{}, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	open := make([]domain.Riddle, 0)
	for _, id := range s.order {
		r := s.riddles[id]
		if r.Solved {
			continue
		}
		if _, skip := excluded[id]; skip {
			continue
		}
		open = append(open, cloneRiddle(*r))
	}
	return paginate(open, (q.Page-1)*q.PageSize, q.PageSize), nil
}

func (s *Store) ClaimWin(ctx context.Context, attempt domain.Attempt) (domain.Claim, error) {
	if err := ctx.Err(); err != nil {
		return domain.Claim{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.checkRefsLocked(attempt)
	if err != nil {
		return domain.Claim{}, err
	}
	if !r.Solved {
		r.Solved = true
		r.SolverID = attempt.ParticipantID
		attempt.Correct = true
		attempt.Late = false
	} else {
		attempt.Correct = false
		attempt.Late = true
	}
	s.attempts[keyOf(attempt)] = attempt
	return domain.Claim{Won: attempt.Correct, SolverID: r.SolverID, Attempt: attempt}, nil
}

func (s *Store) ResetRiddle(_ context.Context, riddleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.riddles[riddleID]
	if !ok {
		return domain.ErrRiddleNotFound
	}
	r.Solved = false
	r.SolverID = ""
	return nil
}

func (s *Store) HasAttempted(_ context.Context, participantID, riddleID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.attempts[attemptKey{participantID: participantID, riddleID: riddleID}]
	return ok, nil
}

func (s *Store) Record(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return domain.Attempt{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.checkRefsLocked(attempt); err != nil {
		return domain.Attempt{}, err
	}
	s.attempts[keyOf(attempt)] = attempt
	return attempt, nil
}

// checkRefsLocked mirrors the foreign keys and the unique pair constraint.
func (s *Store) checkRefsLocked(attempt domain.Attempt) (*domain.Riddle, error) {
	r, ok := s.riddles[attempt.RiddleID]
	if !ok {
		return nil, domain.ErrRiddleNotFound
	}
	if _, ok := s.participants[attempt.ParticipantID]; !ok {
		return nil, domain.ErrParticipantNotFound
	}
	if _, dup := s.attempts[keyOf(attempt)]; dup {
		return nil, domain.ErrDuplicateAttempt
	}
	return r, nil
}

func (s *Store) ListSolved(_ context.Context, q domain.RecordQuery) (domain.RecordPage, error) {
	q = q.Normalize()
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))

	s.mu.RLock()
	records := make([]domain.Record, 0)
	for _, a := range s.attempts {
		if !a.Correct {
			continue
		}
		rec := s.recordLocked(a)
		if keyword != "" && !strings.Contains(strings.ToLower(rec.DisplayName), keyword) {
			continue
		}
		records = append(records, rec)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].SubmittedAt.Equal(records[j].SubmittedAt) {
			return records[i].SubmittedAt.Before(records[j].SubmittedAt)
		}
		return records[i].AttemptID < records[j].AttemptID
	})
	return domain.NewRecordPage(q, len(records), paginate(records, q.Offset(), q.PageSize)), nil
}

func (s *Store) ListByParticipant(_ context.Context, participantID string) ([]domain.Record, error) {
	s.mu.RLock()
	records := make([]domain.Record, 0)
	for key, a := range s.attempts {
		if key.participantID == participantID {
			records = append(records, s.recordLocked(a))
		}
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].SubmittedAt.Equal(records[j].SubmittedAt) {
			return records[i].SubmittedAt.After(records[j].SubmittedAt)
		}
		return records[i].AttemptID > records[j].AttemptID
	})
	return records, nil
}

func (s *Store) recordLocked(a domain.Attempt) domain.Record {
	rec := domain.Record{
		AttemptID:     a.ID,
		ParticipantID: a.ParticipantID,
		RiddleID:      a.RiddleID,
		Correct:       a.Correct,
		Late:          a.Late,
		SubmittedAt:   a.SubmittedAt,
	}
	if p, ok := s.participants[a.ParticipantID]; ok {
		rec.DisplayName = p.DisplayName
	}
	if r, ok := s.riddles[a.RiddleID]; ok {
		rec.RiddleQuestion = r.Question
	}
	return rec
}

// CreateParticipant stores p. A non-empty code must be unused.
func (s *Store) CreateParticipant(_ context.Context, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Code != "" {
		if owner, ok := s.codes[p.Code]; ok && owner != p.ID {
			return domain.ErrCodeTaken
		}
		s.codes[p.Code] = p.ID
	}
	s.participants[p.ID] = p
	return nil
}

func (s *Store) GetParticipant(_ context.Context, participantID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) Window(context.Context) (domain.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window, nil
}

func (s *Store) SetWindow(_ context.Context, w domain.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = w
	return nil
}

func keyOf(a domain.Attempt) attemptKey {
	return attemptKey{participantID: a.ParticipantID, riddleID: a.RiddleID}
}

func cloneRiddle(r domain.Riddle) domain.Riddle {
	if r.Options != nil {
		r.Options = append([]string(nil), r.Options...)
	}
	return r
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
