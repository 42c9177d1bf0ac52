package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lantern-quiz-service/internal/domain"
)

// ParticipantService registers players. Identity is an opaque id; there is no authentication.
type ParticipantService struct {
	store ParticipantStore
	now   func() time.Time
	newID func() string
}

// registerAttempts bounds how many fresh ids Register tries when a code collides.
const registerAttempts = 3

func NewParticipantService(store ParticipantStore) *ParticipantService {
	return &ParticipantService{store: store, now: time.Now, newID: uuid.NewString}
}

// Register creates a participant with a fresh id and an 8-character public code.
func (s *ParticipantService) Register(ctx context.Context, displayName, avatar string) (domain.Participant, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.Participant{}, fmt.Errorf("%w: display name is required", domain.ErrInvalidSubmission)
	}
	avatar = strings.TrimSpace(avatar)

	var err error
	for try := 0; try < registerAttempts; try++ {
		id := s.newID()
		p := domain.Participant{
			ID:           id,
			DisplayName:  displayName,
			Avatar:       avatar,
			Code:         strings.ToUpper(id[:8]),
			RegisteredAt: s.now().UTC(),
		}
		err = s.store.CreateParticipant(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) {
			break
		}
	}
	return domain.Participant{}, fmt.Errorf("register participant: %w: %w", domain.ErrEngineUnavailable, err)
}

// Get resolves a participant, passing ErrParticipantNotFound through unchanged.
func (s *ParticipantService) Get(ctx context.Context, participantID string) (domain.Participant, error) {
	p, err := s.store.GetParticipant(ctx, participantID)
	if err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
		return domain.Participant{}, fmt.Errorf("get participant: %w: %w", domain.ErrEngineUnavailable, err)
	}
	return p, err
}
