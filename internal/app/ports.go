package app

import (
	"context"

	"lantern-quiz-service/internal/domain"
)

// RiddleStore owns riddle state. ClaimWin is the single arbitration point:
// it must transition the riddle to solved only if it is still unsolved and
// record the attempt in the same atomic unit. When the transition loses,
// the attempt is still recorded (Correct=false, Late=true) and SolverID
// names the participant that won. A duplicate pair rolls the unit back and
// returns domain.ErrDuplicateAttempt. Retryable conflicts return
// domain.ErrConflict and must leave no side effect.
type RiddleStore interface {
	GetRiddle(ctx context.Context, riddleID string) (domain.Riddle, error)
	ListUnsolved(ctx context.Context, q domain.UnsolvedQuery) ([]domain.Riddle, error)
	ClaimWin(ctx context.Context, attempt domain.Attempt) (domain.Claim, error)
	ResetRiddle(ctx context.Context, riddleID string) error
}

// AttemptLedger records at most one attempt per (participant, riddle).
type AttemptLedger interface {
	HasAttempted(ctx context.Context, participantID, riddleID string) (bool, error)
	Record(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error)
}

// RecordProjection is the read side of the ledger.
type RecordProjection interface {
	ListSolved(ctx context.Context, q domain.RecordQuery) (domain.RecordPage, error)
	ListByParticipant(ctx context.Context, participantID string) ([]domain.Record, error)
}

// ParticipantDirectory resolves participant profiles (possibly cached).
type ParticipantDirectory interface {
	GetParticipant(ctx context.Context, participantID string) (domain.Participant, error)
}

// ParticipantStore persists participants.
type ParticipantStore interface {
	ParticipantDirectory
	CreateParticipant(ctx context.Context, p domain.Participant) error
}

// WindowSource provides the current activity window.
type WindowSource interface {
	Window(ctx context.Context) (domain.Window, error)
}

// WindowStore is a WindowSource that administrators can update.
type WindowStore interface {
	WindowSource
	SetWindow(ctx context.Context, w domain.Window) error
}

// Broadcaster fans winner events out to observers. Delivery is best effort.
type Broadcaster interface {
	Announce(ctx context.Context, event domain.WinnerEvent) error
}

// StaticWindow is a fixed WindowSource, typically built from config.
type StaticWindow domain.Window

func (w StaticWindow) Window(context.Context) (domain.Window, error) {
	return domain.Window(w), nil
}
