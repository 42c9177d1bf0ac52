package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lantern-quiz-service/internal/domain"
	"lantern-quiz-service/internal/metrics"
)

const defaultClaimRetries = 2

// RiddleEngine resolves concurrent answer submissions. Every Submit returns
// exactly one business outcome, or an error for infrastructure failures.
type RiddleEngine struct {
	riddles      RiddleStore
	ledger       AttemptLedger
	participants ParticipantDirectory
	broadcaster  Broadcaster
	windows      WindowSource

	log          zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	newID        func() string
	claimRetries int
}

// EngineOption customizes a RiddleEngine.
type EngineOption func(*RiddleEngine)

// WithWindowSource gates submissions by an activity window. Without it the engine is always open.
func WithWindowSource(ws WindowSource) EngineOption {
	return func(e *RiddleEngine) { e.windows = ws }
}

func WithLogger(log zerolog.Logger) EngineOption {
	return func(e *RiddleEngine) { e.log = log }
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *RiddleEngine) { e.metrics = m }
}

// WithClock is used by tests for deterministic submission times.
func WithClock(now func() time.Time) EngineOption {
	return func(e *RiddleEngine) { e.now = now }
}

// WithClaimRetries bounds how often a conflicting claim is retried.
func WithClaimRetries(n int) EngineOption {
	return func(e *RiddleEngine) {
		if n >= 0 {
			e.claimRetries = n
		}
	}
}

func NewRiddleEngine(riddles RiddleStore, ledger AttemptLedger, participants ParticipantDirectory, broadcaster Broadcaster, opts ...EngineOption) *RiddleEngine {
	e := &RiddleEngine{
		riddles:      riddles,
		ledger:       ledger,
		participants: participants,
		broadcaster:  broadcaster,
		windows:      StaticWindow{},
		log:          zerolog.Nop(),
		now:          time.Now,
		newID:        uuid.NewString,
		claimRetries: defaultClaimRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit classifies one answer. A zero sub.At is stamped with the engine clock.
func (e *RiddleEngine) Submit(ctx context.Context, sub domain.Submission) (domain.Outcome, error) {
	if sub.At.IsZero() {
		sub.At = e.now()
	}
	outcome, err := e.submit(ctx, sub)
	if err != nil {
		e.log.Error().Err(err).
			Str("riddle_id", sub.RiddleID).
			Str("participant_id", sub.ParticipantID).
			Msg("submission failed")
		return domain.Outcome{}, err
	}
	e.metrics.ObserveOutcome(string(outcome.Kind))
	return outcome, nil
}

func (e *RiddleEngine) submit(ctx context.Context, sub domain.Submission) (domain.Outcome, error) {
	riddle, err := e.riddles.GetRiddle(ctx, sub.RiddleID)
	if errors.Is(err, domain.ErrRiddleNotFound) {
		return domain.NewOutcome(domain.OutcomeRiddleNotFound, sub.RiddleID), nil
	}
	if err != nil {
		return domain.Outcome{}, e.unavailable(ctx, "load_riddle", err)
	}

	window, err := e.windows.Window(ctx)
	if err != nil {
		return domain.Outcome{}, e.unavailable(ctx, "load_window", err)
	}
	if phase := window.Phase(sub.At); phase != domain.PhaseOpen {
		return domain.NewOutcome(domain.OutcomeWindowClosed, riddle.ID).WithPhase(phase), nil
	}

	attempted, err := e.ledger.HasAttempted(ctx, sub.ParticipantID, riddle.ID)
	if err != nil {
		return domain.Outcome{}, e.unavailable(ctx, "check_attempt", err)
	}
	if attempted {
		return domain.NewOutcome(domain.OutcomeDuplicateAttempt, riddle.ID), nil
	}

	if riddle.Solved {
		return domain.NewOutcome(domain.OutcomeAlreadySolved, riddle.ID).
			WithSolver(riddle.SolverID, e.displayName(ctx, riddle.SolverID)), nil
	}

	attempt := domain.Attempt{
		ID:            e.newID(),
		ParticipantID: sub.ParticipantID,
		RiddleID:      riddle.ID,
		SubmittedAt:   sub.At,
	}

	if !domain.AnswerMatches(sub.Answer, riddle.Answer) {
		if _, err := e.ledger.Record(ctx, attempt); err != nil {
			return e.classifyWriteError(ctx, "record_attempt", riddle.ID, err)
		}
		return domain.NewOutcome(domain.OutcomeIncorrect, riddle.ID), nil
	}

	claim, err := e.claim(ctx, attempt)
	if err != nil {
		return e.classifyWriteError(ctx, "claim", riddle.ID, err)
	}
	if !claim.Won {
		return domain.NewOutcome(domain.OutcomeTooLate, riddle.ID).
			WithSolver(claim.SolverID, e.displayName(ctx, claim.SolverID)), nil
	}

	winner := e.announce(ctx, riddle.ID, claim.Attempt)
	return domain.NewOutcome(domain.OutcomeWin, riddle.ID).WithSolver(winner.SolverID, winner.SolverName), nil
}

// claim runs the atomic unit, retrying storage conflicts a bounded number of
// times. A conflicting unit has been rolled back, so the retry cannot double-record.
func (e *RiddleEngine) claim(ctx context.Context, attempt domain.Attempt) (domain.Claim, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveClaim(time.Since(start)) }()

	for try := 0; ; try++ {
		claim, err := e.riddles.ClaimWin(ctx, attempt)
		if err == nil || !errors.Is(err, domain.ErrConflict) || try >= e.claimRetries {
			return claim, err
		}
		e.metrics.ClaimRetried()
		e.log.Debug().Err(err).Int("try", try+1).Str("riddle_id", attempt.RiddleID).Msg("claim conflict, retrying")
	}
}

func (e *RiddleEngine) classifyWriteError(ctx context.Context, stage, riddleID string, err error) (domain.Outcome, error) {
	switch {
	case errors.Is(err, domain.ErrDuplicateAttempt):
		return domain.NewOutcome(domain.OutcomeDuplicateAttempt, riddleID), nil
	case errors.Is(err, domain.ErrRiddleNotFound):
		return domain.NewOutcome(domain.OutcomeRiddleNotFound, riddleID), nil
	case errors.Is(err, domain.ErrParticipantNotFound):
		return domain.NewOutcome(domain.OutcomeParticipantNotFound, riddleID), nil
	}
	return domain.Outcome{}, e.unavailable(ctx, stage, err)
}

// unavailable wraps infrastructure failures. Context errors pass through so
// callers can tell a timeout from a storage outage.
func (e *RiddleEngine) unavailable(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", stage, ctxErr)
	}
	e.metrics.EngineFailure(stage)
	return fmt.Errorf("%s: %w: %w", stage, domain.ErrEngineUnavailable, err)
}

// announce runs strictly after the win committed; its failures are only logged.
func (e *RiddleEngine) announce(ctx context.Context, riddleID string, attempt domain.Attempt) domain.WinnerEvent {
	event := domain.WinnerEvent{
		RiddleID: riddleID,
		SolverID: attempt.ParticipantID,
		SolvedAt: attempt.SubmittedAt,
	}
	// The win is durable; a cancelled request must not suppress the fan-out.
	bctx := context.WithoutCancel(ctx)
	if p, err := e.participants.GetParticipant(bctx, attempt.ParticipantID); err == nil {
		event.SolverName = p.DisplayName
		event.SolverAvatar = p.Avatar
	} else {
		e.log.Warn().Err(err).Str("participant_id", attempt.ParticipantID).Msg("winner profile lookup failed")
	}

	e.log.Info().
		Str("riddle_id", riddleID).
		Str("solver_id", event.SolverID).
		Str("solver_name", event.SolverName).
		Msg("riddle solved")

	if e.broadcaster == nil {
		return event
	}
	if err := e.broadcaster.Announce(bctx, event); err != nil {
		e.log.Warn().Err(err).Str("riddle_id", riddleID).Msg("winner broadcast failed")
	}
	return event
}

func (e *RiddleEngine) displayName(ctx context.Context, participantID string) string {
	if participantID == "" {
		return ""
	}
	p, err := e.participants.GetParticipant(ctx, participantID)
	if err != nil {
		e.log.Debug().Err(err).Str("participant_id", participantID).Msg("solver lookup failed")
		return ""
	}
	return p.DisplayName
}

// CurrentState returns the committed state of a riddle for rendering and polling.
func (e *RiddleEngine) CurrentState(ctx context.Context, riddleID string) (domain.RiddleState, error) {
	riddle, err := e.riddles.GetRiddle(ctx, riddleID)
	if err != nil {
		if errors.Is(err, domain.ErrRiddleNotFound) {
			return domain.RiddleState{}, err
		}
		return domain.RiddleState{}, e.unavailable(ctx, "load_riddle", err)
	}
	state := domain.RiddleState{
		RiddleID: riddle.ID,
		Question: riddle.Question,
		Solved:   riddle.Solved,
		SolverID: riddle.SolverID,
	}
	if riddle.Solved {
		if p, err := e.participants.GetParticipant(ctx, riddle.SolverID); err == nil {
			state.SolverName = p.DisplayName
			state.SolverAvatar = p.Avatar
		}
	}
	return state, nil
}

// ResetRiddle returns a riddle to unsolved. Attempt history is kept.
func (e *RiddleEngine) ResetRiddle(ctx context.Context, riddleID string) error {
	if err := e.riddles.ResetRiddle(ctx, riddleID); err != nil {
		if errors.Is(err, domain.ErrRiddleNotFound) {
			return err
		}
		return e.unavailable(ctx, "reset_riddle", err)
	}
	e.log.Info().Str("riddle_id", riddleID).Msg("riddle reset")
	return nil
}

// Unsolved lists riddles still open for answers, answers stripped by JSON tags.
func (e *RiddleEngine) Unsolved(ctx context.Context, q domain.UnsolvedQuery) ([]domain.Riddle, error) {
	riddles, err := e.riddles.ListUnsolved(ctx, q.Normalize())
	if err != nil {
		return nil, e.unavailable(ctx, "list_unsolved", err)
	}
	return riddles, nil
}

// Window exposes the activity window the engine gates on.
func (e *RiddleEngine) Window(ctx context.Context) (domain.Window, error) {
	return e.windows.Window(ctx)
}
