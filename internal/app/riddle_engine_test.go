package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"lantern-quiz-service/internal/app"
	"lantern-quiz-service/internal/app/mocks"
	"lantern-quiz-service/internal/domain"
	"lantern-quiz-service/internal/infra/memory"
)

var festival = time.Date(2025, 2, 12, 19, 0, 0, 0, time.UTC)

func TestLanternScenario(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "A", "B")
	hub := app.NewHub(nil)
	events, cancel := hub.Subscribe(ctx)
	defer cancel()
	engine := app.NewRiddleEngine(store, store, store, hub)

	out := submit(t, engine, "A", "R", "LANTERN", festival)
	require.Equal(t, domain.OutcomeWin, out.Kind)
	require.Equal(t, "Alice", out.SolverName)

	select {
	case ev := <-events:
		assert.Equal(t, domain.WinnerEvent{RiddleID: "R", SolverID: "A", SolverName: "Alice", SolverAvatar: "/avatar/a.png", SolvedAt: festival}, ev)
	case <-time.After(time.Second):
		t.Fatal("expected winner event")
	}

	state, err := engine.CurrentState(ctx, "R")
	require.NoError(t, err)
	assert.True(t, state.Solved)
	assert.Equal(t, "A", state.SolverID)

	out = submit(t, engine, "B", "R", "lantern", festival.Add(10*time.Millisecond))
	require.Equal(t, domain.OutcomeTooLate, out.Kind)
	assert.Equal(t, "A", out.SolverID)
	assert.Equal(t, "Alice", out.SolverName)

	out = submit(t, engine, "A", "R", "lantern", festival.Add(time.Second))
	require.Equal(t, domain.OutcomeDuplicateAttempt, out.Kind)

	require.NoError(t, engine.ResetRiddle(ctx, "R"))
	state, err = engine.CurrentState(ctx, "R")
	require.NoError(t, err)
	assert.False(t, state.Solved)
	assert.Empty(t, state.SolverID)

	out = submit(t, engine, "B", "R", "lantern", festival.Add(2*time.Second))
	require.Equal(t, domain.OutcomeDuplicateAttempt, out.Kind)

	select {
	case ev := <-events:
		t.Fatalf("unexpected second winner event %+v", ev)
	default:
	}
}

func TestAtMostOneWinnerUnderConcurrency(t *testing.T) {
	const n = 64
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%02d", i)
	}
	store := newStore(t, ids...)
	// Every contender reads the riddle as unsolved before any of them claims it,
	// so the race is decided by ClaimWin even on a single CPU.
	riddles := &barrierStore{Store: store}
	riddles.readers.Add(n)
	broadcaster := &mocks.MockBroadcaster{}
	broadcaster.On("Announce", mock.Anything, mock.AnythingOfType("domain.WinnerEvent")).Return(nil).Once()
	engine := app.NewRiddleEngine(riddles, store, store, broadcaster)

	var (
		mu     sync.Mutex
		counts = map[domain.OutcomeKind]int{}
	)
	start := make(chan struct{})
	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			<-start
			out, err := engine.Submit(context.Background(), domain.Submission{ParticipantID: id, RiddleID: "R", Answer: " Lantern ", At: festival})
			if err != nil {
				return err
			}
			mu.Lock()
			counts[out.Kind]++
			mu.Unlock()
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, counts[domain.OutcomeWin])
	assert.Equal(t, n-1, counts[domain.OutcomeTooLate])
	broadcaster.AssertExpectations(t)
	broadcaster.AssertNumberOfCalls(t, "Announce", 1)

	page, err := store.ListSolved(context.Background(), domain.RecordQuery{PageSize: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	for _, id := range ids {
		ok, err := store.HasAttempted(context.Background(), id, "R")
		require.NoError(t, err)
		assert.True(t, ok, "every contender keeps exactly one attempt row")
	}
}

func TestSecondSubmitIsAlwaysDuplicate(t *testing.T) {
	for _, first := range []string{"wrong", "lantern"} {
		t.Run(first, func(t *testing.T) {
			store := newStore(t, "A")
			engine := app.NewRiddleEngine(store, store, store, app.NewHub(nil))

			submit(t, engine, "A", "R", first, festival)
			for _, again := range []string{"wrong", "lantern"} {
				out := submit(t, engine, "A", "R", again, festival.Add(time.Second))
				assert.Equal(t, domain.OutcomeDuplicateAttempt, out.Kind)
			}
			history, err := store.ListByParticipant(context.Background(), "A")
			require.NoError(t, err)
			assert.Len(t, history, 1)
		})
	}
}

func TestSolvedRiddleRejectsNewcomersWithoutWriting(t *testing.T) {
	store := newStore(t, "A", "B", "C")
	engine := app.NewRiddleEngine(store, store, store, app.NewHub(nil))

	require.Equal(t, domain.OutcomeWin, submit(t, engine, "A", "R", "lantern", festival).Kind)

	for _, tc := range []struct{ who, answer string }{{"B", "lantern"}, {"C", "nope"}} {
		out := submit(t, engine, tc.who, "R", tc.answer, festival.Add(time.Second))
		assert.Equal(t, domain.OutcomeAlreadySolved, out.Kind)
		assert.Equal(t, "Alice", out.SolverName)
		ok, err := store.HasAttempted(context.Background(), tc.who, "R")
		require.NoError(t, err)
		assert.False(t, ok, "already-solved fast path must not write")
	}
}

func TestWindowGating(t *testing.T) {
	window := domain.Window{Start: festival, End: festival.Add(time.Hour)}
	cases := []struct {
		name  string
		at    time.Time
		kind  domain.OutcomeKind
		phase domain.WindowPhase
	}{
		{"before", festival.Add(-time.Minute), domain.OutcomeWindowClosed, domain.PhaseNotStarted},
		{"after", festival.Add(2 * time.Hour), domain.OutcomeWindowClosed, domain.PhaseEnded},
		{"inside", festival.Add(time.Minute), domain.OutcomeIncorrect, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t, "A")
			engine := app.NewRiddleEngine(store, store, store, app.NewHub(nil), app.WithWindowSource(app.StaticWindow(window)))
			out := submit(t, engine, "A", "R", "wrong", tc.at)
			assert.Equal(t, tc.kind, out.Kind)
			assert.Equal(t, tc.phase, out.Phase)
		})
	}

	t.Run("no window", func(t *testing.T) {
		store := newStore(t, "A")
		engine := app.NewRiddleEngine(store, store, store, app.NewHub(nil))
		out := submit(t, engine, "A", "R", "lantern", time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, domain.OutcomeWin, out.Kind)
	})
}

func TestWindowFromStoreIsLive(t *testing.T) {
	store := newStore(t, "A", "B")
	engine := app.NewRiddleEngine(store, store, store, app.NewHub(nil), app.WithWindowSource(store))

	require.NoError(t, store.SetWindow(context.Background(), domain.Window{End: festival}))
	assert.Equal(t, domain.OutcomeWindowClosed, submit(t, engine, "A", "R", "lantern", festival.Add(time.Second)).Kind)

	require.NoError(t, store.SetWindow(context.Background(), domain.Window{}))
	assert.Equal(t, domain.OutcomeWin, submit(t, engine, "A", "R", "lantern", festival.Add(time.Second)).Kind)
}

func TestNormalizationAcceptsVariants(t *testing.T) {
	for i, answer := range []string{"firefly", " FireFly ", "FIREFLY"} {
		store := newStore(t, "A")
		require.NoError(t, store.PutRiddle(context.Background(), domain.Riddle{ID: "F", Question: "Glows at night", Answer: "Firefly"}))
		engine := app.NewRiddleEngine(store, store, store, app.NewHub(nil))
		out := submit(t, engine, "A", "F", answer, festival)
		assert.Equal(t, domain.OutcomeWin, out.Kind, "variant %d %q", i, answer)
	}
}

func TestUnknownRiddleAndParticipant(t *testing.T) {
	store := newStore(t, "A")
	engine := app.NewRiddleEngine(store, store, store, app.NewHub(nil))

	assert.Equal(t, domain.OutcomeRiddleNotFound, submit(t, engine, "A", "missing", "x", festival).Kind)
	assert.Equal(t, domain.OutcomeParticipantNotFound, submit(t, engine, "ghost", "R", "wrong", festival).Kind)
	assert.Equal(t, domain.OutcomeParticipantNotFound, submit(t, engine, "ghost", "R", "lantern", festival).Kind)

	state, err := engine.CurrentState(context.Background(), "R")
	require.NoError(t, err)
	assert.False(t, state.Solved, "failed claim must leave riddle unsolved")

	_, err = engine.CurrentState(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRiddleNotFound)
	assert.ErrorIs(t, engine.ResetRiddle(context.Background(), "missing"), domain.ErrRiddleNotFound)
}

func TestBroadcastFailureDoesNotUndoWin(t *testing.T) {
	store := newStore(t, "A")
	broadcaster := &mocks.MockBroadcaster{}
	broadcaster.On("Announce", mock.Anything, mock.MatchedBy(func(ev domain.WinnerEvent) bool {
		return ev.RiddleID == "R" && ev.SolverID == "A" && ev.SolverName == "Alice"
	})).Return(errors.New("redis down")).Once()
	engine := app.NewRiddleEngine(store, store, store, broadcaster)

	out := submit(t, engine, "A", "R", "lantern", festival)
	assert.Equal(t, domain.OutcomeWin, out.Kind)
	broadcaster.AssertExpectations(t)

	r, err := store.GetRiddle(context.Background(), "R")
	require.NoError(t, err)
	assert.True(t, r.Solved)
}

func TestClaimConflictsAreRetried(t *testing.T) {
	store := newStore(t, "A")
	flaky := &conflictingStore{Store: store, failures: 2}
	engine := app.NewRiddleEngine(flaky, store, store, app.NewHub(nil), app.WithClaimRetries(2))

	out := submit(t, engine, "A", "R", "lantern", festival)
	assert.Equal(t, domain.OutcomeWin, out.Kind)
	assert.Equal(t, 3, flaky.calls)
}

func TestClaimConflictsExhaustedAreUnavailable(t *testing.T) {
	store := newStore(t, "A")
	flaky := &conflictingStore{Store: store, failures: 5}
	engine := app.NewRiddleEngine(flaky, store, store, app.NewHub(nil), app.WithClaimRetries(1))

	_, err := engine.Submit(context.Background(), domain.Submission{ParticipantID: "A", RiddleID: "R", Answer: "lantern", At: festival})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 2, flaky.calls)

	ok, _ := store.HasAttempted(context.Background(), "A", "R")
	assert.False(t, ok, "exhausted conflicts leave no attempt behind")
}

func TestStorageFailureIsUnavailable(t *testing.T) {
	store := newStore(t, "A")
	broken := &brokenLedger{err: errors.New("connection refused")}
	engine := app.NewRiddleEngine(store, broken, store, app.NewHub(nil))

	_, err := engine.Submit(context.Background(), domain.Submission{ParticipantID: "A", RiddleID: "R", Answer: "lantern", At: festival})
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
}

func TestCancelledContextIsNotUnavailable(t *testing.T) {
	store := newStore(t, "A")
	engine := app.NewRiddleEngine(store, store, store, app.NewHub(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Submit(ctx, domain.Submission{ParticipantID: "A", RiddleID: "R", Answer: "lantern", At: festival})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrEngineUnavailable)

	r, _ := store.GetRiddle(context.Background(), "R")
	assert.False(t, r.Solved)
}

func TestSubmitStampsClock(t *testing.T) {
	store := newStore(t, "A")
	engine := app.NewRiddleEngine(store, store, store, app.NewHub(nil), app.WithClock(func() time.Time { return festival }))

	_, err := engine.Submit(context.Background(), domain.Submission{ParticipantID: "A", RiddleID: "R", Answer: "lantern"})
	require.NoError(t, err)
	history, _ := store.ListByParticipant(context.Background(), "A")
	require.Len(t, history, 1)
	assert.Equal(t, festival, history[0].SubmittedAt)
}

func TestUnsolvedFeed(t *testing.T) {
	store := newStore(t, "A")
	require.NoError(t, store.PutRiddle(context.Background(), domain.Riddle{ID: "S", Question: "Second", Answer: "x"}))
	engine := app.NewRiddleEngine(store, store, store, app.NewHub(nil))

	submit(t, engine, "A", "R", "lantern", festival)
	riddles, err := engine.Unsolved(context.Background(), domain.UnsolvedQuery{PageSize: 5})
	require.NoError(t, err)
	require.Len(t, riddles, 1)
	assert.Equal(t, "S", riddles[0].ID)
}

type conflictingStore struct {
	*memory.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *conflictingStore) ClaimWin(ctx context.Context, a domain.Attempt) (domain.Claim, error) {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return domain.Claim{}, fmt.Errorf("serialization failure: %w", domain.ErrConflict)
	}
	return s.Store.ClaimWin(ctx, a)
}

// barrierStore holds every GetRiddle caller until all expected readers arrived.
type barrierStore struct {
	*memory.Store
	readers sync.WaitGroup
}

func (s *barrierStore) GetRiddle(ctx context.Context, riddleID string) (domain.Riddle, error) {
	r, err := s.Store.GetRiddle(ctx, riddleID)
	s.readers.Done()
	s.readers.Wait()
	return r, err
}

type brokenLedger struct {
	err error
}

func (l *brokenLedger) HasAttempted(context.Context, string, string) (bool, error) {
	return false, l.err
}

func (l *brokenLedger) Record(context.Context, domain.Attempt) (domain.Attempt, error) {
	return domain.Attempt{}, l.err
}

func newStore(t *testing.T, participants ...string) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.PutRiddle(ctx, domain.Riddle{ID: "R", Question: "What glows on the fifteenth night?", Answer: "lantern"}))
	names := map[string]string{"A": "Alice", "B": "Bob", "C": "Carol"}
	for _, id := range participants {
		name, ok := names[id]
		if !ok {
			name = "Player " + id
		}
		require.NoError(t, store.CreateParticipant(ctx, domain.Participant{ID: id, DisplayName: name, Avatar: "/avatar/" + strings.ToLower(id) + ".png"}))
	}
	return store
}

func submit(t *testing.T, engine *app.RiddleEngine, participantID, riddleID, answer string, at time.Time) domain.Outcome {
	t.Helper()
	out, err := engine.Submit(context.Background(), domain.Submission{ParticipantID: participantID, RiddleID: riddleID, Answer: answer, At: at})
	require.NoError(t, err)
	return out
}
