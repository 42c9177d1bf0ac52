package http

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"lantern-quiz-service/internal/app"
	"lantern-quiz-service/internal/domain"
	"lantern-quiz-service/internal/infra/memory"
)

type testServer struct {
	*httptest.Server
	store *memory.Store
	hub   *app.Hub
}

func newTestServer(t *testing.T, riddles app.RiddleStore) *testServer {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	if err := store.PutRiddle(ctx, domain.Riddle{ID: "R", Question: "What glows on the fifteenth night?", Answer: "lantern"}); err != nil {
		t.Fatalf("put riddle: %v", err)
	}
	for _, p := range []domain.Participant{
		{ID: "alice", DisplayName: "Alice", Avatar: "/avatar/alice.png", Code: "ALICE001"},
		{ID: "bob", DisplayName: "Bob", Code: "BOB00001"},
	} {
		if err := store.CreateParticipant(ctx, p); err != nil {
			t.Fatalf("create participant: %v", err)
		}
	}
	if riddles == nil {
		riddles = store
	}

	hub := app.NewHub(nil)
	engine := app.NewRiddleEngine(riddles, store, store, hub, app.WithWindowSource(store))
	participants := app.NewParticipantService(store)
	api := NewAPI(engine, app.NewRecordService(store), participants, store, zerolog.Nop())
	ws := NewWSHandler(engine, participants, hub, zerolog.Nop())

	srv := httptest.NewServer(NewRouter(api, ws, nil))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return &testServer{Server: srv, store: store, hub: hub}
}

// brokenRiddles fails every read, standing in for a storage outage.
type brokenRiddles struct{ app.RiddleStore }

func (brokenRiddles) GetRiddle(context.Context, string) (domain.Riddle, error) {
	return domain.Riddle{}, errors.New("connection refused")
}
