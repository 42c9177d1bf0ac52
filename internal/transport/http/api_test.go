package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"lantern-quiz-service/internal/domain"
)

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestAttemptFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	attempts := srv.URL + "/api/riddles/R/attempts"

	var out domain.Outcome
	if code := doJSON(t, http.MethodPost, attempts, map[string]string{"participantId": "bob", "answer": "candle"}, &out); code != http.StatusOK {
		t.Fatalf("incorrect attempt status %d", code)
	}
	if out.Kind != domain.OutcomeIncorrect {
		t.Fatalf("expected incorrect, got %s", out.Kind)
	}

	if code := doJSON(t, http.MethodPost, attempts, map[string]string{"participantId": "alice", "answer": "  Lantern "}, &out); code != http.StatusOK {
		t.Fatalf("winning attempt status %d", code)
	}
	if out.Kind != domain.OutcomeWin || out.SolverName != "Alice" {
		t.Fatalf("expected alice to win, got %+v", out)
	}

	if code := doJSON(t, http.MethodPost, attempts, map[string]string{"participantId": "alice", "answer": "lantern"}, &out); code != http.StatusOK {
		t.Fatalf("duplicate attempt status %d", code)
	}
	if out.Kind != domain.OutcomeDuplicateAttempt {
		t.Fatalf("expected duplicate, got %s", out.Kind)
	}

	var state domain.RiddleState
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/riddles/R", nil, &state); code != http.StatusOK {
		t.Fatalf("state status %d", code)
	}
	if !state.Solved || state.SolverName != "Alice" || state.SolverAvatar != "/avatar/alice.png" {
		t.Fatalf("unexpected state %+v", state)
	}

	var page domain.RecordPage
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/leaderboard?keyword=ali", nil, &page); code != http.StatusOK {
		t.Fatalf("leaderboard status %d", code)
	}
	if page.Total != 1 || page.List[0].ParticipantID != "alice" {
		t.Fatalf("unexpected leaderboard %+v", page)
	}

	var history []domain.Record
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/participants/bob/records", nil, &history); code != http.StatusOK {
		t.Fatalf("history status %d", code)
	}
	if len(history) != 1 || history[0].Correct {
		t.Fatalf("unexpected bob history %+v", history)
	}
}

func TestAttemptValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	attempts := srv.URL + "/api/riddles/R/attempts"

	if code := doJSON(t, http.MethodPost, attempts, map[string]string{"participantId": "bob"}, nil); code != http.StatusBadRequest {
		t.Fatalf("missing answer should be 400, got %d", code)
	}
	if code := doJSON(t, http.MethodPost, attempts, map[string]string{"participantId": "bob", "answer": "x", "extra": "y"}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown field should be 400, got %d", code)
	}

	var out domain.Outcome
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/riddles/missing/attempts", map[string]string{"participantId": "bob", "answer": "x"}, &out); code != http.StatusOK {
		t.Fatalf("unknown riddle is a business outcome, got %d", code)
	}
	if out.Kind != domain.OutcomeRiddleNotFound {
		t.Fatalf("expected riddle_not_found, got %s", out.Kind)
	}
}

func TestAttemptUnavailable(t *testing.T) {
	srv := newTestServer(t, brokenRiddles{})
	code := doJSON(t, http.MethodPost, srv.URL+"/api/riddles/R/attempts", map[string]string{"participantId": "bob", "answer": "lantern"}, nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestRegisterParticipant(t *testing.T) {
	srv := newTestServer(t, nil)

	var p domain.Participant
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/participants", map[string]string{"displayName": "Carol"}, &p); code != http.StatusCreated {
		t.Fatalf("register status %d", code)
	}
	if p.ID == "" || len(p.Code) != 8 || p.DisplayName != "Carol" {
		t.Fatalf("unexpected participant %+v", p)
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/participants", map[string]string{"displayName": ""}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty name should be 400, got %d", code)
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/participants/ghost/records", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown participant history should be 404, got %d", code)
	}
}

func TestUnsolvedFeedAndReset(t *testing.T) {
	srv := newTestServer(t, nil)

	var riddles []map[string]any
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/riddles?pageSize=5", nil, &riddles); code != http.StatusOK {
		t.Fatalf("feed status %d", code)
	}
	if len(riddles) != 1 || riddles[0]["id"] != "R" {
		t.Fatalf("unexpected feed %+v", riddles)
	}
	if _, leaked := riddles[0]["answer"]; leaked {
		t.Fatalf("answer must not be exposed")
	}

	riddles = nil
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/riddles?exclude=R", nil, &riddles); code != http.StatusOK || len(riddles) != 0 {
		t.Fatalf("exclusion ignored: %d %+v", code, riddles)
	}

	doJSON(t, http.MethodPost, srv.URL+"/api/riddles/R/attempts", map[string]string{"participantId": "alice", "answer": "lantern"}, nil)
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/admin/riddles/R/reset", nil, nil); code != http.StatusNoContent {
		t.Fatalf("reset status %d", code)
	}
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/admin/riddles/missing/reset", nil, nil); code != http.StatusNotFound {
		t.Fatalf("reset unknown should be 404, got %d", code)
	}

	var out domain.Outcome
	doJSON(t, http.MethodPost, srv.URL+"/api/riddles/R/attempts", map[string]string{"participantId": "bob", "answer": "lantern"}, &out)
	if out.Kind != domain.OutcomeWin {
		t.Fatalf("expected bob to win after reset, got %s", out.Kind)
	}
}

func TestActivityWindowGatesSubmissions(t *testing.T) {
	srv := newTestServer(t, nil)

	body := map[string]string{"name": "Lantern Festival", "start": "2020-02-12T19:00:00Z", "end": "2020-02-12T22:00:00Z"}
	var got struct {
		Name  string             `json:"name"`
		Phase domain.WindowPhase `json:"phase"`
	}
	if code := doJSON(t, http.MethodPut, srv.URL+"/api/admin/activity", body, &got); code != http.StatusOK {
		t.Fatalf("put activity status %d", code)
	}
	if got.Name != "Lantern Festival" || got.Phase != domain.PhaseEnded {
		t.Fatalf("unexpected activity %+v", got)
	}

	var out domain.Outcome
	doJSON(t, http.MethodPost, srv.URL+"/api/riddles/R/attempts", map[string]string{"participantId": "alice", "answer": "lantern"}, &out)
	if out.Kind != domain.OutcomeWindowClosed || out.Phase != domain.PhaseEnded {
		t.Fatalf("expected window_closed/ended, got %+v", out)
	}

	bad := map[string]string{"start": "2020-02-12T22:00:00Z", "end": "2020-02-12T19:00:00Z"}
	if code := doJSON(t, http.MethodPut, srv.URL+"/api/admin/activity", bad, nil); code != http.StatusBadRequest {
		t.Fatalf("inverted window should be 400, got %d", code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
}
