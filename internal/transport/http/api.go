package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"lantern-quiz-service/internal/app"
	"lantern-quiz-service/internal/config"
	"lantern-quiz-service/internal/domain"
)

// API serves the JSON endpoints around the riddle engine.
type API struct {
	engine       *app.RiddleEngine
	records      *app.RecordService
	participants *app.ParticipantService
	windows      app.WindowStore
	validate     *validator.Validate
	log          zerolog.Logger
}

func NewAPI(engine *app.RiddleEngine, records *app.RecordService, participants *app.ParticipantService, windows app.WindowStore, log zerolog.Logger) *API {
	return &API{
		engine:       engine,
		records:      records,
		participants: participants,
		windows:      windows,
		validate:     validator.New(),
		log:          log,
	}
}

// Routes mounts the API under the caller's router.
func (a *API) Routes(r chi.Router) {
	r.Post("/participants", a.registerParticipant)
	r.Get("/participants/{participantID}/records", a.participantRecords)

	r.Get("/riddles", a.listRiddles)
	r.Get("/riddles/{riddleID}", a.getRiddle)
	r.Post("/riddles/{riddleID}/attempts", a.submitAttempt)

	r.Get("/leaderboard", a.leaderboard)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/riddles/{riddleID}/reset", a.resetRiddle)
		r.Get("/activity", a.getActivity)
		r.Put("/activity", a.putActivity)
	})
}

type registerRequest struct {
	DisplayName string `json:"displayName" validate:"required,max=64"`
	Avatar      string `json:"avatar" validate:"omitempty,max=512"`
}

func (a *API) registerParticipant(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	p, err := a.participants.Register(r.Context(), req.DisplayName, req.Avatar)
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (a *API) participantRecords(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")
	if _, err := a.participants.Get(r.Context(), participantID); err != nil {
		a.respondFailure(w, err)
		return
	}
	records, err := a.records.History(r.Context(), participantID)
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (a *API) listRiddles(w http.ResponseWriter, r *http.Request) {
	q := domain.UnsolvedQuery{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "pageSize"),
	}
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				q.ExcludeIDs = append(q.ExcludeIDs, id)
			}
		}
	}
	riddles, err := a.engine.Unsolved(r.Context(), q)
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, riddles)
}

func (a *API) getRiddle(w http.ResponseWriter, r *http.Request) {
	state, err := a.engine.CurrentState(r.Context(), chi.URLParam(r, "riddleID"))
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

type attemptRequest struct {
	ParticipantID string `json:"participantId"`
	Answer        string `json:"answer"`
}

func (a *API) submitAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	sub := domain.Submission{
		ParticipantID: strings.TrimSpace(req.ParticipantID),
		RiddleID:      chi.URLParam(r, "riddleID"),
		Answer:        req.Answer,
	}
	if err := a.validate.Struct(sub); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_submission", validationMessage(err))
		return
	}
	outcome, err := a.engine.Submit(r.Context(), sub)
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	page, err := a.records.Leaderboard(r.Context(), domain.RecordQuery{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "pageSize"),
		Keyword:  r.URL.Query().Get("keyword"),
	})
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (a *API) resetRiddle(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.ResetRiddle(r.Context(), chi.URLParam(r, "riddleID")); err != nil {
		a.respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activityResponse struct {
	domain.Window
	Phase domain.WindowPhase `json:"phase"`
}

func (a *API) getActivity(w http.ResponseWriter, r *http.Request) {
	win, err := a.engine.Window(r.Context())
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, activityResponse{Window: win, Phase: win.Phase(time.Now())})
}

type activityRequest struct {
	Name  string `json:"name" validate:"max=128"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (a *API) putActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	start, err := config.ParseTime(req.Start)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_start", err.Error())
		return
	}
	end, err := config.ParseTime(req.End)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_end", err.Error())
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		respondError(w, http.StatusBadRequest, "invalid_window", "end must not precede start")
		return
	}
	win := domain.Window{Name: strings.TrimSpace(req.Name), Start: start, End: end}
	if err := a.windows.SetWindow(r.Context(), win); err != nil {
		a.respondFailure(w, err)
		return
	}
	a.log.Info().Str("name", win.Name).Time("start", start).Time("end", end).Msg("activity window updated")
	respondJSON(w, http.StatusOK, activityResponse{Window: win, Phase: win.Phase(time.Now())})
}

func (a *API) decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeBody(r, v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	if err := a.validate.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

// respondFailure maps service errors onto status codes.
func (a *API) respondFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRiddleNotFound):
		respondError(w, http.StatusNotFound, "riddle_not_found", err.Error())
	case errors.Is(err, domain.ErrParticipantNotFound):
		respondError(w, http.StatusNotFound, "participant_not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidSubmission):
		respondError(w, http.StatusBadRequest, "invalid_submission", err.Error())
	case errors.Is(err, domain.ErrEngineUnavailable):
		respondError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable, retry later")
	default:
		a.log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(fields, "; ")
}
