package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lantern-quiz-service/internal/app"
	"lantern-quiz-service/internal/domain"
)

type WSHandler struct {
	engine       *app.RiddleEngine
	participants *app.ParticipantService
	hub          *app.Hub
	validate     *validator.Validate
	log          zerolog.Logger
	upgrader     websocket.Upgrader
}

func NewWSHandler(engine *app.RiddleEngine, participants *app.ParticipantService, hub *app.Hub, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		engine:       engine,
		participants: participants,
		hub:          hub,
		validate:     validator.New(),
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	RiddleID string `json:"riddleId"`
	Answer   string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades a participant's connection, pushes riddleSolved events
// from the hub and answers submissions sent over the socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		http.Error(w, "missing participantId", http.StatusBadRequest)
		return
	}
	participant, err := h.participants.Get(r.Context(), participantID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		http.Error(w, "unknown participant", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe(r.Context())
	defer cancel()

	log := h.log.With().Str("participant_id", participantID).Logger()
	log.Debug().Msg("ws connected")

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "riddleSolved", Payload: event}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// push gives up once the writer has died so the reader never blocks on a full queue.
	push := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	push(outboundMessage[any]{Type: "joined", Payload: participant})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply outboundMessage[any]
		switch inbound.Type {
		case "answer":
			reply = h.answer(r, participantID, inbound.Payload)
		default:
			reply = outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		if !push(reply) {
			break
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
	log.Debug().Msg("ws disconnected")
}

func (h *WSHandler) answer(r *http.Request, participantID string, raw json.RawMessage) outboundMessage[any] {
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
	}
	sub := domain.Submission{
		ParticipantID: participantID,
		RiddleID:      payload.RiddleID,
		Answer:        payload.Answer,
	}
	if err := h.validate.Struct(sub); err != nil {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: validationMessage(err)}}
	}
	outcome, err := h.engine.Submit(r.Context(), sub)
	if err != nil {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "service temporarily unavailable, retry later"}}
	}
	return outboundMessage[any]{Type: "answerResult", Payload: outcome}
}
