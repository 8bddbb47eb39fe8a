package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// PlayerWSHandler upgrades player connections to websockets. Each connection
// owns one player controller: state updates stream out as the controller's
// poll reconciles, selections and submissions come in as JSON messages.
type PlayerWSHandler struct {
	store    app.Store
	quizzes  app.QuizRepository
	opts     app.PlayerOptions
	upgrader websocket.Upgrader
}

func NewPlayerWSHandler(store app.Store, quizzes app.QuizRepository, opts app.PlayerOptions) *PlayerWSHandler {
	return &PlayerWSHandler{
		store:   store,
		quizzes: quizzes,
		opts:    opts,
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

type selectPayload struct {
	OptionID string `json:"optionId"`
}

type joinedPayload struct {
	ParticipantID string `json:"participantId"`
	SessionID     string `json:"sessionId"`
}

type answerResult struct {
	OptionID   string `json:"optionId"`
	Correct    bool   `json:"correct"`
	TotalScore int    `json:"totalScore"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS joins the session named by the pin query parameter and bridges the
// player controller to the socket until the client disconnects.
func (h *PlayerWSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	displayName := r.URL.Query().Get("name")
	userID := r.URL.Query().Get("userId") // optional, anonymous play if empty
	if pin == "" || displayName == "" {
		http.Error(w, "missing pin or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	pc, err := app.Join(r.Context(), h.store, h.quizzes, pin, displayName, userID, h.opts)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer pc.Stop()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Greet before the update pump starts so the first frames are always
	// joined followed by the initial state.
	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		ParticipantID: pc.ParticipantID(),
		SessionID:     pc.View().Session.ID,
	}}
	send <- outboundMessage[any]{Type: "state", Payload: sanitizeView(pc.View())}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-pc.Updates():
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: sanitizeView(view)}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	pc.Run(r.Context())

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}}
				continue
			}
			if err := pc.Select(payload.OptionID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "answer":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			if err := pc.SubmitAnswer(r.Context(), payload.OptionID); err != nil {
				// A duplicate after reconnect is not fatal, the refreshed
				// state message carries the recorded answer.
				if !errors.Is(err, domain.ErrAlreadyAnswered) {
					send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
					continue
				}
			}
			view := pc.View()
			result := answerResult{OptionID: view.Selected, TotalScore: view.Participant.Score}
			if view.Question != nil {
				if a, ok := view.Participant.AnswerFor(view.Question.ID, view.Session.CurrentQuestionIndex); ok {
					result.Correct = a.Correct
					result.OptionID = a.OptionID
				}
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: result}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// sanitizeView strips the correct-answer fields before a view leaves the
// server. Players learn correctness from their own recorded answers only.
func sanitizeView(view app.PlayerView) app.PlayerView {
	if view.Question != nil {
		q := *view.Question
		q.CorrectOptionID = ""
		q.CorrectText = ""
		view.Question = &q
	}
	return view
}
