package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// HostHandler exposes the host's session controls over plain HTTP. Each
// created session gets a live controller registered by PIN; the controller
// keeps polling for the lifetime of the server, not of any one request.
type HostHandler struct {
	baseCtx  context.Context
	registry *app.Registry
	store    app.Store
	quizzes  app.QuizRepository
	opts     app.HostOptions
}

func NewHostHandler(baseCtx context.Context, registry *app.Registry, store app.Store, quizzes app.QuizRepository, opts app.HostOptions) *HostHandler {
	return &HostHandler{
		baseCtx:  baseCtx,
		registry: registry,
		store:    store,
		quizzes:  quizzes,
		opts:     opts,
	}
}

// Register wires the host routes onto mux.
func (h *HostHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.createSession)
	mux.HandleFunc("GET /sessions/{pin}", h.getView)
	mux.HandleFunc("DELETE /sessions/{pin}", h.closeSession)
	mux.HandleFunc("POST /sessions/{pin}/start", h.startGame)
	mux.HandleFunc("POST /sessions/{pin}/show-answer", h.showAnswer)
	mux.HandleFunc("POST /sessions/{pin}/advance", h.advance)
	mux.HandleFunc("POST /sessions/{pin}/reveal", h.reveal)
	mux.HandleFunc("POST /sessions/{pin}/end", h.endGame)
	mux.HandleFunc("POST /sessions/{pin}/auto-advance", h.setAutoAdvance)
}

type createSessionRequest struct {
	QuizID      string `json:"quizId"`
	HostID      string `json:"hostId"`
	AutoAdvance bool   `json:"autoAdvance"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	Pin       string `json:"pin"`
}

func (h *HostHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	hc, err := app.NewHost(r.Context(), h.store, h.quizzes, req.QuizID, req.HostID, h.opts)
	if err != nil {
		writeError(w, err)
		return
	}
	hc.SetAutoAdvance(req.AutoAdvance)
	hc.Run(h.baseCtx)
	h.registry.Put(hc.Pin(), hc)

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: hc.SessionID(),
		Pin:       hc.Pin(),
	})
}

func (h *HostHandler) getView(w http.ResponseWriter, r *http.Request) {
	hc, ok := h.registry.Get(r.PathValue("pin"))
	if !ok {
		writeError(w, domain.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, hc.View())
}

func (h *HostHandler) closeSession(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")
	if _, ok := h.registry.Get(pin); !ok {
		writeError(w, domain.ErrSessionNotFound)
		return
	}
	h.registry.Remove(pin)
	w.WriteHeader(http.StatusNoContent)
}

func (h *HostHandler) startGame(w http.ResponseWriter, r *http.Request) {
	h.withHost(w, r, func(hc *app.HostController) error {
		return hc.StartGame(r.Context())
	})
}

func (h *HostHandler) showAnswer(w http.ResponseWriter, r *http.Request) {
	h.withHost(w, r, func(hc *app.HostController) error {
		return hc.ShowAnswer()
	})
}

func (h *HostHandler) advance(w http.ResponseWriter, r *http.Request) {
	h.withHost(w, r, func(hc *app.HostController) error {
		return hc.Advance(r.Context())
	})
}

func (h *HostHandler) reveal(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		http.Error(w, "missing or invalid index", http.StatusBadRequest)
		return
	}
	h.withHost(w, r, func(hc *app.HostController) error {
		return hc.RevealQuestion(r.Context(), index)
	})
}

func (h *HostHandler) endGame(w http.ResponseWriter, r *http.Request) {
	h.withHost(w, r, func(hc *app.HostController) error {
		return hc.EndGame(r.Context())
	})
}

type autoAdvanceRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *HostHandler) setAutoAdvance(w http.ResponseWriter, r *http.Request) {
	var req autoAdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.withHost(w, r, func(hc *app.HostController) error {
		hc.SetAutoAdvance(req.Enabled)
		return nil
	})
}

// withHost resolves the controller by PIN, runs op and responds with the
// refreshed host view on success.
func (h *HostHandler) withHost(w http.ResponseWriter, r *http.Request, op func(*app.HostController) error) {
	hc, ok := h.registry.Get(r.PathValue("pin"))
	if !ok {
		writeError(w, domain.ErrSessionNotFound)
		return
	}
	if err := op(hc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hc.View())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPin),
		errors.Is(err, domain.ErrQuestionOutOfRange),
		errors.Is(err, domain.ErrOptionNotFound):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoQuestions):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAlreadyEnded),
		errors.Is(err, domain.ErrSessionNotJoinable),
		errors.Is(err, domain.ErrGameNotActive),
		errors.Is(err, domain.ErrAnswerNotShown),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
