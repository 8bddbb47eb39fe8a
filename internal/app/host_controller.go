package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/poller"
)

const (
	defaultPollInterval     = time.Second
	defaultAutoAdvanceDelay = 3 * time.Second
)

// HostOptions tunes a host controller. Zero values fall back to production
// defaults (1s poll cadence, 3s auto-advance delay, 1s countdown tick).
type HostOptions struct {
	PollInterval     time.Duration
	AutoAdvanceDelay time.Duration
	CountdownTick    time.Duration
	// DefaultTimeLimit (seconds) backs quizzes that declare none of their own.
	DefaultTimeLimit int
	Clock            func() time.Time
}

// HostView is the host's reconciled view of the live game, rebuilt after
// every applied poll tick and after every acknowledged write.
type HostView struct {
	Session        domain.Session       `json:"session"`
	Question       *domain.Question     `json:"question,omitempty"`
	TimeLeft       int                  `json:"timeLeft"`
	AnswerShown    bool                 `json:"answerShown"`
	AutoAdvance    bool                 `json:"autoAdvance"`
	Frozen         bool                 `json:"frozen"`
	TotalQuestions int                  `json:"totalQuestions"`
	Roster         []domain.RosterEntry `json:"roster"`
	// Degraded is set while the most recent background poll failed; the next
	// successful tick clears it.
	Degraded bool `json:"degraded"`
}

// HostController owns the authoritative progression of one session: start,
// advance, reveal, end. It never learns about player activity from writes —
// joins and answers reach it only through its own 1-second poll of the store.
type HostController struct {
	store   Store
	clock   func() time.Time
	poll    *poller.Poller
	timer   *countdown
	cadence time.Duration
	delay   time.Duration

	mu           sync.Mutex
	quiz         domain.Quiz
	session      domain.Session
	synced       bool // session holds an applied authoritative snapshot
	question     *domain.Question
	answerShown  bool
	frozen       bool
	autoAdvance  bool
	armedIndex   int // question index an auto-advance is already scheduled for
	advanceTimer *time.Timer
	roster       []domain.RosterEntry
}

// NewHost creates the session row (status waiting, fresh PIN) and returns the
// controller that owns it. Call Run to begin background reconciliation.
func NewHost(ctx context.Context, store Store, quizzes QuizRepository, quizID, hostID string, opts HostOptions) (*HostController, error) {
	quiz, err := quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.DefaultTimeLimitSec == 0 {
		quiz.DefaultTimeLimitSec = opts.DefaultTimeLimit
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	cadence := opts.PollInterval
	if cadence <= 0 {
		cadence = defaultPollInterval
	}
	delay := opts.AutoAdvanceDelay
	if delay <= 0 {
		delay = defaultAutoAdvanceDelay
	}

	session := domain.Session{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		HostID:    hostID,
		Pin:       NewPin(),
		Status:    domain.StatusWaiting,
		CreatedAt: clock(),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &HostController{
		store:      store,
		clock:      clock,
		poll:       poller.New(),
		timer:      newCountdown(opts.CountdownTick),
		cadence:    cadence,
		delay:      delay,
		quiz:       quiz,
		session:    session,
		synced:     true,
		armedIndex: -1,
	}, nil
}

// Run starts the background poll that keeps the host view converged with the
// store. It returns immediately.
func (h *HostController) Run(ctx context.Context) {
	h.poll.Start(ctx, h.tick, h.cadence, true)
}

// Stop halts polling, the countdown and any scheduled auto-advance. In-flight
// store calls complete but their results are discarded.
func (h *HostController) Stop() {
	h.poll.Stop()
	h.timer.stop()
	h.mu.Lock()
	if h.advanceTimer != nil {
		h.advanceTimer.Stop()
		h.advanceTimer = nil
	}
	h.mu.Unlock()
}

// Pin returns the session's join code.
func (h *HostController) Pin() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session.Pin
}

// SessionID returns the session's opaque id.
func (h *HostController) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session.ID
}

// SetAutoAdvance toggles automatic reveal-and-advance once every joined
// player has answered the current question.
func (h *HostController) SetAutoAdvance(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.autoAdvance = enabled
}

// View returns a copy of the current reconciled host view.
func (h *HostController) View() HostView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewLocked()
}

func (h *HostController) viewLocked() HostView {
	view := HostView{
		Session:        h.session,
		TimeLeft:       h.timer.left(),
		AnswerShown:    h.answerShown,
		AutoAdvance:    h.autoAdvance,
		Frozen:         h.frozen,
		TotalQuestions: len(h.quiz.Questions),
		Degraded:       h.poll.LastError() != nil,
	}
	if h.question != nil {
		q := *h.question
		view.Question = &q
	}
	view.Roster = append(view.Roster, h.roster...)
	return view
}

// StartGame transitions the session from waiting to active and reveals
// question zero to the host's own view without waiting for the next poll.
// The local reveal is optimistic: if the store write fails the question stays
// displayed, the error is returned, and the call can simply be retried.
func (h *HostController) StartGame(ctx context.Context) error {
	h.mu.Lock()
	switch h.session.Status {
	case domain.StatusCompleted:
		h.mu.Unlock()
		return domain.ErrAlreadyEnded
	case domain.StatusActive:
		h.mu.Unlock()
		return domain.ErrConflict
	}
	if len(h.quiz.Questions) == 0 {
		h.mu.Unlock()
		return domain.ErrNoQuestions
	}
	id := h.session.ID
	first := h.quiz.Questions[0]
	h.question = &first
	h.answerShown = false
	h.armedIndex = -1
	h.mu.Unlock()

	h.timer.reset(h.quiz.TimeLimit(0), nil)

	updated, err := h.store.StartSession(ctx, id, h.clock())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			h.resync(ctx)
		}
		return err
	}

	h.mu.Lock()
	h.session = updated
	h.synced = true
	h.mu.Unlock()
	return nil
}

// RevealQuestion writes the question index to the session and refreshes the
// local view on acknowledgement. The local state is not flipped until the
// write succeeds, so a failed advance leaves the current question displayed.
func (h *HostController) RevealQuestion(ctx context.Context, index int) error {
	h.mu.Lock()
	if h.session.Status != domain.StatusActive {
		status := h.session.Status
		h.mu.Unlock()
		if status == domain.StatusCompleted {
			return domain.ErrAlreadyEnded
		}
		return domain.ErrGameNotActive
	}
	if index < 0 || index >= len(h.quiz.Questions) {
		h.mu.Unlock()
		return domain.ErrQuestionOutOfRange
	}
	id := h.session.ID
	from := h.session.CurrentQuestionIndex
	h.mu.Unlock()

	updated, err := h.store.AdvanceSession(ctx, id, from, index)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			h.resync(ctx)
		}
		return err
	}

	h.mu.Lock()
	h.session = updated
	h.synced = true
	q := h.quiz.Questions[index]
	h.question = &q
	h.answerShown = false
	h.armedIndex = -1
	h.mu.Unlock()

	h.timer.reset(h.quiz.TimeLimit(index), nil)
	return nil
}

// ShowAnswer flips the local-only flag revealing the current question's
// correct option to the host view. No store write happens; the flag resets on
// the next advance.
func (h *HostController) ShowAnswer() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session.Status != domain.StatusActive || h.question == nil {
		return domain.ErrGameNotActive
	}
	h.answerShown = true
	return nil
}

// Advance moves to the next question, or ends the game when the current
// question is the last one. Advancing past a non-final question requires the
// answer to have been shown first.
func (h *HostController) Advance(ctx context.Context) error {
	h.mu.Lock()
	if h.session.Status != domain.StatusActive {
		status := h.session.Status
		h.mu.Unlock()
		if status == domain.StatusCompleted {
			return domain.ErrAlreadyEnded
		}
		return domain.ErrGameNotActive
	}
	index := h.session.CurrentQuestionIndex
	last := index >= len(h.quiz.Questions)-1
	shown := h.answerShown
	h.mu.Unlock()

	if last {
		return h.EndGame(ctx)
	}
	if !shown {
		return domain.ErrAnswerNotShown
	}
	return h.RevealQuestion(ctx, index+1)
}

// EndGame transitions the session to completed and freezes the host view on
// the final results.
func (h *HostController) EndGame(ctx context.Context) error {
	h.mu.Lock()
	switch h.session.Status {
	case domain.StatusCompleted:
		h.mu.Unlock()
		return domain.ErrAlreadyEnded
	case domain.StatusWaiting:
		h.mu.Unlock()
		return domain.ErrGameNotActive
	}
	id := h.session.ID
	h.mu.Unlock()

	updated, err := h.store.EndSession(ctx, id, h.clock())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			h.resync(ctx)
		}
		return err
	}

	h.mu.Lock()
	h.session = updated
	h.synced = true
	h.frozen = true
	h.answerShown = true
	if h.advanceTimer != nil {
		h.advanceTimer.Stop()
		h.advanceTimer = nil
	}
	h.mu.Unlock()

	h.timer.stop()
	return nil
}

func (h *HostController) tick(ctx context.Context) error {
	h.mu.Lock()
	id := h.session.ID
	h.mu.Unlock()

	next, err := h.store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	participants, err := h.store.ListParticipants(ctx, id)
	if err != nil {
		return fmt.Errorf("refresh participants: %w", err)
	}
	h.apply(next, participants)
	return nil
}

func (h *HostController) apply(next domain.Session, participants []domain.ParticipantAnswer) {
	h.mu.Lock()

	var prev *domain.Session
	if h.synced {
		snapshot := h.session
		prev = &snapshot
	}
	step := Converge(prev, next)
	h.session = next
	h.synced = true

	resetTimerTo := -1
	if step.FetchQuestion && step.FetchIndex < len(h.quiz.Questions) {
		q := h.quiz.Questions[step.FetchIndex]
		h.question = &q
		if step.ResetProgress {
			h.answerShown = false
			h.armedIndex = -1
			resetTimerTo = h.quiz.TimeLimit(step.FetchIndex)
		}
	}
	if step.Freeze && !h.frozen {
		h.frozen = true
		h.answerShown = true
	}
	if step.Transition == TransitionUnexpected {
		log.Printf("host %s: ignoring transition: %s", next.ID, step.Note)
	}

	questionID := ""
	if h.question != nil {
		questionID = h.question.ID
	}
	h.roster = buildRoster(participants, questionID, next.CurrentQuestionIndex)

	// All-answered detection: arm exactly one scheduled advance per question.
	fire := false
	fireIndex := 0
	if h.autoAdvance && !h.frozen &&
		next.Status == domain.StatusActive && h.question != nil &&
		h.armedIndex != next.CurrentQuestionIndex &&
		AllAnswered(participants, h.question.ID, next.CurrentQuestionIndex) {
		h.armedIndex = next.CurrentQuestionIndex
		h.answerShown = true
		fire = true
		fireIndex = next.CurrentQuestionIndex
	}
	frozen := h.frozen
	h.mu.Unlock()

	if resetTimerTo >= 0 {
		h.timer.reset(resetTimerTo, nil)
	}
	if frozen {
		h.timer.stop()
	}
	if fire {
		t := time.AfterFunc(h.delay, func() { h.autoAdvanceFire(fireIndex) })
		h.mu.Lock()
		if h.advanceTimer != nil {
			h.advanceTimer.Stop()
		}
		h.advanceTimer = t
		h.mu.Unlock()
	}
}

func (h *HostController) autoAdvanceFire(index int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.mu.Lock()
	stale := h.frozen ||
		h.session.Status != domain.StatusActive ||
		h.session.CurrentQuestionIndex != index
	last := index >= len(h.quiz.Questions)-1
	h.mu.Unlock()
	if stale {
		return
	}

	var err error
	if last {
		err = h.EndGame(ctx)
	} else {
		err = h.RevealQuestion(ctx, index+1)
	}
	if err != nil {
		log.Printf("host: auto-advance from question %d: %v", index, err)
	}
}

// resync forces an out-of-band poll after a state conflict so the local view
// stops trusting stale state.
func (h *HostController) resync(ctx context.Context) {
	if err := h.poll.PollNow(ctx); err != nil {
		log.Printf("host: resync poll: %v", err)
	}
}
