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

// PlayerOptions tunes a player controller. Zero values fall back to
// production defaults.
type PlayerOptions struct {
	PollInterval  time.Duration
	CountdownTick time.Duration
	// DefaultTimeLimit (seconds) backs quizzes that declare none of their own.
	DefaultTimeLimit int
	Clock            func() time.Time
}

// PlayerView is one player's reconciled view of the game.
type PlayerView struct {
	Session        domain.Session           `json:"session"`
	Participant    domain.ParticipantAnswer `json:"participant"`
	Question       *domain.Question         `json:"question,omitempty"`
	TimeLeft       int                      `json:"timeLeft"`
	Answered       bool                     `json:"answered"`
	Selected       string                   `json:"selected,omitempty"`
	Frozen         bool                     `json:"frozen"`
	TotalQuestions int                      `json:"totalQuestions"`
	Roster         []domain.RosterEntry     `json:"roster"`
	Degraded       bool                     `json:"degraded"`
}

// PlayerController joins a session, observes host-driven transitions through
// its own poll of the store, submits at most one answer per question and
// tracks its running score plus the peer roster.
type PlayerController struct {
	store   Store
	clock   func() time.Time
	poll    *poller.Poller
	timer   *countdown
	cadence time.Duration

	mu        sync.Mutex
	quiz      domain.Quiz
	self      domain.ParticipantAnswer
	session   domain.Session
	synced    bool
	question  *domain.Question
	answered  bool
	selected  string // submitted or tentatively selected option id
	tentative string // unsubmitted selection, auto-submitted on timeout
	frozen    bool
	roster    []domain.RosterEntry
	stopped   bool
	updates   chan PlayerView
}

// Join resolves the session by PIN and registers (or, for an authenticated
// identity that already joined, reuses) a participant. Rejoining with the
// same user never creates a second participant row; anonymous joins always
// do. Joining a completed session fails with ErrSessionNotJoinable.
func Join(ctx context.Context, store Store, quizzes QuizRepository, pin, displayName, userID string, opts PlayerOptions) (*PlayerController, error) {
	session, err := store.GetSessionByPin(ctx, pin)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidPin
		}
		return nil, err
	}
	if session.Status == domain.StatusCompleted {
		return nil, domain.ErrSessionNotJoinable
	}

	quiz, err := quizzes.GetQuiz(ctx, session.QuizID)
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

	var self domain.ParticipantAnswer
	if userID != "" {
		existing, ok, err := store.FindParticipantByUser(ctx, session.ID, userID)
		if err != nil {
			return nil, err
		}
		if ok {
			self = existing
		}
	}
	if self.ID == "" {
		self = domain.ParticipantAnswer{
			ID:          uuid.NewString(),
			SessionID:   session.ID,
			UserID:      userID,
			DisplayName: displayName,
			JoinedAt:    clock(),
		}
		if err := store.CreateParticipant(ctx, self); err != nil {
			return nil, fmt.Errorf("create participant: %w", err)
		}
	}

	pc := &PlayerController{
		store:   store,
		clock:   clock,
		poll:    poller.New(),
		timer:   newCountdown(opts.CountdownTick),
		cadence: cadence,
		quiz:    quiz,
		self:    self,
		updates: make(chan PlayerView, 8),
	}
	// Adopt the join-time snapshot so a reload mid-game resumes on the
	// current question with any previous answer reconciled.
	pc.apply(session, []domain.ParticipantAnswer{self})
	return pc, nil
}

// Run starts the background poll. It returns immediately.
func (pc *PlayerController) Run(ctx context.Context) {
	pc.poll.Start(ctx, pc.tick, pc.cadence, true)
}

// Stop halts polling and the countdown and closes the updates channel.
// In-flight store calls complete but their results are discarded.
func (pc *PlayerController) Stop() {
	pc.poll.Stop()
	pc.timer.stop()
	pc.mu.Lock()
	if !pc.stopped {
		pc.stopped = true
		close(pc.updates)
	}
	pc.mu.Unlock()
}

// Updates streams a view snapshot after every applied tick and acknowledged
// submit. Stale snapshots are dropped when the consumer lags.
func (pc *PlayerController) Updates() <-chan PlayerView {
	return pc.updates
}

// ParticipantID returns this player's participant id.
func (pc *PlayerController) ParticipantID() string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.self.ID
}

// View returns a copy of the current reconciled player view.
func (pc *PlayerController) View() PlayerView {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.viewLocked()
}

func (pc *PlayerController) viewLocked() PlayerView {
	view := PlayerView{
		Session:        pc.session,
		Participant:    pc.self,
		TimeLeft:       pc.timer.left(),
		Answered:       pc.answered,
		Selected:       pc.selected,
		Frozen:         pc.frozen,
		TotalQuestions: len(pc.quiz.Questions),
		Degraded:       pc.poll.LastError() != nil,
	}
	if pc.question != nil {
		q := *pc.question
		view.Question = &q
	}
	view.Roster = append(view.Roster, pc.roster...)
	return view
}

// Select records a tentative choice without submitting it. When the countdown
// expires the tentative selection, if any, is submitted automatically.
func (pc *PlayerController) Select(optionID string) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.question == nil || pc.frozen {
		return domain.ErrGameNotActive
	}
	if pc.answered {
		return domain.ErrAlreadyAnswered
	}
	pc.tentative = optionID
	pc.selected = optionID
	return nil
}

// SubmitAnswer scores the chosen option against the current question and
// appends the answer with a single conditional store update. The at-most-one
// guard is enforced by the store, so a submit racing the background poll (or
// a second tab) cannot double-apply; a transient store failure applies
// nothing and the same submission can be retried.
func (pc *PlayerController) SubmitAnswer(ctx context.Context, optionID string) error {
	pc.mu.Lock()
	if pc.frozen || pc.session.Status != domain.StatusActive || pc.question == nil {
		pc.mu.Unlock()
		return domain.ErrGameNotActive
	}
	if pc.answered {
		pc.mu.Unlock()
		pc.resync(ctx)
		return domain.ErrAlreadyAnswered
	}
	question := *pc.question
	index := pc.session.CurrentQuestionIndex
	participantID := pc.self.ID
	pc.mu.Unlock()

	var chosen *domain.Option
	for i := range question.Options {
		if question.Options[i].ID == optionID {
			chosen = &question.Options[i]
			break
		}
	}
	if chosen == nil {
		return domain.ErrOptionNotFound
	}

	correct := IsCorrect(question, *chosen)
	points := 0
	if correct {
		points = Points(question)
	}
	answer := domain.Answer{
		QuestionID:    question.ID,
		QuestionIndex: index,
		OptionID:      chosen.ID,
		OptionText:    chosen.Text,
		Correct:       correct,
		SubmittedAt:   pc.clock(),
	}

	updated, err := pc.store.AppendAnswer(ctx, participantID, answer, points)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyAnswered) {
			pc.resync(ctx)
		}
		return err
	}

	pc.mu.Lock()
	pc.self = updated
	pc.answered = true
	pc.selected = chosen.ID
	pc.tentative = ""
	view := pc.viewLocked()
	pc.mu.Unlock()

	pc.timer.stop()
	pc.push(view)
	return nil
}

func (pc *PlayerController) tick(ctx context.Context) error {
	pc.mu.Lock()
	id := pc.session.ID
	pc.mu.Unlock()

	next, err := pc.store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	participants, err := pc.store.ListParticipants(ctx, id)
	if err != nil {
		return fmt.Errorf("refresh participants: %w", err)
	}
	pc.apply(next, participants)
	return nil
}

func (pc *PlayerController) apply(next domain.Session, participants []domain.ParticipantAnswer) {
	pc.mu.Lock()

	var prev *domain.Session
	if pc.synced {
		snapshot := pc.session
		prev = &snapshot
	}
	step := Converge(prev, next)
	pc.session = next
	pc.synced = true

	// Refresh own record from the authoritative snapshot before reconciling.
	for _, p := range participants {
		if p.ID == pc.self.ID {
			pc.self = p
			break
		}
	}

	resetTimerTo := -1
	if step.FetchQuestion && step.FetchIndex < len(pc.quiz.Questions) {
		q := pc.quiz.Questions[step.FetchIndex]
		pc.question = &q
		if step.ResetProgress {
			pc.answered = false
			pc.selected = ""
			pc.tentative = ""
		}
		// Self-answer reconciliation: an answer already on record marks the
		// question answered and restores the chosen option, so a reload
		// cannot submit twice.
		if a, ok := pc.self.AnswerFor(q.ID, step.FetchIndex); ok {
			pc.answered = true
			pc.selected = a.OptionID
			pc.tentative = ""
		}
		if !pc.answered {
			resetTimerTo = pc.quiz.TimeLimit(step.FetchIndex)
		}
	}
	if step.Freeze {
		pc.frozen = true
	}
	if step.Transition == TransitionUnexpected {
		log.Printf("player %s: ignoring transition: %s", pc.self.ID, step.Note)
	}

	// A submit from another tab of the same participant shows up here first.
	stopTimer := false
	if pc.question != nil && !pc.answered {
		if a, ok := pc.self.AnswerFor(pc.question.ID, next.CurrentQuestionIndex); ok {
			pc.answered = true
			pc.selected = a.OptionID
			pc.tentative = ""
			stopTimer = true
		}
	}

	questionID := ""
	if pc.question != nil {
		questionID = pc.question.ID
	}
	pc.roster = buildRoster(participants, questionID, next.CurrentQuestionIndex)

	frozen := pc.frozen
	view := pc.viewLocked()
	pc.mu.Unlock()

	if resetTimerTo >= 0 && !frozen {
		pc.timer.reset(resetTimerTo, pc.onTimeout)
	} else if stopTimer || frozen {
		pc.timer.stop()
	}
	pc.push(view)
}

// onTimeout fires when the countdown hits zero: a tentative selection is
// submitted, no selection leaves the question unanswered on purpose.
func (pc *PlayerController) onTimeout() {
	pc.mu.Lock()
	tentative := pc.tentative
	answered := pc.answered
	pc.mu.Unlock()
	if answered || tentative == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pc.SubmitAnswer(ctx, tentative); err != nil {
		log.Printf("player: auto-submit on timeout: %v", err)
	}
}

func (pc *PlayerController) resync(ctx context.Context) {
	if err := pc.poll.PollNow(ctx); err != nil {
		log.Printf("player: resync poll: %v", err)
	}
}

// push hands the latest view to the consumer, dropping a stale snapshot
// instead of blocking when it lags.
func (pc *PlayerController) push(view PlayerView) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.stopped {
		return
	}
	select {
	case pc.updates <- view:
	default:
		select {
		case <-pc.updates:
		default:
		}
		select {
		case pc.updates <- view:
		default:
		}
	}
}
