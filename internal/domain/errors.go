package domain

import "errors"

var (
	// ErrInvalidPin is returned when no session resolves for a join code.
	ErrInvalidPin = errors.New("no session for that pin")
	// ErrSessionNotJoinable is returned when joining a completed session.
	ErrSessionNotJoinable = errors.New("session is no longer joinable")
	// ErrNoQuestions is returned when starting a game over an empty quiz.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrAlreadyAnswered indicates the participant already answered the question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrAlreadyEnded indicates the session has already completed.
	ErrAlreadyEnded = errors.New("session already ended")
	// ErrGameNotActive indicates the operation requires an active session.
	ErrGameNotActive = errors.New("game is not active")
	// ErrSessionNotFound is returned when a session ID resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a participant ID resolves to nothing.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionOutOfRange indicates a question index beyond the quiz.
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAnswerNotShown indicates an advance before revealing the answer.
	ErrAnswerNotShown = errors.New("answer not shown yet")
	// ErrConflict indicates a conditional store update lost against
	// authoritative state; callers should re-poll before retrying.
	ErrConflict = errors.New("stale session state")
)
