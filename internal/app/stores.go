package app

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"
)

// SessionStore is the shared-state view of live sessions. Mutations are
// conditional: they only apply when the stored row still satisfies the
// caller's precondition, and return domain.ErrConflict otherwise. The session
// row is single-writer (host) / multi-reader (every poll).
type SessionStore interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	GetSessionByPin(ctx context.Context, pin string) (domain.Session, error)
	// StartSession flips waiting -> active, records the start time and resets
	// the question index to zero.
	StartSession(ctx context.Context, id string, at time.Time) (domain.Session, error)
	// AdvanceSession moves the question index from -> to while active.
	AdvanceSession(ctx context.Context, id string, from, to int) (domain.Session, error)
	// EndSession flips active -> completed and records the end time.
	EndSession(ctx context.Context, id string, at time.Time) (domain.Session, error)
}

// ParticipantStore holds each joined player's identity, score and answer
// history. Every participant row is single-writer (its owning player).
type ParticipantStore interface {
	CreateParticipant(ctx context.Context, p domain.ParticipantAnswer) error
	GetParticipant(ctx context.Context, id string) (domain.ParticipantAnswer, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.ParticipantAnswer, error)
	FindParticipantByUser(ctx context.Context, sessionID, userID string) (domain.ParticipantAnswer, bool, error)
	// AppendAnswer atomically appends ans and adds points to the stored score,
	// but only if no answer for the same question exists yet; it returns
	// domain.ErrAlreadyAnswered otherwise. The increment is applied against
	// the stored score, never a caller-cached one, so a submit racing the
	// player's own background poll cannot lose an update.
	AppendAnswer(ctx context.Context, participantID string, ans domain.Answer, points int) (domain.ParticipantAnswer, error)
}

// Store is the full shared-state surface both controllers poll and mutate.
type Store interface {
	SessionStore
	ParticipantStore
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}
