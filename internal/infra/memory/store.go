package memory

import (
	"context"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// Store is an in-memory implementation of app.Store, used for tests and for
// running the service without external backends. Conditional updates mirror
// the compare-and-swap semantics of the Redis and Postgres stores.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	pinIndex     map[string]string
	participants map[string]domain.ParticipantAnswer
	bySession    map[string][]string
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]domain.Session),
		pinIndex:     make(map[string]string),
		participants: make(map[string]domain.ParticipantAnswer),
		bySession:    make(map[string][]string),
	}
}

func (s *Store) CreateSession(_ context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	s.pinIndex[sess.Pin] = sess.ID
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) GetSessionByPin(_ context.Context, pin string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pinIndex[pin]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *Store) StartSession(_ context.Context, id string, at time.Time) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if sess.Status != domain.StatusWaiting {
		return domain.Session{}, domain.ErrConflict
	}
	sess.Status = domain.StatusActive
	sess.StartedAt = &at
	sess.CurrentQuestionIndex = 0
	s.sessions[id] = sess
	return sess, nil
}

func (s *Store) AdvanceSession(_ context.Context, id string, from, to int) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if sess.Status != domain.StatusActive || sess.CurrentQuestionIndex != from {
		return domain.Session{}, domain.ErrConflict
	}
	sess.CurrentQuestionIndex = to
	s.sessions[id] = sess
	return sess, nil
}

func (s *Store) EndSession(_ context.Context, id string, at time.Time) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if sess.Status != domain.StatusActive {
		return domain.Session{}, domain.ErrConflict
	}
	sess.Status = domain.StatusCompleted
	sess.EndedAt = &at
	s.sessions[id] = sess
	return sess, nil
}

func (s *Store) CreateParticipant(_ context.Context, p domain.ParticipantAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = copyParticipant(p)
	s.bySession[p.SessionID] = append(s.bySession[p.SessionID], p.ID)
	return nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (domain.ParticipantAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.ParticipantAnswer{}, domain.ErrParticipantNotFound
	}
	return copyParticipant(p), nil
}

func (s *Store) ListParticipants(_ context.Context, sessionID string) ([]domain.ParticipantAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	out := make([]domain.ParticipantAnswer, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyParticipant(s.participants[id]))
	}
	return out, nil
}

func (s *Store) FindParticipantByUser(_ context.Context, sessionID, userID string) (domain.ParticipantAnswer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.bySession[sessionID] {
		p := s.participants[id]
		if p.UserID != "" && p.UserID == userID {
			return copyParticipant(p), true, nil
		}
	}
	return domain.ParticipantAnswer{}, false, nil
}

func (s *Store) AppendAnswer(_ context.Context, participantID string, ans domain.Answer, points int) (domain.ParticipantAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ParticipantAnswer{}, domain.ErrParticipantNotFound
	}
	if _, dup := p.AnswerFor(ans.QuestionID, ans.QuestionIndex); dup {
		return domain.ParticipantAnswer{}, domain.ErrAlreadyAnswered
	}
	p.Answers = append(p.Answers, ans)
	p.Score += points
	s.participants[participantID] = p
	return copyParticipant(p), nil
}

func copyParticipant(p domain.ParticipantAnswer) domain.ParticipantAnswer {
	out := p
	out.Answers = append([]domain.Answer(nil), p.Answers...)
	return out
}
