package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// casRetries bounds optimistic-lock retries before surfacing a conflict.
const casRetries = 5

// Store is a Redis implementation of app.Store. Sessions and participants
// are JSON values; conditional updates run under WATCH so a concurrent write
// to the same key aborts the transaction instead of clobbering it — that is
// what keeps a player's submit safe against their own background poll.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.ID), data, s.ttl)
		pipe.Set(ctx, pinKey(sess.Pin), sess.ID, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *Store) GetSessionByPin(ctx context.Context, pin string) (domain.Session, error) {
	id, err := s.client.Get(ctx, pinKey(pin)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve pin: %w", err)
	}
	return s.GetSession(ctx, id)
}

func (s *Store) StartSession(ctx context.Context, id string, at time.Time) (domain.Session, error) {
	return s.updateSession(ctx, id, func(sess *domain.Session) error {
		if sess.Status != domain.StatusWaiting {
			return domain.ErrConflict
		}
		sess.Status = domain.StatusActive
		sess.StartedAt = &at
		sess.CurrentQuestionIndex = 0
		return nil
	})
}

func (s *Store) AdvanceSession(ctx context.Context, id string, from, to int) (domain.Session, error) {
	return s.updateSession(ctx, id, func(sess *domain.Session) error {
		if sess.Status != domain.StatusActive || sess.CurrentQuestionIndex != from {
			return domain.ErrConflict
		}
		sess.CurrentQuestionIndex = to
		return nil
	})
}

func (s *Store) EndSession(ctx context.Context, id string, at time.Time) (domain.Session, error) {
	return s.updateSession(ctx, id, func(sess *domain.Session) error {
		if sess.Status != domain.StatusActive {
			return domain.ErrConflict
		}
		sess.Status = domain.StatusCompleted
		sess.EndedAt = &at
		return nil
	})
}

func (s *Store) CreateParticipant(ctx context.Context, p domain.ParticipantAnswer) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, participantKey(p.ID), data, s.ttl)
		pipe.SAdd(ctx, rosterKey(p.SessionID), p.ID)
		pipe.Expire(ctx, rosterKey(p.SessionID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, id string) (domain.ParticipantAnswer, error) {
	raw, err := s.client.Get(ctx, participantKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ParticipantAnswer{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.ParticipantAnswer{}, fmt.Errorf("get participant: %w", err)
	}
	var p domain.ParticipantAnswer
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.ParticipantAnswer{}, fmt.Errorf("unmarshal participant: %w", err)
	}
	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.ParticipantAnswer, error) {
	ids, err := s.client.SMembers(ctx, rosterKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = participantKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	out := make([]domain.ParticipantAnswer, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired entry still referenced by the roster set
		}
		var p domain.ParticipantAnswer
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) FindParticipantByUser(ctx context.Context, sessionID, userID string) (domain.ParticipantAnswer, bool, error) {
	participants, err := s.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.ParticipantAnswer{}, false, err
	}
	for _, p := range participants {
		if p.UserID != "" && p.UserID == userID {
			return p, true, nil
		}
	}
	return domain.ParticipantAnswer{}, false, nil
}

func (s *Store) AppendAnswer(ctx context.Context, participantID string, ans domain.Answer, points int) (domain.ParticipantAnswer, error) {
	key := participantKey(participantID)
	var out domain.ParticipantAnswer

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return domain.ErrParticipantNotFound
			}
			if err != nil {
				return err
			}
			var p domain.ParticipantAnswer
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("unmarshal participant: %w", err)
			}
			if _, dup := p.AnswerFor(ans.QuestionID, ans.QuestionIndex); dup {
				return domain.ErrAlreadyAnswered
			}
			p.Answers = append(p.Answers, ans)
			p.Score += points

			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.ttl)
				return nil
			})
			if err == nil {
				out = p
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue // lost the race, re-read and retry
		}
		if err != nil {
			return domain.ParticipantAnswer{}, err
		}
		return out, nil
	}
	return domain.ParticipantAnswer{}, domain.ErrConflict
}

func (s *Store) updateSession(ctx context.Context, id string, mutate func(*domain.Session) error) (domain.Session, error) {
	key := sessionKey(id)
	var out domain.Session

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return domain.ErrSessionNotFound
			}
			if err != nil {
				return err
			}
			var sess domain.Session
			if err := json.Unmarshal(raw, &sess); err != nil {
				return fmt.Errorf("unmarshal session: %w", err)
			}
			if err := mutate(&sess); err != nil {
				return err
			}
			data, err := json.Marshal(sess)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.ttl)
				return nil
			})
			if err == nil {
				out = sess
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		return out, nil
	}
	return domain.Session{}, domain.ErrConflict
}

func sessionKey(id string) string       { return "session:" + id }
func pinKey(pin string) string          { return "session:pin:" + pin }
func participantKey(id string) string   { return "participant:" + id }
func rosterKey(sessionID string) string { return "session:" + sessionID + ":roster" }
