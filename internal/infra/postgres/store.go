package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// AnswerStrategy selects how answer submissions reach Postgres.
type AnswerStrategy string

const (
	// AnswerDirect issues the conditional UPDATE inline.
	AnswerDirect AnswerStrategy = "direct"
	// AnswerRPC calls the submit_answer SQL function installed by the
	// migrations. Both paths have identical semantics; the split exists so
	// deployments can choose explicitly instead of falling back on error.
	AnswerRPC AnswerStrategy = "rpc"
)

// Store is a pgx implementation of app.Store. Session transitions are single
// conditional UPDATEs (status/index in the WHERE clause), so a stale writer
// affects zero rows and gets a conflict instead of clobbering newer state.
type Store struct {
	pool    *pgxpool.Pool
	answers AnswerWriter
}

func NewStore(pool *pgxpool.Pool, strategy AnswerStrategy) *Store {
	var writer AnswerWriter
	switch strategy {
	case AnswerRPC:
		writer = &RPCAnswerWriter{pool: pool}
	default:
		writer = &DirectAnswerWriter{pool: pool}
	}
	return &Store{pool: pool, answers: writer}
}

const sessionColumns = `id, quiz_id, host_id, pin, status, current_question_index, created_at, started_at, ended_at`

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, quiz_id, host_id, pin, status, current_question_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, sess.QuizID, sess.HostID, sess.Pin, string(sess.Status), sess.CurrentQuestionIndex, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id)
	return scanSession(row)
}

func (s *Store) GetSessionByPin(ctx context.Context, pin string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE pin=$1`, pin)
	return scanSession(row)
}

func (s *Store) StartSession(ctx context.Context, id string, at time.Time) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE sessions
		   SET status='active', started_at=$2, current_question_index=0
		 WHERE id=$1 AND status='waiting'
		RETURNING `+sessionColumns, id, at)
	return s.scanConditional(ctx, id, row)
}

func (s *Store) AdvanceSession(ctx context.Context, id string, from, to int) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE sessions
		   SET current_question_index=$3
		 WHERE id=$1 AND status='active' AND current_question_index=$2
		RETURNING `+sessionColumns, id, from, to)
	return s.scanConditional(ctx, id, row)
}

func (s *Store) EndSession(ctx context.Context, id string, at time.Time) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE sessions
		   SET status='completed', ended_at=$2
		 WHERE id=$1 AND status='active'
		RETURNING `+sessionColumns, id, at)
	return s.scanConditional(ctx, id, row)
}

// scanConditional distinguishes "row gone" from "precondition failed" when a
// conditional UPDATE matched nothing.
func (s *Store) scanConditional(ctx context.Context, id string, row pgx.Row) (domain.Session, error) {
	sess, err := scanSession(row)
	if errors.Is(err, domain.ErrSessionNotFound) {
		if _, getErr := s.GetSession(ctx, id); getErr != nil {
			return domain.Session{}, getErr
		}
		return domain.Session{}, domain.ErrConflict
	}
	return sess, err
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var sess domain.Session
	var status string
	err := row.Scan(&sess.ID, &sess.QuizID, &sess.HostID, &sess.Pin, &status,
		&sess.CurrentQuestionIndex, &sess.CreatedAt, &sess.StartedAt, &sess.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.Status = domain.SessionStatus(status)
	return sess, nil
}

func (s *Store) CreateParticipant(ctx context.Context, p domain.ParticipantAnswer) error {
	answers, err := json.Marshal(emptyIfNil(p.Answers))
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO participants (id, session_id, user_id, display_name, score, answers, joined_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
		p.ID, p.SessionID, p.UserID, p.DisplayName, p.Score, answers, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

const participantColumns = `id, session_id, COALESCE(user_id, ''), display_name, score, answers, joined_at`

func (s *Store) GetParticipant(ctx context.Context, id string) (domain.ParticipantAnswer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id=$1`, id)
	return scanParticipant(row)
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.ParticipantAnswer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+participantColumns+` FROM participants
		 WHERE session_id=$1 ORDER BY joined_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.ParticipantAnswer
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) FindParticipantByUser(ctx context.Context, sessionID, userID string) (domain.ParticipantAnswer, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM participants
		 WHERE session_id=$1 AND user_id=$2`, sessionID, userID)
	p, err := scanParticipant(row)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return domain.ParticipantAnswer{}, false, nil
	}
	if err != nil {
		return domain.ParticipantAnswer{}, false, err
	}
	return p, true, nil
}

func (s *Store) AppendAnswer(ctx context.Context, participantID string, ans domain.Answer, points int) (domain.ParticipantAnswer, error) {
	return s.answers.AppendAnswer(ctx, participantID, ans, points)
}

func scanParticipant(row pgx.Row) (domain.ParticipantAnswer, error) {
	var p domain.ParticipantAnswer
	var answers []byte
	err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.DisplayName, &p.Score, &answers, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ParticipantAnswer{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.ParticipantAnswer{}, fmt.Errorf("scan participant: %w", err)
	}
	if err := json.Unmarshal(answers, &p.Answers); err != nil {
		return domain.ParticipantAnswer{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	return p, nil
}

func emptyIfNil(answers []domain.Answer) []domain.Answer {
	if answers == nil {
		return []domain.Answer{}
	}
	return answers
}
