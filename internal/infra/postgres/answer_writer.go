package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// AnswerWriter is the capability that appends an answer and bumps the score
// in one atomic write. The duplicate guard lives in the database: the write
// only applies when no answer for the question is on record, and the score
// increment happens against the stored value, never a client-cached one.
type AnswerWriter interface {
	AppendAnswer(ctx context.Context, participantID string, ans domain.Answer, points int) (domain.ParticipantAnswer, error)
}

// DirectAnswerWriter runs the conditional UPDATE inline.
type DirectAnswerWriter struct {
	pool *pgxpool.Pool
}

func NewDirectAnswerWriter(pool *pgxpool.Pool) *DirectAnswerWriter {
	return &DirectAnswerWriter{pool: pool}
}

func (w *DirectAnswerWriter) AppendAnswer(ctx context.Context, participantID string, ans domain.Answer, points int) (domain.ParticipantAnswer, error) {
	payload, guard, err := answerArgs(ans)
	if err != nil {
		return domain.ParticipantAnswer{}, err
	}
	row := w.pool.QueryRow(ctx, `
		UPDATE participants
		   SET answers = answers || $2::jsonb,
		       score = score + $3
		 WHERE id = $1
		   AND NOT answers @> $4::jsonb
		RETURNING `+participantColumns, participantID, payload, points, guard)
	return resolveAppend(ctx, w.pool, participantID, row)
}

// RPCAnswerWriter calls the submit_answer SQL function instead of issuing the
// statement itself.
type RPCAnswerWriter struct {
	pool *pgxpool.Pool
}

func NewRPCAnswerWriter(pool *pgxpool.Pool) *RPCAnswerWriter {
	return &RPCAnswerWriter{pool: pool}
}

func (w *RPCAnswerWriter) AppendAnswer(ctx context.Context, participantID string, ans domain.Answer, points int) (domain.ParticipantAnswer, error) {
	payload, err := json.Marshal(ans)
	if err != nil {
		return domain.ParticipantAnswer{}, fmt.Errorf("marshal answer: %w", err)
	}
	row := w.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM submit_answer($1, $2::jsonb, $3)`,
		participantID, payload, points)
	return resolveAppend(ctx, w.pool, participantID, row)
}

// answerArgs builds the appended JSON array element and the containment guard
// that makes the update a no-op when the question was already answered.
func answerArgs(ans domain.Answer) (payload, guard []byte, err error) {
	payload, err = json.Marshal([]domain.Answer{ans})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal answer: %w", err)
	}
	guardObj := map[string]any{"questionIndex": ans.QuestionIndex}
	if ans.QuestionID != "" {
		guardObj = map[string]any{"questionId": ans.QuestionID}
	}
	guard, err = json.Marshal([]map[string]any{guardObj})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal guard: %w", err)
	}
	return payload, guard, nil
}

// resolveAppend disambiguates a zero-row write: a still-present participant
// means the duplicate guard rejected it.
func resolveAppend(ctx context.Context, pool *pgxpool.Pool, participantID string, row pgx.Row) (domain.ParticipantAnswer, error) {
	p, err := scanParticipant(row)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		var exists bool
		if checkErr := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM participants WHERE id=$1)`, participantID).Scan(&exists); checkErr != nil {
			return domain.ParticipantAnswer{}, fmt.Errorf("check participant: %w", checkErr)
		}
		if exists {
			return domain.ParticipantAnswer{}, domain.ErrAlreadyAnswered
		}
		return domain.ParticipantAnswer{}, domain.ErrParticipantNotFound
	}
	return p, err
}
