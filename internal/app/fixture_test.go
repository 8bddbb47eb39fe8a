package app_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Warmup",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4"},
					{ID: "o3", Text: "5"},
				},
				CorrectOptionID: "o2",
				Points:          1,
			},
			{
				ID:   "q2",
				Text: "Which planet is known as the red planet?",
				Options: []domain.Option{
					{ID: "o1", Text: "Venus"},
					{ID: "o2", Text: "Mars"},
				},
				CorrectText: "Mars",
				Points:      2,
			},
		},
	}
}

func newQuizRepo(quizzes ...domain.Quiz) *memory.QuizRepository {
	byID := make(map[string]domain.Quiz, len(quizzes))
	for _, q := range quizzes {
		byID[q.ID] = q
	}
	return memory.NewQuizRepository(memory.NewStaticQuizLoader(byID), time.Minute)
}

func fastHostOptions() app.HostOptions {
	return app.HostOptions{
		PollInterval:     10 * time.Millisecond,
		AutoAdvanceDelay: 30 * time.Millisecond,
	}
}

func fastPlayerOptions() app.PlayerOptions {
	return app.PlayerOptions{PollInterval: 10 * time.Millisecond}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never held: %s", msg)
}

// flakyStore fails session reads on demand so tests can exercise degraded
// polling and recovery.
type flakyStore struct {
	app.Store
	failing atomic.Bool
}

func (f *flakyStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	if f.failing.Load() {
		return domain.Session{}, context.DeadlineExceeded
	}
	return f.Store.GetSession(ctx, id)
}
