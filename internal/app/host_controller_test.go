package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func joinParticipant(t *testing.T, store app.Store, sessionID, id, name string) {
	t.Helper()
	err := store.CreateParticipant(context.Background(), domain.ParticipantAnswer{
		ID:          id,
		SessionID:   sessionID,
		DisplayName: name,
		JoinedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("create participant: %v", err)
	}
}

func answerQuestion(t *testing.T, store app.Store, participantID, questionID string, index, points int) {
	t.Helper()
	_, err := store.AppendAnswer(context.Background(), participantID, domain.Answer{
		QuestionID:    questionID,
		QuestionIndex: index,
		OptionID:      "o2",
		Correct:       true,
		SubmittedAt:   time.Now(),
	}, points)
	if err != nil {
		t.Fatalf("append answer: %v", err)
	}
}

func TestHostGameLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	host, err := app.NewHost(ctx, store, newQuizRepo(testQuiz()), "quiz-1", "h1", fastHostOptions())
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer host.Stop()
	host.Run(ctx)

	if len(host.Pin()) != 6 {
		t.Fatalf("expected 6-digit pin, got %q", host.Pin())
	}
	if got := host.View().Session.Status; got != domain.StatusWaiting {
		t.Fatalf("new session should be waiting, got %s", got)
	}
	if err := host.ShowAnswer(); !errors.Is(err, domain.ErrGameNotActive) {
		t.Fatalf("show answer before start: expected ErrGameNotActive, got %v", err)
	}

	joinParticipant(t, store, host.SessionID(), "p1", "Alice")
	eventually(t, "participant appears in roster", func() bool {
		return len(host.View().Roster) == 1
	})

	if err := host.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}
	view := host.View()
	if view.Session.Status != domain.StatusActive || view.Question == nil || view.Question.ID != "q1" {
		t.Fatalf("start should reveal question q1 immediately, got %+v", view)
	}
	if view.AnswerShown {
		t.Fatalf("answer must not be shown on reveal")
	}

	if err := host.Advance(ctx); !errors.Is(err, domain.ErrAnswerNotShown) {
		t.Fatalf("advance before showing answer: expected ErrAnswerNotShown, got %v", err)
	}
	if err := host.ShowAnswer(); err != nil {
		t.Fatalf("show answer: %v", err)
	}
	if err := host.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	view = host.View()
	if view.Question == nil || view.Question.ID != "q2" || view.Session.CurrentQuestionIndex != 1 {
		t.Fatalf("expected question q2 at index 1, got %+v", view)
	}
	if view.AnswerShown {
		t.Fatalf("advance must reset the answer-shown flag")
	}

	// Advancing past the last question ends the game without a prior reveal.
	if err := host.Advance(ctx); err != nil {
		t.Fatalf("final advance: %v", err)
	}
	view = host.View()
	if view.Session.Status != domain.StatusCompleted || !view.Frozen || !view.AnswerShown {
		t.Fatalf("expected frozen final results, got %+v", view)
	}

	if err := host.StartGame(ctx); !errors.Is(err, domain.ErrAlreadyEnded) {
		t.Fatalf("start after end: expected ErrAlreadyEnded, got %v", err)
	}
	if err := host.Advance(ctx); !errors.Is(err, domain.ErrAlreadyEnded) {
		t.Fatalf("advance after end: expected ErrAlreadyEnded, got %v", err)
	}
}

func TestStartGameWithoutQuestions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	host, err := app.NewHost(ctx, store, newQuizRepo(domain.Quiz{ID: "empty"}), "empty", "h1", fastHostOptions())
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer host.Stop()

	if err := host.StartGame(ctx); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
	if got := host.View().Session.Status; got != domain.StatusWaiting {
		t.Fatalf("session should stay waiting, got %s", got)
	}
}

func TestStartGameTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	host, err := app.NewHost(ctx, store, newQuizRepo(testQuiz()), "quiz-1", "h1", fastHostOptions())
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer host.Stop()

	if err := host.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := host.StartGame(ctx); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second start: expected ErrConflict, got %v", err)
	}
}

func TestHostObservesExternalEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	host, err := app.NewHost(ctx, store, newQuizRepo(testQuiz()), "quiz-1", "h1", fastHostOptions())
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer host.Stop()
	host.Run(ctx)

	if err := host.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if _, err := store.EndSession(ctx, host.SessionID(), time.Now()); err != nil {
		t.Fatalf("end session: %v", err)
	}

	eventually(t, "host freezes on externally ended session", func() bool {
		view := host.View()
		return view.Frozen && view.Session.Status == domain.StatusCompleted
	})
	if err := host.Advance(ctx); !errors.Is(err, domain.ErrAlreadyEnded) {
		t.Fatalf("advance after external end: expected ErrAlreadyEnded, got %v", err)
	}
}

func TestAutoAdvanceFiresOncePerQuestion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	host, err := app.NewHost(ctx, store, newQuizRepo(testQuiz()), "quiz-1", "h1", fastHostOptions())
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer host.Stop()
	host.SetAutoAdvance(true)
	host.Run(ctx)

	joinParticipant(t, store, host.SessionID(), "p1", "Alice")
	joinParticipant(t, store, host.SessionID(), "p2", "Bob")

	if err := host.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}

	answerQuestion(t, store, "p1", "q1", 0, 1)
	answerQuestion(t, store, "p2", "q1", 0, 1)

	eventually(t, "all-answered advances to question 2", func() bool {
		view := host.View()
		return view.Session.CurrentQuestionIndex == 1 && view.Question != nil && view.Question.ID == "q2"
	})

	// No one has answered q2 yet, so nothing further may fire.
	time.Sleep(150 * time.Millisecond)
	view := host.View()
	if view.Session.CurrentQuestionIndex != 1 || view.Session.Status != domain.StatusActive {
		t.Fatalf("auto-advance fired again without answers, got %+v", view.Session)
	}

	// Answering the final question auto-ends the game.
	answerQuestion(t, store, "p1", "q2", 1, 2)
	answerQuestion(t, store, "p2", "q2", 1, 2)
	eventually(t, "all-answered on the last question ends the game", func() bool {
		return host.View().Session.Status == domain.StatusCompleted
	})
}

func TestHostDegradedFlagClearsOnRecovery(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: memory.NewStore()}
	host, err := app.NewHost(ctx, flaky, newQuizRepo(testQuiz()), "quiz-1", "h1", fastHostOptions())
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer host.Stop()
	host.Run(ctx)

	eventually(t, "healthy poll is not degraded", func() bool {
		return !host.View().Degraded
	})

	flaky.failing.Store(true)
	eventually(t, "failing poll flags degraded", func() bool {
		return host.View().Degraded
	})

	flaky.failing.Store(false)
	eventually(t, "recovered poll clears degraded", func() bool {
		return !host.View().Degraded
	})
}
