package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, time.Minute), mr
}

func TestSessionRoundTripAndPinLookup(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	sess := domain.Session{ID: "s1", QuizID: "quiz-1", Pin: "123456", Status: domain.StatusWaiting}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !mr.Exists("session:s1") || !mr.Exists("session:pin:123456") {
		t.Fatalf("expected session and pin keys to be set")
	}

	got, err := store.GetSessionByPin(ctx, "123456")
	if err != nil || got.ID != "s1" {
		t.Fatalf("pin lookup: %v, %+v", err, got)
	}
	if _, err := store.GetSessionByPin(ctx, "999999"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("unknown pin: expected ErrSessionNotFound, got %v", err)
	}
}

func TestConditionalSessionUpdates(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	sess := domain.Session{ID: "s1", Pin: "123456", Status: domain.StatusWaiting}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	started, err := store.StartSession(ctx, "s1", time.Now())
	if err != nil || started.Status != domain.StatusActive {
		t.Fatalf("start: %v, %+v", err, started)
	}
	if _, err := store.StartSession(ctx, "s1", time.Now()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second start: expected ErrConflict, got %v", err)
	}

	if _, err := store.AdvanceSession(ctx, "s1", 2, 3); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale advance: expected ErrConflict, got %v", err)
	}
	advanced, err := store.AdvanceSession(ctx, "s1", 0, 1)
	if err != nil || advanced.CurrentQuestionIndex != 1 {
		t.Fatalf("advance: %v, %+v", err, advanced)
	}

	ended, err := store.EndSession(ctx, "s1", time.Now())
	if err != nil || ended.Status != domain.StatusCompleted {
		t.Fatalf("end: %v, %+v", err, ended)
	}
	if _, err := store.EndSession(ctx, "s1", time.Now()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second end: expected ErrConflict, got %v", err)
	}
}

func TestAppendAnswerGuardsDuplicates(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	p := domain.ParticipantAnswer{ID: "p1", SessionID: "s1", DisplayName: "Alice", UserID: "u1"}
	if err := store.CreateParticipant(ctx, p); err != nil {
		t.Fatalf("create participant: %v", err)
	}

	ans := domain.Answer{QuestionID: "q1", QuestionIndex: 0, OptionID: "o2", Correct: true}
	updated, err := store.AppendAnswer(ctx, "p1", ans, 2)
	if err != nil || updated.Score != 2 || len(updated.Answers) != 1 {
		t.Fatalf("append: %v, %+v", err, updated)
	}

	if _, err := store.AppendAnswer(ctx, "p1", ans, 2); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("duplicate: expected ErrAlreadyAnswered, got %v", err)
	}
	stored, err := store.GetParticipant(ctx, "p1")
	if err != nil || stored.Score != 2 || len(stored.Answers) != 1 {
		t.Fatalf("stored state changed on duplicate: %v, %+v", err, stored)
	}

	if _, err := store.AppendAnswer(ctx, "ghost", ans, 1); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestRosterSkipsExpiredParticipants(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	_ = store.CreateParticipant(ctx, domain.ParticipantAnswer{ID: "p1", SessionID: "s1", UserID: "u1"})
	_ = store.CreateParticipant(ctx, domain.ParticipantAnswer{ID: "p2", SessionID: "s1"})

	listed, err := store.ListParticipants(ctx, "s1")
	if err != nil || len(listed) != 2 {
		t.Fatalf("list: %v, %d", err, len(listed))
	}

	found, ok, err := store.FindParticipantByUser(ctx, "s1", "u1")
	if err != nil || !ok || found.ID != "p1" {
		t.Fatalf("find by user: %v %v %+v", err, ok, found)
	}

	// The roster set can outlive an expired participant value.
	mr.Del("participant:p2")
	listed, err = store.ListParticipants(ctx, "s1")
	if err != nil || len(listed) != 1 || listed[0].ID != "p1" {
		t.Fatalf("expected expired entry skipped: %v, %+v", err, listed)
	}
}
