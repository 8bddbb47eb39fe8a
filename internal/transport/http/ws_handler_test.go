package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func fixtureQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
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
		},
	}
}

func TestWebSocketAnswerFlow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(fixtureQuiz()), time.Minute)

	opts := app.HostOptions{PollInterval: 10 * time.Millisecond}
	host, err := app.NewHost(ctx, store, quizRepo, "quiz-1", "h1", opts)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	defer host.Stop()
	host.Run(ctx)
	if err := host.StartGame(ctx); err != nil {
		t.Fatalf("start game: %v", err)
	}

	wsHandler := NewPlayerWSHandler(store, quizRepo, app.PlayerOptions{PollInterval: 10 * time.Millisecond})
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?pin=" + host.Pin() + "&userId=u1&name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msgType, payload := readNext(conn, t, "joined")
	if msgType != "joined" || payload["participantId"] == "" {
		t.Fatalf("expected joined with participant id, got %s %+v", msgType, payload)
	}

	// The first state snapshot carries the question with answer fields removed.
	_, payload = readNext(conn, t, "state")
	question, ok := payload["question"].(map[string]any)
	if !ok {
		t.Fatalf("expected question in state payload, got %+v", payload)
	}
	if question["id"] != "q1" {
		t.Fatalf("expected question q1, got %+v", question)
	}
	if _, leaked := question["correctOptionId"]; leaked {
		t.Fatalf("state payload must not leak the correct option")
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"optionId": "o2"},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	// State snapshots interleave with the result; scan for the result.
	var result map[string]any
	for i := 0; i < 10 && result == nil; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == "answerResult" {
			result = payload
		}
	}
	if result == nil {
		t.Fatalf("never received answerResult")
	}
	if result["correct"] != true || result["totalScore"] != float64(1) {
		t.Fatalf("expected correct answer worth 1 point, got %+v", result)
	}
}

func TestWebSocketRejectsBadJoin(t *testing.T) {
	store := memory.NewStore()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(fixtureQuiz()), time.Minute)
	wsHandler := NewPlayerWSHandler(store, quizRepo, app.PlayerOptions{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws?pin=123456")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing name: expected 400, got %d", resp.StatusCode)
	}

	// A well-formed upgrade against an unknown pin gets an error frame.
	u := "ws" + server.URL[len("http"):] + "/ws?pin=000000&name=Alice"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	typ, payload := readNext(conn, t, "error")
	if typ != "error" || payload["message"] == "" {
		t.Fatalf("expected error frame, got %s %+v", typ, payload)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
