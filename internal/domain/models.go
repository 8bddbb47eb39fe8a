package domain

import "time"

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

// Session is one live instance of a quiz being played. It is exclusively
// mutated by the host; players only ever read it.
type Session struct {
	ID                   string        `json:"id"`
	QuizID               string        `json:"quizId"`
	HostID               string        `json:"hostId"`
	Pin                  string        `json:"pin"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	CreatedAt            time.Time     `json:"createdAt"`
	StartedAt            *time.Time    `json:"startedAt,omitempty"`
	EndedAt              *time.Time    `json:"endedAt,omitempty"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question models an MCQ question. The correct answer may be recorded by
// option ID, by display text, or both; authoring is not consistent about
// which form it writes, so scoring accepts either.
type Question struct {
	ID              string   `json:"id"`
	Ordinal         int      `json:"ordinal"`
	Text            string   `json:"text"`
	Options         []Option `json:"options"`
	CorrectOptionID string   `json:"correctOptionId,omitempty"`
	CorrectText     string   `json:"correctText,omitempty"`
	Points          int      `json:"points"` // defaults to 1 if zero
	TimeLimitSec    int      `json:"timeLimitSec,omitempty"`
}

// Quiz is an ordered collection of questions. Immutable once a session starts.
type Quiz struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"ownerId,omitempty"`
	Title               string     `json:"title,omitempty"`
	DefaultTimeLimitSec int        `json:"defaultTimeLimitSec,omitempty"`
	Questions           []Question `json:"questions"`
}

// TimeLimit returns the effective limit for the question at index, falling
// back to the quiz default when the question declares none.
func (q Quiz) TimeLimit(index int) int {
	if index < 0 || index >= len(q.Questions) {
		return q.DefaultTimeLimitSec
	}
	if limit := q.Questions[index].TimeLimitSec; limit > 0 {
		return limit
	}
	return q.DefaultTimeLimitSec
}

// Answer is one submitted answer, at most one per (participant, question).
type Answer struct {
	QuestionID    string    `json:"questionId"`
	QuestionIndex int       `json:"questionIndex"`
	OptionID      string    `json:"optionId"`
	OptionText    string    `json:"optionText,omitempty"`
	Correct       bool      `json:"correct"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// ParticipantAnswer is a joined player's identity within a session plus their
// accumulated score and answer history. Score is redundant with the history
// (sum of points for correct answers) and kept for fast reads.
type ParticipantAnswer struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId,omitempty"` // empty for anonymous play
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	Answers     []Answer  `json:"answers"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// AnswerFor returns this participant's answer for the given question, matching
// by question ID when both sides carry one, otherwise by ordinal index.
func (p ParticipantAnswer) AnswerFor(questionID string, index int) (Answer, bool) {
	for _, a := range p.Answers {
		if questionID != "" && a.QuestionID == questionID {
			return a, true
		}
		if a.QuestionIndex == index && (questionID == "" || a.QuestionID == "") {
			return a, true
		}
	}
	return Answer{}, false
}

// RosterEntry is a snapshot-friendly view of a participant for display.
type RosterEntry struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Score         int    `json:"score"`
	Answered      bool   `json:"answered"`
}
