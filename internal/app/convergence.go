package app

import (
	"fmt"
	"strings"

	"live-quiz-service/internal/domain"
)

// Transition classifies what changed between two polled session snapshots.
type Transition int

const (
	TransitionNone Transition = iota
	// TransitionStarted is waiting -> active.
	TransitionStarted
	// TransitionAdvanced is a question-index move while active.
	TransitionAdvanced
	// TransitionEnded is active -> completed.
	TransitionEnded
	// TransitionUnexpected is any other combination; observers log it and
	// otherwise leave their state alone.
	TransitionUnexpected
)

// Step is the reaction an observer owes a freshly polled snapshot. Applying
// the same (prev, next) pair twice yields the zero Step the second time
// because prev has caught up, so re-application is naturally idempotent.
type Step struct {
	Transition Transition
	// FetchQuestion asks the observer to load the question at FetchIndex.
	FetchQuestion bool
	FetchIndex    int
	// ResetProgress clears locally held selection/answered flags and restarts
	// any countdown for the newly fetched question.
	ResetProgress bool
	// Freeze pins the current display and surfaces final results.
	Freeze bool
	// Note describes an unexpected transition, for logging only.
	Note string
}

// Converge compares the previously applied session snapshot against a fresh
// one and decides what the observer must do. prev is nil on the first poll,
// in which case the snapshot is adopted as-is: an already-active game fetches
// its current question (without wiping reconciled answer state, so a reload
// mid-game resumes correctly) and a completed one freezes.
func Converge(prev *domain.Session, next domain.Session) Step {
	if prev == nil {
		switch next.Status {
		case domain.StatusActive:
			return Step{FetchQuestion: true, FetchIndex: next.CurrentQuestionIndex}
		case domain.StatusCompleted:
			return Step{Freeze: true}
		default:
			return Step{}
		}
	}

	if prev.Status != next.Status {
		switch {
		case prev.Status == domain.StatusWaiting && next.Status == domain.StatusActive:
			return Step{
				Transition:    TransitionStarted,
				FetchQuestion: true,
				FetchIndex:    next.CurrentQuestionIndex,
				ResetProgress: true,
			}
		case prev.Status == domain.StatusActive && next.Status == domain.StatusCompleted:
			return Step{Transition: TransitionEnded, Freeze: true}
		default:
			return Step{
				Transition: TransitionUnexpected,
				Note:       fmt.Sprintf("status %s -> %s", prev.Status, next.Status),
			}
		}
	}

	if next.Status == domain.StatusActive && prev.CurrentQuestionIndex != next.CurrentQuestionIndex {
		if next.CurrentQuestionIndex < prev.CurrentQuestionIndex {
			return Step{
				Transition: TransitionUnexpected,
				Note: fmt.Sprintf("question index went backwards: %d -> %d",
					prev.CurrentQuestionIndex, next.CurrentQuestionIndex),
			}
		}
		return Step{
			Transition:    TransitionAdvanced,
			FetchQuestion: true,
			FetchIndex:    next.CurrentQuestionIndex,
			ResetProgress: true,
		}
	}

	return Step{}
}

// AllAnswered reports whether every currently joined participant has an
// answer on record for the question. An empty roster never counts as
// all-answered.
func AllAnswered(participants []domain.ParticipantAnswer, questionID string, index int) bool {
	if len(participants) == 0 {
		return false
	}
	for _, p := range participants {
		if _, ok := p.AnswerFor(questionID, index); !ok {
			return false
		}
	}
	return true
}

// IsCorrect reports whether the chosen option matches the question's correct
// answer. Authoring records the answer either by option ID or by display
// text, so both forms are accepted.
func IsCorrect(q domain.Question, opt domain.Option) bool {
	if q.CorrectOptionID != "" && q.CorrectOptionID == opt.ID {
		return true
	}
	if q.CorrectText != "" && strings.EqualFold(q.CorrectText, opt.Text) {
		return true
	}
	return false
}

// Points returns the question's point value, defaulting to 1.
func Points(q domain.Question) int {
	if q.Points > 0 {
		return q.Points
	}
	return 1
}
