package app

import (
	"crypto/rand"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// buildRoster turns polled participant rows into the ordered scoreboard both
// controllers render: score descending, ties broken by whoever reached their
// score earlier, then by name.
func buildRoster(participants []domain.ParticipantAnswer, questionID string, index int) []domain.RosterEntry {
	entries := make([]domain.RosterEntry, 0, len(participants))
	for _, p := range participants {
		_, answered := p.AnswerFor(questionID, index)
		entries = append(entries, domain.RosterEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			Answered:      answered,
		})
	}

	lastAt := make(map[string]time.Time, len(participants))
	for _, p := range participants {
		at := p.JoinedAt
		for _, a := range p.Answers {
			if a.SubmittedAt.After(at) {
				at = a.SubmittedAt
			}
		}
		lastAt[p.ID] = at
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		ti, tj := lastAt[entries[i].ParticipantID], lastAt[entries[j].ParticipantID]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	return entries
}

// NewPin generates the 6-digit join code players type in.
func NewPin() string {
	const digits = "0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand is documented never to fail on supported platforms.
		panic(err)
	}
	for i := range b {
		b[i] = digits[int(b[i])%len(digits)]
	}
	return string(b)
}
