package dedup

import (
	"time"

	"github.com/MikeSquared-Agency/minute/internal/rank"
	"github.com/MikeSquared-Agency/minute/internal/thread"
)

// minTopicOverlap is how many content tokens a later message must share with
// a candidate's title before its negation counts as a contradiction of that
// candidate rather than of something else.
const minTopicOverlap = 2

// ApplyContradictions is the comparison pass that feeds the scorer's
// contradiction penalty: a message later than a candidate's latest evidence
// that negates the same topic raises the candidate's contradiction factor,
// and the candidate is rescored in place.
func ApplyContradictions(scored []rank.Scored, msgs []thread.Message, scorer *rank.Scorer) {
	byID := thread.ByID(msgs)
	for i := range scored {
		latest := latestEvidenceTS(scored[i], byID)
		topic := tokenSet(title(scored[i]))
		for _, m := range msgs {
			if !m.Timestamp.After(latest) {
				continue
			}
			if !Negates(m.Text) {
				continue
			}
			if overlap(topic, tokenSet(m.Text)) >= minTopicOverlap {
				scored[i].Factors.Contradiction = 1
				scorer.Rescore(&scored[i])
				break
			}
		}
	}
}

func latestEvidenceTS(s rank.Scored, byID map[string]thread.Message) time.Time {
	var latest time.Time
	for _, ev := range s.Candidate.Evidence {
		if m, ok := byID[ev.MessageID]; ok && m.Timestamp.After(latest) {
			latest = m.Timestamp
		}
	}
	return latest
}

func overlap(a, b map[string]bool) int {
	n := 0
	for tok := range a {
		if b[tok] {
			n++
		}
	}
	return n
}
