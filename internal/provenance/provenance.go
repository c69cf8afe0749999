// Package provenance derives the read-only "why this" explanation attached
// to each surviving item: the score, its factor breakdown, and permalinked
// evidence. Prompt text never enters this object.
package provenance

import (
	"github.com/MikeSquared-Agency/minute/internal/extract"
	"github.com/MikeSquared-Agency/minute/internal/item"
	"github.com/MikeSquared-Agency/minute/internal/rank"
	"github.com/MikeSquared-Agency/minute/internal/thread"
)

// Bind builds the explanation for a scored record, resolving permalinks from
// the source messages.
func Bind(s rank.Scored, msgs []thread.Message) *item.Explanation {
	byID := thread.ByID(msgs)
	evidence := make([]extract.Evidence, 0, len(s.Candidate.Evidence))
	for _, ev := range s.Candidate.Evidence {
		if msg, ok := byID[ev.MessageID]; ok && ev.Permalink == "" {
			ev.Permalink = msg.Permalink
		}
		evidence = append(evidence, ev)
	}

	return &item.Explanation{
		Score: s.Score,
		Factors: item.FactorBreakdown{
			ModelConfidence: s.Factors.ModelConfidence,
			Agreement:       s.Factors.Agreement,
			Seniority:       s.Factors.Seniority,
			Recency:         s.Factors.Recency,
			Contradiction:   s.Factors.Contradiction,
		},
		Evidence: evidence,
	}
}
