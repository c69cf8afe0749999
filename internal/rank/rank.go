// Package rank turns validated candidates into scored, ordered, banded
// output: promoted, held for review, or suppressed.
package rank

import (
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/minute/internal/thread"
	"github.com/MikeSquared-Agency/minute/internal/validate"
)

// Default thresholds. Items at or above PromotionThreshold publish; items in
// [ReviewFloor, PromotionThreshold) are held for review; the rest go to the
// suppressed list.
const (
	DefaultPromotionThreshold = 0.65
	DefaultReviewFloor        = 0.50
)

// Weights are the scoring coefficients. All are tunable; the scorer clamps
// the result regardless of how adversarial the configuration is.
type Weights struct {
	ModelConfidence float64
	Agreement       float64
	Seniority       float64
	Recency         float64
	Contradiction   float64
}

func DefaultWeights() Weights {
	return Weights{
		ModelConfidence: 1.0,
		Agreement:       0.05,
		Seniority:       0.05,
		Recency:         0.05,
		Contradiction:   0.25,
	}
}

// roleSeniority maps workspace roles to a [0,1] seniority factor.
var roleSeniority = map[string]float64{
	"lead":     1.0,
	"manager":  0.9,
	"owner":    0.9,
	"engineer": 0.6,
	"member":   0.5,
}

// Scored is a validated candidate with its computed score and factor values.
type Scored struct {
	validate.Validated
	Score   float64
	Factors Factors
}

// Factors holds the raw per-factor values before weighting.
type Factors struct {
	ModelConfidence float64
	Agreement       float64
	Seniority       float64
	Recency         float64
	Contradiction   float64
}

// Scorer computes candidate scores against the thread's messages.
type Scorer struct {
	Weights            Weights
	PromotionThreshold float64
	ReviewFloor        float64
	RoleMap            map[string]string
}

func New(roleMap map[string]string) *Scorer {
	return &Scorer{
		Weights:            DefaultWeights(),
		PromotionThreshold: DefaultPromotionThreshold,
		ReviewFloor:        DefaultReviewFloor,
		RoleMap:            roleMap,
	}
}

// Score computes the weighted score for one candidate. The contradiction
// factor starts at zero; the deduplicator's comparison pass raises it via
// Rescore when a later message negates the candidate's support.
func (s *Scorer) Score(v validate.Validated, msgs []thread.Message) Scored {
	byID := thread.ByID(msgs)

	f := Factors{
		ModelConfidence: clamp(v.Candidate.Confidence),
		Agreement:       agreement(v, byID),
		Seniority:       s.seniority(v, byID),
		Recency:         recency(v, msgs),
	}
	return Scored{Validated: v, Factors: f, Score: s.combine(f)}
}

// Rescore recomputes the score after a factor change (contradiction).
func (s *Scorer) Rescore(sc *Scored) {
	sc.Score = s.combine(sc.Factors)
}

func (s *Scorer) combine(f Factors) float64 {
	score := s.Weights.ModelConfidence*f.ModelConfidence +
		s.Weights.Agreement*f.Agreement +
		s.Weights.Seniority*f.Seniority +
		s.Weights.Recency*f.Recency -
		s.Weights.Contradiction*f.Contradiction
	return clamp(score)
}

// agreement is the normalized sum of positive reactions on evidence messages
// plus repeated-phrase echoes across distinct evidence messages. The raw
// count saturates at 5: five independent endorsements is as agreed as a
// thread gets.
func agreement(v validate.Validated, byID map[string]thread.Message) float64 {
	raw := 0
	for _, ev := range v.Candidate.Evidence {
		if msg, ok := byID[ev.MessageID]; ok {
			raw += thread.PositiveReactions(msg)
		}
	}
	raw += echoes(v)
	if raw > 5 {
		raw = 5
	}
	return float64(raw) / 5
}

// echoes counts evidence pairs from different messages that share a
// three-token phrase, i.e. independent restatements of the same point.
func echoes(v validate.Validated) int {
	evs := v.Candidate.Evidence
	count := 0
	for i := 0; i < len(evs); i++ {
		for j := i + 1; j < len(evs); j++ {
			if evs[i].MessageID == evs[j].MessageID {
				continue
			}
			if sharePhrase(evs[i].Quote, evs[j].Quote, 3) {
				count++
			}
		}
	}
	return count
}

func sharePhrase(a, b string, n int) bool {
	grams := make(map[string]bool)
	ta := strings.Fields(strings.ToLower(a))
	for i := 0; i+n <= len(ta); i++ {
		grams[strings.Join(ta[i:i+n], " ")] = true
	}
	tb := strings.Fields(strings.ToLower(b))
	for i := 0; i+n <= len(tb); i++ {
		if grams[strings.Join(tb[i:i+n], " ")] {
			return true
		}
	}
	return false
}

// seniority scores the owner's role if resolved, otherwise the best role
// among evidence speakers.
func (s *Scorer) seniority(v validate.Validated, byID map[string]thread.Message) float64 {
	if v.Owner != "" {
		if f, ok := roleSeniority[s.RoleMap[v.Owner]]; ok {
			return f
		}
		return 0.3
	}
	best := 0.0
	for _, ev := range v.Candidate.Evidence {
		if msg, ok := byID[ev.MessageID]; ok {
			if f, ok := roleSeniority[s.RoleMap[msg.Author]]; ok && f > best {
				best = f
			}
		}
	}
	if best == 0 {
		return 0.3
	}
	return best
}

// recency positions the latest evidence message within the thread's time
// span: support at the end of the discussion outweighs support that may have
// been walked back since.
func recency(v validate.Validated, msgs []thread.Message) float64 {
	if len(msgs) < 2 {
		return 1
	}
	start, end := msgs[0].Timestamp, msgs[len(msgs)-1].Timestamp
	span := end.Sub(start)
	if span <= 0 {
		return 1
	}
	byID := thread.ByID(msgs)
	var latest = start
	for _, ev := range v.Candidate.Evidence {
		if msg, ok := byID[ev.MessageID]; ok && msg.Timestamp.After(latest) {
			latest = msg.Timestamp
		}
	}
	return clamp(float64(latest.Sub(start)) / float64(span))
}

// Band classification for a score.
const (
	BandPromoted = "promoted"
	BandReview   = "needs_review"
	BandSuppress = "suppressed"
)

func (s *Scorer) Band(score float64) string {
	switch {
	case score >= s.PromotionThreshold:
		return BandPromoted
	case score >= s.ReviewFloor:
		return BandReview
	default:
		return BandSuppress
	}
}

// Sort orders scored candidates for output: descending score, ties broken by
// the earliest supporting-message timestamp, then title for total order.
func Sort(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].EarliestEvidence.Equal(scored[j].EarliestEvidence) {
			return scored[i].EarliestEvidence.Before(scored[j].EarliestEvidence)
		}
		return scored[i].Candidate.Title < scored[j].Candidate.Title
	})
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
