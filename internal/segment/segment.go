package segment

import (
	"strings"

	"github.com/MikeSquared-Agency/minute/internal/thread"
)

// DefaultMaxTokens is the per-segment token budget.
const DefaultMaxTokens = 2000

// Segment is a maximal contiguous run of messages whose combined rendered
// text fits the token budget. Messages are never split: a marked code or
// quote span therefore can never straddle a boundary.
type Segment struct {
	Index      int
	Messages   []thread.Message
	TokenCount int
	Lang       string
	// Oversized marks a single-message segment that alone exceeds the
	// budget. Reported, not an error.
	Oversized bool
}

// ManifestEntry describes one segment boundary for the audit manifest.
type ManifestEntry struct {
	SegmentIndex   int    `json:"segment_index"`
	FirstMessageID string `json:"first_message_id"`
	LastMessageID  string `json:"last_message_id"`
	TokenCount     int    `json:"token_count"`
	Oversized      bool   `json:"oversized,omitempty"`
}

// Split greedily accumulates messages in timestamp order into segments of at
// most maxTokens. It is a pure function of its inputs: identical messages and
// budget always produce identical boundaries, which the run cache relies on.
func Split(msgs []thread.Message, maxTokens int) []Segment {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if len(msgs) == 0 {
		return nil
	}

	var segs []Segment
	var cur []thread.Message
	tokens := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		segs = append(segs, build(len(segs), cur, tokens, maxTokens))
		cur = nil
		tokens = 0
	}

	for _, m := range msgs {
		cost := thread.MessageTokens(m)
		if len(cur) > 0 && tokens+cost > maxTokens {
			flush()
		}
		cur = append(cur, m)
		tokens += cost
	}
	flush()

	return segs
}

func build(idx int, msgs []thread.Message, tokens, maxTokens int) Segment {
	s := Segment{
		Index:      idx,
		Messages:   make([]thread.Message, len(msgs)),
		TokenCount: tokens,
		Oversized:  len(msgs) == 1 && tokens > maxTokens,
	}
	copy(s.Messages, msgs)
	for _, m := range msgs {
		if m.Lang != "" {
			s.Lang = m.Lang
			break
		}
	}
	return s
}

// Render produces the transcript text sent to the extraction call, one
// canonical-id-prefixed line per message.
func Render(s Segment) string {
	var sb strings.Builder
	for _, m := range s.Messages {
		sb.WriteString(thread.RenderLine(m))
	}
	return sb.String()
}

// Contains reports whether the segment's message range includes id.
func (s Segment) Contains(id string) bool {
	for _, m := range s.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Manifest builds the segment boundary manifest for a run.
func Manifest(segs []Segment) []ManifestEntry {
	entries := make([]ManifestEntry, 0, len(segs))
	for _, s := range segs {
		entries = append(entries, ManifestEntry{
			SegmentIndex:   s.Index,
			FirstMessageID: s.Messages[0].ID,
			LastMessageID:  s.Messages[len(s.Messages)-1].ID,
			TokenCount:     s.TokenCount,
			Oversized:      s.Oversized,
		})
	}
	return entries
}
