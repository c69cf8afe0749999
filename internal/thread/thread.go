package thread

import (
	"fmt"
	"strings"
	"time"
)

// Span marks a half-open [Start, End) byte range of a message's text that must
// never be bisected by a segment boundary (fenced code and quoted blocks).
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Kind  string `json:"kind"` // "code" or "quote"
}

// Message is one immutable unit of conversation. Owned by the ingest boundary;
// the pipeline only reads it.
type Message struct {
	ID        string         `json:"id"`        // canonical, platform-qualified: "slack:1718732.0041"
	ParentID  string         `json:"parent_id"` // empty for the thread root
	Author    string         `json:"author"`    // platform-qualified user ref
	Timestamp time.Time      `json:"timestamp"` // UTC
	Text      string         `json:"text"`      // cleaned text
	Reactions map[string]int `json:"reactions,omitempty"`
	Lang      string         `json:"lang,omitempty"`
	Spans     []Span         `json:"spans,omitempty"`
	Permalink string         `json:"permalink,omitempty"`
}

// CanonicalID builds the platform-qualified id used everywhere downstream.
func CanonicalID(platform, sourceID string) string {
	return platform + ":" + sourceID
}

// Normalize cleans raw ingest text: HTML entities left by chat exports are
// unescaped and carriage returns stripped.
func Normalize(text string) string {
	r := strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&", "\r", "")
	return strings.TrimSpace(r.Replace(text))
}

// CountTokens estimates the token cost of text. The heuristic (len/4 + 1)
// matches the extraction provider's average closely enough for budgeting and,
// unlike a remote tokenizer, is deterministic. Segmentation depends on that.
func CountTokens(text string) int {
	n := len(text)/4 + 1
	if n < 1 {
		n = 1
	}
	return n
}

// MessageTokens is the token cost of a message as it appears in segment text,
// including the canonical-id prefix line rendering.
func MessageTokens(m Message) int {
	return CountTokens(RenderLine(m))
}

// RenderLine renders a message as one transcript line for the extraction call.
func RenderLine(m Message) string {
	return fmt.Sprintf("[%s] %s\n", m.ID, m.Text)
}

// PositiveReactions counts reactions that signal agreement. Negative or
// neutral reactions (eyes, thinking) do not feed the agreement score.
func PositiveReactions(m Message) int {
	total := 0
	for name, count := range m.Reactions {
		if positiveReaction[name] {
			total += count
		}
	}
	return total
}

var positiveReaction = map[string]bool{
	"+1":               true,
	"thumbsup":         true,
	"heavy_plus_sign":  true,
	"white_check_mark": true,
	"heavy_check_mark": true,
	"100":              true,
	"tada":             true,
	"raised_hands":     true,
}

// ByID indexes messages by canonical id.
func ByID(msgs []Message) map[string]Message {
	idx := make(map[string]Message, len(msgs))
	for _, m := range msgs {
		idx[m.ID] = m
	}
	return idx
}
