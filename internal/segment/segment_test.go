package segment

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/minute/internal/thread"
)

func makeMessages(n, textLen int) []thread.Message {
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	msgs := make([]thread.Message, n)
	for i := 0; i < n; i++ {
		msgs[i] = thread.Message{
			ID:        fmt.Sprintf("slack:%04d", i),
			Author:    "slack:U1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Text:      strings.Repeat("x", textLen),
		}
	}
	return msgs
}

func TestSplitFiftyShortMessagesOneSegment(t *testing.T) {
	// ~30 tokens per rendered message, 50 messages, budget 2000.
	msgs := makeMessages(50, 100)

	total := 0
	for _, m := range msgs {
		total += thread.MessageTokens(m)
	}
	if total >= 2000 {
		t.Fatalf("test setup: %d tokens does not fit one segment", total)
	}

	segs := Split(msgs, 2000)
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if len(segs[0].Messages) != 50 {
		t.Errorf("expected all 50 messages in segment, got %d", len(segs[0].Messages))
	}
	if segs[0].TokenCount != total {
		t.Errorf("expected token count %d, got %d", total, segs[0].TokenCount)
	}
	if segs[0].Oversized {
		t.Error("segment should not be marked oversized")
	}
}

func TestSplitRespectsBudget(t *testing.T) {
	msgs := makeMessages(20, 200)
	budget := 150

	segs := Split(msgs, budget)
	if len(segs) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segs))
	}
	kept := 0
	for _, s := range segs {
		kept += len(s.Messages)
		if !s.Oversized && s.TokenCount > budget {
			t.Errorf("segment %d has %d tokens, budget %d", s.Index, s.TokenCount, budget)
		}
	}
	if kept != 20 {
		t.Errorf("expected 20 messages across segments, got %d", kept)
	}
}

func TestSplitOversizedMessage(t *testing.T) {
	msgs := makeMessages(3, 50)
	msgs[1].Text = strings.Repeat("y", 4000) // alone exceeds any small budget

	segs := Split(msgs, 100)
	found := false
	for _, s := range segs {
		if s.Contains(msgs[1].ID) {
			found = true
			if len(s.Messages) != 1 {
				t.Errorf("oversized message should sit in its own segment, got %d messages", len(s.Messages))
			}
			if !s.Oversized {
				t.Error("expected segment to be flagged oversized")
			}
		}
	}
	if !found {
		t.Fatal("oversized message dropped from segmentation")
	}
}

func TestSplitDeterministic(t *testing.T) {
	msgs := makeMessages(40, 180)
	a := Manifest(Split(msgs, 500))
	b := Manifest(Split(msgs, 500))
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same input produced different boundaries:\n%v\n%v", a, b)
	}
}

func TestSplitEmpty(t *testing.T) {
	if segs := Split(nil, 2000); segs != nil {
		t.Errorf("expected nil for empty input, got %v", segs)
	}
}

func TestManifestCoversBoundaries(t *testing.T) {
	msgs := makeMessages(10, 300)
	segs := Split(msgs, 200)
	entries := Manifest(segs)
	if len(entries) != len(segs) {
		t.Fatalf("expected %d manifest entries, got %d", len(segs), len(entries))
	}
	for i, e := range entries {
		if e.SegmentIndex != i {
			t.Errorf("entry %d has index %d", i, e.SegmentIndex)
		}
		if e.FirstMessageID != segs[i].Messages[0].ID {
			t.Errorf("entry %d first id mismatch", i)
		}
		if e.LastMessageID != segs[i].Messages[len(segs[i].Messages)-1].ID {
			t.Errorf("entry %d last id mismatch", i)
		}
	}
}

func TestRenderIncludesCanonicalIDs(t *testing.T) {
	msgs := makeMessages(2, 20)
	segs := Split(msgs, 2000)
	text := Render(segs[0])
	for _, m := range msgs {
		if !strings.Contains(text, "["+m.ID+"]") {
			t.Errorf("rendered segment missing id %s", m.ID)
		}
	}
}
