package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/minute/internal/extract"
	"github.com/MikeSquared-Agency/minute/internal/resolve"
	"github.com/MikeSquared-Agency/minute/internal/segment"
	"github.com/MikeSquared-Agency/minute/internal/thread"
)

var testNow = time.Date(2026, 6, 3, 12, 0, 0, 0, time.UTC)

func testSegment(texts ...string) segment.Segment {
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s := segment.Segment{Index: 0}
	for i, text := range texts {
		s.Messages = append(s.Messages, thread.Message{
			ID:        "slack:" + string(rune('a'+i)),
			Author:    "slack:U1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Text:      text,
		})
	}
	return s
}

func candidate(typ extract.ItemType, title string, evs ...extract.Evidence) extract.Candidate {
	return extract.Candidate{Type: typ, Title: title, Confidence: 0.8, Evidence: evs}
}

func TestValidateNoEvidence(t *testing.T) {
	v := New(&resolve.Resolver{})
	seg := testSegment("we decided to go with postgres")

	_, sup := v.Validate(candidate(extract.TypeDecision, "Use Postgres"), seg, testNow)
	if sup == nil {
		t.Fatal("expected suppression")
	}
	if sup.Check != CheckNoEvidence {
		t.Errorf("check = %q, want %q", sup.Check, CheckNoEvidence)
	}
}

func TestValidateEvidenceOutsideSegment(t *testing.T) {
	v := New(&resolve.Resolver{})
	seg := testSegment("we decided to go with postgres")

	c := candidate(extract.TypeDecision, "Use Postgres",
		extract.Evidence{MessageID: "slack:zzz", Quote: "we decided"})
	_, sup := v.Validate(c, seg, testNow)
	if sup == nil || sup.Check != CheckEvidenceOutside {
		t.Fatalf("expected %s suppression, got %+v", CheckEvidenceOutside, sup)
	}
}

func TestValidateFabricatedQuote(t *testing.T) {
	v := New(&resolve.Resolver{})
	seg := testSegment("we decided to go with postgres")

	c := candidate(extract.TypeDecision, "Use MySQL",
		extract.Evidence{MessageID: "slack:a", Quote: "we decided to go with mysql actually"})
	_, sup := v.Validate(c, seg, testNow)
	if sup == nil || sup.Check != CheckQuoteMismatch {
		t.Fatalf("expected %s suppression, got %+v", CheckQuoteMismatch, sup)
	}
}

func TestValidateNearExactQuotePasses(t *testing.T) {
	v := New(&resolve.Resolver{})
	seg := testSegment("We will ship the new billing flow on Friday")

	// One transposition away from the source text.
	c := candidate(extract.TypeAction, "Ship billing flow",
		extract.Evidence{MessageID: "slack:a", Quote: "We will sihp the new billing flow on Friday"})
	out, sup := v.Validate(c, seg, testNow)
	if sup != nil {
		t.Fatalf("near-exact quote suppressed: %+v", sup)
	}
	if out == nil {
		t.Fatal("expected validated candidate")
	}
}

func TestValidateQuoteTooLong(t *testing.T) {
	v := New(&resolve.Resolver{})
	long := strings.Repeat("decided ", 50) // > 280 chars
	seg := testSegment(long)

	c := candidate(extract.TypeDecision, "Something",
		extract.Evidence{MessageID: "slack:a", Quote: long})
	_, sup := v.Validate(c, seg, testNow)
	if sup == nil || sup.Check != CheckQuoteTooLong {
		t.Fatalf("expected %s suppression, got %+v", CheckQuoteTooLong, sup)
	}
}

func TestValidateDecisionWithoutCommitmentVerbDemoted(t *testing.T) {
	v := New(&resolve.Resolver{})
	seg := testSegment("I think we should maybe consider X")

	c := candidate(extract.TypeDecision, "Consider X",
		extract.Evidence{MessageID: "slack:a", Quote: "I think we should maybe consider X"})
	out, sup := v.Validate(c, seg, testNow)
	if out == nil {
		t.Fatal("demotion must still return the candidate")
	}
	if out.Candidate.Type != extract.TypeOpenQuestion {
		t.Errorf("type = %q, want demotion to %q", out.Candidate.Type, extract.TypeOpenQuestion)
	}
	if out.DemotedFrom != extract.TypeDecision {
		t.Errorf("DemotedFrom = %q, want %q", out.DemotedFrom, extract.TypeDecision)
	}
	if sup == nil {
		t.Fatal("demotion must produce an audit record")
	}
	if sup.Check != CheckNoCommitmentVerb {
		t.Errorf("audit check = %q, want %q", sup.Check, CheckNoCommitmentVerb)
	}
	if sup.Candidate.Type != extract.TypeDecision {
		t.Errorf("audit keeps original type, got %q", sup.Candidate.Type)
	}
}

func TestValidateDecisionWithCommitmentVerbSurvives(t *testing.T) {
	v := New(&resolve.Resolver{})
	seg := testSegment("ok, we decided to go with postgres")

	c := candidate(extract.TypeDecision, "Use Postgres",
		extract.Evidence{MessageID: "slack:a", Quote: "we decided to go with postgres"})
	out, sup := v.Validate(c, seg, testNow)
	if sup != nil {
		t.Fatalf("unexpected suppression: %+v", sup)
	}
	if out.Candidate.Type != extract.TypeDecision {
		t.Errorf("type = %q, want decision", out.Candidate.Type)
	}
	if out.DemotedFrom != "" {
		t.Errorf("unexpected demotion from %q", out.DemotedFrom)
	}
}

func TestValidateActionWithoutImperativeDemoted(t *testing.T) {
	v := New(&resolve.Resolver{})
	seg := testSegment("the dashboard is sometimes slow")

	c := candidate(extract.TypeAction, "Fix dashboard",
		extract.Evidence{MessageID: "slack:a", Quote: "the dashboard is sometimes slow"})
	out, sup := v.Validate(c, seg, testNow)
	if out.Candidate.Type != extract.TypeOpenQuestion {
		t.Errorf("type = %q, want demotion to open_question", out.Candidate.Type)
	}
	if sup == nil || sup.Check != CheckNoImperativeVerb {
		t.Fatalf("expected %s audit record, got %+v", CheckNoImperativeVerb, sup)
	}
}

func TestValidateUnparseableDuePhraseYieldsNilDate(t *testing.T) {
	v := New(&resolve.Resolver{})
	seg := testSegment("I'll handle the rollout whenever we get to it")

	c := candidate(extract.TypeAction, "Handle rollout",
		extract.Evidence{MessageID: "slack:a", Quote: "I'll handle the rollout"})
	c.DuePhrase = "whenever we get to it"
	out, sup := v.Validate(c, seg, testNow)
	if sup != nil {
		t.Fatalf("unexpected suppression: %+v", sup)
	}
	if out.DueDate != nil {
		t.Errorf("unparseable phrase must yield nil due date, got %v", out.DueDate)
	}
}

func TestValidateResolvesDueDate(t *testing.T) {
	v := New(&resolve.Resolver{})
	seg := testSegment("I'll handle the rollout by tomorrow")

	c := candidate(extract.TypeAction, "Handle rollout",
		extract.Evidence{MessageID: "slack:a", Quote: "I'll handle the rollout by tomorrow"})
	c.DuePhrase = "by tomorrow"
	out, _ := v.Validate(c, seg, testNow)
	if out.DueDate == nil {
		t.Fatal("expected resolved due date")
	}
	want := time.Date(2026, 6, 4, 17, 0, 0, 0, time.UTC)
	if !out.DueDate.Equal(want) {
		t.Errorf("due = %v, want %v", out.DueDate, want)
	}
}

func TestValidateSelfAssignOwner(t *testing.T) {
	v := New(&resolve.Resolver{})
	seg := testSegment("I'll take the rollout")

	c := candidate(extract.TypeAction, "Take rollout",
		extract.Evidence{MessageID: "slack:a", Quote: "I'll take the rollout"})
	out, _ := v.Validate(c, seg, testNow)
	if out.Owner != "slack:U1" {
		t.Errorf("owner = %q, want evidence author slack:U1", out.Owner)
	}
}

func TestValidateModelOwnerThroughMentionTable(t *testing.T) {
	r := &resolve.Resolver{MentionTable: map[string]string{"bob": "slack:U9"}}
	v := New(r)
	seg := testSegment("please can bob drive the migration")

	c := candidate(extract.TypeAction, "Drive migration",
		extract.Evidence{MessageID: "slack:a", Quote: "please can bob drive the migration"})
	c.Owner = "@bob"
	out, sup := v.Validate(c, seg, testNow)
	if sup != nil {
		t.Fatalf("unexpected suppression: %+v", sup)
	}
	if out.Owner != "slack:U9" {
		t.Errorf("owner = %q, want canonical slack:U9", out.Owner)
	}
}
