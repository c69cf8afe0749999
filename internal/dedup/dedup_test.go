package dedup

import (
	"reflect"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/minute/internal/extract"
	"github.com/MikeSquared-Agency/minute/internal/rank"
	"github.com/MikeSquared-Agency/minute/internal/validate"
)

func scored(typ extract.ItemType, title, owner string, score float64, evs ...extract.Evidence) rank.Scored {
	return rank.Scored{
		Validated: validate.Validated{
			Candidate: extract.Candidate{Type: typ, Title: title, Confidence: score, Evidence: evs},
			Owner:     owner,
		},
		Score: score,
	}
}

func TestSimilarityRephrasedTitles(t *testing.T) {
	if sim := Similarity("Switch to Postgres", "Move DB to Postgres"); sim < 0.8 {
		t.Errorf("rephrased titles scored %v, want >= 0.8", sim)
	}
	if sim := Similarity("Use Postgres for analytics", "Use MySQL for analytics"); sim >= 0.8 {
		t.Errorf("different topics scored %v, want < 0.8", sim)
	}
	if sim := Similarity("", "anything"); sim != 0 {
		t.Errorf("empty title scored %v, want 0", sim)
	}
}

func TestClusterMergesRephrasedDuplicates(t *testing.T) {
	a := scored(extract.TypeDecision, "Switch to Postgres", "slack:U1", 0.9,
		extract.Evidence{MessageID: "slack:a", Quote: "let's switch to postgres"})
	b := scored(extract.TypeDecision, "Move DB to Postgres", "", 0.7,
		extract.Evidence{MessageID: "slack:b", Quote: "moving the db to postgres"})

	groups := Cluster([]rank.Scored{a, b}, 0.8)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Conflict {
		t.Fatal("consistent duplicates should merge, not conflict")
	}
	if len(g.Merged.Candidate.Evidence) != 2 {
		t.Errorf("merged evidence = %d refs, want both", len(g.Merged.Candidate.Evidence))
	}
	if g.Merged.Owner != "slack:U1" {
		t.Errorf("merged owner = %q, want slack:U1", g.Merged.Owner)
	}
	if g.Merged.Score != 0.9 {
		t.Errorf("merged score = %v, want max 0.9", g.Merged.Score)
	}
}

func TestClusterNeverMixesTypes(t *testing.T) {
	a := scored(extract.TypeDecision, "Switch to Postgres", "", 0.9)
	b := scored(extract.TypeRisk, "Move DB to Postgres", "", 0.7)

	groups := Cluster([]rank.Scored{a, b}, 0.8)
	if len(groups) != 2 {
		t.Errorf("different types must not cluster, got %d groups", len(groups))
	}
}

func TestClusterThresholdInclusive(t *testing.T) {
	// "alpha beta" vs "alpha gamma" share exactly half their content tokens.
	a := scored(extract.TypeDecision, "alpha beta", "", 0.9)
	b := scored(extract.TypeDecision, "alpha gamma", "", 0.7)

	if sim := Similarity("alpha beta", "alpha gamma"); sim != 0.5 {
		t.Fatalf("test setup: similarity = %v, want 0.5", sim)
	}
	groups := Cluster([]rank.Scored{a, b}, 0.5)
	if len(groups) != 1 {
		t.Errorf("score exactly at threshold must merge, got %d groups", len(groups))
	}
}

func TestClusterConflictingOwners(t *testing.T) {
	a := scored(extract.TypeAction, "Update the runbook", "slack:U1", 0.9)
	b := scored(extract.TypeAction, "Update the runbook", "slack:U2", 0.8)

	groups := Cluster([]rank.Scored{a, b}, 0.8)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if !groups[0].Conflict {
		t.Error("differing owners must flag conflict, not merge")
	}
	if len(groups[0].Members) != 2 {
		t.Errorf("conflict group should keep both members, got %d", len(groups[0].Members))
	}
}

func TestClusterConflictingDueDates(t *testing.T) {
	d1 := time.Date(2026, 6, 5, 17, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 6, 12, 17, 0, 0, 0, time.UTC)
	a := scored(extract.TypeAction, "Update the runbook", "", 0.9)
	a.DueDate = &d1
	b := scored(extract.TypeAction, "Update the runbook", "", 0.8)
	b.DueDate = &d2

	groups := Cluster([]rank.Scored{a, b}, 0.8)
	if !groups[0].Conflict {
		t.Error("differing due dates must flag conflict")
	}
}

func TestClusterNegatedRestatement(t *testing.T) {
	a := scored(extract.TypeDecision, "Ship the billing rework", "", 0.9)
	b := scored(extract.TypeDecision, "Don't ship the billing rework", "", 0.8)

	groups := Cluster([]rank.Scored{a, b}, 0.8)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if !groups[0].Conflict {
		t.Error("negated restatement must flag conflict")
	}
}

func TestMergeAssociativeAndCommutative(t *testing.T) {
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	due := time.Date(2026, 6, 5, 17, 0, 0, 0, time.UTC)

	a := scored(extract.TypeAction, "Update the runbook", "slack:U1", 0.9,
		extract.Evidence{MessageID: "slack:a", Quote: "update the runbook"})
	a.EarliestEvidence = base
	b := scored(extract.TypeAction, "Update the runbook", "", 0.7,
		extract.Evidence{MessageID: "slack:b", Quote: "runbook needs updating"})
	b.EarliestEvidence = base.Add(5 * time.Minute)
	b.DueDate = &due
	c := scored(extract.TypeAction, "Update runbook", "", 0.8,
		extract.Evidence{MessageID: "slack:c", Quote: "yes please update it"})
	c.EarliestEvidence = base.Add(10 * time.Minute)

	left := MergeAll([]rank.Scored{MergeAll([]rank.Scored{a, b}), c})
	right := MergeAll([]rank.Scored{a, MergeAll([]rank.Scored{b, c})})
	reversed := MergeAll([]rank.Scored{c, b, a})

	for _, m := range []rank.Scored{left, right, reversed} {
		if m.Owner != "slack:U1" {
			t.Errorf("merged owner = %q, want slack:U1", m.Owner)
		}
		if m.DueDate == nil || !m.DueDate.Equal(due) {
			t.Errorf("merged due = %v, want %v", m.DueDate, due)
		}
		if !m.EarliestEvidence.Equal(base) {
			t.Errorf("merged earliest evidence = %v, want %v", m.EarliestEvidence, base)
		}
		if m.Score != 0.9 {
			t.Errorf("merged score = %v, want 0.9", m.Score)
		}
		if len(m.Candidate.Evidence) != 3 {
			t.Errorf("merged evidence = %d refs, want 3", len(m.Candidate.Evidence))
		}
	}
	if !reflect.DeepEqual(left.Candidate.Evidence, right.Candidate.Evidence) {
		t.Error("grouping changed the merged evidence set")
	}
	if !reflect.DeepEqual(left.Candidate.Evidence, reversed.Candidate.Evidence) {
		t.Error("member order changed the merged evidence set")
	}
}

func TestNegates(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"scrap the migration", true},
		{"let's hold off on this", true},
		{"actually we won't do that", true},
		{"revert to the old flow", true},
		{"ship the migration", false},
		{"looks good to me", false},
	}
	for _, tt := range tests {
		if got := Negates(tt.text); got != tt.want {
			t.Errorf("Negates(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
