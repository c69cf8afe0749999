// Package dedup groups near-duplicate candidates and merges each group into
// a single canonical record, or flags mutually contradictory members as
// conflicts for human resolution.
package dedup

import (
	"sort"
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/minute/internal/extract"
	"github.com/MikeSquared-Agency/minute/internal/rank"
)

// DefaultThreshold is the similarity above which two same-type records are
// considered duplicates. A score exactly at the threshold counts as a match:
// a false merge is auditable and reversible, a false split silently
// duplicates.
const DefaultThreshold = 0.8

// Similarity compares normalized title text as content-token sets and returns
// the overlap coefficient (shared tokens over the smaller set). Word order and
// filler verbs are ignored, so "Switch to Postgres" and "Move DB to Postgres"
// score as the same topic.
func Similarity(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for tok := range sa {
		if sb[tok] {
			inter++
		}
	}
	smaller := len(sa)
	if len(sb) < smaller {
		smaller = len(sb)
	}
	return float64(inter) / float64(smaller)
}

// stopwords are dropped before comparison. Function words and generic
// switch/move/use verbs carry no topical content; the nouns decide whether two
// titles are about the same thing.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true,
	"in": true, "on": true, "for": true, "and": true, "or": true,
	"we": true, "is": true, "are": true, "be": true, "will": true,
	"with": true, "should": true, "let": true, "lets": true,
	"ll": true, "re": true, "ve": true, "s": true, "t": true,
	"switch": true, "move": true, "use": true, "using": true,
	"go": true, "going": true, "adopt": true, "make": true,
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if !stopwords[tok] {
			set[tok] = true
		}
	}
	return set
}

// Group is one similarity cluster. Either Merged holds the canonical merged
// record, or Conflict is set and Members each survive flagged.
type Group struct {
	Members  []rank.Scored
	Merged   rank.Scored
	Conflict bool
}

// Cluster partitions scored candidates of mixed types into similarity groups
// using union-find over above-threshold pairs. Records of different types
// never cluster together.
func Cluster(scored []rank.Scored, threshold float64) []Group {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	parent := make([]int, len(scored))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i]) // path compression
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			if rj < ri {
				ri, rj = rj, ri
			}
			parent[rj] = ri
		}
	}

	for i := 0; i < len(scored); i++ {
		for j := i + 1; j < len(scored); j++ {
			if scored[i].Candidate.Type != scored[j].Candidate.Type {
				continue
			}
			if Similarity(title(scored[i]), title(scored[j])) >= threshold {
				union(i, j)
			}
		}
	}

	byRoot := make(map[int][]int)
	for i := range scored {
		root := find(i)
		byRoot[root] = append(byRoot[root], i)
	}
	roots := make([]int, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Ints(roots) // deterministic group order

	groups := make([]Group, 0, len(roots))
	for _, root := range roots {
		members := make([]rank.Scored, 0, len(byRoot[root]))
		for _, idx := range byRoot[root] {
			members = append(members, scored[idx])
		}
		groups = append(groups, makeGroup(members))
	}
	return groups
}

func makeGroup(members []rank.Scored) Group {
	g := Group{Members: members}
	if len(members) == 1 {
		g.Merged = members[0]
		return g
	}
	if contradictory(members) {
		g.Conflict = true
		return g
	}
	g.Merged = MergeAll(members)
	return g
}

// contradictory reports whether group members disagree on normalized factual
// content: two different non-empty owners, two different non-nil due dates,
// or a negated restatement of the same topic.
func contradictory(members []rank.Scored) bool {
	owner, due := "", ""
	negated, plain := false, false
	for _, m := range members {
		if m.Owner != "" {
			if owner != "" && m.Owner != owner {
				return true
			}
			owner = m.Owner
		}
		if m.DueDate != nil {
			d := m.DueDate.UTC().Format("2006-01-02")
			if due != "" && d != due {
				return true
			}
			due = d
		}
		if Negates(title(m)) {
			negated = true
		} else {
			plain = true
		}
	}
	return negated && plain
}

var negationMarkers = []string{
	"not ", "n't ", "no longer", "instead of", "revert", "scrap",
	"cancel", "hold off", "won't", "wont ",
}

// Negates reports whether text reads as a negation or walk-back of a
// previously stated position.
func Negates(s string) bool {
	lowered := strings.ToLower(s)
	for _, marker := range negationMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// MergeAll folds a group into one canonical record. The fold is associative
// and commutative on owner, due date, and evidence union, so incremental
// reconciliation can merge in any order and converge.
func MergeAll(members []rank.Scored) rank.Scored {
	out := members[0]
	for _, m := range members[1:] {
		out = merge2(out, m)
	}
	out.Candidate.Evidence = sortEvidence(out.Candidate.Evidence)
	return out
}

func merge2(a, b rank.Scored) rank.Scored {
	// The base record is the member with the higher score; ties go to the
	// earlier evidence, then the lexically smaller title, so the fold stays
	// commutative.
	out := a
	if b.Score > a.Score ||
		(b.Score == a.Score && b.EarliestEvidence.Before(a.EarliestEvidence)) ||
		(b.Score == a.Score && b.EarliestEvidence.Equal(a.EarliestEvidence) && b.Candidate.Title < a.Candidate.Title) {
		out = b
	}

	out.Candidate.Evidence = unionEvidence(a.Candidate.Evidence, b.Candidate.Evidence)
	if a.Candidate.Confidence > out.Candidate.Confidence {
		out.Candidate.Confidence = a.Candidate.Confidence
	}
	if b.Candidate.Confidence > out.Candidate.Confidence {
		out.Candidate.Confidence = b.Candidate.Confidence
	}
	if out.Owner == "" {
		if a.Owner != "" {
			out.Owner = a.Owner
		} else {
			out.Owner = b.Owner
		}
		out.NeedsOwnerReview = out.Owner == "" && (a.NeedsOwnerReview || b.NeedsOwnerReview)
	}
	if out.DueDate == nil {
		if a.DueDate != nil {
			out.DueDate = a.DueDate
		} else {
			out.DueDate = b.DueDate
		}
	}
	if !a.EarliestEvidence.IsZero() && a.EarliestEvidence.Before(out.EarliestEvidence) {
		out.EarliestEvidence = a.EarliestEvidence
	}
	if !b.EarliestEvidence.IsZero() && b.EarliestEvidence.Before(out.EarliestEvidence) {
		out.EarliestEvidence = b.EarliestEvidence
	}
	if a.Score > out.Score {
		out.Score = a.Score
	}
	if b.Score > out.Score {
		out.Score = b.Score
	}
	return out
}

func unionEvidence(a, b []extract.Evidence) []extract.Evidence {
	seen := make(map[string]bool, len(a)+len(b))
	var out []extract.Evidence
	for _, ev := range append(append([]extract.Evidence{}, a...), b...) {
		key := ev.MessageID + "\x00" + ev.Quote
		if !seen[key] {
			seen[key] = true
			out = append(out, ev)
		}
	}
	return out
}

func sortEvidence(evs []extract.Evidence) []extract.Evidence {
	sort.SliceStable(evs, func(i, j int) bool {
		if evs[i].MessageID != evs[j].MessageID {
			return evs[i].MessageID < evs[j].MessageID
		}
		return evs[i].Quote < evs[j].Quote
	})
	return evs
}

func title(s rank.Scored) string {
	if s.Candidate.Title != "" {
		return s.Candidate.Title
	}
	return s.Candidate.Summary
}
