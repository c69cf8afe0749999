// Package reconcile merges a new extraction batch into a thread's persisted
// item set without loss or duplication, producing an append-only changelog.
// Reconciling the same batch twice is a no-op.
package reconcile

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/minute/internal/dedup"
	"github.com/MikeSquared-Agency/minute/internal/extract"
	"github.com/MikeSquared-Agency/minute/internal/item"
	"github.com/MikeSquared-Agency/minute/internal/provenance"
	"github.com/MikeSquared-Agency/minute/internal/rank"
	"github.com/MikeSquared-Agency/minute/internal/thread"
)

// confidenceEpsilon is the smallest confidence move considered material.
// Smaller drift (rescoring noise) does not generate changelog entries.
const confidenceEpsilon = 0.01

// Result is the outcome of one reconciliation: the full updated item set for
// the thread and the changelog entries this run appended.
type Result struct {
	Items   []item.Item
	Changes []item.Change
}

// Reconciler diffs incoming records against the persisted set. It is the
// only component that mutates items.
type Reconciler struct {
	Threshold          float64
	PromotionThreshold float64
	Logger             *slog.Logger
}

func New(threshold, promotion float64, logger *slog.Logger) *Reconciler {
	if threshold <= 0 {
		threshold = dedup.DefaultThreshold
	}
	if promotion <= 0 {
		promotion = rank.DefaultPromotionThreshold
	}
	return &Reconciler{Threshold: threshold, PromotionThreshold: promotion, Logger: logger}
}

// Reconcile merges the deduplicated groups of a run into the prior item set.
// Prior items are never deleted: superseded records transition status and
// stay, so audit history is total.
func (r *Reconciler) Reconcile(threadID string, prior []item.Item, groups []dedup.Group, msgs []thread.Message, now time.Time) Result {
	items := make([]item.Item, len(prior))
	copy(items, prior)
	var changes []item.Change

	for _, g := range groups {
		if g.Conflict {
			for _, member := range g.Members {
				it, ch := r.upsert(threadID, items, member, true, msgs, now)
				items, changes = it, append(changes, ch...)
			}
			continue
		}
		it, ch := r.upsert(threadID, items, g.Merged, false, msgs, now)
		items, changes = it, append(changes, ch...)
	}

	// Entries of one run share a timestamp; the sequence preserves append
	// order through persistence and replay.
	for i := range changes {
		changes[i].Seq = i
	}

	return Result{Items: items, Changes: changes}
}

// upsert merges one incoming record into the item set and returns the new
// set plus any changelog entries.
func (r *Reconciler) upsert(threadID string, items []item.Item, in rank.Scored, conflict bool, msgs []thread.Message, now time.Time) ([]item.Item, []item.Change) {
	idx := r.match(items, in)
	if idx < 0 {
		created := r.newItem(threadID, in, conflict, msgs, now)
		return append(items, created), []item.Change{{
			ItemID:    created.ID,
			Kind:      item.ChangeCreated,
			Diff:      map[string]string{"title": created.Title},
			CreatedAt: now,
		}}
	}

	existing := &items[idx]
	if existing.Status == item.StatusRejected {
		// A human already rejected this content; re-extraction does not
		// resurrect it.
		return items, nil
	}

	if conflict {
		// Members of a conflict group coexist flagged for human resolution;
		// none supersedes another.
		var changes []item.Change
		if r.contradicts(*existing, in) {
			created := r.newItem(threadID, in, true, msgs, now)
			items = append(items, created)
			changes = append(changes, item.Change{
				ItemID:    created.ID,
				Kind:      item.ChangeCreated,
				Diff:      map[string]string{"title": created.Title},
				CreatedAt: now,
			})
		} else {
			changes = append(changes, r.update(existing, in, msgs, now)...)
		}
		if !existing.Conflict {
			existing.Conflict = true
			existing.UpdatedAt = now
			changes = append(changes, item.Change{
				ItemID:    existing.ID,
				Kind:      item.ChangeUpdated,
				Diff:      map[string]string{"conflict": "true"},
				CreatedAt: now,
			})
		}
		return items, changes
	}

	if r.contradicts(*existing, in) {
		if existing.Status == item.StatusDone {
			// Done is final: late contradictions flag rather than supersede.
			if !existing.Conflict {
				existing.Conflict = true
				existing.UpdatedAt = now
				return items, []item.Change{{
					ItemID:    existing.ID,
					Kind:      item.ChangeUpdated,
					Diff:      map[string]string{"conflict": "true"},
					CreatedAt: now,
				}}
			}
			return items, nil
		}
		replacement := r.newItem(threadID, in, conflict, msgs, now)
		existing.Status = item.StatusSuperseded
		existing.SupersededBy = &replacement.ID
		existing.UpdatedAt = now
		return append(items, replacement), []item.Change{{
			ItemID: existing.ID,
			Kind:   item.ChangeSuperseded,
			Diff: map[string]string{
				"superseded_by": replacement.ID.String(),
				"title":         replacement.Title,
			},
			CreatedAt: now,
		}}
	}

	return items, r.update(existing, in, msgs, now)
}

// match finds the surviving prior item most similar to the incoming record,
// at or above the merge threshold. Superseded items never match; their
// replacement does.
func (r *Reconciler) match(items []item.Item, in rank.Scored) int {
	best, bestSim, bestCompat := -1, 0.0, false
	for i := range items {
		if items[i].Status == item.StatusSuperseded {
			continue
		}
		if items[i].Type != in.Candidate.Type {
			continue
		}
		sim := dedup.Similarity(items[i].Title, in.Candidate.Title)
		if sim < r.Threshold {
			continue
		}
		// At equal similarity a non-contradicting item wins, so a record
		// re-extracted next to its flagged rival keeps updating itself.
		compat := !r.contradicts(items[i], in)
		if sim > bestSim || (sim == bestSim && compat && !bestCompat) {
			best, bestSim, bestCompat = i, sim, compat
		}
	}
	return best
}

// contradicts reports whether the incoming record reverses the existing
// item's factual content: a different resolved owner, a different due date,
// or a negated restatement.
func (r *Reconciler) contradicts(existing item.Item, in rank.Scored) bool {
	if existing.Owner != "" && in.Owner != "" && existing.Owner != in.Owner {
		return true
	}
	if existing.DueDate != nil && in.DueDate != nil && !existing.DueDate.Equal(*in.DueDate) {
		return true
	}
	return dedup.Negates(in.Candidate.Title) != dedup.Negates(existing.Title)
}

// update merges compatible incoming data into the existing item in place.
// Unchanged input produces no changelog entries, which is what makes
// repeated reconciliation idempotent.
func (r *Reconciler) update(existing *item.Item, in rank.Scored, msgs []thread.Message, now time.Time) []item.Change {
	diff := make(map[string]string)
	evidenceGrew := false

	merged := unionEvidence(existing.Evidence, in.Candidate.Evidence)
	if len(merged) > len(existing.Evidence) {
		existing.Evidence = merged
		evidenceGrew = true
	}

	if in.Owner != "" && existing.Owner == "" {
		existing.Owner = in.Owner
		existing.NeedsOwnerReview = false
		diff["owner"] = in.Owner
	}
	if in.DueDate != nil && existing.DueDate == nil {
		existing.DueDate = in.DueDate
		diff["due_date"] = in.DueDate.UTC().Format(time.RFC3339)
	}

	wasPromoted := existing.Confidence >= r.PromotionThreshold
	if delta(existing.Confidence, in.Score) >= confidenceEpsilon {
		diff["confidence"] = fmt.Sprintf("%.2f->%.2f", existing.Confidence, in.Score)
		existing.Confidence = in.Score
	}

	if len(diff) == 0 && !evidenceGrew {
		return nil
	}

	existing.Why = provenance.Bind(in, msgs)
	existing.UpdatedAt = now

	kind := item.ChangeUpdated
	if len(diff) == 0 && evidenceGrew {
		kind = item.ChangeMerged
		diff["evidence"] = fmt.Sprintf("%d refs", len(existing.Evidence))
	}
	if wasPromoted && existing.Confidence < r.PromotionThreshold {
		kind = item.ChangeDemoted
	}

	return []item.Change{{
		ItemID:    existing.ID,
		Kind:      kind,
		Diff:      diff,
		CreatedAt: now,
	}}
}

func (r *Reconciler) newItem(threadID string, in rank.Scored, conflict bool, msgs []thread.Message, now time.Time) item.Item {
	it := item.Item{
		ID:               uuid.New(),
		ThreadID:         threadID,
		Type:             in.Candidate.Type,
		Title:            in.Candidate.Title,
		Summary:          in.Candidate.Summary,
		Owner:            in.Owner,
		NeedsOwnerReview: in.NeedsOwnerReview,
		OwnerFallbacks:   in.OwnerFallbacks,
		DueDate:          in.DueDate,
		Likelihood:       in.Candidate.Likelihood,
		Impact:           in.Candidate.Impact,
		Mitigation:       in.Candidate.Mitigation,
		Answerer:         in.Candidate.Answerer,
		Confidence:       in.Score,
		Evidence:         in.Candidate.Evidence,
		Status:           item.StatusProposed,
		Conflict:         conflict,
		Why:              provenance.Bind(in, msgs),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return it
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

func delta(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
