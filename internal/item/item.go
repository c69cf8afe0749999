// Package item defines the canonical output record shared by the dedup,
// provenance, reconcile, store, and API layers.
package item

import (
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/minute/internal/extract"
)

// Lifecycle states. Superseded and rejected are terminal tags layered on
// top; they can be applied in any state except done.
const (
	StatusProposed   = "proposed"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusBlocked    = "blocked"
	StatusRejected   = "rejected"
	StatusSuperseded = "superseded"
)

// FactorBreakdown records each scoring factor's contribution for the
// "why this" explanation.
type FactorBreakdown struct {
	ModelConfidence float64 `json:"model_confidence"`
	Agreement       float64 `json:"agreement"`
	Seniority       float64 `json:"seniority"`
	Recency         float64 `json:"recency"`
	Contradiction   float64 `json:"contradiction"`
}

// Explanation is the derived, read-only provenance object attached to each
// surviving item. It never carries prompt text.
type Explanation struct {
	Score    float64            `json:"score"`
	Factors  FactorBreakdown    `json:"factor_breakdown"`
	Evidence []extract.Evidence `json:"evidence"`
}

// Item is a validated, scored, deduplicated record. Only the reconciler and
// explicit human review calls mutate it; everything upstream of the
// reconciler works on copies.
type Item struct {
	ID       uuid.UUID        `json:"id"`
	ThreadID string           `json:"thread_id"`
	Type     extract.ItemType `json:"type"`

	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`

	Owner            string     `json:"owner,omitempty"`
	NeedsOwnerReview bool       `json:"needs_owner_review,omitempty"`
	OwnerFallbacks   []string   `json:"owner_fallbacks,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`

	Likelihood string `json:"likelihood,omitempty"` // risks
	Impact     string `json:"impact,omitempty"`     // risks
	Mitigation string `json:"mitigation,omitempty"` // risks
	Answerer   string `json:"who_should_answer,omitempty"`

	Confidence float64            `json:"confidence"`
	Evidence   []extract.Evidence `json:"evidence"`

	Status       string     `json:"status"`
	SupersededBy *uuid.UUID `json:"superseded_by,omitempty"`
	Conflict     bool       `json:"conflict,omitempty"`

	Why *Explanation `json:"why,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Changelog entry kinds.
const (
	ChangeCreated    = "created"
	ChangeUpdated    = "updated"
	ChangeDemoted    = "demoted"
	ChangeSuperseded = "superseded"
	ChangeMerged     = "merged"
)

// Change is one append-only changelog entry. Entries are never mutated or
// deleted, so audit history over a thread is total.
type Change struct {
	ItemID uuid.UUID         `json:"item_id"`
	Kind   string            `json:"kind"`
	Diff   map[string]string `json:"diff,omitempty"`
	// Seq orders entries within a run; entries of one run share CreatedAt,
	// so replay order needs a tiebreak of its own.
	Seq       int       `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// Terminal reports whether no further automatic transitions apply.
func (it *Item) Terminal() bool {
	return it.Status == StatusDone || it.Status == StatusRejected || it.Status == StatusSuperseded
}
