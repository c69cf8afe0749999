package reconcile

import (
	"errors"
	"time"

	"github.com/MikeSquared-Agency/minute/internal/item"
)

// ErrTerminal is returned when a review action is applied to an item whose
// state can no longer change that way.
var ErrTerminal = errors.New("item is in a terminal state")

// FieldPatch is a human edit to an item's normalized fields. Empty fields
// are left untouched.
type FieldPatch struct {
	Title   string     `json:"title,omitempty"`
	Summary string     `json:"summary,omitempty"`
	Owner   string     `json:"owner,omitempty"`
	DueDate *time.Time `json:"due_date,omitempty"`
	Status  string     `json:"status,omitempty"`
}

// Confirm moves a proposed item to confirmed. Confirming an already
// confirmed (or further progressed) item is a no-op, not an error; exactly
// one changelog entry is produced per actual state change.
func Confirm(it *item.Item, now time.Time) (*item.Change, error) {
	switch it.Status {
	case item.StatusProposed:
		it.Status = item.StatusConfirmed
		it.UpdatedAt = now
		return &item.Change{
			ItemID:    it.ID,
			Kind:      item.ChangeUpdated,
			Diff:      map[string]string{"status": item.StatusConfirmed},
			CreatedAt: now,
		}, nil
	case item.StatusConfirmed, item.StatusInProgress, item.StatusDone, item.StatusBlocked:
		return nil, nil
	default:
		return nil, ErrTerminal
	}
}

// Reject marks an item rejected. Allowed from any state except done; a
// repeat reject is a no-op.
func Reject(it *item.Item, now time.Time) (*item.Change, error) {
	if it.Status == item.StatusRejected {
		return nil, nil
	}
	if it.Status == item.StatusDone {
		return nil, ErrTerminal
	}
	prev := it.Status
	it.Status = item.StatusRejected
	it.UpdatedAt = now
	return &item.Change{
		ItemID:    it.ID,
		Kind:      item.ChangeUpdated,
		Diff:      map[string]string{"status": item.StatusRejected, "was": prev},
		CreatedAt: now,
	}, nil
}

// validTransitions encodes the lifecycle edges a human edit may take.
var validTransitions = map[string][]string{
	item.StatusProposed:   {item.StatusConfirmed, item.StatusRejected},
	item.StatusConfirmed:  {item.StatusInProgress, item.StatusRejected},
	item.StatusInProgress: {item.StatusDone, item.StatusBlocked, item.StatusRejected},
	item.StatusBlocked:    {item.StatusInProgress, item.StatusRejected},
}

// Edit applies a field patch. An empty patch, or one that restates current
// values, is a no-op. Status changes must follow the lifecycle.
func Edit(it *item.Item, patch FieldPatch, now time.Time) (*item.Change, error) {
	if it.Status == item.StatusSuperseded || it.Status == item.StatusRejected {
		return nil, ErrTerminal
	}

	diff := make(map[string]string)
	if patch.Title != "" && patch.Title != it.Title {
		it.Title = patch.Title
		diff["title"] = patch.Title
	}
	if patch.Summary != "" && patch.Summary != it.Summary {
		it.Summary = patch.Summary
		diff["summary"] = patch.Summary
	}
	if patch.Owner != "" && patch.Owner != it.Owner {
		it.Owner = patch.Owner
		it.NeedsOwnerReview = false
		diff["owner"] = patch.Owner
	}
	if patch.DueDate != nil && (it.DueDate == nil || !it.DueDate.Equal(*patch.DueDate)) {
		it.DueDate = patch.DueDate
		diff["due_date"] = patch.DueDate.UTC().Format(time.RFC3339)
	}
	if patch.Status != "" && patch.Status != it.Status {
		if !allowed(it.Status, patch.Status) {
			return nil, ErrTerminal
		}
		diff["status"] = patch.Status
		it.Status = patch.Status
	}

	if len(diff) == 0 {
		return nil, nil
	}
	it.UpdatedAt = now
	return &item.Change{
		ItemID:    it.ID,
		Kind:      item.ChangeUpdated,
		Diff:      diff,
		CreatedAt: now,
	}, nil
}

func allowed(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
