package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/minute/internal/item"
)

var reviewNow = time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)

func proposedItem() *item.Item {
	return &item.Item{ID: uuid.New(), Title: "Adopt Kubernetes", Status: item.StatusProposed}
}

func TestConfirm(t *testing.T) {
	it := proposedItem()

	ch, err := Confirm(it, reviewNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch == nil {
		t.Fatal("expected changelog entry")
	}
	if it.Status != item.StatusConfirmed {
		t.Errorf("status = %q, want confirmed", it.Status)
	}

	// Repeat confirm is a no-op, not an error, and not a second entry.
	ch, err = Confirm(it, reviewNow)
	if err != nil || ch != nil {
		t.Errorf("repeat confirm: change=%v err=%v, want nil/nil", ch, err)
	}
}

func TestConfirmRejectedIsTerminal(t *testing.T) {
	it := proposedItem()
	it.Status = item.StatusRejected

	if _, err := Confirm(it, reviewNow); !errors.Is(err, ErrTerminal) {
		t.Errorf("err = %v, want ErrTerminal", err)
	}
}

func TestReject(t *testing.T) {
	it := proposedItem()

	ch, err := Reject(it, reviewNow)
	if err != nil || ch == nil {
		t.Fatalf("reject: change=%v err=%v", ch, err)
	}
	if it.Status != item.StatusRejected {
		t.Errorf("status = %q, want rejected", it.Status)
	}

	ch, err = Reject(it, reviewNow)
	if err != nil || ch != nil {
		t.Errorf("repeat reject: change=%v err=%v, want nil/nil", ch, err)
	}
}

func TestRejectDoneIsTerminal(t *testing.T) {
	it := proposedItem()
	it.Status = item.StatusDone

	if _, err := Reject(it, reviewNow); !errors.Is(err, ErrTerminal) {
		t.Errorf("err = %v, want ErrTerminal", err)
	}
}

func TestEditFields(t *testing.T) {
	it := proposedItem()
	it.NeedsOwnerReview = true
	due := time.Date(2026, 6, 10, 17, 0, 0, 0, time.UTC)

	ch, err := Edit(it, FieldPatch{Owner: "slack:U7", DueDate: &due}, reviewNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch == nil || len(ch.Diff) != 2 {
		t.Fatalf("diff = %+v, want owner and due_date", ch)
	}
	if it.Owner != "slack:U7" || it.NeedsOwnerReview {
		t.Errorf("owner edit should resolve review flag: owner=%q review=%v", it.Owner, it.NeedsOwnerReview)
	}
}

func TestEditEmptyPatchNoOp(t *testing.T) {
	it := proposedItem()
	ch, err := Edit(it, FieldPatch{}, reviewNow)
	if err != nil || ch != nil {
		t.Errorf("empty patch: change=%v err=%v, want nil/nil", ch, err)
	}
}

func TestEditRestatingValuesNoOp(t *testing.T) {
	it := proposedItem()
	ch, err := Edit(it, FieldPatch{Title: it.Title}, reviewNow)
	if err != nil || ch != nil {
		t.Errorf("restating patch: change=%v err=%v, want nil/nil", ch, err)
	}
}

func TestEditStatusFollowsLifecycle(t *testing.T) {
	it := proposedItem()

	// proposed -> done skips confirmation and is not allowed.
	if _, err := Edit(it, FieldPatch{Status: item.StatusDone}, reviewNow); !errors.Is(err, ErrTerminal) {
		t.Errorf("proposed->done err = %v, want ErrTerminal", err)
	}

	steps := []string{item.StatusConfirmed, item.StatusInProgress, item.StatusDone}
	for _, next := range steps {
		ch, err := Edit(it, FieldPatch{Status: next}, reviewNow)
		if err != nil || ch == nil {
			t.Fatalf("transition to %s: change=%v err=%v", next, ch, err)
		}
	}
	if it.Status != item.StatusDone {
		t.Errorf("status = %q, want done", it.Status)
	}
}

func TestEditSupersededIsTerminal(t *testing.T) {
	it := proposedItem()
	it.Status = item.StatusSuperseded
	if _, err := Edit(it, FieldPatch{Title: "x"}, reviewNow); !errors.Is(err, ErrTerminal) {
		t.Errorf("err = %v, want ErrTerminal", err)
	}
}
