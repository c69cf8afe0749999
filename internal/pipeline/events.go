package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/minute/internal/hermes"
	"github.com/MikeSquared-Agency/minute/internal/item"
	"github.com/MikeSquared-Agency/minute/internal/reconcile"
)

// VerdictEvent is the human review verdict payload from the review surface.
type VerdictEvent struct {
	ItemID  string                `json:"item_id"`
	Verdict string                `json:"verdict"` // "confirm" | "reject" | "edit"
	Patch   *reconcile.FieldPatch `json:"patch,omitempty"`
}

// HandleThreadIngested is the NATS handler for swarm.thread.ingested. It
// runs the full pipeline for the thread; queueing behind an in-flight run
// for the same thread happens inside Run.
func (p *Pipeline) HandleThreadIngested(subject string, data []byte) {
	ctx := context.Background()

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		p.logger.Error("failed to parse thread event", "error", err)
		return
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.ThreadID == "" || len(req.Messages) == 0 {
		p.logger.Error("thread event missing thread_id or messages", "run_id", req.RunID)
		return
	}

	res, err := p.Run(ctx, req)
	if err != nil {
		p.logger.Error("run failed",
			"thread_id", req.ThreadID,
			"run_id", req.RunID,
			"budget_exceeded", errors.Is(err, ErrBudgetExceeded),
			"error", err,
		)
		return
	}

	if res.Status == StatusPartial {
		if err := p.bus.Publish(hermes.SubjectRunPartial, map[string]any{
			"thread_id":       req.ThreadID,
			"run_id":          req.RunID,
			"failed_segments": res.FailedSegments,
			"budget_exceeded": res.BudgetExceeded,
		}); err != nil {
			p.logger.Warn("failed to publish partial-run event", "error", err)
		}
	}

	if err := p.bus.Publish(hermes.SubjectBriefReady, map[string]any{
		"thread_id": req.ThreadID,
		"run_id":    req.RunID,
		"status":    res.Status,
		"decisions": len(res.Doc.Decisions),
		"risks":     len(res.Doc.Risks),
		"actions":   len(res.Doc.Actions),
		"questions": len(res.Doc.OpenQuestions),
		"notice":    res.Doc.Notice,
	}); err != nil {
		p.logger.Warn("failed to publish brief-ready event", "error", err)
	}
}

// HandleReviewVerdict applies a human confirm/reject/edit arriving over the
// bus. The same verdicts are also accepted over HTTP; both paths are
// idempotent.
func (p *Pipeline) HandleReviewVerdict(subject string, data []byte) {
	ctx := context.Background()

	var evt VerdictEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse verdict event", "error", err)
		return
	}
	id, err := uuid.Parse(evt.ItemID)
	if err != nil {
		p.logger.Error("invalid item id in verdict", "item_id", evt.ItemID, "error", err)
		return
	}

	if err := p.ApplyVerdict(ctx, id, evt.Verdict, evt.Patch); err != nil {
		p.logger.Error("failed to apply verdict",
			"item_id", evt.ItemID,
			"verdict", evt.Verdict,
			"error", err,
		)
	}
}

// ApplyVerdict loads an item, applies the review action under the thread
// lock, and persists the result. Repeat verdicts are no-ops with no
// changelog entries.
func (p *Pipeline) ApplyVerdict(ctx context.Context, id uuid.UUID, verdict string, patch *reconcile.FieldPatch) error {
	it, err := p.store.GetItem(ctx, id)
	if err != nil {
		return err
	}

	lock := p.threadLock(it.ThreadID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; a reconciliation may have just moved it.
	it, err = p.store.GetItem(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var ch *item.Change
	switch verdict {
	case "confirm":
		c, err := reconcile.Confirm(it, now)
		if err != nil {
			return err
		}
		ch = c
	case "reject":
		c, err := reconcile.Reject(it, now)
		if err != nil {
			return err
		}
		ch = c
	case "edit":
		if patch == nil {
			return errors.New("edit verdict requires a patch")
		}
		c, err := reconcile.Edit(it, *patch, now)
		if err != nil {
			return err
		}
		ch = c
	default:
		return errors.New("unknown verdict " + verdict)
	}

	if ch == nil {
		return nil // idempotent repeat
	}
	return p.store.SaveItem(ctx, it, ch)
}
