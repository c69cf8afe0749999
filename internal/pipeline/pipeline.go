// Package pipeline orchestrates a thread-processing run: segmentation,
// concurrent extraction, validation, scoring, deduplication, reconciliation,
// and persistence. Runs for the same thread are strictly serialized.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/minute/internal/brief"
	"github.com/MikeSquared-Agency/minute/internal/config"
	"github.com/MikeSquared-Agency/minute/internal/dedup"
	"github.com/MikeSquared-Agency/minute/internal/extract"
	"github.com/MikeSquared-Agency/minute/internal/hermes"
	"github.com/MikeSquared-Agency/minute/internal/item"
	"github.com/MikeSquared-Agency/minute/internal/rank"
	"github.com/MikeSquared-Agency/minute/internal/reconcile"
	"github.com/MikeSquared-Agency/minute/internal/resolve"
	"github.com/MikeSquared-Agency/minute/internal/segment"
	"github.com/MikeSquared-Agency/minute/internal/store"
	"github.com/MikeSquared-Agency/minute/internal/thread"
	"github.com/MikeSquared-Agency/minute/internal/validate"
)

// Distinguishable run failures.
var (
	// ErrBudgetExceeded means an input or output token cap was breached.
	ErrBudgetExceeded = errors.New("run token budget exceeded")
	// ErrNothingExtracted means the run was cancelled or failed before any
	// segment completed, so there is nothing to salvage.
	ErrNothingExtracted = errors.New("run produced no extracted segments")
)

// Run statuses persisted per run.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

// CheckBelowFloor tags candidates suppressed for scoring below the review
// floor, as opposed to failing a validator check.
const CheckBelowFloor = "below_review_floor"

// Request describes one thread-processing run. Message text is normalized
// and ids are canonicalized on entry, so adapters can send raw platform
// payloads.
type Request struct {
	RunID        string                       `json:"run_id"`
	ThreadID     string                       `json:"thread_id"`
	Platform     string                       `json:"platform"`
	Messages     []thread.Message             `json:"messages"`
	MentionTable map[string]string            `json:"mention_table,omitempty"`
	RoleMap      map[string]string            `json:"role_map,omitempty"`
	ChannelTZ    string                       `json:"channel_tz,omitempty"`
	People       map[string]extract.PersonRef `json:"people_map,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	Doc            *brief.Document
	Status         string
	FailedSegments int
	// BudgetExceeded marks a run that stopped extracting when the output
	// token cap was hit; everything extracted before the stop is included.
	BudgetExceeded bool
	Changes        []item.Change
}

// Pipeline wires the stages together. One Pipeline serves all threads; the
// per-thread lock serializes dedup/reconcile so each run observes a
// consistent prior-item snapshot.
type Pipeline struct {
	cfg       config.Config
	store     *store.Store
	extractor extract.Extractor
	bus       *hermes.Client
	logger    *slog.Logger

	mu          sync.Mutex
	threadLocks map[string]*sync.Mutex
}

func New(cfg config.Config, st *store.Store, ex extract.Extractor, bus *hermes.Client, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		store:       st,
		extractor:   ex,
		bus:         bus,
		logger:      logger,
		threadLocks: make(map[string]*sync.Mutex),
	}
}

// threadLock returns the serialization lock for a thread. A second run for
// the same thread queues on the mutex rather than being rejected.
func (p *Pipeline) threadLock(threadID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.threadLocks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		p.threadLocks[threadID] = lock
	}
	return lock
}

// Run executes one full pipeline pass for a thread.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	now := time.Now().UTC()

	msgs := normalizeMessages(req.Platform, req.Messages)
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})

	// Fail fast on the input cap before any model spend.
	inputTokens := 0
	for _, m := range msgs {
		inputTokens += thread.MessageTokens(m)
	}
	if inputTokens > p.cfg.MaxRunInputTokens {
		return nil, fmt.Errorf("%w: input %d tokens, cap %d", ErrBudgetExceeded, inputTokens, p.cfg.MaxRunInputTokens)
	}

	segs := segment.Split(msgs, p.cfg.MaxSegmentTokens)
	manifest := segment.Manifest(segs)
	p.logger.Info("segmented thread",
		"thread_id", req.ThreadID,
		"run_id", req.RunID,
		"messages", len(msgs),
		"segments", len(segs),
	)

	batches, failed, err := p.extractAll(ctx, req, segs)
	budgetHit := errors.Is(err, ErrBudgetExceeded)
	if err != nil && !(budgetHit && len(batches) > 0) {
		return nil, err
	}

	candidates, people := p.join(segs, batches)
	for name, person := range req.People {
		if _, ok := people[name]; !ok {
			people[name] = person
		}
	}

	resolver := &resolve.Resolver{
		MentionTable: req.MentionTable,
		RoleMap:      req.RoleMap,
		ChannelTZ:    req.ChannelTZ,
		WorkspaceTZ:  p.cfg.WorkspaceTZ,
	}
	validator := validate.New(resolver)
	validator.QuoteSimilarity = p.cfg.QuoteSimilarity

	var validated []validate.Validated
	var suppressed []validate.Suppressed
	for _, c := range candidates {
		v, sup := validator.Validate(c, segs[c.SegmentIndex], now)
		if sup != nil {
			// Rejections and demotion audits both land here.
			suppressed = append(suppressed, *sup)
		}
		if v != nil {
			validated = append(validated, *v)
		}
	}

	scorer := rank.New(req.RoleMap)
	scorer.PromotionThreshold = p.cfg.PromotionThreshold
	scorer.ReviewFloor = p.cfg.ReviewFloor

	scored := make([]rank.Scored, 0, len(validated))
	for _, v := range validated {
		scored = append(scored, scorer.Score(v, msgs))
	}
	dedup.ApplyContradictions(scored, msgs, scorer)

	// Below the review floor nothing survives, but nothing is lost either.
	kept := scored[:0]
	for _, sc := range scored {
		if scorer.Band(sc.Score) == rank.BandSuppress {
			suppressed = append(suppressed, validate.Suppressed{
				Candidate: sc.Candidate,
				Check:     CheckBelowFloor,
				Reason:    fmt.Sprintf("score %.2f below review floor %.2f", sc.Score, scorer.ReviewFloor),
				At:        now,
			})
			continue
		}
		kept = append(kept, sc)
	}
	rank.Sort(kept)

	groups := dedup.Cluster(kept, p.cfg.MergeThreshold)

	// Serialized section: snapshot prior items, reconcile, persist.
	lock := p.threadLock(req.ThreadID)
	lock.Lock()
	defer lock.Unlock()

	prior, err := p.store.ListItems(ctx, req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("load prior items: %w", err)
	}

	rec := reconcile.New(p.cfg.MergeThreshold, p.cfg.PromotionThreshold, p.logger)
	res := rec.Reconcile(req.ThreadID, prior, groups, msgs, now)

	status := StatusComplete
	if failed > 0 || budgetHit {
		status = StatusPartial
	}

	changelog, err := p.persist(ctx, req, res, suppressed, manifest, status, failed, now)
	if err != nil {
		return nil, err
	}

	doc := brief.Build(req.ThreadID, req.Platform, req.RunID, res.Items, people, manifest, changelog, p.cfg.PromotionThreshold)
	doc.Partial = status == StatusPartial
	if err := p.store.SaveBrief(ctx, doc); err != nil {
		return nil, fmt.Errorf("save brief: %w", err)
	}

	p.logger.Info("run finished",
		"thread_id", req.ThreadID,
		"run_id", req.RunID,
		"status", status,
		"items", len(res.Items),
		"changes", len(res.Changes),
		"suppressed", len(suppressed),
		"failed_segments", failed,
		"budget_exceeded", budgetHit,
	)

	return &Result{Doc: doc, Status: status, FailedSegments: failed, BudgetExceeded: budgetHit, Changes: res.Changes}, nil
}

// extractAll fans segments out to the extraction worker pool and joins the
// completed batches. A failed segment (retries exhausted) marks the run
// partial but never aborts siblings; a cancelled run keeps whatever
// completed, unless nothing did. An output-cap breach stops further
// extraction but returns the salvaged batches alongside ErrBudgetExceeded.
func (p *Pipeline) extractAll(ctx context.Context, req Request, segs []segment.Segment) (map[int]*extract.Batch, int, error) {
	tc := extract.ThreadContext{ThreadID: req.ThreadID, Platform: req.Platform}

	var mu sync.Mutex
	batches := make(map[int]*extract.Batch, len(segs))
	failed := 0
	outputTokens := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.SegmentConcurrency)
	for _, seg := range segs {
		seg := seg
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil // cancelled between completions; keep what we have
			}
			batch, err := p.extractor.Extract(gctx, segment.Render(seg), tc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				p.logger.Warn("segment extraction failed",
					"thread_id", req.ThreadID,
					"segment", seg.Index,
					"error", err,
				)
				return nil
			}
			outputTokens += batchTokens(batch)
			batches[seg.Index] = batch
			if outputTokens > p.cfg.MaxRunOutputTokens {
				// Tokens for this batch are already spent, so it is kept;
				// the error cancels the remaining segments.
				return fmt.Errorf("%w: output exceeds cap %d", ErrBudgetExceeded, p.cfg.MaxRunOutputTokens)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrBudgetExceeded) {
			// Stop spending, keep everything extracted so far. Segments the
			// stop cut off count as failed.
			return batches, len(segs) - len(batches), err
		}
		return nil, 0, fmt.Errorf("extraction pool: %w", err)
	}

	if len(batches) == 0 && len(segs) > 0 {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrNothingExtracted, ctx.Err())
		}
		return nil, 0, ErrNothingExtracted
	}
	return batches, failed, nil
}

// normalizeMessages cleans ingest text and qualifies bare message ids with
// the platform prefix so evidence references stay canonical across runs.
func normalizeMessages(platform string, in []thread.Message) []thread.Message {
	msgs := make([]thread.Message, len(in))
	copy(msgs, in)
	for i := range msgs {
		msgs[i].Text = thread.Normalize(msgs[i].Text)
		if platform == "" {
			continue
		}
		if !strings.Contains(msgs[i].ID, ":") {
			msgs[i].ID = thread.CanonicalID(platform, msgs[i].ID)
		}
		if msgs[i].ParentID != "" && !strings.Contains(msgs[i].ParentID, ":") {
			msgs[i].ParentID = thread.CanonicalID(platform, msgs[i].ParentID)
		}
	}
	return msgs
}

// join flattens completed batches back into message order. Extraction
// completes out of order across the pool; re-sorting by segment index keeps
// output deterministic.
func (p *Pipeline) join(segs []segment.Segment, batches map[int]*extract.Batch) ([]extract.Candidate, map[string]extract.PersonRef) {
	var all []extract.Candidate
	people := make(map[string]extract.PersonRef)
	for _, seg := range segs {
		batch, ok := batches[seg.Index]
		if !ok {
			continue
		}
		for _, c := range batch.All() {
			c.SegmentIndex = seg.Index
			all = append(all, c)
		}
		for name, person := range batch.PeopleMap {
			if _, exists := people[name]; !exists {
				people[name] = person
			}
		}
	}
	return all, people
}

func (p *Pipeline) persist(ctx context.Context, req Request, res reconcile.Result, suppressed []validate.Suppressed, manifest []segment.ManifestEntry, status string, failed int, now time.Time) ([]item.Change, error) {
	if err := p.store.SaveItems(ctx, req.ThreadID, res.Items, res.Changes); err != nil {
		return nil, fmt.Errorf("save items: %w", err)
	}
	if err := p.store.SaveManifest(ctx, req.ThreadID, req.RunID, manifest); err != nil {
		return nil, fmt.Errorf("save manifest: %w", err)
	}
	if err := p.store.WriteSuppressed(ctx, req.ThreadID, req.RunID, suppressed); err != nil {
		return nil, fmt.Errorf("save suppressed: %w", err)
	}
	if err := p.store.SaveRunStatus(ctx, store.RunStatus{
		RunID:          req.RunID,
		ThreadID:       req.ThreadID,
		Status:         status,
		FailedSegments: failed,
		CreatedAt:      now,
	}); err != nil {
		return nil, err
	}
	return p.store.ListChangelog(ctx, req.ThreadID)
}

// batchTokens estimates the output token spend of a batch from its rendered
// size, using the same heuristic as input budgeting.
func batchTokens(b *extract.Batch) int {
	total := 0
	for _, c := range b.All() {
		total += thread.CountTokens(c.Title + c.Summary)
		for _, ev := range c.Evidence {
			total += thread.CountTokens(ev.Quote)
		}
	}
	return total
}
