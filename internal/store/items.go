package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/minute/internal/extract"
	"github.com/MikeSquared-Agency/minute/internal/item"
)

// SaveItems writes the full reconciled item set and the run's changelog
// entries in one transaction. Items upsert; changelog is append-only.
func (s *Store) SaveItems(ctx context.Context, threadID string, items []item.Item, changes []item.Change) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, it := range items {
		evidence, err := json.Marshal(it.Evidence)
		if err != nil {
			return fmt.Errorf("marshal evidence: %w", err)
		}
		var why []byte
		if it.Why != nil {
			if why, err = json.Marshal(it.Why); err != nil {
				return fmt.Errorf("marshal why: %w", err)
			}
		}
		fallbacks, err := json.Marshal(it.OwnerFallbacks)
		if err != nil {
			return fmt.Errorf("marshal fallbacks: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO items (
				id, thread_id, type, title, summary, owner, needs_owner_review,
				owner_fallbacks, due_date, likelihood, impact, mitigation, answerer,
				confidence, evidence, status, superseded_by, conflict, why,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				summary = EXCLUDED.summary,
				owner = EXCLUDED.owner,
				needs_owner_review = EXCLUDED.needs_owner_review,
				owner_fallbacks = EXCLUDED.owner_fallbacks,
				due_date = EXCLUDED.due_date,
				confidence = EXCLUDED.confidence,
				evidence = EXCLUDED.evidence,
				status = EXCLUDED.status,
				superseded_by = EXCLUDED.superseded_by,
				conflict = EXCLUDED.conflict,
				why = EXCLUDED.why,
				updated_at = EXCLUDED.updated_at`,
			it.ID, it.ThreadID, string(it.Type), it.Title, it.Summary, it.Owner,
			it.NeedsOwnerReview, fallbacks, it.DueDate, it.Likelihood, it.Impact,
			it.Mitigation, it.Answerer, it.Confidence, evidence, it.Status,
			it.SupersededBy, it.Conflict, why, it.CreatedAt, it.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", it.ID, err)
		}
	}

	for _, ch := range changes {
		diff, err := json.Marshal(ch.Diff)
		if err != nil {
			return fmt.Errorf("marshal diff: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO changelog (id, thread_id, item_id, kind, diff, seq, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), threadID, ch.ItemID, ch.Kind, diff, ch.Seq, ch.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert changelog: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListItems returns every item for a thread, superseded and rejected
// included. The store never forgets.
func (s *Store) ListItems(ctx context.Context, threadID string) ([]item.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, type, title, summary, owner, needs_owner_review,
		       owner_fallbacks, due_date, likelihood, impact, mitigation, answerer,
		       confidence, evidence, status, superseded_by, conflict, why,
		       created_at, updated_at
		FROM items
		WHERE thread_id = $1
		ORDER BY created_at, id`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// GetItem fetches one item by id.
func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*item.Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, type, title, summary, owner, needs_owner_review,
		       owner_fallbacks, due_date, likelihood, impact, mitigation, answerer,
		       confidence, evidence, status, superseded_by, conflict, why,
		       created_at, updated_at
		FROM items
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rows error: %w", err)
		}
		return nil, pgx.ErrNoRows
	}
	it, err := scanItem(rows)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func scanItem(rows pgx.Rows) (item.Item, error) {
	var it item.Item
	var typ string
	var evidence, fallbacks, why []byte
	if err := rows.Scan(
		&it.ID, &it.ThreadID, &typ, &it.Title, &it.Summary, &it.Owner,
		&it.NeedsOwnerReview, &fallbacks, &it.DueDate, &it.Likelihood,
		&it.Impact, &it.Mitigation, &it.Answerer, &it.Confidence, &evidence,
		&it.Status, &it.SupersededBy, &it.Conflict, &why,
		&it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return it, fmt.Errorf("scan item: %w", err)
	}
	it.Type = extract.ItemType(typ)
	if err := json.Unmarshal(evidence, &it.Evidence); err != nil {
		return it, fmt.Errorf("unmarshal evidence: %w", err)
	}
	if len(fallbacks) > 0 {
		if err := json.Unmarshal(fallbacks, &it.OwnerFallbacks); err != nil {
			return it, fmt.Errorf("unmarshal fallbacks: %w", err)
		}
	}
	if len(why) > 0 {
		if err := json.Unmarshal(why, &it.Why); err != nil {
			return it, fmt.Errorf("unmarshal why: %w", err)
		}
	}
	return it, nil
}

// SaveItem writes a single item plus one changelog entry, used by the
// review endpoints.
func (s *Store) SaveItem(ctx context.Context, it *item.Item, ch *item.Change) error {
	var changes []item.Change
	if ch != nil {
		changes = append(changes, *ch)
	}
	return s.SaveItems(ctx, it.ThreadID, []item.Item{*it}, changes)
}

// ListChangelog returns a thread's changelog in append order: run timestamp
// first, then each run's own sequence.
func (s *Store) ListChangelog(ctx context.Context, threadID string) ([]item.Change, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT item_id, kind, diff, seq, created_at
		FROM changelog
		WHERE thread_id = $1
		ORDER BY created_at, seq`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query changelog: %w", err)
	}
	defer rows.Close()

	var changes []item.Change
	for rows.Next() {
		var ch item.Change
		var diff []byte
		if err := rows.Scan(&ch.ItemID, &ch.Kind, &diff, &ch.Seq, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan changelog: %w", err)
		}
		if len(diff) > 0 {
			if err := json.Unmarshal(diff, &ch.Diff); err != nil {
				return nil, fmt.Errorf("unmarshal diff: %w", err)
			}
		}
		changes = append(changes, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return changes, nil
}
