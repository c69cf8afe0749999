package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/minute/internal/brief"
	"github.com/MikeSquared-Agency/minute/internal/segment"
	"github.com/MikeSquared-Agency/minute/internal/validate"
)

// SaveBrief upserts the brief document for (thread, run).
func (s *Store) SaveBrief(ctx context.Context, doc *brief.Document) error {
	blob, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal brief: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO briefs (id, thread_id, run_id, model_version, api_version, json_blob, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (thread_id, run_id) DO UPDATE SET
			json_blob = EXCLUDED.json_blob,
			model_version = EXCLUDED.model_version,
			api_version = EXCLUDED.api_version`,
		uuid.New(), doc.ThreadID, doc.RunID, doc.ModelVersion, doc.APIVersion, blob,
	)
	if err != nil {
		return fmt.Errorf("upsert brief: %w", err)
	}
	return nil
}

// LatestBrief returns the newest brief for a thread.
func (s *Store) LatestBrief(ctx context.Context, threadID string) (*brief.Document, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `
		SELECT json_blob FROM briefs
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		threadID,
	).Scan(&blob)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("query brief: %w", err)
	}
	var doc brief.Document
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal brief: %w", err)
	}
	return &doc, nil
}

// SaveManifest records the segment boundary manifest for a run.
func (s *Store) SaveManifest(ctx context.Context, threadID, runID string, entries []segment.ManifestEntry) error {
	blob, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO segment_manifests (id, thread_id, run_id, entries, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (thread_id, run_id) DO UPDATE SET entries = EXCLUDED.entries`,
		uuid.New(), threadID, runID, blob,
	)
	if err != nil {
		return fmt.Errorf("upsert manifest: %w", err)
	}
	return nil
}

// LatestManifest returns the newest segment manifest for a thread.
func (s *Store) LatestManifest(ctx context.Context, threadID string) ([]segment.ManifestEntry, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `
		SELECT entries FROM segment_manifests
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		threadID,
	).Scan(&blob)
	if err != nil {
		return nil, err
	}
	var entries []segment.ManifestEntry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return entries, nil
}

// WriteSuppressed appends rejected/demoted candidates to the suppressed
// list. Entries are kept forever for audit and threshold tuning.
func (s *Store) WriteSuppressed(ctx context.Context, threadID, runID string, sup []validate.Suppressed) error {
	for _, sc := range sup {
		blob, err := json.Marshal(sc.Candidate)
		if err != nil {
			return fmt.Errorf("marshal suppressed candidate: %w", err)
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO suppressed (id, thread_id, run_id, check_tag, reason, candidate, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New(), threadID, runID, sc.Check, sc.Reason, blob, sc.At,
		)
		if err != nil {
			return fmt.Errorf("insert suppressed: %w", err)
		}
	}
	return nil
}

// RunStatus is persisted per run so partial runs are never mistaken for
// complete ones.
type RunStatus struct {
	RunID          string
	ThreadID       string
	Status         string // complete | partial | failed
	FailedSegments int
	CreatedAt      time.Time
}

// SaveRunStatus upserts the status row for a run.
func (s *Store) SaveRunStatus(ctx context.Context, rs RunStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (run_id, thread_id, status, failed_segments, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			failed_segments = EXCLUDED.failed_segments`,
		rs.RunID, rs.ThreadID, rs.Status, rs.FailedSegments, rs.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run status: %w", err)
	}
	return nil
}
