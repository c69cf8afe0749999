// Package brief assembles the exported brief document for a thread: the
// surviving items by type, the people map, provenance, and changelog.
package brief

import (
	"fmt"
	"sort"

	"github.com/MikeSquared-Agency/minute/internal/extract"
	"github.com/MikeSquared-Agency/minute/internal/item"
	"github.com/MikeSquared-Agency/minute/internal/segment"
)

// Schema version pair embedded in every brief.
const (
	ModelVersion = "v1.0"
	APIVersion   = "v1"
)

// Document is the persisted/exported brief. Array fields may be empty but
// are always present.
type Document struct {
	ThreadID      string                       `json:"thread_id"`
	Platform      string                       `json:"platform"`
	RunID         string                       `json:"run_id"`
	ModelVersion  string                       `json:"model_version"`
	APIVersion    string                       `json:"api_version"`
	Partial       bool                         `json:"partial,omitempty"`
	Notice        string                       `json:"notice,omitempty"`
	Decisions     []item.Item                  `json:"decisions"`
	Risks         []item.Item                  `json:"risks"`
	Actions       []item.Item                  `json:"actions"`
	OpenQuestions []item.Item                  `json:"open_questions"`
	PeopleMap     map[string]extract.PersonRef `json:"people_map"`
	Manifest      []segment.ManifestEntry      `json:"manifest"`
	Changelog     []item.Change                `json:"changelog"`
}

// Build assembles a document from the reconciled item set. Superseded and
// rejected items are part of the audit trail, not of the published brief,
// and items below the promotion threshold are held for review rather than
// published.
func Build(threadID, platform, runID string, items []item.Item, people map[string]extract.PersonRef, manifest []segment.ManifestEntry, changelog []item.Change, promotionThreshold float64) *Document {
	doc := &Document{
		ThreadID:      threadID,
		Platform:      platform,
		RunID:         runID,
		ModelVersion:  ModelVersion,
		APIVersion:    APIVersion,
		Decisions:     []item.Item{},
		Risks:         []item.Item{},
		Actions:       []item.Item{},
		OpenQuestions: []item.Item{},
		PeopleMap:     people,
		Manifest:      manifest,
		Changelog:     changelog,
	}
	if doc.PeopleMap == nil {
		doc.PeopleMap = map[string]extract.PersonRef{}
	}
	if doc.Manifest == nil {
		doc.Manifest = []segment.ManifestEntry{}
	}
	if doc.Changelog == nil {
		doc.Changelog = []item.Change{}
	}

	held := 0
	for _, it := range items {
		if it.Status == item.StatusSuperseded || it.Status == item.StatusRejected {
			continue
		}
		// Human confirmation publishes an item regardless of score.
		if it.Confidence < promotionThreshold && it.Status == item.StatusProposed {
			held++
			continue
		}
		switch it.Type {
		case extract.TypeDecision:
			doc.Decisions = append(doc.Decisions, it)
		case extract.TypeRisk:
			doc.Risks = append(doc.Risks, it)
		case extract.TypeAction:
			doc.Actions = append(doc.Actions, it)
		case extract.TypeOpenQuestion:
			doc.OpenQuestions = append(doc.OpenQuestions, it)
		}
	}

	for _, section := range [][]item.Item{doc.Decisions, doc.Risks, doc.Actions, doc.OpenQuestions} {
		sortSection(section)
	}

	// An empty brief is never silent: point the reader at the held
	// candidates instead.
	if held > 0 && len(doc.Decisions)+len(doc.Risks)+len(doc.Actions)+len(doc.OpenQuestions) == 0 {
		doc.Notice = fmt.Sprintf("no items reached the promotion threshold; %d candidates held for review", held)
	}
	return doc
}

// sortSection orders a section by descending confidence, then creation time,
// then title. The published ordering must be reproducible.
func sortSection(items []item.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Confidence != items[j].Confidence {
			return items[i].Confidence > items[j].Confidence
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].Title < items[j].Title
	})
}
