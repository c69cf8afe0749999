package extract

// ItemType tags the four kinds of record the pipeline produces.
type ItemType string

const (
	TypeDecision     ItemType = "decision"
	TypeRisk         ItemType = "risk"
	TypeAction       ItemType = "action"
	TypeOpenQuestion ItemType = "open_question"
)

// Evidence is one message reference plus the quoted substring that supports a
// candidate. Quotes longer than 280 characters are rejected by validation.
type Evidence struct {
	MessageID string `json:"message_id"`
	Quote     string `json:"quote"`
	Permalink string `json:"permalink,omitempty"`
}

// Candidate is an unvalidated record proposed by the extraction call for one
// segment. It never reaches persistence directly; the validator decides
// whether it becomes an item, gets demoted, or is suppressed.
type Candidate struct {
	Type       ItemType   `json:"type"`
	Title      string     `json:"title"`
	Summary    string     `json:"summary,omitempty"`
	Owner      string     `json:"owner,omitempty"`
	DuePhrase  string     `json:"due_phrase,omitempty"` // raw natural-language phrase, parsed later
	Likelihood string     `json:"likelihood,omitempty"` // risks only
	Impact     string     `json:"impact,omitempty"`     // risks only
	Mitigation string     `json:"mitigation,omitempty"` // risks only
	Status     string     `json:"status,omitempty"`     // actions only
	Answerer   string     `json:"who_should_answer,omitempty"`
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`

	// SegmentIndex records which segment produced the candidate; set by
	// the pipeline after the extraction call returns.
	SegmentIndex int `json:"-"`
}

// PersonRef identifies one participant in the extraction's people map.
type PersonRef struct {
	DisplayName string `json:"display_name"`
	Platform    string `json:"platform,omitempty"`
	NativeID    string `json:"native_id,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Batch is the raw output of one extraction call over one segment.
type Batch struct {
	Decisions     []Candidate          `json:"decisions"`
	Risks         []Candidate          `json:"risks"`
	Actions       []Candidate          `json:"actions"`
	OpenQuestions []Candidate          `json:"open_questions"`
	PeopleMap     map[string]PersonRef `json:"people_map"`
}

// All flattens the batch into a single candidate list with types stamped.
func (b *Batch) All() []Candidate {
	var out []Candidate
	for _, c := range b.Decisions {
		c.Type = TypeDecision
		out = append(out, c)
	}
	for _, c := range b.Risks {
		c.Type = TypeRisk
		out = append(out, c)
	}
	for _, c := range b.Actions {
		c.Type = TypeAction
		out = append(out, c)
	}
	for _, c := range b.OpenQuestions {
		c.Type = TypeOpenQuestion
		out = append(out, c)
	}
	return out
}

// ThreadContext carries thread-level hints into the extraction call.
type ThreadContext struct {
	ThreadID  string `json:"thread_id"`
	Platform  string `json:"platform"`
	ThreadURL string `json:"thread_url,omitempty"`
}
