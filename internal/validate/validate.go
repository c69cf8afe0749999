package validate

import (
	"strings"
	"time"
	"unicode"

	"github.com/MikeSquared-Agency/minute/internal/extract"
	"github.com/MikeSquared-Agency/minute/internal/resolve"
	"github.com/MikeSquared-Agency/minute/internal/segment"
	"github.com/MikeSquared-Agency/minute/internal/thread"
)

// Check tags identify which validator check suppressed or demoted a
// candidate. They are persisted with the suppressed list for tuning.
const (
	CheckNoEvidence       = "no_evidence"
	CheckEvidenceOutside  = "evidence_out_of_segment"
	CheckQuoteTooLong     = "quote_too_long"
	CheckQuoteMismatch    = "quote_mismatch"
	CheckNoCommitmentVerb = "no_commitment_verb"
	CheckNoImperativeVerb = "no_imperative_signal"
)

// DefaultCommitmentVerbs is the decision allowlist: at least one evidence
// quote must carry one of these for a candidate to survive as a decision.
var DefaultCommitmentVerbs = []string{
	"decide", "decided", "decision", "approve", "approved", "ship",
	"shipped", "adopt", "adopted", "agree", "agreed", "commit",
	"committed", "finalize", "finalized", "go with", "going with",
	"sign off", "signed off",
}

// DefaultImperativeSignals is the action allowlist.
var DefaultImperativeSignals = []string{
	"please", "can you", "could you", "will", "i'll", "take", "own",
	"handle", "drive", "assign", "todo", "need to", "needs to",
	"have to", "must",
}

// Suppressed is a candidate the validator rejected, retained for audit.
type Suppressed struct {
	Candidate extract.Candidate
	Check     string
	Reason    string
	At        time.Time
}

// Validated is a candidate that passed (or was demoted through) validation,
// with owner and due date resolved.
type Validated struct {
	extract.Candidate

	DemotedFrom      extract.ItemType // zero when not demoted
	Owner            string
	NeedsOwnerReview bool
	OwnerFallbacks   []string
	DueDate          *time.Time
	// EarliestEvidence is the timestamp of the oldest supporting message,
	// used for stable ranking and merge tie-breaks.
	EarliestEvidence time.Time
}

// Validator applies the extraction contract checks. Every failure is a
// rejection or demotion, never an error: the model's output is adversarial
// input, not a fault condition.
type Validator struct {
	CommitmentVerbs   []string
	ImperativeSignals []string
	MaxQuoteLen       int
	// QuoteSimilarity admits near-exact quotes: normalized edit-distance
	// similarity at or above this passes the fabrication check.
	QuoteSimilarity float64
	Resolver        *resolve.Resolver
}

func New(r *resolve.Resolver) *Validator {
	return &Validator{
		CommitmentVerbs:   DefaultCommitmentVerbs,
		ImperativeSignals: DefaultImperativeSignals,
		MaxQuoteLen:       280,
		QuoteSimilarity:   0.9,
		Resolver:          r,
	}
}

// Validate runs the contract checks for one candidate against its source
// segment. A rejected candidate returns only a suppression record. A demoted
// candidate returns both the demoted result and an audit record tagged with
// the failed check, so demotions land on the suppressed list too.
func (v *Validator) Validate(c extract.Candidate, seg segment.Segment, now time.Time) (*Validated, *Suppressed) {
	if len(c.Evidence) == 0 {
		return nil, v.suppress(c, CheckNoEvidence, "candidate has no evidence", now)
	}

	byID := thread.ByID(seg.Messages)
	for _, ev := range c.Evidence {
		msg, ok := byID[ev.MessageID]
		if !ok || !seg.Contains(ev.MessageID) {
			return nil, v.suppress(c, CheckEvidenceOutside, "evidence message "+ev.MessageID+" not in source segment", now)
		}
		if len(ev.Quote) > v.MaxQuoteLen {
			return nil, v.suppress(c, CheckQuoteTooLong, "quote exceeds limit for "+ev.MessageID, now)
		}
		if !quoteMatches(ev.Quote, msg.Text, v.QuoteSimilarity) {
			return nil, v.suppress(c, CheckQuoteMismatch, "quote not found in "+ev.MessageID, now)
		}
	}

	out := &Validated{Candidate: c}

	// Commitment/imperative gates demote rather than drop: a weakly
	// evidenced decision is still a real open question. The demotion is
	// recorded on the suppressed list for tuning.
	var audit *Suppressed
	switch c.Type {
	case extract.TypeDecision:
		if !v.anyQuoteHas(c.Evidence, v.CommitmentVerbs) {
			out.DemotedFrom = extract.TypeDecision
			out.Candidate.Type = extract.TypeOpenQuestion
			audit = v.suppress(c, CheckNoCommitmentVerb, "demoted to open question: no commitment verb in evidence", now)
		}
	case extract.TypeAction:
		if !v.anyQuoteHas(c.Evidence, v.ImperativeSignals) {
			out.DemotedFrom = extract.TypeAction
			out.Candidate.Type = extract.TypeOpenQuestion
			audit = v.suppress(c, CheckNoImperativeVerb, "demoted to open question: no imperative signal in evidence", now)
		}
	}

	v.resolveOwner(out, byID)
	v.resolveDue(out, now)

	out.EarliestEvidence = earliestEvidence(c.Evidence, byID)
	return out, audit
}

func (v *Validator) suppress(c extract.Candidate, check, reason string, now time.Time) *Suppressed {
	return &Suppressed{Candidate: c, Check: check, Reason: reason, At: now}
}

// resolveOwner prefers a model-claimed owner that resolves through the
// mention table, then falls back to inference over the candidate text and
// evidence quotes.
func (v *Validator) resolveOwner(out *Validated, byID map[string]thread.Message) {
	if out.Candidate.Owner != "" {
		if canonical, ok := v.Resolver.MentionTable[strings.TrimPrefix(out.Candidate.Owner, "@")]; ok {
			out.Owner = canonical
			return
		}
	}

	text := out.Candidate.Title + " " + out.Candidate.Summary
	author, lastSpeaker := "", ""
	var lastTS time.Time
	for _, ev := range out.Candidate.Evidence {
		text += " " + ev.Quote
		msg, ok := byID[ev.MessageID]
		if !ok {
			continue
		}
		if resolve.SelfAssign(ev.Quote) && author == "" {
			author = msg.Author
		}
		if msg.Timestamp.After(lastTS) || lastSpeaker == "" {
			lastTS = msg.Timestamp
			lastSpeaker = msg.Author
		}
	}
	if author == "" {
		author = lastSpeaker
	}

	res := v.Resolver.ResolveOwner(text, author, lastSpeaker)
	out.Owner = res.Owner
	out.NeedsOwnerReview = res.NeedsReview
	out.OwnerFallbacks = res.Fallbacks
}

// resolveDue parses the model's due phrase through the date grammar. An
// unparseable phrase leaves the due date nil. A missing date is correct,
// a guessed one is not.
func (v *Validator) resolveDue(out *Validated, now time.Time) {
	if out.Candidate.DuePhrase == "" {
		return
	}
	if due, ok := v.Resolver.ResolveDate(out.Candidate.DuePhrase, now); ok {
		out.DueDate = &due
	}
}

func (v *Validator) anyQuoteHas(evs []extract.Evidence, allowlist []string) bool {
	for _, ev := range evs {
		if containsAllowlisted(ev.Quote, allowlist) {
			return true
		}
	}
	return false
}

// containsAllowlisted checks quote text against an allowlist. Multi-word
// entries match as substrings; single words match as token prefixes so that
// "decide" also covers "decides" and "deciding".
func containsAllowlisted(quote string, allowlist []string) bool {
	lowered := strings.ToLower(quote)
	tokens := tokenize(lowered)
	for _, entry := range allowlist {
		if strings.ContainsRune(entry, ' ') || strings.ContainsRune(entry, '\'') {
			if strings.Contains(lowered, entry) {
				return true
			}
			continue
		}
		for _, tok := range tokens {
			if strings.HasPrefix(tok, entry) {
				return true
			}
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// quoteMatches accepts a quote that is a case-insensitive substring of the
// message text after whitespace normalization, or near enough by edit
// distance. Anything else is a fabricated quote.
func quoteMatches(quote, text string, minSimilarity float64) bool {
	q := normalizeWS(strings.ToLower(quote))
	t := normalizeWS(strings.ToLower(text))
	if q == "" {
		return false
	}
	if strings.Contains(t, q) {
		return true
	}
	return bestWindowSimilarity(q, t) >= minSimilarity
}

func normalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// bestWindowSimilarity slides a quote-sized window across the text and
// returns the best normalized edit-distance similarity seen.
func bestWindowSimilarity(q, t string) float64 {
	if len(t) < len(q) {
		return similarity(q, t)
	}
	best := 0.0
	// Step by a quarter window: fine enough for near-exact quotes.
	step := len(q) / 4
	if step < 1 {
		step = 1
	}
	for i := 0; i+len(q) <= len(t); i += step {
		if s := similarity(q, t[i:i+len(q)]); s > best {
			best = s
		}
	}
	return best
}

func similarity(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func earliestEvidence(evs []extract.Evidence, byID map[string]thread.Message) time.Time {
	var earliest time.Time
	for _, ev := range evs {
		msg, ok := byID[ev.MessageID]
		if !ok {
			continue
		}
		if earliest.IsZero() || msg.Timestamp.Before(earliest) {
			earliest = msg.Timestamp
		}
	}
	return earliest
}
