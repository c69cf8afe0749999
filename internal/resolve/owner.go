package resolve

import (
	"regexp"
	"strings"
)

var (
	mentionRe    = regexp.MustCompile(`@([A-Za-z0-9._-]+)`)
	selfAssignRe = regexp.MustCompile(`(?i)\bI(?:'ll| will| can| shall|'m going to| am going to)\b`)
	imperativeRe = regexp.MustCompile(`(?i)\b(please|can you|could you|take|own|handle|drive)\b`)
)

// assignableRoles are role-map values that make a last-speaker fallback
// plausible. Bots and passive observers never become owners by default.
var assignableRoles = map[string]bool{
	"lead":     true,
	"manager":  true,
	"engineer": true,
	"owner":    true,
	"member":   true,
}

// SelfAssign reports whether text carries first-person self-assignment
// phrasing ("I'll", "I will", "I can").
func SelfAssign(text string) bool {
	return selfAssignRe.MatchString(text)
}

// OwnerResolution is the outcome of owner inference for one candidate.
type OwnerResolution struct {
	Owner       string   // canonical user ref, empty when unresolved
	NeedsReview bool     // set when no precedence rule fired
	Fallbacks   []string // up to three ranked suggestions when unresolved
}

// Resolver infers owners and due dates from candidate text. It is stateless;
// the tables are supplied per thread by the caller.
type Resolver struct {
	// MentionTable maps raw mention tokens (with or without the leading @)
	// to canonical platform-qualified user refs.
	MentionTable map[string]string
	// RoleMap maps canonical user refs to workspace roles.
	RoleMap map[string]string
	// ChannelTZ and WorkspaceTZ name IANA timezones; either may be empty.
	// Date parsing falls through channel → workspace → UTC.
	ChannelTZ   string
	WorkspaceTZ string
}

// ResolveOwner applies the owner precedence rules, first match wins:
// a known mention (or raw @-mention) paired with imperative phrasing, then
// first-person self-assignment resolving to the author, then a plausible
// last speaker. Anything else is unresolved and flagged for review with
// ranked fallback suggestions.
func (r *Resolver) ResolveOwner(text, author, lastSpeaker string) OwnerResolution {
	if owner, ok := r.mentionTarget(text); ok && imperativeRe.MatchString(text) {
		return OwnerResolution{Owner: owner}
	}
	if selfAssignRe.MatchString(text) && author != "" {
		return OwnerResolution{Owner: author}
	}
	if lastSpeaker != "" && assignableRoles[r.RoleMap[lastSpeaker]] {
		return OwnerResolution{Owner: lastSpeaker}
	}
	return OwnerResolution{
		NeedsReview: true,
		Fallbacks:   r.fallbacks(text, author, lastSpeaker),
	}
}

// mentionTarget finds the earliest mention in text that resolves through the
// mention table, or any raw @-mention as-is. Earliest-position matching keeps
// resolution independent of map iteration order; tokens only match on word
// boundaries, so "alice" never matches inside "malice".
func (r *Resolver) mentionTarget(text string) (string, bool) {
	best, bestPos := "", -1
	for token, canonical := range r.MentionTable {
		if pos := indexToken(text, token); pos >= 0 && (bestPos < 0 || pos < bestPos || (pos == bestPos && canonical < best)) {
			best, bestPos = canonical, pos
		}
	}
	if bestPos >= 0 {
		return best, true
	}
	if m := mentionRe.FindStringSubmatch(text); m != nil {
		candidate := m[1]
		if canonical, ok := r.MentionTable[candidate]; ok {
			return canonical, true
		}
		return candidate, true
	}
	return "", false
}

// indexToken returns the first occurrence of token in text that sits on word
// boundaries, or -1.
func indexToken(text, token string) int {
	if token == "" {
		return -1
	}
	for start := 0; ; {
		pos := strings.Index(text[start:], token)
		if pos < 0 {
			return -1
		}
		pos += start
		if bounded(text, pos, len(token)) {
			return pos
		}
		start = pos + 1
	}
}

func bounded(text string, pos, n int) bool {
	if pos > 0 && isWordByte(text[pos-1]) {
		return false
	}
	if end := pos + n; end < len(text) && isWordByte(text[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// fallbacks re-walks the precedence list without the imperative/plausibility
// cutoffs and returns up to three distinct suggestions in precedence order.
func (r *Resolver) fallbacks(text, author, lastSpeaker string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(ref string) {
		if ref != "" && !seen[ref] && len(out) < 3 {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	if owner, ok := r.mentionTarget(text); ok {
		add(owner)
	}
	if selfAssignRe.MatchString(text) {
		add(author)
	}
	add(lastSpeaker)
	add(author)
	return out
}
