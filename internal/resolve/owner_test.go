package resolve

import "testing"

func TestResolveOwnerMentionWithImperative(t *testing.T) {
	r := &Resolver{MentionTable: map[string]string{"@bob": "slack:U2", "bob": "slack:U2"}}

	res := r.ResolveOwner("@bob can you take the rollout?", "slack:U1", "slack:U3")
	if res.Owner != "slack:U2" {
		t.Errorf("expected mention target slack:U2, got %q", res.Owner)
	}
	if res.NeedsReview {
		t.Error("resolved owner should not need review")
	}
}

func TestResolveOwnerMentionWithoutImperative(t *testing.T) {
	// A bare mention with no ask is attribution, not assignment.
	r := &Resolver{
		MentionTable: map[string]string{"@bob": "slack:U2"},
		RoleMap:      map[string]string{},
	}
	res := r.ResolveOwner("@bob raised this in standup", "", "")
	if res.Owner != "" {
		t.Errorf("expected unresolved owner, got %q", res.Owner)
	}
	if !res.NeedsReview {
		t.Error("expected needs review")
	}
}

func TestResolveOwnerMentionBoundary(t *testing.T) {
	// Table tokens must not match inside unrelated words.
	r := &Resolver{MentionTable: map[string]string{"alice": "slack:U5"}}

	res := r.ResolveOwner("such malice here, someone please take a look", "", "")
	if res.Owner == "slack:U5" {
		t.Error("token matched inside an unrelated word")
	}

	res = r.ResolveOwner("alice can you take the rollout?", "", "")
	if res.Owner != "slack:U5" {
		t.Errorf("expected slack:U5 for whole-word mention, got %q", res.Owner)
	}
}

func TestIndexToken(t *testing.T) {
	tests := []struct {
		text  string
		token string
		want  int
	}{
		{"ping alice now", "alice", 5},
		{"such malice here", "alice", -1},
		{"malice aside, alice owns it", "alice", 14},
		{"@alice please", "alice", 1},
		{"alice", "alice", 0},
		{"alices work", "alice", -1},
		{"x", "", -1},
	}
	for _, tt := range tests {
		if got := indexToken(tt.text, tt.token); got != tt.want {
			t.Errorf("indexToken(%q, %q) = %d, want %d", tt.text, tt.token, got, tt.want)
		}
	}
}

func TestResolveOwnerSelfAssign(t *testing.T) {
	r := &Resolver{}
	res := r.ResolveOwner("I'll update the migration script tomorrow", "slack:U1", "slack:U3")
	if res.Owner != "slack:U1" {
		t.Errorf("self-assignment should resolve to author, got %q", res.Owner)
	}
}

func TestResolveOwnerLastSpeakerFallback(t *testing.T) {
	r := &Resolver{RoleMap: map[string]string{"slack:U3": "engineer"}}
	res := r.ResolveOwner("the migration still needs doing", "", "slack:U3")
	if res.Owner != "slack:U3" {
		t.Errorf("expected plausible last speaker, got %q", res.Owner)
	}
}

func TestResolveOwnerImplausibleLastSpeaker(t *testing.T) {
	r := &Resolver{RoleMap: map[string]string{"slack:BOT": "bot"}}
	res := r.ResolveOwner("the migration still needs doing", "slack:U1", "slack:BOT")
	if res.Owner != "" {
		t.Errorf("bot should never become owner by default, got %q", res.Owner)
	}
	if !res.NeedsReview {
		t.Error("expected needs review")
	}
	if len(res.Fallbacks) == 0 || len(res.Fallbacks) > 3 {
		t.Errorf("expected 1-3 fallbacks, got %v", res.Fallbacks)
	}
}

func TestSelfAssign(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"I'll take it", true},
		{"I will handle the deploy", true},
		{"I can pick this up", true},
		{"someone should take it", false},
		{"Bill will handle it", false},
	}
	for _, tt := range tests {
		if got := SelfAssign(tt.text); got != tt.want {
			t.Errorf("SelfAssign(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
