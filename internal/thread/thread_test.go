package thread

import "testing"

func TestCountTokensMinimumOne(t *testing.T) {
	if got := CountTokens(""); got != 1 {
		t.Errorf("empty text should cost 1 token, got %d", got)
	}
	if got := CountTokens("abcdefgh"); got != 3 {
		t.Errorf("expected 3 tokens for 8 chars, got %d", got)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  a &lt;b&gt; &amp; c\r\n")
	want := "a <b> & c"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestCanonicalID(t *testing.T) {
	if got := CanonicalID("slack", "1718732.0041"); got != "slack:1718732.0041" {
		t.Errorf("CanonicalID = %q", got)
	}
}

func TestPositiveReactions(t *testing.T) {
	m := Message{Reactions: map[string]int{
		"+1":       3,
		"tada":     1,
		"eyes":     5, // neutral, must not count
		"thinking": 2,
	}}
	if got := PositiveReactions(m); got != 4 {
		t.Errorf("PositiveReactions = %d, want 4", got)
	}
}
