package constraints

import "testing"

func TestParseNoDirective(t *testing.T) {
	c := Parse("what's the weather like")
	if c.Active() {
		t.Fatalf("expected inactive constraints, got %+v", c)
	}
}

func TestParseOneWord(t *testing.T) {
	c := Parse("answer in one word please")
	if !c.OneWord {
		t.Fatalf("expected OneWord=true")
	}
	if c.Instructions == "" {
		t.Fatalf("expected rendered instructions")
	}
}

func TestParseExactBulletCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"give me exactly 3 bullet points", 3},
		{"respond with exactly five bullet points", 5},
	}
	for _, tt := range tests {
		c := Parse(tt.text)
		if c.ExactBulletCount != tt.want {
			t.Fatalf("text=%q: got %d, want %d", tt.text, c.ExactBulletCount, tt.want)
		}
	}
}

func TestParseJSONOnlyWithKeys(t *testing.T) {
	c := Parse("respond json only with keys risk, action")
	if !c.JSONOnly {
		t.Fatalf("expected JSONOnly=true")
	}
	if len(c.RequiredJSONKeys) != 2 || c.RequiredJSONKeys[0] != "risk" || c.RequiredJSONKeys[1] != "action" {
		t.Fatalf("unexpected keys: %+v", c.RequiredJSONKeys)
	}
}

func TestParseSentenceCount(t *testing.T) {
	c := Parse("answer in exactly two sentences")
	if c.SentenceCount != 2 {
		t.Fatalf("got %d, want 2", c.SentenceCount)
	}
}
