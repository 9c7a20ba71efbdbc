package constraints

import (
	"testing"

	"github.com/nova-run/orchestrator/pkg/models"
)

func TestValidateOneWord(t *testing.T) {
	c := models.OutputConstraints{OneWord: true}
	if !Validate(c, `"Acknowledged."`) {
		t.Fatalf("expected quoted+punctuated single word to validate")
	}
	if Validate(c, "two words") {
		t.Fatalf("expected two words to fail")
	}
}

func TestValidateBullets(t *testing.T) {
	c := models.OutputConstraints{ExactBulletCount: 2}
	if !Validate(c, "- first\n- second") {
		t.Fatalf("expected two bullets to validate")
	}
	if Validate(c, "- first\n- second\n- third") {
		t.Fatalf("expected three bullets to fail")
	}
	if Validate(c, "* first\n* second") {
		t.Fatalf("expected non-dash bullets to fail")
	}
}

func TestValidateJSONOnly(t *testing.T) {
	c := models.OutputConstraints{JSONOnly: true, RequiredJSONKeys: []string{"risk", "action"}}
	if !Validate(c, `{"risk":"low","action":"hold"}`) {
		t.Fatalf("expected matching keys to validate")
	}
	if Validate(c, "```json\n{\"risk\":\"low\",\"action\":\"hold\"}\n```") {
		t.Fatalf("expected fenced json to fail")
	}
	if Validate(c, `{"risk":"low"}`) {
		t.Fatalf("expected missing key to fail")
	}
	if Validate(c, `{"risk":"low","action":"hold","extra":"x"}`) {
		t.Fatalf("expected extra key to fail")
	}
}

func TestValidateSentenceCount(t *testing.T) {
	c := models.OutputConstraints{SentenceCount: 2}
	if !Validate(c, "First sentence. Second sentence!") {
		t.Fatalf("expected two sentences to validate")
	}
	if Validate(c, "Only one.") {
		t.Fatalf("expected one sentence to fail")
	}
}

func TestValidateInactiveAlwaysPasses(t *testing.T) {
	if !Validate(models.OutputConstraints{}, "") {
		t.Fatalf("expected inactive constraints to trivially validate")
	}
}
