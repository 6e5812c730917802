package quizbank

import (
	"reflect"
	"testing"
)

func TestLoadEmbedded(t *testing.T) {
	b, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Len() < 10 {
		t.Fatalf("built-in bank too small: %d", b.Len())
	}
}

func TestForChallengeIsSharedAndBounded(t *testing.T) {
	b, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	first := b.ForChallenge("c-123", 5)
	second := b.ForChallenge("c-123", 5)
	if len(first) != 5 || !reflect.DeepEqual(first, second) {
		t.Fatalf("same challenge must yield the same list")
	}
	if all := b.ForChallenge("c-123", 0); len(all) != b.Len() {
		t.Fatalf("n<=0 should return the whole bank, got %d", len(all))
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":      "questions: []\n",
		"no choices": "questions:\n  - prompt: q\n    choices: [a]\n    answer: 0\n",
		"bad answer": "questions:\n  - prompt: q\n    choices: [a, b]\n    answer: 2\n",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	b, err := Parse([]byte("questions:\n  - prompt: q\n    choices: [a, b]\n    answer: 1\n"))
	if err != nil || !b.questions[0].Check(1) || b.questions[0].Check(0) {
		t.Fatalf("valid bank rejected or Check wrong: %v", err)
	}
}
