package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderEmbedded(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("duel.hud", map[string]any{"Remaining": "0:42", "Score": 2, "Strikes": 1, "MaxStrikes": 3})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, "0:42") || !strings.Contains(got, "1/3") {
		t.Fatalf("unexpected hud: %q", got)
	}
	if _, err := c.Render("duel.hud", map[string]any{"Score": 2}); err == nil {
		t.Fatalf("missing data keys should fail")
	}
	if _, err := c.Render("nope", nil); err == nil {
		t.Fatalf("unknown key should fail")
	}
	if err := c.Require("duel.question", "finish.timeout", "rematch.redirect"); err != nil {
		t.Fatalf("Require: %v", err)
	}
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("duel:\n  waiting: \"waiting for {{.Name}}\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("duel.waiting", map[string]string{"Name": "b"})
	if err != nil || got != "waiting for b" {
		t.Fatalf("override not applied: %q %v", got, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte("duel:\n  waiting: \"again\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("duplicate override keys should fail")
	}
}
