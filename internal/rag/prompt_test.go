package rag

import (
	"strings"
	"testing"
)

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt([]string{"A", "B"}, "Q?")
	want := "Context:\n- A\n- B\n\nQuestion:\nQ?"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	a, b, q := strings.Index(got, "- A"), strings.Index(got, "- B"), strings.Index(got, "Question:\nQ?")
	if a < 0 || b < 0 || q < 0 || !(a < b && b < q) {
		t.Errorf("unexpected ordering in %q", got)
	}
}

func TestBuildPrompt_KeepsOrderAndContent(t *testing.T) {
	chunks := []string{"zeta chunk", "alpha chunk", "multi\nline chunk"}
	got := BuildPrompt(chunks, "why?")
	want := "Context:\n- zeta chunk\n- alpha chunk\n- multi\nline chunk\n\nQuestion:\nwhy?"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildPrompt_NoChunks(t *testing.T) {
	got := BuildPrompt(nil, "anything?")
	if got != "Context:\n\n\nQuestion:\nanything?" {
		t.Errorf("got %q", got)
	}
}
