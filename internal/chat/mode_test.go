package chat

import (
	"strings"
	"testing"
)

func TestSelectModeAcademicOnlyForExactIdentifier(t *testing.T) {
	cases := map[string]Mode{
		"academic":             ModeAcademic,
		"clinical":             ModeClinical,
		"Academic":             ModeClinical,
		" academic":            ModeClinical,
		"":                     ModeClinical,
		"mistral-large-latest": ModeClinical,
	}

	for model, want := range cases {
		if got := SelectMode(model).Mode; got != want {
			t.Fatalf("SelectMode(%q) = %s, want %s", model, got, want)
		}
	}
}

func TestSelectModeIsDeterministic(t *testing.T) {
	first := SelectMode("academic")
	second := SelectMode("academic")
	if first != second {
		t.Fatalf("expected identical selections, got %+v and %+v", first, second)
	}
}

func TestComposeSystemPromptEndsWithModeTagAndInstruction(t *testing.T) {
	selection := SelectMode("clinical")
	prompt := ComposeSystemPrompt("Base prompt", "default", selection)

	want := "Base prompt\n\nMode: CLINICAL\n" + selection.Instruction
	if prompt != want {
		t.Fatalf("unexpected prompt:\n%s", prompt)
	}
}

func TestComposeSystemPromptFallsBackToDefault(t *testing.T) {
	selection := SelectMode("academic")
	prompt := ComposeSystemPrompt("", "Default prompt", selection)

	if !strings.HasPrefix(prompt, "Default prompt\n\nMode: ACADEMIC\n") {
		t.Fatalf("expected default base with academic tag, got %q", prompt)
	}
	if !strings.HasSuffix(prompt, selection.Instruction) {
		t.Fatalf("expected prompt to end with academic instruction, got %q", prompt)
	}
}
