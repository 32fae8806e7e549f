package chat

import "strings"

type Mode string

const (
	ModeClinical Mode = "clinical"
	ModeAcademic Mode = "academic"
)

const (
	academicInstruction = "You are in Academic mode: provide a structured, comprehensive explanation with key guidelines, pathophysiology, and short citations to Nelson sections."
	clinicalInstruction = "You are in Clinical mode: give concise, pragmatic steps, key red flags, and weight/age-based dosing; include brief Nelson section citations when applicable."
)

type ModeSelection struct {
	Mode        Mode
	Instruction string
}

// SelectMode maps the requested model identifier to a response mode. Only the
// exact identifier "academic" selects academic mode.
func SelectMode(model string) ModeSelection {
	if model == string(ModeAcademic) {
		return ModeSelection{Mode: ModeAcademic, Instruction: academicInstruction}
	}
	return ModeSelection{Mode: ModeClinical, Instruction: clinicalInstruction}
}

// ComposeSystemPrompt appends the mode tag and instruction to base, falling
// back to defaultPrompt when base is empty.
func ComposeSystemPrompt(base, defaultPrompt string, selection ModeSelection) string {
	if base == "" {
		base = defaultPrompt
	}
	return base + "\n\nMode: " + strings.ToUpper(string(selection.Mode)) + "\n" + selection.Instruction
}
