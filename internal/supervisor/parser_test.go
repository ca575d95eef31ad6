package supervisor

import "testing"

func TestParseTerminalState(t *testing.T) {
	cases := []struct {
		name string
		text string
		want TerminalState
	}{
		{"permission prompt", "Edit file foo.go?\nDo you want to proceed?\n1. Yes\n2. No", StatePermissionPrompt},
		{"context warning", "Running low on context window, consider compacting.", StateContextWarning},
		{"error", "panic: runtime error: index out of range", StateError},
		{"processing", "assistant is thinking...", StateProcessing},
		{"waiting for input", "How can I help you today?\n>", StateWaitingForInput},
		{"idle blank tail", "some prior output\n\n\n", StateIdle},
		{"empty capture", "", StateIdle},
		{"unrecognized", "xyz completely novel output with no markers", StateUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseTerminalState(tc.text)
			if got != tc.want {
				t.Fatalf("ParseTerminalState(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestFuzzyContainsToleratesMinorDrift(t *testing.T) {
	if !fuzzyContains("do you want to proced?", "do you want to proceed", 2) {
		t.Fatalf("expected fuzzy match within tolerance")
	}
	if fuzzyContains("totally different text here", "do you want to proceed", 2) {
		t.Fatalf("expected no match outside tolerance")
	}
}
