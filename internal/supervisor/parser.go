package supervisor

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// TerminalState is the closed set a captured pane is classified into
// (spec §4.5 step 4, glossary "terminal state parser").
type TerminalState string

const (
	StateIdle             TerminalState = "idle"
	StateWaitingForInput   TerminalState = "waiting_for_input"
	StatePermissionPrompt TerminalState = "permission_prompt"
	StateProcessing       TerminalState = "processing"
	StateContextWarning   TerminalState = "context_warning"
	StateError            TerminalState = "error"
	StateUnknown          TerminalState = "unknown"
)

// phrase is one candidate line the parser looks for, tolerant of minor
// rendering drift (ANSI-stripped whitespace, truncation) via an edit
// distance budget.
type phrase struct {
	text    string
	maxDist int
}

var (
	permissionPhrases = []phrase{
		{"do you want to proceed", 4},
		{"allow this action", 4},
		{"1. yes", 1},
	}
	contextWarningPhrases = []phrase{
		{"context window", 4},
		{"running low on context", 5},
		{"consider compacting", 5},
	}
	errorPhrases = []phrase{
		{"panic:", 0},
		{"fatal error", 2},
		{"traceback (most recent call last)", 6},
	}
	waitingPhrases = []phrase{
		{"how can i help", 4},
		{">", 0},
	}
	processingRegex = regexp.MustCompile(`(?i)(thinking|working|generating|running)\.{0,3}$`)
)

// ParseTerminalState classifies the last N lines of a pane's captured
// text using deterministic, allow-listed rules: substring and regex
// matching with a small fuzzy-match tolerance, never content semantics
// (spec §4.5 step 4: "no heuristics that look at content semantics").
func ParseTerminalState(captured string) TerminalState {
	lines := strings.Split(captured, "\n")
	if trailingBlankCount(lines) >= 2 {
		return StateIdle
	}

	tail := lastNonEmptyLines(lines, 8)
	if len(tail) == 0 {
		return StateIdle
	}
	joined := strings.ToLower(strings.Join(tail, "\n"))
	last := strings.ToLower(tail[len(tail)-1])

	if matchesAny(joined, errorPhrases) {
		return StateError
	}
	if matchesAny(joined, permissionPhrases) {
		return StatePermissionPrompt
	}
	if matchesAny(joined, contextWarningPhrases) {
		return StateContextWarning
	}
	if processingRegex.MatchString(last) {
		return StateProcessing
	}
	if matchesAny(last, waitingPhrases) {
		return StateWaitingForInput
	}
	return StateUnknown
}

// trailingBlankCount counts consecutive blank lines at the end of a pane
// capture: two or more is treated as idle (no spinner, no prompt text
// rendered — the assistant has nothing left to say).
func trailingBlankCount(lines []string) int {
	count := 0
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			break
		}
		count++
	}
	return count
}

func matchesAny(text string, phrases []phrase) bool {
	for _, p := range phrases {
		if strings.Contains(text, p.text) {
			return true
		}
		if p.maxDist > 0 && fuzzyContains(text, p.text, p.maxDist) {
			return true
		}
	}
	return false
}

// fuzzyContains slides a window the length of needle across text and
// accepts the first window within maxDist edits, tolerating the small
// amount of rendering drift (box-drawing glyphs, truncation) a live pane
// capture can introduce.
func fuzzyContains(text, needle string, maxDist int) bool {
	if len(needle) == 0 || len(text) < len(needle) {
		return false
	}
	for i := 0; i+len(needle) <= len(text); i++ {
		window := text[i : i+len(needle)]
		if levenshtein.ComputeDistance(window, needle) <= maxDist {
			return true
		}
	}
	return false
}

func lastNonEmptyLines(lines []string, n int) []string {
	var out []string
	for i := len(lines) - 1; i >= 0 && len(out) < n; i-- {
		trimmed := strings.TrimRight(lines[i], " \t\r")
		if trimmed == "" && len(out) == 0 {
			continue
		}
		out = append([]string{trimmed}, out...)
	}
	return out
}
