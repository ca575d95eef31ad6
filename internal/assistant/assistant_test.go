package assistant

import "testing"

func TestInvocation(t *testing.T) {
	c := New("assistant")

	cases := []struct {
		name        string
		resumeFrom  string
		sessionID   string
		forkSession bool
		want        string
	}{
		{"new session", "", "sess-1", false, "assistant new --session-id sess-1"},
		{"resume", "sess-1", "sess-1", false, "assistant resume sess-1"},
		{"fork", "parent-1", "fork-1", true, "assistant resume parent-1 fork-session --session-id fork-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Invocation(tc.resumeFrom, tc.sessionID, tc.forkSession)
			if got != tc.want {
				t.Fatalf("Invocation() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewDefaultsBinary(t *testing.T) {
	c := New("")
	if c.Binary != "assistant" {
		t.Fatalf("expected default binary name, got %q", c.Binary)
	}
}
