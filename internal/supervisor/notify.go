package supervisor

import (
	"context"

	"github.com/orka-sh/orka-core/internal/logging"
)

// LogNotifier is the default Notifier: chat transport is an external black
// box (spec §1), so until a concrete integration is wired in, a "notify
// chat" action is only logged rather than silently dropped.
type LogNotifier struct{}

// Notify logs the message that would have been sent to the agent's chat
// surface.
func (LogNotifier) Notify(ctx context.Context, agentID, sessionID, message string) error {
	logging.Info().
		Str("agentID", agentID).
		Str("sessionID", sessionID).
		Str("message", message).
		Msg("chat notification (no transport configured)")
	return nil
}
