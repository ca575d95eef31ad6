package supervisor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// verdictDebouncer requires M consecutive matching LLM-fallback verdicts
// for the same agent before the engine applies one (spec
// §4.5, §8 property 9). It is the same sliding-window-of-hashes shape as
// the teacher's doom-loop detector, applied to decision verdicts instead
// of repeated tool calls.
type verdictDebouncer struct {
	mu      sync.Mutex
	history map[string][]string // agentID -> last N verdict hashes
}

func newVerdictDebouncer() *verdictDebouncer {
	return &verdictDebouncer{history: make(map[string][]string)}
}

// Observe records a verdict for agentID and reports whether the last
// `required` observations (including this one) all hash identically —
// the debouncer's gate for applying the verdict.
func (d *verdictDebouncer) Observe(agentID string, verdict any, required int) bool {
	hash := hashVerdict(verdict)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := append(d.history[agentID], hash)
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	d.history[agentID] = history

	if len(history) < required {
		return false
	}
	tail := history[len(history)-required:]
	for _, h := range tail {
		if h != hash {
			return false
		}
	}
	return true
}

// Reset clears the history for an agent, used once a verdict has been
// applied.
func (d *verdictDebouncer) Reset(agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, agentID)
}

func hashVerdict(verdict any) string {
	data, _ := json.Marshal(verdict)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
