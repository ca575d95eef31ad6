package server

import (
	"encoding/base64"
	"encoding/json"

	"github.com/orka-sh/orka-core/internal/event"
)

// marshalEventData renders an event's data payload as JSON for SSE/WS
// transport. A marshal failure (never expected: every event.Event carries
// a JSON-tagged struct) is returned to the caller, and the SSE writer then
// skips the whole frame.
func marshalEventData(ev event.Event) ([]byte, error) {
	return json.Marshal(ev.Data)
}

// encodeProjectPath mirrors the convention the spec's HTTP surface uses for
// every :enc path/query segment: a project's absolute filesystem path is
// opaque to URLs, so it travels base64-encoded (unpadded, URL-safe) rather
// than raw (spec §6 "Every project in the URL is base64-encoded").
func encodeProjectPath(path string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(path))
}

func decodeProjectPath(enc string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
