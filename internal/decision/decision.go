// Package decision is the LLM fallback decision maker the supervisor's
// event loop consults when the deterministic fast path can't resolve an
// event (spec §4.5 step 6). It wraps the Anthropic Messages API directly
// — unlike the teacher's own internal/provider, which goes through the
// eino chat-model abstraction for its multi-provider agentic loop, this
// package only ever needs one fixed, structured-output call shape, so it
// talks to anthropic-sdk-go without an intervening abstraction layer.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/orka-sh/orka-core/internal/orkaerr"
)

// Action is the closed set of fallback actions the decision maker may
// return (spec §4.5 step 6).
type Action string

const (
	ActionRespond     Action = "respond"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionWait        Action = "wait"
	ActionRequestHelp Action = "request_help"
	ActionCompact     Action = "compact"
	ActionClear       Action = "clear"
	ActionEscape      Action = "escape"
)

// Request is the structured prompt handed to the decision maker.
type Request struct {
	EventType    string
	TerminalText string
	History      []string
}

// Reply is the structured verdict returned by the decision maker.
type Reply struct {
	Action   Action `json:"action"`
	Response string `json:"response,omitempty"`
	Reason   string `json:"reason"`
}

// Client talks to the Anthropic API for fallback decisions.
type Client struct {
	api     anthropic.Client
	model   anthropic.Model
	timeout time.Duration
}

// New builds a Client. It loads .env via godotenv (best-effort, matching
// the teacher's configuration-layering philosophy of env over defaults)
// before reading ANTHROPIC_API_KEY, so a developer checkout with a local
// .env works the same as a deployed one with the variable exported.
func New(model string, timeout time.Duration) (*Client, error) {
	_ = godotenv.Load()

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, orkaerr.New(orkaerr.KindFatalStartup, "ANTHROPIC_API_KEY not set")
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &Client{
		api:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   anthropic.Model(model),
		timeout: timeout,
	}, nil
}

const systemPrompt = `You are the fallback decision maker for an autonomous terminal supervisor.
You will be given an event type, a terminal capture, and recent history.
Reply with a single JSON object, no prose: {"action": one of
"respond","approve","reject","wait","request_help","compact","clear","escape",
"response": optional free text, "reason": short justification}.`

// Decide asks the model for a single structured verdict. It retries once
// when the API request fails for any reason other than ctx being done; it
// does not tell transient network errors apart from other request
// failures. A reply that is not valid JSON is not retried.
func (c *Client) Decide(ctx context.Context, req Request) (Reply, error) {
	prompt := fmt.Sprintf("event_type: %s\nterminal_text:\n%s\nhistory:\n%s",
		req.EventType, req.TerminalText, joinHistory(req.History))

	var reply Reply
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		msg, err := c.api.Messages.New(callCtx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: 512,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(orkaerr.Cancellation("decision request canceled"))
			}
			return orkaerr.Wrap(orkaerr.KindExternal, "anthropic request failed", err)
		}

		text := extractText(msg)
		var parsed Reply
		if jsonErr := json.Unmarshal([]byte(text), &parsed); jsonErr != nil {
			return backoff.Permanent(orkaerr.Wrap(orkaerr.KindExternal,
				"decision reply was not valid JSON: "+text, jsonErr))
		}
		reply = parsed
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func extractText(msg *anthropic.Message) string {
	var out string
	for _, block := range msg.Content {
		if text := block.Text; text != "" {
			out += text
		}
	}
	return out
}

func joinHistory(history []string) string {
	out := ""
	for _, h := range history {
		out += "- " + h + "\n"
	}
	return out
}
