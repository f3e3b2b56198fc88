package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/ZanzyTHEbar/folio/folio/notify"
)

// RelaySchema defines the JSON schema for side-channel relay tool parameters.
const RelaySchema = `{
  "type": "object",
  "properties": {
    "message": {
      "type": "object",
      "properties": {
        "content": {
          "type": "string",
          "description": "The message to pass on to the site owner",
          "minLength": 1
        }
      },
      "required": ["content"]
    }
  },
  "required": ["message"]
}`

// RelayArgs is the argument shape of relay tools.
type RelayArgs struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// RelayOptions configures a RelayTool.
type RelayOptions struct {
	Display  string        // channel name used in messages, e.g. "Discord"
	Interval time.Duration // reply poll cadence
	Budget   time.Duration // how long to wait for the owner
}

// RelayTool sends a visitor's message to the owner over a side channel and
// waits for the owner's reply. It is deferred: the dispatcher runs it in the
// background and the client polls for the outcome.
type RelayTool struct {
	name     string
	notifier notify.Notifier
	opts     RelayOptions
}

// NewRelayTool creates a relay tool named name over notifier.
func NewRelayTool(name string, notifier notify.Notifier, opts RelayOptions) *RelayTool {
	if opts.Display == "" {
		opts.Display = notifier.Name()
	}
	if opts.Budget <= 0 {
		opts.Budget = 60 * time.Second
	}
	return &RelayTool{name: name, notifier: notifier, opts: opts}
}

// NewDiscordTool creates discord_tool over notifier.
func NewDiscordTool(notifier notify.Notifier, interval, budget time.Duration) *RelayTool {
	return NewRelayTool("discord_tool", notifier, RelayOptions{Display: "Discord", Interval: interval, Budget: budget})
}

// NewTeamsTool creates teams_tool over notifier.
func NewTeamsTool(notifier notify.Notifier, interval, budget time.Duration) *RelayTool {
	return NewRelayTool("teams_tool", notifier, RelayOptions{Display: "Teams", Interval: interval, Budget: budget})
}

func (t *RelayTool) Name() string { return t.name }

func (t *RelayTool) Description() string {
	return fmt.Sprintf("Send a message to the site owner on %s and wait for their reply. Use for availability questions or anything only the owner can answer.", t.opts.Display)
}

func (t *RelayTool) Schema() []byte { return []byte(RelaySchema) }

func (t *RelayTool) Label() string { return strings.ToLower(t.opts.Display) + " tool" }

func (t *RelayTool) Deferred() {}

// Invoke sends the message and returns the owner's reply. No reply within the
// budget is an ordinary output, not an error.
func (t *RelayTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var in RelayArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	content := strings.TrimSpace(in.Message.Content)
	if content == "" {
		return nil, errors.New("message.content is required")
	}

	receipt, err := t.notifier.Send(ctx, content)
	if err != nil {
		return nil, err
	}

	reply, err := notify.AwaitReply(ctx, t.notifier, receipt, notify.AwaitOptions{
		Interval: t.opts.Interval,
		Budget:   t.opts.Budget,
	})
	if errors.Is(err, notify.ErrNoReply) {
		return fmt.Sprintf("No reply received from %s in time.", t.opts.Display), nil
	}
	if err != nil {
		return nil, err
	}
	return reply.Content, nil
}

var _ ports.DeferredTool = (*RelayTool)(nil)
