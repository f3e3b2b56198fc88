// Package chat defines the /chat wire contract shared by the server and the client.
package chat

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the author of a conversation entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Entry is one element of the append-only conversation. Assistant entries may
// request tool calls; tool entries answer exactly one call by CallID.
type Entry struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	ToolCalls []Call `json:"tool_calls,omitempty"`
	CallID    string `json:"tool_call_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Call identifies a tool invocation. Pending calls travel between client and
// server so any server instance can resume the poll.
type Call struct {
	CallID    string          `json:"callId"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	CreatedAt time.Time       `json:"createdAt,omitzero"`
}

// Status summarizes a /chat response.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Request is the body of POST /chat. An empty Message with PendingCalls is a poll.
type Request struct {
	Message      string   `json:"message"`
	Conversation []Entry  `json:"conversation"`
	Username     string   `json:"username"`
	CompletedIDs []string `json:"completedMessageIds"`
	PendingCalls []Call   `json:"pending_calls,omitempty"`
}

// IsPoll reports whether the request carries no new user text.
func (r Request) IsPoll() bool {
	return strings.TrimSpace(r.Message) == ""
}

// Response is the body returned by POST /chat.
type Response struct {
	Conversation     []Entry  `json:"conversation"`
	Output           string   `json:"output,omitempty"`
	PendingCalls     []Call   `json:"pending_calls,omitempty"`
	Retry            bool     `json:"retry,omitempty"`
	Status           Status   `json:"status,omitempty"`
	CompletedCallIDs []string `json:"completed_call_ids,omitempty"`
}

// Clone copies the conversation so appends never alias the caller's slice.
func Clone(conv []Entry) []Entry {
	out := make([]Entry, len(conv))
	copy(out, conv)
	return out
}

// CallIDs lists the ids of calls in order.
func CallIDs(calls []Call) []string {
	ids := make([]string, 0, len(calls))
	for _, c := range calls {
		ids = append(ids, c.CallID)
	}
	return ids
}

// DanglingCalls returns assistant tool calls that have no tool entry answering them.
func DanglingCalls(conv []Entry) []Call {
	answered := make(map[string]bool)
	for _, e := range conv {
		if e.Role == RoleTool && e.CallID != "" {
			answered[e.CallID] = true
		}
	}

	var dangling []Call
	for _, e := range conv {
		if e.Role != RoleAssistant {
			continue
		}
		for _, c := range e.ToolCalls {
			if !answered[c.CallID] {
				dangling = append(dangling, c)
			}
		}
	}
	return dangling
}
