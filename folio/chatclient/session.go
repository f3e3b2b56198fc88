// Package chatclient drives the /chat protocol from the visitor's side: it sends
// messages, renders replies and polls pending tool calls until they resolve.
package chatclient

import (
	"slices"

	"github.com/ZanzyTHEbar/folio/folio/chat"
)

// State is the position of the current turn.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting_response"
	StateAwaitingTool     State = "awaiting_tool"
	StatePolling          State = "polling"
	StateDone             State = "done"
	StateTimedOut         State = "timed_out"
	StateError            State = "error"
)

// Terminal reports whether a new message may be sent.
func (s State) Terminal() bool {
	switch s {
	case StateIdle, StateDone, StateTimedOut, StateError:
		return true
	}
	return false
}

// Session is the full client state for one visitor. It is a value: Step returns
// a new Session and never mutates slices of the one it was given.
type Session struct {
	Username     string
	State        State
	Conversation []chat.Entry
	// Completed holds every call id whose result has been processed, sorted.
	Completed []string
	Pending   []chat.Call
	// Attempts counts unresolved polls for the current pending batch.
	Attempts int
	// Seq numbers requests; only events carrying the current Seq are applied.
	Seq      int
	InFlight bool
}

// NewSession returns an idle session for username.
func NewSession(username string) Session {
	return Session{Username: username, State: StateIdle}
}

// IsCompleted reports whether id was already processed.
func (s Session) IsCompleted(id string) bool {
	_, ok := slices.BinarySearch(s.Completed, id)
	return ok
}

// withCompleted returns a copy of the completed set with ids added.
func (s Session) withCompleted(ids []string) []string {
	out := slices.Clone(s.Completed)
	for _, id := range ids {
		if i, ok := slices.BinarySearch(out, id); !ok {
			out = slices.Insert(out, i, id)
		}
	}
	return out
}

func (s Session) request(message string) chat.Request {
	req := chat.Request{
		Message:      message,
		Conversation: chat.Clone(s.Conversation),
		Username:     s.Username,
		CompletedIDs: slices.Clone(s.Completed),
	}
	if req.Conversation == nil {
		req.Conversation = []chat.Entry{}
	}
	if req.CompletedIDs == nil {
		req.CompletedIDs = []string{}
	}
	if message == "" {
		req.PendingCalls = slices.Clone(s.Pending)
	}
	return req
}
