package chatclient

import (
	"strings"
	"time"

	"github.com/ZanzyTHEbar/folio/folio/chat"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 30

	TimeoutMessage    = "Sorry, still waiting for a response from the tool. Please try again later."
	ConnectionMessage = "Sorry, I'm having trouble connecting to the server. Please try again later."
)

// Event is an input to Machine.Step.
type Event interface{ event() }

// UserInput is text typed by the visitor.
type UserInput struct{ Text string }

// Reply is a decoded /chat response to request Seq.
type Reply struct {
	Seq      int
	Response *chat.Response
}

// TransportFailure reports that request Seq could not complete.
type TransportFailure struct {
	Seq int
	Err error
}

// PollDue fires when the delay scheduled after request Seq has elapsed.
type PollDue struct{ Seq int }

// Abandon drops the current turn without telling the server.
type Abandon struct{}

func (UserInput) event()        {}
func (Reply) event()            {}
func (TransportFailure) event() {}
func (PollDue) event()          {}
func (Abandon) event()          {}

// Effect is an action the driver performs for the machine.
type Effect interface{ effect() }

// Render shows a message in the transcript.
type Render struct {
	Role chat.Role
	Text string
}

// Post sends Request to POST /chat; its outcome comes back as Reply or
// TransportFailure with the same Seq.
type Post struct {
	Seq     int
	Request chat.Request
}

// Schedule asks for PollDue{Seq} after the delay.
type Schedule struct {
	Seq   int
	After time.Duration
}

func (Render) effect()   {}
func (Post) effect()     {}
func (Schedule) effect() {}

// Machine is the pure client protocol. The zero value uses the defaults.
type Machine struct {
	Interval    time.Duration
	MaxAttempts int
}

func (m Machine) interval() time.Duration {
	if m.Interval <= 0 {
		return DefaultPollInterval
	}
	return m.Interval
}

func (m Machine) maxAttempts() int {
	if m.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return m.MaxAttempts
}

// Step applies ev to s and returns the next session with the effects to run.
// Events for a request other than the one in flight are ignored.
func (m Machine) Step(s Session, ev Event) (Session, []Effect) {
	switch ev := ev.(type) {
	case UserInput:
		return m.send(s, ev.Text)
	case Reply:
		if !s.InFlight || ev.Seq != s.Seq {
			return s, nil
		}
		s.InFlight = false
		if ev.Response == nil {
			return m.fail(s)
		}
		return m.reply(s, ev.Response)
	case TransportFailure:
		if !s.InFlight || ev.Seq != s.Seq {
			return s, nil
		}
		s.InFlight = false
		return m.fail(s)
	case PollDue:
		if s.InFlight || ev.Seq != s.Seq || (s.State != StateAwaitingTool && s.State != StatePolling) {
			return s, nil
		}
		s.Seq++
		s.InFlight = true
		s.State = StatePolling
		return s, []Effect{Post{Seq: s.Seq, Request: s.request("")}}
	case Abandon:
		if s.State.Terminal() {
			return s, nil
		}
		s.Seq++
		s.InFlight = false
		s.Pending = nil
		s.Attempts = 0
		s.State = StateIdle
		return s, nil
	}
	return s, nil
}

func (m Machine) send(s Session, text string) (Session, []Effect) {
	text = strings.TrimSpace(text)
	if text == "" || !s.State.Terminal() {
		return s, nil
	}

	s.Seq++
	s.InFlight = true
	s.State = StateAwaitingResponse
	s.Pending = nil
	s.Attempts = 0
	return s, []Effect{
		Render{Role: chat.RoleUser, Text: text},
		Post{Seq: s.Seq, Request: s.request(text)},
	}
}

func (m Machine) reply(s Session, resp *chat.Response) (Session, []Effect) {
	// A reply whose results were all processed before is a duplicate delivery.
	duplicate := len(resp.CompletedCallIDs) > 0
	for _, id := range resp.CompletedCallIDs {
		if !s.IsCompleted(id) {
			duplicate = false
			break
		}
	}
	s.Completed = s.withCompleted(resp.CompletedCallIDs)

	if resp.Retry {
		s.Attempts++
		if s.Attempts >= m.maxAttempts() {
			s.Pending = nil
			s.State = StateTimedOut
			return s, []Effect{Render{Role: chat.RoleAssistant, Text: TimeoutMessage}}
		}
		s.State = StatePolling
		return s, []Effect{Schedule{Seq: s.Seq, After: m.interval()}}
	}

	if resp.Conversation != nil && !duplicate {
		s.Conversation = chat.Clone(resp.Conversation)
	}

	var effects []Effect
	if out := strings.TrimSpace(resp.Output); out != "" && !duplicate {
		effects = append(effects, Render{Role: chat.RoleAssistant, Text: out})
	}

	if len(resp.PendingCalls) > 0 && !duplicate {
		s.Pending = append([]chat.Call(nil), resp.PendingCalls...)
		s.Attempts = 0
		s.State = StateAwaitingTool
		return s, append(effects, Schedule{Seq: s.Seq, After: m.interval()})
	}

	s.Pending = nil
	s.State = StateDone
	return s, effects
}

func (m Machine) fail(s Session) (Session, []Effect) {
	s.Pending = nil
	s.Attempts = 0
	s.State = StateError
	return s, []Effect{Render{Role: chat.RoleAssistant, Text: ConnectionMessage}}
}
