package chatclient

import (
	"errors"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/folio/folio/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingReply(callIDs ...string) *chat.Response {
	calls := make([]chat.Call, len(callIDs))
	for i, id := range callIDs {
		calls[i] = chat.Call{CallID: id, Tool: "discord_tool"}
	}
	return &chat.Response{
		Conversation: []chat.Entry{
			{Role: chat.RoleUser, Content: "Ask Samarth if he's free"},
			{Role: chat.RoleAssistant, ToolCalls: calls},
			{Role: chat.RoleAssistant, Content: "Using discord tool, please wait..."},
		},
		Output:       "Using discord tool, please wait...",
		PendingCalls: calls,
		Status:       chat.StatusPending,
	}
}

func retryReply(conv []chat.Entry, calls []chat.Call) *chat.Response {
	return &chat.Response{Conversation: conv, PendingCalls: calls, Retry: true, Status: chat.StatusPending}
}

func finalReply(text string, ids ...string) *chat.Response {
	return &chat.Response{
		Conversation:     []chat.Entry{{Role: chat.RoleAssistant, Content: text}},
		Output:           text,
		Status:           chat.StatusCompleted,
		CompletedCallIDs: ids,
	}
}

func renders(effects []Effect) []string {
	var out []string
	for _, e := range effects {
		if r, ok := e.(Render); ok {
			out = append(out, r.Text)
		}
	}
	return out
}

func onlyEffect[T Effect](t *testing.T, effects []Effect) T {
	t.Helper()
	for _, e := range effects {
		if v, ok := e.(T); ok {
			return v
		}
	}
	var zero T
	t.Fatalf("no %T in %v", zero, effects)
	return zero
}

func TestSendTransmitsTurn(t *testing.T) {
	m := Machine{}
	s := NewSession("visitor")
	s.Completed = []string{"old"}

	s, effects := m.Step(s, UserInput{Text: "  hello  "})
	assert.Equal(t, StateAwaitingResponse, s.State)
	assert.True(t, s.InFlight)
	assert.Equal(t, []string{"hello"}, renders(effects))

	post := onlyEffect[Post](t, effects)
	assert.Equal(t, s.Seq, post.Seq)
	assert.Equal(t, "hello", post.Request.Message)
	assert.Equal(t, "visitor", post.Request.Username)
	assert.Equal(t, []string{"old"}, post.Request.CompletedIDs)
	assert.NotNil(t, post.Request.Conversation)
	assert.Empty(t, post.Request.PendingCalls)
}

func TestEmptyOrBusyInputIgnored(t *testing.T) {
	m := Machine{}
	s := NewSession("v")

	next, effects := m.Step(s, UserInput{Text: "   "})
	assert.Equal(t, s, next)
	assert.Empty(t, effects)

	s, _ = m.Step(s, UserInput{Text: "hi"})
	next, effects = m.Step(s, UserInput{Text: "again"})
	assert.Equal(t, s, next)
	assert.Empty(t, effects)
}

func TestImmediateAnswer(t *testing.T) {
	m := Machine{}
	s, effects := m.Step(NewSession("v"), UserInput{Text: "hi"})
	post := onlyEffect[Post](t, effects)

	s, effects = m.Step(s, Reply{Seq: post.Seq, Response: finalReply("Hello!")})
	assert.Equal(t, StateDone, s.State)
	assert.Equal(t, []string{"Hello!"}, renders(effects))
	assert.Len(t, s.Conversation, 1)
}

func TestPendingThenPollThenDone(t *testing.T) {
	m := Machine{Interval: 1500 * time.Millisecond}
	s, effects := m.Step(NewSession("v"), UserInput{Text: "Ask Samarth if he's free"})
	post := onlyEffect[Post](t, effects)

	pending := pendingReply("c1")
	s, effects = m.Step(s, Reply{Seq: post.Seq, Response: pending})
	assert.Equal(t, StateAwaitingTool, s.State)
	assert.Equal(t, []string{"Using discord tool, please wait..."}, renders(effects))
	sched := onlyEffect[Schedule](t, effects)
	assert.Equal(t, 1500*time.Millisecond, sched.After)

	// Two unresolved polls.
	for i := 0; i < 2; i++ {
		s, effects = m.Step(s, PollDue{Seq: sched.Seq})
		assert.Equal(t, StatePolling, s.State)
		post = onlyEffect[Post](t, effects)
		assert.Empty(t, post.Request.Message)
		assert.Equal(t, chat.CallIDs(pending.PendingCalls), chat.CallIDs(post.Request.PendingCalls))
		assert.Equal(t, pending.Conversation, post.Request.Conversation)

		s, effects = m.Step(s, Reply{Seq: post.Seq, Response: retryReply(post.Request.Conversation, post.Request.PendingCalls)})
		assert.Empty(t, renders(effects))
		sched = onlyEffect[Schedule](t, effects)
		assert.Equal(t, pending.Conversation, s.Conversation)
	}
	assert.Equal(t, 2, s.Attempts)

	s, effects = m.Step(s, PollDue{Seq: sched.Seq})
	post = onlyEffect[Post](t, effects)
	s, effects = m.Step(s, Reply{Seq: post.Seq, Response: finalReply("He said yes.", "c1")})
	assert.Equal(t, StateDone, s.State)
	assert.Equal(t, []string{"He said yes."}, renders(effects))
	assert.True(t, s.IsCompleted("c1"))
	assert.Empty(t, s.Pending)

	// A stray duplicate of the final reply never renders again.
	next, effects := m.Step(s, Reply{Seq: post.Seq, Response: finalReply("He said yes.", "c1")})
	assert.Empty(t, effects)
	assert.Equal(t, s, next)
}

func TestDuplicateCompletedIDsNotRendered(t *testing.T) {
	m := Machine{}
	s := NewSession("v")
	s.Completed = []string{"c1"}
	s.State = StatePolling
	s.Pending = []chat.Call{{CallID: "c1", Tool: "discord_tool"}}
	s.Seq = 4
	s.InFlight = true

	s, effects := m.Step(s, Reply{Seq: 4, Response: finalReply("He said yes.", "c1")})
	assert.Empty(t, renders(effects))
	assert.Equal(t, StateDone, s.State)
	assert.Equal(t, []string{"c1"}, s.Completed)
}

func TestPartiallyNewCompletedIDsRender(t *testing.T) {
	m := Machine{}
	s := NewSession("v")
	s.Completed = []string{"c1"}
	s.State = StatePolling
	s.Seq = 1
	s.InFlight = true

	s, effects := m.Step(s, Reply{Seq: 1, Response: finalReply("both done", "c1", "c2")})
	assert.Equal(t, []string{"both done"}, renders(effects))
	assert.Equal(t, []string{"c1", "c2"}, s.Completed)
}

func TestChainedPendingBatchResetsAttempts(t *testing.T) {
	m := Machine{MaxAttempts: 3}
	s := NewSession("v")
	s.State = StatePolling
	s.Pending = []chat.Call{{CallID: "c1"}}
	s.Attempts = 2
	s.Seq = 7
	s.InFlight = true

	next := pendingReply("c2")
	next.CompletedCallIDs = []string{"c1"}
	s, effects := m.Step(s, Reply{Seq: 7, Response: next})

	assert.Equal(t, StateAwaitingTool, s.State)
	assert.Equal(t, 0, s.Attempts)
	assert.True(t, s.IsCompleted("c1"))
	assert.Equal(t, []string{"c2"}, chat.CallIDs(s.Pending))
	onlyEffect[Schedule](t, effects)
}

func TestPollBudgetExhausts(t *testing.T) {
	m := Machine{MaxAttempts: 30}
	s, effects := m.Step(NewSession("v"), UserInput{Text: "ask him"})
	post := onlyEffect[Post](t, effects)
	s, effects = m.Step(s, Reply{Seq: post.Seq, Response: pendingReply("c1")})

	posts := 0
	for {
		sched, ok := findSchedule(effects)
		if !ok {
			break
		}
		s, effects = m.Step(s, PollDue{Seq: sched.Seq})
		post := onlyEffect[Post](t, effects)
		posts++
		s, effects = m.Step(s, Reply{Seq: post.Seq, Response: retryReply(s.Conversation, s.Pending)})
	}

	assert.Equal(t, 30, posts)
	assert.Equal(t, StateTimedOut, s.State)
	assert.Equal(t, []string{TimeoutMessage}, renders(effects))
	assert.Empty(t, s.Pending)

	// A late timer after the timeout does nothing.
	_, effects = m.Step(s, PollDue{Seq: s.Seq})
	assert.Empty(t, effects)
}

func findSchedule(effects []Effect) (Schedule, bool) {
	for _, e := range effects {
		if s, ok := e.(Schedule); ok {
			return s, true
		}
	}
	return Schedule{}, false
}

func TestTransportFailureIsTerminal(t *testing.T) {
	m := Machine{}
	s, effects := m.Step(NewSession("v"), UserInput{Text: "hi"})
	post := onlyEffect[Post](t, effects)
	s, effects = m.Step(s, Reply{Seq: post.Seq, Response: pendingReply("c1")})
	sched := onlyEffect[Schedule](t, effects)
	s, effects = m.Step(s, PollDue{Seq: sched.Seq})
	post = onlyEffect[Post](t, effects)

	s, effects = m.Step(s, TransportFailure{Seq: post.Seq, Err: errors.New("connection refused")})
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, []string{ConnectionMessage}, renders(effects))
	assert.Empty(t, s.Pending)
	require.Len(t, effects, 1)

	// The visitor can start over.
	s, effects = m.Step(s, UserInput{Text: "hello?"})
	assert.Equal(t, StateAwaitingResponse, s.State)
	onlyEffect[Post](t, effects)
}

func TestStaleEventsIgnored(t *testing.T) {
	m := Machine{}
	s, effects := m.Step(NewSession("v"), UserInput{Text: "hi"})
	post := onlyEffect[Post](t, effects)

	next, effects := m.Step(s, Reply{Seq: post.Seq - 1, Response: finalReply("old")})
	assert.Empty(t, effects)
	assert.Equal(t, s, next)

	next, effects = m.Step(s, TransportFailure{Seq: post.Seq + 1, Err: errors.New("x")})
	assert.Empty(t, effects)
	assert.Equal(t, s, next)

	// A poll timer cannot fire while a request is in flight.
	next, effects = m.Step(s, PollDue{Seq: post.Seq})
	assert.Empty(t, effects)
	assert.Equal(t, s, next)
}

func TestAbandonDropsTurn(t *testing.T) {
	m := Machine{}
	s, effects := m.Step(NewSession("v"), UserInput{Text: "hi"})
	post := onlyEffect[Post](t, effects)
	s, _ = m.Step(s, Reply{Seq: post.Seq, Response: pendingReply("c1")})

	s, effects = m.Step(s, Abandon{})
	assert.Empty(t, effects)
	assert.Equal(t, StateIdle, s.State)
	assert.Empty(t, s.Pending)

	_, effects = m.Step(s, PollDue{Seq: post.Seq})
	assert.Empty(t, effects)
}

func TestNilResponseTreatedAsFailure(t *testing.T) {
	m := Machine{}
	s, effects := m.Step(NewSession("v"), UserInput{Text: "hi"})
	post := onlyEffect[Post](t, effects)

	s, effects = m.Step(s, Reply{Seq: post.Seq})
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, []string{ConnectionMessage}, renders(effects))
}

func TestStepDoesNotAliasSession(t *testing.T) {
	m := Machine{}
	s := NewSession("v")
	s.Completed = []string{"a"}
	s.State = StatePolling
	s.Seq = 1
	s.InFlight = true

	before := s.Completed
	_, _ = m.Step(s, Reply{Seq: 1, Response: finalReply("x", "b")})
	assert.Equal(t, []string{"a"}, before)
}
