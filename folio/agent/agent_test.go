package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/folio/folio/agent/adapters"
	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/ZanzyTHEbar/folio/folio/chat"
	"github.com/ZanzyTHEbar/folio/folio/config"
)

// StubProvider implements Provider for testing. It records every prompt it sees.
type StubProvider struct {
	mu             sync.Mutex
	prompts        []ports.PromptInput
	completionFunc func(in ports.PromptInput) (ports.Completion, error)
}

func (p *StubProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, in)
	p.mu.Unlock()
	if p.completionFunc != nil {
		return p.completionFunc(in)
	}
	return ports.Completion{Text: "stub completion"}, nil
}

func (p *StubProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func (p *StubProvider) lastPrompt() ports.PromptInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts[len(p.prompts)-1]
}

// toolThenAnswer calls tool once per turn, then echoes the tool result back.
func toolThenAnswer(tool, args string) func(in ports.PromptInput) (ports.Completion, error) {
	return func(in ports.PromptInput) (ports.Completion, error) {
		last := in.Messages[len(in.Messages)-1]
		if last.Role == chat.RoleTool {
			return ports.Completion{Text: "tool said: " + last.Content}, nil
		}
		return ports.Completion{ToolCalls: []ports.ToolCall{{Name: tool, Args: json.RawMessage(args)}}}, nil
	}
}

// StubTool implements Tool for testing.
type StubTool struct {
	name   string
	schema string
	result string
	err    error
	panics bool
}

func (t *StubTool) Name() string        { return t.name }
func (t *StubTool) Description() string { return "stub tool " + t.name }
func (t *StubTool) Schema() []byte      { return []byte(t.schema) }
func (t *StubTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	if t.panics {
		panic("boom")
	}
	return t.result, t.err
}

// StubDeferredTool blocks until released.
type StubDeferredTool struct {
	StubTool
	release chan struct{}
}

func newDeferred(name, result string) *StubDeferredTool {
	return &StubDeferredTool{StubTool: StubTool{name: name, result: result}, release: make(chan struct{})}
}

func (t *StubDeferredTool) Deferred() {}
func (t *StubDeferredTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	select {
	case <-t.release:
		return t.StubTool.Invoke(ctx, args)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type rejectLimiter struct{}

func (rejectLimiter) Acquire(ctx context.Context, key string) (func(), error) {
	return nil, errors.New("denied")
}

type testRig struct {
	provider   *StubProvider
	ledger     *adapters.MemoryLedger
	dispatcher *Dispatcher
	orch       *Orchestrator
}

func newRig(t *testing.T, fn func(in ports.PromptInput) (ports.Completion, error), tools ...ports.Tool) *testRig {
	t.Helper()
	ledger := adapters.NewMemoryLedger()
	n := 0
	dispatcher := NewDispatcher(ledger, WithIDSource(func() string {
		n++
		return fmt.Sprintf("call-%02d", n)
	}))
	dispatcher.Register(tools...)
	t.Cleanup(dispatcher.Close)

	provider := &StubProvider{completionFunc: fn}
	orch := NewOrchestrator(provider, dispatcher, ledger, nil, nil, nil, DefaultPolicy(), zerolog.Nop())
	return &testRig{provider: provider, ledger: ledger, dispatcher: dispatcher, orch: orch}
}

func waitResolved(t *testing.T, ledger ports.Ledger, callID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		rec, err := ledger.Lookup(context.Background(), callID)
		return err == nil && rec.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
}

func pollOf(resp *chat.Response, completed ...string) chat.Request {
	return chat.Request{Conversation: resp.Conversation, PendingCalls: resp.PendingCalls, CompletedIDs: completed, Username: "visitor"}
}

func TestPlainAnswer(t *testing.T) {
	rig := newRig(t, nil)

	resp, err := rig.orch.AdvanceTurn(context.Background(), chat.Request{Message: "hello", Username: "visitor"})
	require.NoError(t, err)

	assert.Equal(t, "stub completion", resp.Output)
	assert.Equal(t, chat.StatusCompleted, resp.Status)
	assert.Empty(t, resp.PendingCalls)
	require.Len(t, resp.Conversation, 2)
	assert.Equal(t, chat.RoleUser, resp.Conversation[0].Role)
	assert.Equal(t, chat.RoleAssistant, resp.Conversation[1].Role)
}

func TestImmediateToolCompletesInOneTurn(t *testing.T) {
	tool := &StubTool{name: "query_profile_info", result: "Go developer"}
	rig := newRig(t, toolThenAnswer("query_profile_info", `{}`), tool)

	resp, err := rig.orch.AdvanceTurn(context.Background(), chat.Request{Message: "what do you do?"})
	require.NoError(t, err)

	assert.Equal(t, "tool said: Go developer", resp.Output)
	assert.Empty(t, resp.PendingCalls)
	require.Len(t, resp.Conversation, 4)
	assert.Equal(t, "call-01", resp.Conversation[1].ToolCalls[0].CallID)
	assert.Equal(t, "call-01", resp.Conversation[2].CallID)
	assert.Equal(t, 2, rig.provider.calls())
}

func TestDeferredToolLifecycle(t *testing.T) {
	ctx := context.Background()
	tool := newDeferred("discord_tool", "Samarth: sure, Friday works")
	rig := newRig(t, toolThenAnswer("discord_tool", `{"message":{"content":"free friday?"}}`), tool)

	resp, err := rig.orch.AdvanceTurn(ctx, chat.Request{Message: "is he free friday?", Username: "visitor"})
	require.NoError(t, err)
	assert.Equal(t, "Using discord tool, please wait...", resp.Output)
	assert.Equal(t, chat.StatusPending, resp.Status)
	require.Len(t, resp.PendingCalls, 1)
	callID := resp.PendingCalls[0].CallID

	// Still running: retry with the conversation unchanged
	waiting, err := rig.orch.AdvanceTurn(ctx, pollOf(resp))
	require.NoError(t, err)
	assert.True(t, waiting.Retry)
	assert.Empty(t, waiting.Output)
	assert.Equal(t, resp.Conversation, waiting.Conversation)
	assert.Equal(t, resp.PendingCalls, waiting.PendingCalls)

	close(tool.release)
	rig.dispatcher.Wait()

	done, err := rig.orch.AdvanceTurn(ctx, pollOf(resp))
	require.NoError(t, err)
	assert.False(t, done.Retry)
	assert.Equal(t, "tool said: Samarth: sure, Friday works", done.Output)
	assert.Equal(t, []string{callID}, done.CompletedCallIDs)
	assert.Equal(t, chat.StatusCompleted, done.Status)

	// A stray duplicate poll delivers nothing
	again, err := rig.orch.AdvanceTurn(ctx, pollOf(resp))
	require.NoError(t, err)
	assert.Empty(t, again.Output)
	assert.Empty(t, again.CompletedCallIDs)
}

type recordingTracer struct {
	mu    sync.Mutex
	spans map[string]map[string]any
}

func (r *recordingTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spans == nil {
		r.spans = make(map[string]map[string]any)
	}
	r.spans[name] = attrs
	return ctx, func(err error) {}
}

func (r *recordingTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

func TestPollSpanNamesPendingCalls(t *testing.T) {
	rig := newRig(t, nil)
	tracer := &recordingTracer{}
	orch := NewOrchestrator(rig.provider, rig.dispatcher, rig.ledger, nil, nil, tracer, DefaultPolicy(), zerolog.Nop())

	req := chat.Request{
		PendingCalls: []chat.Call{{CallID: "c1", Tool: "discord_tool"}, {CallID: "c2", Tool: "teams_tool"}},
		CompletedIDs: []string{"c1", "c2"},
	}
	_, err := orch.AdvanceTurn(context.Background(), req)
	require.NoError(t, err)

	tracer.mu.Lock()
	defer tracer.mu.Unlock()
	require.Contains(t, tracer.spans, "advance_turn")
	assert.Equal(t, []string{"c1", "c2"}, tracer.spans["advance_turn"]["pending"])
	assert.Equal(t, true, tracer.spans["advance_turn"]["poll"])
}

func TestPollSkipsCompletedIDs(t *testing.T) {
	rig := newRig(t, nil)
	req := chat.Request{PendingCalls: []chat.Call{{CallID: "c1", Tool: "discord_tool"}}, CompletedIDs: []string{"c1"}}

	resp, err := rig.orch.AdvanceTurn(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, resp.Output)
	assert.False(t, resp.Retry)
	assert.Equal(t, 0, rig.provider.calls())
}

func TestConcurrentPollsDeliverOnce(t *testing.T) {
	ctx := context.Background()
	tool := newDeferred("discord_tool", "yes")
	rig := newRig(t, toolThenAnswer("discord_tool", `{}`), tool)

	resp, err := rig.orch.AdvanceTurn(ctx, chat.Request{Message: "ping", Username: "visitor"})
	require.NoError(t, err)
	close(tool.release)
	rig.dispatcher.Wait()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		outputs []string
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := rig.orch.AdvanceTurn(ctx, pollOf(resp))
			assert.NoError(t, err)
			if err == nil && r.Output != "" {
				mu.Lock()
				outputs = append(outputs, r.Output)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"tool said: yes"}, outputs)
}

func TestBatchWaitsForEveryCall(t *testing.T) {
	ctx := context.Background()
	fast := newDeferred("discord_tool", "from discord")
	slow := newDeferred("teams_tool", "from teams")
	rig := newRig(t, func(in ports.PromptInput) (ports.Completion, error) {
		if in.Messages[len(in.Messages)-1].Role == chat.RoleTool {
			var parts []string
			for _, m := range in.Messages {
				if m.Role == chat.RoleTool {
					parts = append(parts, m.Content)
				}
			}
			return ports.Completion{Text: strings.Join(parts, " + ")}, nil
		}
		return ports.Completion{ToolCalls: []ports.ToolCall{{Name: "discord_tool"}, {Name: "teams_tool"}}}, nil
	}, fast, slow)

	resp, err := rig.orch.AdvanceTurn(ctx, chat.Request{Message: "ask everywhere", Username: "visitor"})
	require.NoError(t, err)
	assert.Equal(t, "Using discord tool and teams tool, please wait...", resp.Output)
	require.Len(t, resp.PendingCalls, 2)

	close(fast.release)
	waitResolved(t, rig.ledger, "call-01")

	partial, err := rig.orch.AdvanceTurn(ctx, pollOf(resp))
	require.NoError(t, err)
	assert.True(t, partial.Retry)

	close(slow.release)
	rig.dispatcher.Wait()

	done, err := rig.orch.AdvanceTurn(ctx, pollOf(resp))
	require.NoError(t, err)
	assert.Equal(t, "from discord + from teams", done.Output)
	assert.ElementsMatch(t, []string{"call-01", "call-02"}, done.CompletedCallIDs)
}

func TestDeferredFailureIsDelivered(t *testing.T) {
	ctx := context.Background()
	tool := newDeferred("discord_tool", "")
	tool.err = errors.New("discord unreachable")
	rig := newRig(t, toolThenAnswer("discord_tool", `{}`), tool)

	resp, err := rig.orch.AdvanceTurn(ctx, chat.Request{Message: "ping", Username: "visitor"})
	require.NoError(t, err)
	close(tool.release)
	rig.dispatcher.Wait()

	done, err := rig.orch.AdvanceTurn(ctx, pollOf(resp))
	require.NoError(t, err)
	assert.Contains(t, done.Output, "discord unreachable")
}

func TestPendingCallExpires(t *testing.T) {
	ctx := context.Background()
	rig := newRig(t, toolThenAnswer("discord_tool", `{}`))
	created := time.Now().Add(-time.Hour)
	require.NoError(t, rig.ledger.Record(ctx, ports.PendingCall{CallID: "old", Tool: "discord_tool", CreatedAt: created}))

	req := chat.Request{
		Conversation: []chat.Entry{
			{Role: chat.RoleUser, Content: "ping"},
			{Role: chat.RoleAssistant, ToolCalls: []chat.Call{{CallID: "old", Tool: "discord_tool"}}},
		},
		PendingCalls: []chat.Call{{CallID: "old", Tool: "discord_tool"}},
	}
	resp, err := rig.orch.AdvanceTurn(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, resp.Output, timedOutResult)
	assert.Equal(t, []string{"old"}, resp.CompletedCallIDs)

	rec, err := rig.ledger.Lookup(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, ports.CallFailed, rec.Status)
	assert.True(t, rec.Delivered)
}

func TestPollIgnoresOtherVisitorsCalls(t *testing.T) {
	ctx := context.Background()
	tool := newDeferred("discord_tool", "Friday works")
	rig := newRig(t, toolThenAnswer("discord_tool", `{}`), tool)

	resp, err := rig.orch.AdvanceTurn(ctx, chat.Request{Message: "ping", Username: "visitor"})
	require.NoError(t, err)
	close(tool.release)
	rig.dispatcher.Wait()

	stolen := pollOf(resp)
	stolen.Username = "mallory"
	other, err := rig.orch.AdvanceTurn(ctx, stolen)
	require.NoError(t, err)
	assert.Contains(t, other.Output, missingRecord)
	assert.NotContains(t, other.Output, "Friday works")

	rec, err := rig.ledger.Lookup(ctx, resp.PendingCalls[0].CallID)
	require.NoError(t, err)
	assert.Equal(t, "visitor", rec.Owner)
	assert.False(t, rec.Delivered)

	done, err := rig.orch.AdvanceTurn(ctx, pollOf(resp))
	require.NoError(t, err)
	assert.Equal(t, "tool said: Friday works", done.Output)
}

func TestUnrecordedCallFails(t *testing.T) {
	rig := newRig(t, toolThenAnswer("discord_tool", `{}`))
	req := chat.Request{PendingCalls: []chat.Call{{CallID: "ghost", Tool: "discord_tool"}}}

	resp, err := rig.orch.AdvanceTurn(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, resp.Output, missingRecord)
	assert.Equal(t, []string{"ghost"}, resp.CompletedCallIDs)
}

func TestUnknownToolIsReported(t *testing.T) {
	rig := newRig(t, func(in ports.PromptInput) (ports.Completion, error) {
		return ports.Completion{ToolCalls: []ports.ToolCall{{Name: "launch_rockets"}}}, nil
	})

	resp, err := rig.orch.AdvanceTurn(context.Background(), chat.Request{Message: "launch"})
	require.NoError(t, err)
	assert.Equal(t, `Sorry, I can't use the "launch_rockets" tool here.`, resp.Output)
	assert.Empty(t, resp.PendingCalls)
	assert.Equal(t, 1, rig.provider.calls())
}

func TestTurnValidation(t *testing.T) {
	rig := newRig(t, nil)
	ctx := context.Background()

	_, err := rig.orch.AdvanceTurn(ctx, chat.Request{})
	assert.ErrorIs(t, err, ErrEmptyTurn)

	_, err = rig.orch.AdvanceTurn(ctx, chat.Request{Message: "hi", PendingCalls: []chat.Call{{CallID: "c1"}}})
	assert.ErrorIs(t, err, ErrTurnInProgress)

	limited := NewOrchestrator(rig.provider, rig.dispatcher, rig.ledger, nil, rejectLimiter{}, nil, nil, zerolog.Nop())
	_, err = limited.AdvanceTurn(ctx, chat.Request{Message: "hi"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestProviderFailure(t *testing.T) {
	rig := newRig(t, func(in ports.PromptInput) (ports.Completion, error) {
		return ports.Completion{}, errors.New("upstream 500")
	})

	_, err := rig.orch.AdvanceTurn(context.Background(), chat.Request{Message: "hi"})
	assert.ErrorIs(t, err, ErrProvider)
}

func TestDanglingCallsAreClosed(t *testing.T) {
	rig := newRig(t, nil)
	req := chat.Request{
		Message: "never mind",
		Conversation: []chat.Entry{
			{Role: chat.RoleUser, Content: "ping"},
			{Role: chat.RoleAssistant, ToolCalls: []chat.Call{{CallID: "lost", Tool: "discord_tool"}}},
		},
	}

	_, err := rig.orch.AdvanceTurn(context.Background(), req)
	require.NoError(t, err)

	msgs := rig.provider.lastPrompt().Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, chat.RoleTool, msgs[2].Role)
	assert.Equal(t, "lost", msgs[2].CallID)
	assert.Equal(t, "never mind", msgs[3].Content)
	assert.Len(t, req.Conversation, 2, "caller conversation must not be modified")
}

func TestToolDepthIsBounded(t *testing.T) {
	tool := &StubTool{name: "list_meetings", result: "[]"}
	rig := newRig(t, func(in ports.PromptInput) (ports.Completion, error) {
		return ports.Completion{ToolCalls: []ports.ToolCall{{Name: "list_meetings"}}}, nil
	}, tool)

	resp, err := rig.orch.AdvanceTurn(context.Background(), chat.Request{Message: "loop"})
	require.NoError(t, err)
	assert.Equal(t, depthExceededReply, resp.Output)
	assert.Equal(t, DefaultPolicy().MaxToolDepth+1, rig.provider.calls())
}

func TestTextToolCallsAreParsed(t *testing.T) {
	tool := &StubTool{name: "query_profile_info", result: "profile"}
	rig := newRig(t, func(in ports.PromptInput) (ports.Completion, error) {
		if in.Messages[len(in.Messages)-1].Role == chat.RoleTool {
			return ports.Completion{Text: "done"}, nil
		}
		return ports.Completion{Text: `query_profile_info({"section": "skills"})`}, nil
	}, tool)

	resp, err := rig.orch.AdvanceTurn(context.Background(), chat.Request{Message: "skills?"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Output)
	assert.Equal(t, "query_profile_info", resp.Conversation[1].ToolCalls[0].Tool)
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	ledger := adapters.NewMemoryLedger()
	guard := NewGuardrails()
	guard.AddAllowedTool("echo")
	guard.AddAllowedTool("crash")
	d := NewDispatcher(ledger, WithGuardrails(guard))
	defer d.Close()
	d.Register(
		&StubTool{name: "echo", result: "hi", schema: `{"type":"object","required":["text"],"properties":{"text":{"type":"string"}}}`},
		&StubTool{name: "crash", panics: true},
		&StubTool{name: "hidden", result: "x"},
	)

	t.Run("immediate", func(t *testing.T) {
		res := d.Dispatch(ctx, ports.ToolCall{ID: "a", Name: "echo", Args: json.RawMessage(`{"text":"x"}`)}, "u")
		assert.Equal(t, ports.ResultImmediate, res.Status)
		assert.Equal(t, "hi", res.Output)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		res := d.Dispatch(ctx, ports.ToolCall{ID: "b", Name: "echo", Args: json.RawMessage(`{}`)}, "u")
		assert.Equal(t, ports.ResultError, res.Status)
		assert.ErrorIs(t, res.Err, ErrInvalidArguments)
	})

	t.Run("unknown", func(t *testing.T) {
		res := d.Dispatch(ctx, ports.ToolCall{Name: "nope"}, "u")
		assert.ErrorIs(t, res.Err, ErrUnsupportedTool)
		assert.NotEmpty(t, res.CallID)
	})

	t.Run("not allowed", func(t *testing.T) {
		res := d.Dispatch(ctx, ports.ToolCall{Name: "hidden"}, "u")
		assert.ErrorIs(t, res.Err, ErrUnsupportedTool)
		assert.False(t, d.Known("hidden"))
		for _, spec := range d.Specs() {
			assert.NotEqual(t, "hidden", spec.Name)
		}
	})

	t.Run("panic", func(t *testing.T) {
		res := d.Dispatch(ctx, ports.ToolCall{Name: "crash"}, "u")
		assert.Equal(t, ports.ResultError, res.Status)
		assert.Contains(t, res.Err.Error(), "panicked")
	})
}

func TestDispatcherCloseResolvesRunningJobs(t *testing.T) {
	ctx := context.Background()
	ledger := adapters.NewMemoryLedger()
	d := NewDispatcher(ledger)
	tool := newDeferred("discord_tool", "never")
	d.Register(tool)

	res := d.Dispatch(ctx, ports.ToolCall{ID: "job", Name: "discord_tool"}, "u")
	require.Equal(t, ports.ResultPending, res.Status)

	d.Close()

	rec, err := ledger.Lookup(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, ports.CallFailed, rec.Status)
	assert.Equal(t, "u", rec.Owner)
}

func TestOutputParser(t *testing.T) {
	p := NewOutputParser()
	known := func(name string) bool { return name == "schedule_meeting" }

	calls := p.ParseToolCalls(`sure: schedule_meeting({title: 'Sync', datetime: '2025-01-01T10:00',}) and print({"x":1})`, known)
	require.Len(t, calls, 1)
	assert.Equal(t, "schedule_meeting", calls[0].Name)
	assert.JSONEq(t, `{"title":"Sync","datetime":"2025-01-01T10:00"}`, string(calls[0].Args))

	assert.Empty(t, p.ParseToolCalls("no calls here", known))
}

func TestHistoryWindow(t *testing.T) {
	conv := []chat.Entry{
		{Role: chat.RoleUser, Content: strings.Repeat("a", 400)},
		{Role: chat.RoleAssistant, Content: strings.Repeat("b", 400)},
		{Role: chat.RoleUser, Content: "short"},
		{Role: chat.RoleAssistant, ToolCalls: []chat.Call{{CallID: "c", Tool: "t"}}},
		{Role: chat.RoleTool, CallID: "c", Content: "r"},
	}

	w := NewHistoryWindow(50, nil)
	fitted := w.Fit(conv)
	require.Len(t, fitted, 3)
	assert.Equal(t, "short", fitted[0].Content)

	// a single oversized user turn is kept
	tiny := NewHistoryWindow(1, nil)
	assert.Len(t, tiny.Fit(conv), 3)

	assert.Len(t, NewHistoryWindow(0, nil).Fit(conv), 5)
}

func TestGuardrailsSanitize(t *testing.T) {
	g := NewGuardrails()
	out := g.SanitizeOutput("my api_key=sk-12345 and password: hunter2")
	assert.NotContains(t, out, "sk-12345")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "[REDACTED]")
}

func TestFactoryPolicyClamps(t *testing.T) {
	agentCfg := &config.AgentConfig{MaxToolDepth: 0, MaxIterations: 100, OwnerName: "Samarth"}
	ledgerCfg := &config.LedgerConfig{PendingTTL: time.Minute}
	f := NewFactory(agentCfg, ledgerCfg, nil, zerolog.Nop())

	policy := f.CreatePolicy()
	assert.Equal(t, 1, policy.MaxToolDepth)
	assert.Equal(t, 50, policy.MaxIterations)
	assert.Equal(t, time.Minute, policy.PendingTTL)
	assert.Contains(t, policy.System, "Samarth")

	_, isNoop := f.CreateCache().(*noOpCache)
	assert.True(t, isNoop)
	_, isNoop = f.CreateTranscriptStore().(*noOpStore)
	assert.True(t, isNoop)

	agentCfg.RateLimitEnabled = true
	agentCfg.RateLimitRPS = 1
	agentCfg.RateLimitBurst = 1
	_, isKeyed := f.CreateRateLimiter().(*adapters.KeyedLimiter)
	assert.True(t, isKeyed)
}
