package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/ZanzyTHEbar/folio/folio/chat"
	"github.com/rs/zerolog"
)

const (
	unavailableResult  = `{"error":"result unavailable: the visitor stopped waiting"}`
	timedOutResult     = "timed out waiting for the tool"
	missingRecord      = "no record of this call"
	depthExceededReply = "Sorry, I couldn't finish that request. Please try rephrasing it."
	anonymousUser      = "anonymous"
)

// Policy controls orchestration behavior.
type Policy struct {
	MaxToolDepth     int           // max tool rounds per turn
	MaxIterations    int           // safeguard against infinite loops
	MaxContextTokens int           // conversation budget sent to the provider, 0 disables windowing
	PendingTTL       time.Duration // unresolved calls older than this fail on the next poll
	System           string        // system prompt
	Options          ports.Options // sampling options passed to the provider
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxToolDepth:     3,
		MaxIterations:    10,
		MaxContextTokens: 6000,
		PendingTTL:       5 * time.Minute,
		Options: ports.Options{
			MaxNewTokens: 512,
			Temperature:  0.7,
			TopP:         0.9,
			ToolChoice:   "auto",
		},
	}
}

// Orchestrator advances one conversation turn per /chat request. It keeps no
// per-conversation state: the client carries the conversation and pending
// calls, the ledger carries deferred tool outcomes.
type Orchestrator struct {
	provider   ports.Provider
	dispatcher *Dispatcher
	ledger     ports.Ledger
	builder    *PromptBuilder
	window     *HistoryWindow
	parser     *OutputParser
	store      ports.TranscriptStore
	limiter    ports.RateLimiter
	tracer     ports.Tracer
	policy     *Policy
	logger     zerolog.Logger
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. Nil adapters fall back to no-ops.
func NewOrchestrator(
	provider ports.Provider,
	dispatcher *Dispatcher,
	ledger ports.Ledger,
	store ports.TranscriptStore,
	limiter ports.RateLimiter,
	tracer ports.Tracer,
	policy *Policy,
	logger zerolog.Logger,
) *Orchestrator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if store == nil {
		store = &noOpStore{}
	}
	if limiter == nil {
		limiter = &noOpRateLimiter{}
	}
	if tracer == nil {
		tracer = &noOpTracer{}
	}
	return &Orchestrator{
		provider:   provider,
		dispatcher: dispatcher,
		ledger:     ledger,
		builder:    NewPromptBuilder(),
		window:     NewHistoryWindow(policy.MaxContextTokens, nil),
		parser:     NewOutputParser(),
		store:      store,
		limiter:    limiter,
		tracer:     tracer,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
	}
}

// AdvanceTurn handles a new visitor message or a poll for pending calls.
func (o *Orchestrator) AdvanceTurn(ctx context.Context, req chat.Request) (resp *chat.Response, err error) {
	if req.Username == "" {
		req.Username = anonymousUser
	}

	ctx, finish := o.tracer.StartSpan(ctx, "advance_turn", map[string]any{
		"username": req.Username,
		"poll":     req.IsPoll(),
		"pending":  chat.CallIDs(req.PendingCalls),
	})
	defer func() { finish(err) }()

	if req.IsPoll() {
		return o.poll(ctx, req)
	}
	return o.send(ctx, req)
}

func (o *Orchestrator) send(ctx context.Context, req chat.Request) (*chat.Response, error) {
	if len(req.PendingCalls) > 0 {
		return nil, ErrTurnInProgress
	}

	release, err := o.limiter.Acquire(ctx, "turn:"+req.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	defer release()

	conv := chat.Clone(req.Conversation)
	for _, call := range chat.DanglingCalls(conv) {
		conv = append(conv, chat.Entry{Role: chat.RoleTool, CallID: call.CallID, Name: call.Tool, Content: unavailableResult})
	}

	user := chat.Entry{Role: chat.RoleUser, Content: strings.TrimSpace(req.Message)}
	conv = append(conv, user)
	o.archive(ctx, req.Username, user)

	return o.reason(ctx, req.Username, conv)
}

func (o *Orchestrator) poll(ctx context.Context, req chat.Request) (*chat.Response, error) {
	if len(req.PendingCalls) == 0 {
		return nil, ErrEmptyTurn
	}

	completed := make(map[string]bool, len(req.CompletedIDs))
	for _, id := range req.CompletedIDs {
		completed[id] = true
	}

	var (
		ready   []ports.CallRecord
		unknown = make(map[string]bool)
	)
	for _, call := range req.PendingCalls {
		if completed[call.CallID] {
			continue
		}

		rec, err := o.ledger.Lookup(ctx, call.CallID)
		if err == nil && rec.Owner != "" && rec.Owner != req.Username {
			o.logger.Warn().Str("call_id", call.CallID).Str("username", req.Username).Msg("poll for a call owned by another visitor")
			err = ports.ErrCallNotFound
		}
		switch {
		case errors.Is(err, ports.ErrCallNotFound):
			rec = ports.CallRecord{
				PendingCall: ports.PendingCall{CallID: call.CallID, Tool: call.Tool},
				Status:      ports.CallFailed,
				Error:       missingRecord,
			}
			unknown[call.CallID] = true
		case err != nil:
			return nil, fmt.Errorf("failed to look up call %s: %w", call.CallID, err)
		}

		if rec.Delivered {
			continue
		}
		if !rec.Status.Terminal() {
			if o.policy.PendingTTL <= 0 || o.now().Sub(rec.CreatedAt) <= o.policy.PendingTTL {
				return &chat.Response{
					Conversation: req.Conversation,
					PendingCalls: req.PendingCalls,
					Retry:        true,
					Status:       chat.StatusPending,
				}, nil
			}
			if rec, err = o.expire(ctx, call.CallID); err != nil {
				return nil, err
			}
		}
		ready = append(ready, rec)
	}

	conv := chat.Clone(req.Conversation)
	if len(ready) == 0 {
		return &chat.Response{Conversation: conv, Status: chat.StatusCompleted}, nil
	}

	won, err := o.claim(ctx, ready, unknown)
	if err != nil {
		return nil, err
	}
	if !won {
		o.tracer.Event(ctx, "claim_lost", map[string]any{"call_ids": chat.CallIDs(req.PendingCalls)})
		return &chat.Response{Conversation: conv, Status: chat.StatusCompleted}, nil
	}

	ids := make([]string, 0, len(ready))
	for _, rec := range ready {
		ids = append(ids, rec.CallID)
		conv = append(conv, chat.Entry{Role: chat.RoleTool, CallID: rec.CallID, Name: rec.Tool, Content: recordContent(rec)})
	}

	resp, err := o.reason(ctx, req.Username, conv)
	if err != nil {
		o.logger.Error().Err(err).Strs("call_ids", ids).Msg("reasoning failed after tool results were claimed")
		output := o.dispatcher.Sanitize(o.fallbackOutput(ready))
		resp = &chat.Response{
			Conversation: append(conv, chat.Entry{Role: chat.RoleAssistant, Content: output}),
			Output:       output,
			Status:       chat.StatusCompleted,
		}
	}
	resp.CompletedCallIDs = ids
	return resp, nil
}

// expire resolves a stale call as failed and returns the winning record.
func (o *Orchestrator) expire(ctx context.Context, callID string) (ports.CallRecord, error) {
	err := o.ledger.Resolve(ctx, callID, ports.Resolution{Status: ports.CallFailed, Error: timedOutResult})
	if err != nil {
		return ports.CallRecord{}, fmt.Errorf("failed to expire call %s: %w", callID, err)
	}
	rec, err := o.ledger.Lookup(ctx, callID)
	if err != nil {
		return ports.CallRecord{}, fmt.Errorf("failed to look up call %s: %w", callID, err)
	}
	o.tracer.Event(ctx, "call_expired", map[string]any{"call_id": callID})
	return rec, nil
}

// claim makes the batch deliverable exactly once. The smallest recorded call
// id leads the batch so concurrent polls for the same batch contend on the
// same ledger row.
func (o *Orchestrator) claim(ctx context.Context, ready []ports.CallRecord, unknown map[string]bool) (bool, error) {
	var ids []string
	for _, rec := range ready {
		if !unknown[rec.CallID] {
			ids = append(ids, rec.CallID)
		}
	}
	if len(ids) == 0 {
		return true, nil
	}
	sort.Strings(ids)

	won, err := o.ledger.Claim(ctx, ids[0])
	if err != nil {
		return false, fmt.Errorf("failed to claim call %s: %w", ids[0], err)
	}
	if !won {
		return false, nil
	}
	for _, id := range ids[1:] {
		if _, err := o.ledger.Claim(ctx, id); err != nil {
			o.logger.Warn().Err(err).Str("call_id", id).Msg("failed to claim batch member")
		}
	}
	return true, nil
}

// reason runs the provider loop until it answers or hands back pending calls.
func (o *Orchestrator) reason(ctx context.Context, username string, conv []chat.Entry) (*chat.Response, error) {
	depth := 0
	for iteration := 1; ; iteration++ {
		if iteration > o.policy.MaxIterations {
			return nil, fmt.Errorf("%w: max iterations exceeded: %d", ErrProvider, o.policy.MaxIterations)
		}

		prompt := o.builder.Build(o.policy.System, o.window.Fit(conv), o.dispatcher.Specs(), map[string]string{
			"username":  username,
			"iteration": fmt.Sprintf("%d", iteration),
		})

		spanCtx, spanFinish := o.tracer.StartSpan(ctx, "provider_call", map[string]any{
			"iteration": iteration,
			"depth":     depth,
		})
		completion, err := o.provider.Complete(spanCtx, prompt, o.policy.Options)
		spanFinish(err)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProvider, err)
		}

		calls := completion.ToolCalls
		if len(calls) == 0 {
			calls = o.parser.ParseToolCalls(completion.Text, o.dispatcher.Known)
		}
		if len(calls) == 0 {
			return o.answer(ctx, username, conv, completion.Text), nil
		}

		if depth >= o.policy.MaxToolDepth {
			o.logger.Warn().Int("max_tool_depth", o.policy.MaxToolDepth).Msg("tool depth exhausted")
			return o.answer(ctx, username, conv, depthExceededReply), nil
		}
		depth++

		assistant := chat.Entry{Role: chat.RoleAssistant, Content: strings.TrimSpace(completion.Text)}
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = o.dispatcher.NewCallID()
			}
			assistant.ToolCalls = append(assistant.ToolCalls, chat.Call{
				CallID:    calls[i].ID,
				Tool:      calls[i].Name,
				Arguments: calls[i].Args,
				CreatedAt: o.now().UTC(),
			})
		}
		conv = append(conv, assistant)

		var (
			pending     []chat.Call
			unsupported []string
		)
		for i, call := range calls {
			res := o.dispatcher.Dispatch(ctx, call, username)
			o.tracer.Event(ctx, "tool_dispatched", map[string]any{"tool": call.Name, "status": string(res.Status)})

			switch res.Status {
			case ports.ResultPending:
				pending = append(pending, assistant.ToolCalls[i])
			case ports.ResultImmediate:
				conv = append(conv, chat.Entry{Role: chat.RoleTool, CallID: call.ID, Name: call.Name, Content: res.Output})
			default:
				conv = append(conv, chat.Entry{Role: chat.RoleTool, CallID: call.ID, Name: call.Name, Content: errorContent(res.Err.Error())})
				if errors.Is(res.Err, ErrUnsupportedTool) {
					unsupported = append(unsupported, call.Name)
				}
			}
		}

		if len(pending) > 0 {
			return &chat.Response{
				Conversation: conv,
				Output:       o.interimMessage(pending),
				PendingCalls: pending,
				Status:       chat.StatusPending,
			}, nil
		}
		if len(unsupported) > 0 {
			return o.answer(ctx, username, conv, unsupportedMessage(unsupported)), nil
		}
	}
}

// answer appends the final assistant entry and archives it.
func (o *Orchestrator) answer(ctx context.Context, username string, conv []chat.Entry, text string) *chat.Response {
	output := o.dispatcher.Sanitize(strings.TrimSpace(text))
	entry := chat.Entry{Role: chat.RoleAssistant, Content: output}
	o.archive(ctx, username, entry)
	return &chat.Response{
		Conversation: append(conv, entry),
		Output:       output,
		Status:       chat.StatusCompleted,
	}
}

func (o *Orchestrator) archive(ctx context.Context, username string, e chat.Entry) {
	err := o.store.SaveTurn(ctx, username, ports.Turn{Role: e.Role, Content: e.Content, CallID: e.CallID, CreatedAt: o.now()})
	if err != nil {
		// Log but don't fail
		o.tracer.Event(ctx, "store_error", map[string]any{"error": err.Error()})
	}
}

func (o *Orchestrator) interimMessage(pending []chat.Call) string {
	seen := make(map[string]bool)
	var labels []string
	for _, c := range pending {
		label := o.dispatcher.Label(c.Tool)
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return fmt.Sprintf("Using %s, please wait...", joinWords(labels))
}

func (o *Orchestrator) fallbackOutput(ready []ports.CallRecord) string {
	var parts []string
	for _, rec := range ready {
		if rec.Status == ports.CallCompleted && rec.Output != "" {
			parts = append(parts, rec.Output)
		}
	}
	if len(parts) == 0 {
		return "Sorry, the request could not be completed. Please try again later."
	}
	return strings.Join(parts, "\n")
}

func unsupportedMessage(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return fmt.Sprintf("Sorry, I can't use the %s tool here.", joinWords(quoted))
}

func recordContent(rec ports.CallRecord) string {
	if rec.Status == ports.CallCompleted {
		return rec.Output
	}
	return errorContent(rec.Error)
}

func errorContent(msg string) string {
	raw, _ := json.Marshal(map[string]string{"error": msg})
	return string(raw)
}

func joinWords(words []string) string {
	switch len(words) {
	case 0:
		return ""
	case 1:
		return words[0]
	default:
		return strings.Join(words[:len(words)-1], ", ") + " and " + words[len(words)-1]
	}
}
