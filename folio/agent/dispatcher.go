package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

const resolveTimeout = 5 * time.Second

// Labeled is implemented by tools that want a friendlier name in interim messages.
type Labeled interface {
	Label() string
}

// Dispatcher routes tool calls to registered tools. Synchronous tools run
// inline; deferred tools are recorded in the ledger and finished by a
// background job that resolves the ledger entry.
type Dispatcher struct {
	tools       map[string]ports.Tool
	ledger      ports.Ledger
	guardrails  *Guardrails
	tracer      ports.Tracer
	logger      zerolog.Logger
	toolTimeout time.Duration
	jobTimeout  time.Duration
	newID       func() string
	now         func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	jobs    conc.WaitGroup
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithGuardrails(g *Guardrails) DispatcherOption {
	return func(d *Dispatcher) { d.guardrails = g }
}

func WithTracer(t ports.Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

func WithLogger(l zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithTimeouts bounds synchronous invocations and background jobs. Zero keeps the default.
func WithTimeouts(tool, job time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if tool > 0 {
			d.toolTimeout = tool
		}
		if job > 0 {
			d.jobTimeout = job
		}
	}
}

// WithIDSource replaces the call id generator used when the provider assigns none.
func WithIDSource(fn func() string) DispatcherOption {
	return func(d *Dispatcher) { d.newID = fn }
}

// WithClock replaces the dispatcher's clock.
func WithClock(fn func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = fn }
}

// NewDispatcher creates a dispatcher recording deferred calls in ledger.
func NewDispatcher(ledger ports.Ledger, opts ...DispatcherOption) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		tools:       make(map[string]ports.Tool),
		ledger:      ledger,
		guardrails:  NewGuardrails(),
		tracer:      &noOpTracer{},
		logger:      zerolog.Nop(),
		toolTimeout: 30 * time.Second,
		jobTimeout:  2 * time.Minute,
		newID:       uuid.NewString,
		now:         time.Now,
		baseCtx:     ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds tools, replacing any previous tool with the same name.
func (d *Dispatcher) Register(tools ...ports.Tool) {
	for _, t := range tools {
		d.tools[t.Name()] = t
	}
}

// Known reports whether name is registered and allowed.
func (d *Dispatcher) Known(name string) bool {
	_, ok := d.tools[name]
	return ok && d.guardrails.Allowed(name)
}

// Specs lists allowed tools sorted by name.
func (d *Dispatcher) Specs() []ports.ToolSpec {
	specs := make([]ports.ToolSpec, 0, len(d.tools))
	for name, t := range d.tools {
		if !d.guardrails.Allowed(name) {
			continue
		}
		specs = append(specs, ports.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			JSONSchema:  t.Schema(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Label returns the display name used in interim messages.
func (d *Dispatcher) Label(name string) string {
	if t, ok := d.tools[name].(Labeled); ok {
		return t.Label()
	}
	return strings.ReplaceAll(name, "_", " ")
}

// Sanitize masks sensitive values in text shown to visitors.
func (d *Dispatcher) Sanitize(text string) string {
	return d.guardrails.SanitizeOutput(text)
}

// NewCallID returns a fresh call id.
func (d *Dispatcher) NewCallID() string { return d.newID() }

// Dispatch runs one call and returns an immediate, pending or error result.
// It never returns a nil-status result.
func (d *Dispatcher) Dispatch(ctx context.Context, call ports.ToolCall, owner string) ports.ToolResult {
	if call.ID == "" {
		call.ID = d.newID()
	}

	tool, ok := d.tools[call.Name]
	if !ok {
		return ports.Failed(call.ID, call.Name, fmt.Errorf("%w: %s", ErrUnsupportedTool, call.Name))
	}
	if err := d.guardrails.ValidateToolCall(call, tool.Schema()); err != nil {
		return ports.Failed(call.ID, call.Name, err)
	}
	if len(call.Args) == 0 {
		call.Args = json.RawMessage(`{}`)
	}

	if _, deferred := tool.(ports.DeferredTool); deferred {
		return d.dispatchDeferred(ctx, tool, call, owner)
	}

	ctx, finish := d.tracer.StartSpan(ctx, "tool_call", map[string]any{
		"tool":    call.Name,
		"call_id": call.ID,
	})
	toolCtx, cancel := context.WithTimeout(ctx, d.toolTimeout)
	defer cancel()

	output, err := invoke(toolCtx, tool, call.Args)
	finish(err)
	if err != nil {
		return ports.Failed(call.ID, call.Name, err)
	}
	return ports.Immediate(call.ID, call.Name, output)
}

func (d *Dispatcher) dispatchDeferred(ctx context.Context, tool ports.Tool, call ports.ToolCall, owner string) ports.ToolResult {
	err := d.ledger.Record(ctx, ports.PendingCall{
		CallID:    call.ID,
		Tool:      call.Name,
		Args:      call.Args,
		Owner:     owner,
		CreatedAt: d.now(),
	})
	if err != nil {
		return ports.Failed(call.ID, call.Name, fmt.Errorf("failed to record pending call: %w", err))
	}

	d.logger.Debug().Str("call_id", call.ID).Str("tool", call.Name).Msg("deferred tool started")
	d.jobs.Go(func() { d.runJob(tool, call) })
	return ports.Pending(call.ID, call.Name)
}

func (d *Dispatcher) runJob(tool ports.Tool, call ports.ToolCall) {
	jobCtx, cancel := context.WithTimeout(d.baseCtx, d.jobTimeout)
	defer cancel()

	output, err := invoke(jobCtx, tool, call.Args)

	res := ports.Resolution{Status: ports.CallCompleted, Output: output}
	if err != nil {
		res = ports.Resolution{Status: ports.CallFailed, Error: err.Error()}
	}

	// Shutdown cancels the job but the failure must still be recorded.
	resolveCtx, cancelResolve := context.WithTimeout(context.WithoutCancel(d.baseCtx), resolveTimeout)
	defer cancelResolve()
	if rerr := d.ledger.Resolve(resolveCtx, call.ID, res); rerr != nil {
		d.logger.Error().Err(rerr).Str("call_id", call.ID).Msg("failed to resolve pending call")
		return
	}

	event := d.logger.Info()
	if err != nil {
		event = d.logger.Warn().Err(err)
	}
	event.Str("call_id", call.ID).Str("tool", call.Name).Str("status", string(res.Status)).Msg("deferred tool finished")
}

// Wait blocks until running background jobs finish.
func (d *Dispatcher) Wait() {
	d.jobs.Wait()
}

// Close cancels background jobs and waits for them to record their outcome.
func (d *Dispatcher) Close() {
	d.cancel()
	d.jobs.Wait()
}

// invoke runs the tool, converting panics into errors and output into text.
func invoke(ctx context.Context, tool ports.Tool, args json.RawMessage) (string, error) {
	var (
		out any
		err error
	)
	var catcher panics.Catcher
	catcher.Try(func() { out, err = tool.Invoke(ctx, args) })
	if r := catcher.Recovered(); r != nil {
		return "", fmt.Errorf("tool %s panicked: %w", tool.Name(), r.AsError())
	}
	if err != nil {
		return "", err
	}
	return stringify(out)
}

func stringify(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to serialize tool output: %w", err)
		}
		return string(raw), nil
	}
}
