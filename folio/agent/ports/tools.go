package agentports

import (
	"context"
	"encoding/json"
)

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	JSONSchema  []byte // JSON schema for args
}

// ToolCall represents a model-invoked function with JSON arguments.
type ToolCall struct {
	ID   string // provider-assigned call id, may be empty
	Name string
	Args json.RawMessage
}

// Tool defines the runtime that executes a tool call.
type Tool interface {
	Name() string
	Description() string
	Schema() []byte
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// DeferredTool is a Tool whose work outlives the request that asked for it,
// such as waiting on a human over a side channel. The dispatcher records it
// in the ledger and runs Invoke in the background.
type DeferredTool interface {
	Tool
	Deferred()
}

// ResultStatus tags the ToolResult variant.
type ResultStatus string

const (
	ResultImmediate ResultStatus = "immediate"
	ResultPending   ResultStatus = "pending"
	ResultError     ResultStatus = "error"
)

// ToolResult is the outcome of dispatching one call: immediate output, a
// pending handle to poll, or an error.
type ToolResult struct {
	Status ResultStatus
	CallID string
	Tool   string
	Output string
	Err    error
}

func Immediate(callID, tool, output string) ToolResult {
	return ToolResult{Status: ResultImmediate, CallID: callID, Tool: tool, Output: output}
}

func Pending(callID, tool string) ToolResult {
	return ToolResult{Status: ResultPending, CallID: callID, Tool: tool}
}

func Failed(callID, tool string, err error) ToolResult {
	return ToolResult{Status: ResultError, CallID: callID, Tool: tool, Err: err}
}
