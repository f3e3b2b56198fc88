package agentports

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrCallNotFound is returned when the ledger holds no record for a call id.
var ErrCallNotFound = errors.New("pending call not found")

// CallStatus is the lifecycle state of a recorded call.
type CallStatus string

const (
	CallPending   CallStatus = "pending"
	CallCompleted CallStatus = "completed"
	CallFailed    CallStatus = "failed"
)

// Terminal reports whether the status is a final resolution.
func (s CallStatus) Terminal() bool {
	return s == CallCompleted || s == CallFailed
}

// PendingCall is what the dispatcher records before running a deferred tool.
type PendingCall struct {
	CallID    string
	Tool      string
	Args      json.RawMessage
	Owner     string
	CreatedAt time.Time
}

// Resolution is the terminal outcome of a deferred tool.
type Resolution struct {
	Status CallStatus
	Output string
	Error  string
}

// CallRecord is a ledger row as seen by a poll.
type CallRecord struct {
	PendingCall
	Status     CallStatus
	Output     string
	Error      string
	ResolvedAt time.Time
	Delivered  bool
}

// Ledger tracks deferred tool calls from dispatch to delivery. Implementations
// are safe for concurrent use across requests and server instances.
type Ledger interface {
	Record(ctx context.Context, call PendingCall) error
	// Resolve stores a terminal resolution; the first one wins and later calls are no-ops.
	Resolve(ctx context.Context, callID string, res Resolution) error
	Lookup(ctx context.Context, callID string) (CallRecord, error)
	// Claim marks the call delivered and reports whether this caller won the claim.
	Claim(ctx context.Context, callID string) (bool, error)
	Forget(ctx context.Context, callID string) error
}
