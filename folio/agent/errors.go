package agent

import "errors"

var (
	// ErrUnsupportedTool is returned for tool names the dispatcher does not know
	// or is not allowed to run.
	ErrUnsupportedTool = errors.New("unsupported tool")
	// ErrInvalidArguments is returned when tool arguments fail validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrTurnInProgress is returned when a new message arrives while calls are pending.
	ErrTurnInProgress = errors.New("a tool call is still pending for this conversation")
	// ErrEmptyTurn is returned for a request with neither a message nor pending calls.
	ErrEmptyTurn = errors.New("message is required")
	// ErrRateLimited is returned when the caller exceeded its turn budget.
	ErrRateLimited = errors.New("too many messages, slow down")
	// ErrProvider wraps reasoning backend failures.
	ErrProvider = errors.New("reasoning backend failed")
)
