package agentports

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/folio/folio/chat"
)

// Turn is one archived conversational exchange.
type Turn struct {
	Role      chat.Role `json:"role"`
	Content   string    `json:"content"`
	CallID    string    `json:"call_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptStore archives turns per conversation.
type TranscriptStore interface {
	SaveTurn(ctx context.Context, conversationID string, turn Turn) error
	LoadTurns(ctx context.Context, conversationID string, k int) ([]Turn, error) // last-k turns
}
