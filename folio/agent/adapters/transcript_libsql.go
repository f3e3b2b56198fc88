package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
)

// LibSQLTranscriptStore archives conversation turns in the conversation_turns table.
type LibSQLTranscriptStore struct {
	db *sql.DB
}

// NewLibSQLTranscriptStore creates a transcript store over db.
func NewLibSQLTranscriptStore(db *sql.DB) *LibSQLTranscriptStore {
	return &LibSQLTranscriptStore{db: db}
}

// SaveTurn appends a turn to the conversation.
func (s *LibSQLTranscriptStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	turnJSON, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (conversation_id, turn_data, created_at) VALUES (?, ?, ?)`,
		conversationID, string(turnJSON), turn.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// LoadTurns returns the last k turns in chronological order.
func (s *LibSQLTranscriptStore) LoadTurns(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_data FROM conversation_turns
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?`, conversationID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		var turnJSON string
		if err := rows.Scan(&turnJSON); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		var turn ports.Turn
		if err := json.Unmarshal([]byte(turnJSON), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	// Reverse to chronological order (oldest first)
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

var _ ports.TranscriptStore = (*LibSQLTranscriptStore)(nil)
