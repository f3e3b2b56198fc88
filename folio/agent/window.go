package agent

import "github.com/ZanzyTHEbar/folio/folio/chat"

// HistoryWindow trims the conversation sent to the provider to a token budget.
// The window always starts at a user entry so tool calls stay paired with
// their results.
type HistoryWindow struct {
	maxTokens int
	// TokenEstimator should be a fast heuristic; we avoid binding to a specific tokenizer here.
	TokenEstimator func(s string) int
}

func NewHistoryWindow(maxTokens int, est func(s string) int) *HistoryWindow {
	if est == nil {
		est = func(s string) int { // rough heuristic: ~4 chars per token
			if len(s) == 0 {
				return 0
			}
			return (len(s) + 3) / 4
		}
	}
	return &HistoryWindow{maxTokens: maxTokens, TokenEstimator: est}
}

// Fit returns the longest suffix of conv within budget that begins at a user
// entry. If even the last user turn exceeds the budget it is kept anyway.
func (w *HistoryWindow) Fit(conv []chat.Entry) []chat.Entry {
	if w.maxTokens <= 0 || len(conv) == 0 {
		return conv
	}

	start := len(conv)
	used := 0
	for i := len(conv) - 1; i >= 0; i-- {
		used += w.cost(conv[i])
		if used > w.maxTokens {
			break
		}
		start = i
	}

	for i := start; i < len(conv); i++ {
		if conv[i].Role == chat.RoleUser {
			return conv[i:]
		}
	}
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == chat.RoleUser {
			return conv[i:]
		}
	}
	return conv
}

func (w *HistoryWindow) cost(e chat.Entry) int {
	n := w.TokenEstimator(e.Content) + 4 // role and framing
	for _, c := range e.ToolCalls {
		n += w.TokenEstimator(c.Tool) + w.TokenEstimator(string(c.Arguments))
	}
	return n
}
