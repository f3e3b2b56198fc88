package agent

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/ZanzyTHEbar/folio/folio/chat"
)

const defaultSystemPrompt = `You are the assistant on %[1]s's portfolio site. Answer visitor questions about %[1]s briefly and accurately.
Use query_profile_info for facts about %[1]s's background, skills and contact details.
When a visitor wants to reach %[1]s directly or asks whether %[1]s is available, use discord_tool with a short message written for %[1]s.
Use list_meetings to check existing meetings and schedule_meeting to request a new one.
Never invent replies on %[1]s's behalf.`

// SystemPrompt returns custom when set, otherwise the default prompt for owner.
func SystemPrompt(custom, owner string) string {
	if strings.TrimSpace(custom) != "" {
		return custom
	}
	return fmt.Sprintf(defaultSystemPrompt, owner)
}

// PromptBuilder assembles provider inputs from system text, conversation and tools.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// Build normalizes the conversation into a PromptInput. The caller's slice is not modified.
func (b *PromptBuilder) Build(system string, conv []chat.Entry, toolSpecs []ports.ToolSpec, meta map[string]string) ports.PromptInput {
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	messages := make([]chat.Entry, len(conv))
	for i, e := range conv {
		e.Content = norm(e.Content)
		messages[i] = e
	}

	return ports.PromptInput{
		System:   norm(system),
		Messages: messages,
		Tools:    toolSpecs,
		Meta:     meta,
	}
}
