package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/ZanzyTHEbar/folio/folio/chat"
	"github.com/ZanzyTHEbar/folio/folio/profile"
)

var (
	profilePattern  = regexp.MustCompile(`(?i)\b(profile|about|who are you|your name|skills?|email|experience|education|background|resume|projects?)\b`)
	schedulePattern = regexp.MustCompile(`(?i)\b(schedule|book|set up|arrange)\b.*\b(meeting|call|chat|appointment)\b`)
	meetingPattern  = regexp.MustCompile(`(?i)\b(meetings?|appointments?)\b`)
	relayPattern    = regexp.MustCompile(`(?i)\b(ask|tell|message|contact|reach|available|availability|free)\b`)
	datetimePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[ T]\d{2}:\d{2})?`)
)

// Rules is an offline keyword router standing in for a language model. It
// picks a tool from the latest visitor message and phrases tool results.
type Rules struct {
	owner     string
	relayTool string
}

// NewRules creates the rule provider. relayTool names the tool used to
// contact the owner, "discord_tool" when empty.
func NewRules(owner, relayTool string) *Rules {
	if relayTool == "" {
		relayTool = "discord_tool"
	}
	return &Rules{owner: owner, relayTool: relayTool}
}

func (r *Rules) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	if err := ctx.Err(); err != nil {
		return ports.Completion{}, err
	}
	if len(in.Messages) == 0 {
		return ports.Completion{Text: r.greeting()}, nil
	}

	last := in.Messages[len(in.Messages)-1]
	if last.Role == chat.RoleTool {
		return ports.Completion{Text: r.phrase(in.Messages)}, nil
	}
	if last.Role != chat.RoleUser {
		return ports.Completion{Text: r.greeting()}, nil
	}

	available := make(map[string]bool, len(in.Tools))
	for _, t := range in.Tools {
		available[t.Name] = true
	}
	text := last.Content
	call := func(name string, args any) (ports.Completion, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return ports.Completion{}, err
		}
		return ports.Completion{ToolCalls: []ports.ToolCall{{Name: name, Args: raw}}}, nil
	}

	switch {
	case schedulePattern.MatchString(text) && available["schedule_meeting"]:
		when := datetimePattern.FindString(text)
		if when == "" {
			return ports.Completion{Text: "Happy to set that up. Please include a date and time like 2025-01-31 14:00 (UTC)."}, nil
		}
		return call("schedule_meeting", map[string]any{
			"title":        "Meeting with " + in.Meta["username"],
			"datetime":     when,
			"requested_by": in.Meta["username"],
		})
	case meetingPattern.MatchString(text) && available["list_meetings"]:
		return call("list_meetings", map[string]any{"status": "confirmed"})
	case relayPattern.MatchString(text) && available[r.relayTool]:
		return call(r.relayTool, map[string]any{"message": map[string]string{"content": text}})
	case profilePattern.MatchString(text) && available["query_profile_info"]:
		return call("query_profile_info", map[string]any{"question": text})
	}
	return ports.Completion{Text: r.greeting()}, nil
}

func (r *Rules) greeting() string {
	return fmt.Sprintf("I'm %s's assistant. Ask me about %s's profile, pass a message along, or schedule a meeting!", r.owner, r.owner)
}

// phrase answers from the tool results that follow the latest tool request.
func (r *Rules) phrase(msgs []chat.Entry) string {
	start := len(msgs)
	for start > 0 && msgs[start-1].Role == chat.RoleTool {
		start--
	}

	var parts []string
	for _, e := range msgs[start:] {
		parts = append(parts, r.phraseResult(e))
	}
	return strings.Join(parts, "\n")
}

func (r *Rules) phraseResult(e chat.Entry) string {
	var failure struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(e.Content), &failure) == nil && failure.Error != "" {
		return "Sorry, that didn't work: " + failure.Error
	}

	switch e.Name {
	case "query_profile_info":
		if summary := profile.Summarize(json.RawMessage(e.Content)); summary != "" {
			return strings.Replace(summary, "I'm ", "This is ", 1)
		}
		return e.Content
	case "list_meetings":
		var meetings []struct {
			Title    string `json:"title"`
			Datetime string `json:"datetime"`
		}
		if err := json.Unmarshal([]byte(e.Content), &meetings); err != nil {
			return e.Content
		}
		if len(meetings) == 0 {
			return "No confirmed meetings yet."
		}
		items := make([]string, len(meetings))
		for i, m := range meetings {
			items[i] = fmt.Sprintf("%s on %s", m.Title, m.Datetime)
		}
		return "Here are the confirmed meetings: " + strings.Join(items, "; ")
	case "schedule_meeting":
		var res struct {
			MeetingID string `json:"meeting_id"`
			Outcome   string `json:"outcome"`
		}
		if err := json.Unmarshal([]byte(e.Content), &res); err != nil {
			return e.Content
		}
		switch res.Outcome {
		case "confirmed":
			return fmt.Sprintf("%s confirmed the meeting (ID %s).", r.owner, res.MeetingID)
		case "declined":
			return fmt.Sprintf("%s declined the meeting (ID %s).", r.owner, res.MeetingID)
		}
		return fmt.Sprintf("Your meeting request (ID %s) is waiting for %s's confirmation.", res.MeetingID, r.owner)
	}

	if strings.HasPrefix(e.Content, "No reply received") {
		return e.Content
	}
	return fmt.Sprintf("%s says: %s", r.owner, e.Content)
}

var _ ports.Provider = (*Rules)(nil)
