package tools

import (
	"context"
	"encoding/json"
	"fmt"

	ports "github.com/ZanzyTHEbar/folio/folio/agent/ports"
	"github.com/ZanzyTHEbar/folio/folio/meeting"
)

// MeetingService is the part of meeting.Service the tools call.
type MeetingService interface {
	List(ctx context.Context) ([]meeting.Meeting, error)
	CreateAndApprove(ctx context.Context, req meeting.Request) (*meeting.Meeting, meeting.Outcome, error)
}

// ListMeetingsSchema defines the JSON schema for list_meetings parameters.
const ListMeetingsSchema = `{
  "type": "object",
  "properties": {
    "status": {
      "type": "string",
      "enum": ["pending", "confirmed", "declined"],
      "description": "Only return meetings with this status"
    }
  }
}`

// ListMeetingsTool lists stored meetings.
type ListMeetingsTool struct {
	svc MeetingService
}

func NewListMeetingsTool(svc MeetingService) *ListMeetingsTool {
	return &ListMeetingsTool{svc: svc}
}

func (t *ListMeetingsTool) Name() string { return "list_meetings" }

func (t *ListMeetingsTool) Description() string {
	return "List meetings requested with the site owner, optionally filtered by status."
}

func (t *ListMeetingsTool) Schema() []byte { return []byte(ListMeetingsSchema) }

func (t *ListMeetingsTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Status meeting.Status `json:"status"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	all, err := t.svc.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]meeting.Meeting, 0, len(all))
	for _, m := range all {
		if in.Status == "" || m.Status == in.Status {
			out = append(out, m)
		}
	}
	return out, nil
}

// ScheduleMeetingSchema defines the JSON schema for schedule_meeting parameters.
const ScheduleMeetingSchema = `{
  "type": "object",
  "properties": {
    "title": {
      "type": "string",
      "minLength": 1
    },
    "datetime": {
      "type": "string",
      "description": "Meeting start, RFC 3339 or YYYY-MM-DD HH:MM in UTC"
    },
    "participants": {
      "type": "array",
      "items": {"type": "string"}
    },
    "requested_by": {
      "type": "string",
      "description": "Name or email of the visitor requesting the meeting"
    }
  },
  "required": ["title", "datetime"]
}`

// ScheduleResult is the output of schedule_meeting.
type ScheduleResult struct {
	MeetingID string          `json:"meeting_id"`
	Status    meeting.Status  `json:"status"`
	Outcome   meeting.Outcome `json:"outcome,omitempty"`
}

// ScheduleMeetingTool records a meeting request and asks the owner to approve
// it. It is deferred because approval waits on the owner.
type ScheduleMeetingTool struct {
	svc MeetingService
}

func NewScheduleMeetingTool(svc MeetingService) *ScheduleMeetingTool {
	return &ScheduleMeetingTool{svc: svc}
}

func (t *ScheduleMeetingTool) Name() string { return "schedule_meeting" }

func (t *ScheduleMeetingTool) Description() string {
	return "Request a meeting with the site owner. The owner confirms or declines over a side channel."
}

func (t *ScheduleMeetingTool) Schema() []byte { return []byte(ScheduleMeetingSchema) }

func (t *ScheduleMeetingTool) Label() string { return "meeting scheduler" }

func (t *ScheduleMeetingTool) Deferred() {}

func (t *ScheduleMeetingTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Title        string   `json:"title"`
		Datetime     string   `json:"datetime"`
		Participants []string `json:"participants"`
		RequestedBy  string   `json:"requested_by"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	when, err := meeting.ParseDatetime(in.Datetime)
	if err != nil {
		return nil, err
	}
	if in.RequestedBy == "" {
		in.RequestedBy = "website visitor"
	}

	m, outcome, err := t.svc.CreateAndApprove(ctx, meeting.Request{
		Title:        in.Title,
		Datetime:     when,
		Participants: in.Participants,
		RequestedBy:  in.RequestedBy,
	})
	if err != nil {
		return nil, err
	}
	return ScheduleResult{MeetingID: m.ID, Status: m.Status, Outcome: outcome}, nil
}

var (
	_ ports.Tool         = (*ListMeetingsTool)(nil)
	_ ports.DeferredTool = (*ScheduleMeetingTool)(nil)
)
