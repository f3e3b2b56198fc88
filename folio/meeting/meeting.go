// Package meeting stores meeting requests and runs the owner approval poll.
package meeting

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("meeting not found")
	ErrInvalidStatus  = errors.New("status must be confirmed or declined")
	ErrInvalidMeeting = errors.New("invalid meeting request")
	ErrNoApprover     = errors.New("no approval channel configured")
)

// Status is the lifecycle state of a meeting.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDeclined  Status = "declined"
)

// Outcome is the result of an approval request.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeDeclined  Outcome = "declined"
	OutcomeTimeout   Outcome = "timeout"
)

// Meeting is a stored meeting request.
type Meeting struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Datetime     time.Time `json:"datetime"`
	Participants []string  `json:"participants"`
	RequestedBy  string    `json:"requestedBy"`
	ConfirmedBy  string    `json:"confirmedBy,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary describes the meeting for the approval prompt.
func (m Meeting) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q on %s requested by %s", m.Title, m.Datetime.Format("Mon Jan 2 2006 15:04 MST"), m.RequestedBy)
	if len(m.Participants) > 0 {
		fmt.Fprintf(&b, " with %s", strings.Join(m.Participants, ", "))
	}
	return b.String()
}

// Request is the input for creating a meeting.
type Request struct {
	Title        string    `json:"title"`
	Datetime     time.Time `json:"datetime"`
	Participants []string  `json:"participants"`
	RequestedBy  string    `json:"requestedBy"`
}

// Validate checks the required fields.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidMeeting)
	case r.Datetime.IsZero():
		return fmt.Errorf("%w: datetime is required", ErrInvalidMeeting)
	case strings.TrimSpace(r.RequestedBy) == "":
		return fmt.Errorf("%w: requestedBy is required", ErrInvalidMeeting)
	}
	return nil
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDatetime accepts RFC 3339 and a few shorter layouts, read as UTC.
func ParseDatetime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized datetime %q", ErrInvalidMeeting, s)
}
