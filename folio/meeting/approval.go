package meeting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/folio/folio/notify"
	"github.com/rs/zerolog"
)

// ApprovalPrompt is the message sent to the owner for meetingID.
func ApprovalPrompt(meetingID, info string) string {
	return fmt.Sprintf("Meeting request: %s\nReply with 'confirm' or 'decline' for meeting ID: %s", info, meetingID)
}

// MatchDecision reports the decision in a reply that names meetingID.
// Matching is case-insensitive and confirm takes precedence over decline.
func MatchDecision(content, meetingID string) (Outcome, bool) {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, strings.ToLower(meetingID)) {
		return "", false
	}
	switch {
	case strings.Contains(lower, "confirm"):
		return OutcomeConfirmed, true
	case strings.Contains(lower, "decline"):
		return OutcomeDeclined, true
	}
	return "", false
}

// Approver asks the owner to confirm or decline meetings over a side channel.
type Approver struct {
	notifier notify.Notifier
	kv       KV
	interval time.Duration
	budget   time.Duration
	logger   zerolog.Logger
}

func NewApprover(notifier notify.Notifier, kv KV, interval, budget time.Duration, logger zerolog.Logger) *Approver {
	if kv == nil {
		kv = NopKV{}
	}
	return &Approver{
		notifier: notifier,
		kv:       kv,
		interval: interval,
		budget:   budget,
		logger:   logger.With().Str("component", "approver").Logger(),
	}
}

// RequestApproval sends the prompt and waits for the first matching reply.
// No reply within the budget yields OutcomeTimeout with a nil error.
func (a *Approver) RequestApproval(ctx context.Context, meetingID, info string) (Outcome, error) {
	prompt := ApprovalPrompt(meetingID, info)
	receipt, err := a.notifier.Send(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to send approval request: %w", err)
	}
	if err := a.kv.Put(ctx, requestKey(meetingID), prompt); err != nil {
		a.logger.Warn().Err(err).Str("meeting_id", meetingID).Msg("failed to record approval request")
	}

	var outcome Outcome
	reply, err := notify.AwaitReply(ctx, a.notifier, receipt, notify.AwaitOptions{
		Interval: a.interval,
		Budget:   a.budget,
		Match: func(r notify.Reply) bool {
			o, ok := MatchDecision(r.Content, meetingID)
			if ok {
				outcome = o
			}
			return ok
		},
	})
	if errors.Is(err, notify.ErrNoReply) {
		a.logger.Info().Str("meeting_id", meetingID).Msg("approval timed out")
		return OutcomeTimeout, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read approval replies: %w", err)
	}

	if err := a.kv.Put(ctx, responseKey(meetingID), strings.ToLower(reply.Content)); err != nil {
		a.logger.Warn().Err(err).Str("meeting_id", meetingID).Msg("failed to record approval response")
	}
	a.logger.Info().Str("meeting_id", meetingID).Str("outcome", string(outcome)).Str("author", reply.Author).Msg("approval received")
	return outcome, nil
}
