// Package notify delivers messages to the site owner over side channels
// (Discord, Microsoft Teams, inbound webhooks) and reads their replies.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrSideChannel wraps transport failures of a side channel.
	ErrSideChannel = errors.New("side channel failure")
	// ErrNoReply is returned when no matching reply arrived within the wait budget.
	ErrNoReply = errors.New("no reply received")
	// ErrUnknownChannel is returned for channel names with no notifier.
	ErrUnknownChannel = errors.New("unknown side channel")
)

// Receipt identifies a sent message; replies are read relative to it.
type Receipt struct {
	MessageID string
	ChannelID string
	SentAt    time.Time
}

// Reply is a message read back from a side channel.
type Reply struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

// Notifier sends messages to the owner and lists replies posted after a receipt.
type Notifier interface {
	Name() string
	Send(ctx context.Context, text string) (Receipt, error)
	// Replies returns messages newer than since in chronological order.
	Replies(ctx context.Context, since Receipt) ([]Reply, error)
}

// Subscriber is implemented by notifiers that push replies as they arrive.
// The returned channel only signals; replies are still read through Replies.
type Subscriber interface {
	Subscribe() (ch <-chan struct{}, cancel func())
}

// Registry maps channel names to notifiers.
type Registry struct {
	notifiers map[string]Notifier
}

func NewRegistry(notifiers ...Notifier) *Registry {
	r := &Registry{notifiers: make(map[string]Notifier)}
	for _, n := range notifiers {
		r.Add(n)
	}
	return r
}

// Add registers n under its name, replacing any previous notifier.
func (r *Registry) Add(n Notifier) {
	r.notifiers[n.Name()] = n
}

// Get returns the notifier registered as name.
func (r *Registry) Get(name string) (Notifier, error) {
	n, ok := r.notifiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return n, nil
}

// Names lists registered channels sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.notifiers))
	for name := range r.notifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newer keeps replies posted after since, excluding the sent message itself, oldest first.
func newer(replies []Reply, since Receipt) []Reply {
	out := replies[:0:0]
	for _, r := range replies {
		if r.ID == since.MessageID {
			continue
		}
		if !since.SentAt.IsZero() && r.SentAt.Before(since.SentAt) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}
