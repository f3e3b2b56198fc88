package notify

import (
	"context"
	"fmt"
	"time"
)

// AwaitOptions bounds a reply wait.
type AwaitOptions struct {
	Interval time.Duration    // poll cadence
	Budget   time.Duration    // total wait
	Match    func(Reply) bool // nil accepts the first reply
}

// AwaitReply waits for the first reply after since that satisfies opts.Match.
// Notifiers implementing Subscriber wake the wait early; polling continues
// as a fallback. It returns ErrNoReply when the budget runs out.
func AwaitReply(ctx context.Context, n Notifier, since Receipt, opts AwaitOptions) (Reply, error) {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Budget)
		defer cancel()
	}

	var wake <-chan struct{}
	if s, ok := n.(Subscriber); ok {
		ch, unsubscribe := s.Subscribe()
		defer unsubscribe()
		wake = ch
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		replies, err := n.Replies(ctx, since)
		if err != nil && ctx.Err() == nil {
			return Reply{}, err
		}
		for _, r := range replies {
			if opts.Match == nil || opts.Match(r) {
				return r, nil
			}
		}

		select {
		case <-ctx.Done():
			return Reply{}, fmt.Errorf("%w from %s: %v", ErrNoReply, n.Name(), ctx.Err())
		case <-ticker.C:
		case <-wake:
		}
	}
}
