package chatclient

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Client.
type Options struct {
	Username    string
	Interval    time.Duration
	MaxAttempts int
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client runs turns to completion by executing the machine's effects in order.
// One turn runs at a time.
type Client struct {
	machine   Machine
	transport Transport
	sleep     func(ctx context.Context, d time.Duration) error
	logger    zerolog.Logger

	mu      sync.Mutex
	session Session
}

func NewClient(transport Transport, opts Options, logger zerolog.Logger) *Client {
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Client{
		machine:   Machine{Interval: opts.Interval, MaxAttempts: opts.MaxAttempts},
		transport: transport,
		sleep:     opts.Sleep,
		logger:    logger.With().Str("component", "chatclient").Logger(),
		session:   NewSession(opts.Username),
	}
}

// Session returns a snapshot of the current state.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Send posts text and keeps polling until the turn ends, returning everything
// rendered along the way. If ctx ends first the turn is abandoned without
// rendering anything further and ctx's error is returned.
func (c *Client) Send(ctx context.Context, text string) ([]Render, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rendered []Render
	queue := []Event{UserInput{Text: text}}
	for len(queue) > 0 {
		ev := queue[0]
		queue = queue[1:]

		var effects []Effect
		c.session, effects = c.machine.Step(c.session, ev)

		for _, eff := range effects {
			switch eff := eff.(type) {
			case Render:
				rendered = append(rendered, eff)
			case Post:
				resp, err := c.transport.Post(ctx, eff.Request)
				if ctx.Err() != nil {
					c.session, _ = c.machine.Step(c.session, Abandon{})
					return rendered, ctx.Err()
				}
				if err != nil {
					c.logger.Warn().Err(err).Int("seq", eff.Seq).Msg("chat request failed")
					queue = append(queue, TransportFailure{Seq: eff.Seq, Err: err})
					continue
				}
				queue = append(queue, Reply{Seq: eff.Seq, Response: resp})
			case Schedule:
				if err := c.sleep(ctx, eff.After); err != nil {
					c.session, _ = c.machine.Step(c.session, Abandon{})
					return rendered, err
				}
				queue = append(queue, PollDue{Seq: eff.Seq})
			}
		}
	}

	c.logger.Debug().
		Str("state", string(c.session.State)).
		Int("completed", len(c.session.Completed)).
		Msg("turn finished")
	return rendered, nil
}

// Health reports whether the backend is reachable. Failures are logged only.
func (c *Client) Health(ctx context.Context) bool {
	if err := c.transport.Health(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("backend offline")
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
