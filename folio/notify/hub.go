package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const hubHistory = 200

// Hub is a webhook-backed notifier. Sent messages are queued in an outbox for
// an outgoing integration to pick up; replies arrive through Publish, which the
// server calls for POST /hooks/{channel}.
type Hub struct {
	name   string
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	outbox  []Reply
	inbox   []Reply
	subs    map[int]chan struct{}
	nextSub int
}

// NewHub creates a hub for the named channel.
func NewHub(name string, logger zerolog.Logger) *Hub {
	return &Hub{
		name:   name,
		logger: logger.With().Str("channel", name).Logger(),
		now:    time.Now,
		subs:   make(map[int]chan struct{}),
	}
}

func (h *Hub) Name() string { return h.name }

func (h *Hub) Send(ctx context.Context, text string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	msg := Reply{ID: uuid.NewString(), Author: "folio", Content: text, SentAt: h.now()}
	h.mu.Lock()
	h.outbox = appendCapped(h.outbox, msg)
	h.mu.Unlock()

	h.logger.Info().Str("message_id", msg.ID).Msg("message queued for webhook delivery")
	return Receipt{MessageID: msg.ID, ChannelID: h.name, SentAt: msg.SentAt}, nil
}

func (h *Hub) Replies(ctx context.Context, since Receipt) ([]Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	inbox := append([]Reply(nil), h.inbox...)
	h.mu.Unlock()
	return newer(inbox, since), nil
}

// Publish stores an inbound reply and wakes subscribers. Missing ids and
// timestamps are filled in.
func (h *Hub) Publish(r Reply) Reply {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SentAt.IsZero() {
		r.SentAt = h.now()
	}
	r.Content = strings.TrimSpace(r.Content)

	h.mu.Lock()
	h.inbox = appendCapped(h.inbox, r)
	for _, ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()

	h.logger.Debug().Str("reply_id", r.ID).Str("author", r.Author).Msg("reply received")
	return r
}

// Outbox returns messages sent through the hub, oldest first.
func (h *Hub) Outbox() []Reply {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Reply(nil), h.outbox...)
}

func (h *Hub) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func appendCapped(list []Reply, r Reply) []Reply {
	list = append(list, r)
	if len(list) > hubHistory {
		list = list[len(list)-hubHistory:]
	}
	return list
}

var (
	_ Notifier   = (*Hub)(nil)
	_ Subscriber = (*Hub)(nil)
)
