package draft

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Reaction is one reaction-add event on a message.
type Reaction struct {
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

var ErrAlreadySubscribed = errors.New("message already driven by a session")

// Bus routes reaction events to the session that owns the message.
type Bus struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscription receives the reactions of one message until Close.
type Subscription struct {
	bus       *Bus
	messageID string
	ch        chan Reaction
	done      chan struct{}
	once      sync.Once
}

// Subscribe claims messageID. A message has at most one subscriber.
func (b *Bus) Subscribe(messageID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[messageID]; ok {
		return nil, errors.Wrap(ErrAlreadySubscribed, messageID)
	}
	s := &Subscription{
		bus:       b,
		messageID: messageID,
		ch:        make(chan Reaction, 32),
		done:      make(chan struct{}),
	}
	b.subs[messageID] = s
	return s, nil
}

// Publish hands r to the subscriber of its message. It reports false when
// nobody listens or the subscriber went away while delivering.
func (b *Bus) Publish(ctx context.Context, r Reaction) bool {
	b.mu.Lock()
	s := b.subs[r.MessageID]
	b.mu.Unlock()
	if s == nil {
		return false
	}
	select {
	case s.ch <- r:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Len is the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (s *Subscription) Events() <-chan Reaction { return s.ch }

// Close releases the message. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bus.mu.Lock()
		if s.bus.subs[s.messageID] == s {
			delete(s.bus.subs, s.messageID)
		}
		s.bus.mu.Unlock()
	})
}

// drain drops whatever is buffered.
func (s *Subscription) drain() {
	for {
		select {
		case <-s.ch:
		default:
			return
		}
	}
}
