package events

import (
	"sync"
)

// GlobalAttemptID is the special attempt ID for subscribing to all events.
// Subscribers to this ID receive events for ALL attempts.
const GlobalAttemptID = "*"

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to all subscribers of the attempt.
	Publish(event Event)
	// Subscribe returns a channel that receives events for the given attempt.
	// Use GlobalAttemptID ("*") to receive events for all attempts.
	Subscribe(attemptID string) <-chan Event
	// Unsubscribe removes a subscription channel.
	Unsubscribe(attemptID string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// MemoryPublisher is an in-memory implementation of Publisher.
type MemoryPublisher struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the channel buffer size for subscribers.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subscribers: make(map[string][]chan Event),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends an event to all subscribers of the attempt.
// Also sends to global subscribers. Non-blocking: skips subscribers with
// full buffers.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	subs := p.subscribers[event.AttemptID]
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Skip if channel buffer is full
		}
	}

	if event.AttemptID != GlobalAttemptID {
		globalSubs := p.subscribers[GlobalAttemptID]
		for _, ch := range globalSubs {
			select {
			case ch <- event:
			default:
				// Skip if channel buffer is full
			}
		}
	}
}

// Subscribe returns a channel that receives events for the given attempt.
func (p *MemoryPublisher) Subscribe(attemptID string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, p.bufferSize)
	p.subscribers[attemptID] = append(p.subscribers[attemptID], ch)
	return ch
}

// Unsubscribe removes a subscription channel.
func (p *MemoryPublisher) Unsubscribe(attemptID string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[attemptID]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[attemptID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}

	if len(p.subscribers[attemptID]) == 0 {
		delete(p.subscribers, attemptID)
	}
}

// Close shuts down the publisher and closes all subscription channels.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true

	for attemptID, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subscribers, attemptID)
	}
}

// SubscriberCount returns the number of subscribers for an attempt.
func (p *MemoryPublisher) SubscriberCount(attemptID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers[attemptID])
}

// NopPublisher is a no-op publisher for testing or when events are disabled.
type NopPublisher struct{}

// Publish does nothing.
func (p *NopPublisher) Publish(event Event) {}

// Subscribe returns a closed channel.
func (p *NopPublisher) Subscribe(attemptID string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe does nothing.
func (p *NopPublisher) Unsubscribe(attemptID string, ch <-chan Event) {}

// Close does nothing.
func (p *NopPublisher) Close() {}

// NewNopPublisher creates a no-op publisher.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}
