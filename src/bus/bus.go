package bus

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"shadow-ai/src/messages"
)

const defaultDeliveryTimeout = time.Second

type subscriber struct {
	ch     chan messages.Event
	active bool
}

// Bus delivers every published event to all current subscribers.
type Bus struct {
	subs        map[string]*subscriber
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	timeout     time.Duration
	logMessages bool
}

func New() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:        make(map[string]*subscriber),
		ctx:         ctx,
		cancel:      cancel,
		timeout:     defaultDeliveryTimeout,
		logMessages: true,
	}
}

// SetDeliveryTimeout bounds how long Publish waits on a full subscriber.
func (b *Bus) SetDeliveryTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = d
}

// Subscribe registers a named subscriber with the given buffer.
func (b *Bus) Subscribe(name string, bufferSize int) (<-chan messages.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs[name]; exists {
		return nil, fmt.Errorf("subscriber %s already registered", name)
	}
	ch := make(chan messages.Event, bufferSize)
	b.subs[name] = &subscriber{ch: ch, active: true}
	log.Printf("Bus: Registered subscriber %s with buffer size %d", name, bufferSize)
	return ch, nil
}

func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, exists := b.subs[name]; exists {
		s.active = false
		close(s.ch)
		delete(b.subs, name)
		log.Printf("Bus: Unregistered subscriber %s", name)
	}
}

// Publish delivers ev to every subscriber. A subscriber that stays full
// past the delivery timeout misses the event; the drop is logged.
func (b *Bus) Publish(ev messages.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.logMessages {
		log.Printf("Bus: Publishing %s", ev.Type())
	}

	var dropped []string
	for name, s := range b.subs {
		if !s.active {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			t := time.NewTimer(b.timeout)
			select {
			case s.ch <- ev:
			case <-t.C:
				dropped = append(dropped, name)
			case <-b.ctx.Done():
				t.Stop()
				return
			}
			t.Stop()
		}
	}
	if len(dropped) > 0 {
		log.Printf("Bus: %s dropped for slow subscribers %v", ev.Type(), dropped)
	}
}

// Subscribers returns the active subscriber names, sorted.
func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var names []string
	for name, s := range b.subs {
		if s.active {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (b *Bus) SetMessageLogging(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logMessages = enabled
}

// Shutdown closes every subscriber channel.
func (b *Bus) Shutdown() {
	log.Printf("Bus: Shutting down...")
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	for name, s := range b.subs {
		if s.active {
			s.active = false
			close(s.ch)
			log.Printf("Bus: Closed channel for subscriber %s", name)
		}
	}
	b.subs = make(map[string]*subscriber)
}

// WaitFor waits for an event of the given type, discarding others.
func WaitFor(ch <-chan messages.Event, eventType string, timeout time.Duration) (messages.Event, error) {
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil, fmt.Errorf("channel closed waiting for %s", eventType)
			}
			if ev.Type() == eventType {
				return ev, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event type %s", eventType)
		}
	}
}

// Drain discards buffered events and returns how many there were.
func Drain(ch <-chan messages.Event) int {
	count := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return count
			}
			count++
		default:
			return count
		}
	}
}
