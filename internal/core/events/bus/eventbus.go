package bus

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// subscription implements Subscription.
type subscription struct {
	id        string
	eventType string
	handler   EventHandler
	active    bool
	cancel    func()
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) EventType() string { return s.eventType }
func (s *subscription) IsActive() bool    { return s.active }

func (s *subscription) Cancel() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.active = false
	return nil
}

// inMemoryBus is the EventBus implementation. A mutex guards the handler
// table because hosts may subscribe from outside the engine's cooperative
// sequence; delivery itself is sequential in the publisher's goroutine.
type inMemoryBus struct {
	mu sync.RWMutex
	// handlers: eventType -> subID -> subscription
	handlers map[string]map[string]*subscription
}

// New creates an empty EventBus.
func New() EventBus {
	return &inMemoryBus{
		handlers: make(map[string]map[string]*subscription),
	}
}

func (b *inMemoryBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	if eventType == "" {
		return nil, errors.New("event type required")
	}
	if handler == nil {
		return nil, errors.New("handler required")
	}
	sub := &subscription{
		id:        uuid.NewString(),
		eventType: eventType,
		handler:   handler,
		active:    true,
	}
	sub.cancel = func() { _ = b.Unsubscribe(sub) }

	b.mu.Lock()
	defer b.mu.Unlock()
	byID, ok := b.handlers[eventType]
	if !ok {
		byID = make(map[string]*subscription)
		b.handlers[eventType] = byID
	}
	byID[sub.id] = sub
	return sub, nil
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if byID, ok := b.handlers[sub.EventType()]; ok {
		if s, ok := byID[sub.ID()]; ok {
			s.active = false
			delete(byID, sub.ID())
		}
		if len(byID) == 0 {
			delete(b.handlers, sub.EventType())
		}
	}
	return nil
}

func (b *inMemoryBus) Publish(event Event) error {
	b.mu.RLock()
	byID := b.handlers[event.Type]
	subs := make([]*subscription, 0, len(byID))
	for _, s := range byID {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if !s.active {
			continue
		}
		if err := s.handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *inMemoryBus) PublishAsync(event Event) <-chan error {
	out := make(chan error, 1)
	var g errgroup.Group
	g.Go(func() error {
		return b.Publish(event)
	})
	go func() {
		out <- g.Wait()
		close(out)
	}()
	return out
}

func (b *inMemoryBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, byID := range b.handlers {
		for _, s := range byID {
			s.active = false
		}
	}
	b.handlers = make(map[string]map[string]*subscription)
}
