package event

import "sync"

type Handler[Event any] interface {
	OnEvent(e Event)
}

// HandlerFunc is an adapter to allow the use of ordinary
// functions as Handlers.
type HandlerFunc[Event any] func(Event)

// OnEvent calls f(e).
func (f HandlerFunc[Event]) OnEvent(e Event) {
	f(e)
}

// Subscription holds at most one persistent listener. Notifying never clears
// the listener; only Set and Clear change it.
type Subscription[Event any] struct {
	name string

	handlerMu sync.RWMutex
	handler   Handler[Event]
}

func NewSubscription[Event any](name string) *Subscription[Event] {
	return &Subscription[Event]{name: name}
}

func (s *Subscription[Event]) Name() string {
	return s.name
}

// Set registers h, replacing any existing listener. It reports whether a
// listener was replaced.
func (s *Subscription[Event]) Set(h Handler[Event]) bool {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	replaced := s.handler != nil
	s.handler = h
	return replaced
}

func (s *Subscription[Event]) Clear() {
	s.handlerMu.Lock()
	s.handler = nil
	s.handlerMu.Unlock()
}

func (s *Subscription[Event]) Active() bool {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()

	return s.handler != nil
}

// Notify synchronously delivers e to the listener, if one is registered.
func (s *Subscription[Event]) Notify(e Event) bool {
	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()

	// Execute the handler outside the lock so it may re-subscribe.
	if h == nil {
		return false
	}
	h.OnEvent(e)
	return true
}
