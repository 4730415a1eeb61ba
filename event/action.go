package event

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrActionTimeout = errors.New("action timed out waiting for a response")

// Callback receives the single response to an action. Exactly one of value
// and err is meaningful.
type Callback[T any] func(value T, err error)

// Policy decides how a batch of values is delivered to an armed ActionSlot.
type Policy uint8

const (
	// FireOnce answers the request with the first value in a batch that
	// matches it, then disarms. Values that don't match leave the slot armed.
	FireOnce Policy = iota

	// FirePerItem invokes the callback for every value of the first batch
	// delivered, matching or not, then disarms.
	FirePerItem
)

func (p Policy) String() string {
	switch p {
	case FireOnce:
		return "once"
	case FirePerItem:
		return "per_item"
	default:
		return "unknown"
	}
}

type pendingAction[T any] struct {
	id    uuid.UUID
	cb    Callback[T]
	match func(T) bool
}

// ActionSlot holds at most one pending one-shot request. Arming a slot that is
// already armed replaces the pending request: the replaced caller is never
// answered.
type ActionSlot[T any] struct {
	name   string
	policy Policy

	mu      sync.Mutex
	pending *pendingAction[T]
}

func NewActionSlot[T any](name string, policy Policy) *ActionSlot[T] {
	return &ActionSlot[T]{
		name:   name,
		policy: policy,
	}
}

func (s *ActionSlot[T]) Name() string {
	return s.name
}

// Arm installs cb as the pending request. match limits which values answer the
// request under FireOnce; nil matches everything. The returned bool reports
// whether an earlier pending request was displaced.
func (s *ActionSlot[T]) Arm(cb Callback[T], match func(T) bool) (uuid.UUID, bool) {
	id := uuid.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := s.pending != nil
	s.pending = &pendingAction[T]{id: id, cb: cb, match: match}
	return id, replaced
}

// Pending returns the id of the armed request, if any.
func (s *ActionSlot[T]) Pending() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return uuid.Nil, false
	}
	return s.pending.id, true
}

func (s *ActionSlot[T]) Armed() bool {
	_, ok := s.Pending()
	return ok
}

// Deliver offers a batch of values to the pending request and returns the
// number of callback invocations it caused.
func (s *ActionSlot[T]) Deliver(values ...T) int {
	if len(values) == 0 {
		return 0
	}

	s.mu.Lock()
	pending := s.pending
	if pending == nil {
		s.mu.Unlock()
		return 0
	}

	var fire []T
	switch s.policy {
	case FirePerItem:
		fire = values
	default:
		for _, v := range values {
			if pending.match == nil || pending.match(v) {
				fire = []T{v}
				break
			}
		}
	}

	if len(fire) == 0 {
		s.mu.Unlock()
		return 0
	}
	s.pending = nil
	s.mu.Unlock()

	for _, v := range fire {
		pending.cb(v, nil)
	}
	return len(fire)
}

// Fail answers the pending request with err. It reports whether a request was
// pending.
func (s *ActionSlot[T]) Fail(err error) bool {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if pending == nil {
		return false
	}

	var zero T
	pending.cb(zero, err)
	return true
}

// FailRequest answers request id with err, but only if it is still the
// pending request.
func (s *ActionSlot[T]) FailRequest(id uuid.UUID, err error) bool {
	s.mu.Lock()
	pending := s.pending
	if pending == nil || pending.id != id {
		s.mu.Unlock()
		return false
	}
	s.pending = nil
	s.mu.Unlock()

	var zero T
	pending.cb(zero, err)
	return true
}

// Expire fails request id with ErrActionTimeout.
func (s *ActionSlot[T]) Expire(id uuid.UUID) bool {
	return s.FailRequest(id, ErrActionTimeout)
}
