package event

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrStreamClosed  = errors.New("stream is closed")
	ErrStreamStalled = errors.New("stream consumer stalled")
)

// ChannelStream is a Handler that hands events to a channel consumer. Handlers
// run on the producer's loop, so a consumer that leaves the buffer full for
// longer than the stall timeout gets its stream closed with ErrStreamStalled
// instead of holding the loop up.
type ChannelStream[E any] struct {
	log     *zap.Logger
	id      string
	timeout time.Duration

	mu      sync.Mutex
	ch      chan E
	err     error
	dropped int
}

func NewChannelStream[E any](log *zap.Logger, bufferSize int, stallTimeout time.Duration) *ChannelStream[E] {
	id := uuid.NewString()
	return &ChannelStream[E]{
		log:     log.With(zap.String("stream_id", id)),
		id:      id,
		timeout: stallTimeout,
		ch:      make(chan E, bufferSize),
	}
}

func (s *ChannelStream[E]) ID() string {
	return s.id
}

// OnEvent sends e, logging and counting it when it can't be delivered.
func (s *ChannelStream[E]) OnEvent(e E) {
	if err := s.Send(e); err != nil {
		s.log.Warn("Dropped stream event", zap.Int("dropped", s.Dropped()), zap.Error(err))
	}
}

// Send queues e for the consumer, waiting at most the stall timeout for room.
func (s *ChannelStream[E]) Send(e E) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		s.dropped++
		return s.err
	}

	select {
	case s.ch <- e:
		return nil
	case <-time.After(s.timeout):
	}

	s.dropped++
	s.closeLocked(ErrStreamStalled)
	return ErrStreamStalled
}

// Channel is closed once the stream is closed; Err then reports why.
func (s *ChannelStream[E]) Channel() <-chan E {
	return s.ch
}

// Err returns nil while the stream is open, ErrStreamStalled if the consumer
// fell behind, and ErrStreamClosed after Close.
func (s *ChannelStream[E]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *ChannelStream[E]) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dropped
}

func (s *ChannelStream[E]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked(ErrStreamClosed)
}

func (s *ChannelStream[E]) closeLocked(cause error) {
	if s.err != nil {
		return
	}
	s.err = cause
	close(s.ch)
}
