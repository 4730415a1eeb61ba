package bridge

import (
	"time"

	"github.com/code-payments/billing-bridge/event"
)

const (
	defaultQueueSize = 256
	defaultPlatform  = "Android"
)

type options struct {
	policy        event.Policy
	actionTimeout time.Duration
	strict        bool
	queueSize     int
	platform      string
}

func defaultOptions() options {
	return options{
		policy:    event.FireOnce,
		queueSize: defaultQueueSize,
		platform:  defaultPlatform,
	}
}

// Option configures a Session.
type Option func(o *options)

// WithActionPolicy sets how purchase and product batches are delivered to the
// one-shot action callbacks.
func WithActionPolicy(p event.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithActionTimeout answers armed action callbacks with event.ErrActionTimeout
// if the provider hasn't responded within d. Zero disables timeouts.
func WithActionTimeout(d time.Duration) Option {
	return func(o *options) {
		o.actionTimeout = d
	}
}

// WithStrictMode replies to malformed requests and unknown product ids with an
// error instead of silently dropping them.
func WithStrictMode(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

func WithQueueSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.queueSize = size
		}
	}
}

// WithPlatform sets the platform label reported in purchase responses.
func WithPlatform(platform string) Option {
	return func(o *options) {
		if platform != "" {
			o.platform = platform
		}
	}
}
