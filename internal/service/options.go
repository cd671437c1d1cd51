package service

import (
	"log/slog"
	"time"
)

type options struct {
	now        func() time.Time
	logger     *slog.Logger
	eventTopic string
}

func defaultOptions() options {
	return options{
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		logger: slog.Default(),
	}
}

// Option configures the services in this package.
type Option func(*options)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventTopic enables outbox events on topic. Without it no outbox rows
// are written.
func WithEventTopic(topic string) Option {
	return func(o *options) {
		o.eventTopic = topic
	}
}

func buildOptions(component string, opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", component)
	return o
}
