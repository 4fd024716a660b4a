package stream

import (
	"log/slog"

	"github.com/hupe1980/lodstream/internal/resource"
)

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetricsObserver sets the observer for load and commit events.
func WithMetricsObserver(o MetricsObserver) Option {
	return func(p *Pool) {
		if o != nil {
			p.metrics = o
		}
	}
}

// WithResourceController bounds concurrent reads and read bandwidth.
func WithResourceController(rc *resource.Controller) Option {
	return func(p *Pool) {
		p.rc = rc
	}
}
