package engine

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"time"
)

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

func WithQueueCapacity(capacity int) Option {
	return func(engine *Engine) {
		engine.queueCapacity = capacity
	}
}

// WithPingInterval sets how often the liveness sweep runs.
func WithPingInterval(interval time.Duration) Option {
	return func(engine *Engine) {
		engine.pingInterval = interval
	}
}

// WithLivenessTimeout sets how long a connection may stay silent before it's closed.
func WithLivenessTimeout(timeout time.Duration) Option {
	return func(engine *Engine) {
		engine.livenessTimeout = timeout
	}
}

// WithIdleAfter sets how long a session may go without activity before it's marked inactive.
func WithIdleAfter(idleAfter time.Duration) Option {
	return func(engine *Engine) {
		engine.idleAfter = idleAfter
	}
}

// WithInputRate limits terminal.input messages per connection, a zero limit disables limiting.
func WithInputRate(limit rate.Limit, burst int) Option {
	return func(engine *Engine) {
		engine.inputRate = limit
		engine.inputBurst = burst
	}
}

func WithClock(now func() time.Time) Option {
	return func(engine *Engine) {
		engine.now = now
	}
}
