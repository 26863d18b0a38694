package registry

import (
	"strings"
	"time"
)

type Option func(*Registry)

func WithBufferCapacity(capacity int) Option {
	return func(registry *Registry) {
		registry.bufferCapacity = capacity
	}
}

// WithAssistantPatterns sets the case-insensitive display name fragments
// that mark a session as a long-running assistant session.
func WithAssistantPatterns(patterns []string) Option {
	return func(registry *Registry) {
		registry.assistantPatterns = nil

		for _, pattern := range patterns {
			if pattern = strings.TrimSpace(pattern); pattern != "" {
				registry.assistantPatterns = append(registry.assistantPatterns, strings.ToLower(pattern))
			}
		}
	}
}

func WithIDGenerator(generateID func() string) Option {
	return func(registry *Registry) {
		registry.generateID = generateID
	}
}

func WithClock(now func() time.Time) Option {
	return func(registry *Registry) {
		registry.now = now
	}
}
