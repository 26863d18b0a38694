// Package host defines the boundary between the relay and the environment that
// actually runs terminal processes, and provides a PTY-backed implementation of it.
package host

import (
	"context"
	"errors"
)

var (
	ErrUnknownSession = errors.New("unknown host session")
	ErrClosed         = errors.New("host is closed")
)

type EventKind int

const (
	EventSessionStarted EventKind = iota
	EventSessionEnded
	EventSessionExited
	EventOutput
	EventActiveChanged
)

func (kind EventKind) String() string {
	switch kind {
	case EventSessionStarted:
		return "session-started"
	case EventSessionEnded:
		return "session-ended"
	case EventSessionExited:
		return "session-exited"
	case EventOutput:
		return "output"
	case EventActiveChanged:
		return "active-changed"
	default:
		return "unknown"
	}
}

// SessionInfo is reported along with EventSessionStarted.
type SessionInfo struct {
	Name             string
	ProcessID        int
	WorkingDirectory string
	ShellPath        string
	Cols             int
	Rows             int
}

// Event is a typed notification from the host. Token identifies the
// session on the host side, only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	Token    string
	Info     SessionInfo
	Data     []byte
	ExitCode int
}

type CreateRequest struct {
	Name             string
	WorkingDirectory string
	Cols             int
	Rows             int
}

// Host is implemented by the environment running the terminals. Write and Resize
// are invoked fire-and-forget by the relay, their failures are only logged.
type Host interface {
	Create(ctx context.Context, request CreateRequest) (string, error)
	Write(token string, data []byte) error
	Resize(token string, cols, rows int) error
	Close(token string) error
	// Events is closed once the host shuts down.
	Events() <-chan Event
}
