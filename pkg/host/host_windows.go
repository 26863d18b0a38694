package host

import (
	"context"
	"errors"
	"time"
)

var ErrUnsupported = errors.New("PTY host doesn't support Windows yet, see https://github.com/creack/pty/pull/109")

type PTYHost struct {
	logger    interface{}
	shellEnv  []string
	shellPath string
}

func New(opts ...Option) (*PTYHost, error) {
	return nil, ErrUnsupported
}

func (ph *PTYHost) Create(ctx context.Context, request CreateRequest) (string, error) {
	return "", ErrUnsupported
}

func (ph *PTYHost) Write(token string, data []byte) error {
	return ErrUnsupported
}

func (ph *PTYHost) Resize(token string, cols, rows int) error {
	return ErrUnsupported
}

func (ph *PTYHost) Close(token string) error {
	return ErrUnsupported
}

func (ph *PTYHost) Events() <-chan Event {
	return nil
}

func (ph *PTYHost) Shutdown() error {
	return nil
}

func (ph *PTYHost) LastActivity() time.Time {
	return time.Time{}
}

func (ph *PTYHost) NumSessions() int {
	return 0
}
