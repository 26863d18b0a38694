//go:build !windows
// +build !windows

package host

import (
	"context"
	"fmt"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/host/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"path/filepath"
	"sync"
	"time"
)

const eventBuffer = 256

// PTYHost runs shells in pseudo-terminals on the local machine.
type PTYHost struct {
	logger *zap.Logger

	shellEnv  []string
	shellPath string

	sessionsLock sync.Mutex
	sessions     map[string]*session.Session
	closed       bool

	events       chan Event
	eventsLock   sync.RWMutex
	eventsClosed bool
	pumps        sync.WaitGroup
	closing      chan struct{}
}

func New(opts ...Option) (*PTYHost, error) {
	ph := &PTYHost{
		sessions: make(map[string]*session.Session),
		closing:  make(chan struct{}),
	}

	// Apply options
	for _, opt := range opts {
		opt(ph)
	}

	// Apply defaults
	if ph.logger == nil {
		ph.logger = zap.NewNop()
	}

	ph.events = make(chan Event, eventBuffer)

	return ph, nil
}

func (ph *PTYHost) Create(ctx context.Context, request CreateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	shell, err := session.NewShellPTY(ph.logger.Sugar(), session.ShellOptions{
		ShellPath:        ph.shellPath,
		WorkingDirectory: request.WorkingDirectory,
		Env:              ph.shellEnv,
		Cols:             request.Cols,
		Rows:             request.Rows,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start shell: %w", err)
	}

	name := request.Name
	if name == "" {
		name = filepath.Base(shell.ShellPath())
	}

	token := uuid.New().String()
	sess := session.New(ph.logger, token, name, shell)

	ph.sessionsLock.Lock()
	if ph.closed {
		ph.sessionsLock.Unlock()
		_ = shell.Close()

		return "", ErrClosed
	}
	ph.sessions[token] = sess
	ph.pumps.Add(1)
	ph.sessionsLock.Unlock()

	ph.emit(Event{
		Kind:  EventSessionStarted,
		Token: token,
		Info: SessionInfo{
			Name:             name,
			ProcessID:        shell.Pid(),
			WorkingDirectory: shell.WorkingDirectory(),
			ShellPath:        shell.ShellPath(),
			Cols:             request.Cols,
			Rows:             request.Rows,
		},
	})

	go ph.pump(sess)

	return token, nil
}

func (ph *PTYHost) pump(sess *session.Session) {
	defer ph.pumps.Done()

	exitCode := sess.PumpOutput(func(chunk []byte) {
		ph.emit(Event{Kind: EventOutput, Token: sess.Token(), Data: chunk})
	})

	ph.logger.Debug("shell exited", zap.String("host-token", sess.Token()), zap.Int("exit-code", exitCode))

	ph.emit(Event{Kind: EventSessionExited, Token: sess.Token(), ExitCode: exitCode})

	// Crashed shells stay around until explicitly closed so that the crash can be observed
	if exitCode == 0 {
		ph.forget(sess.Token())
	}
}

func (ph *PTYHost) Write(token string, data []byte) error {
	sess, err := ph.find(token)
	if err != nil {
		return err
	}

	return sess.Write(data)
}

func (ph *PTYHost) Resize(token string, cols, rows int) error {
	sess, err := ph.find(token)
	if err != nil {
		return err
	}

	return sess.Resize(cols, rows)
}

func (ph *PTYHost) Close(token string) error {
	sess, err := ph.find(token)
	if err != nil {
		return err
	}

	err = sess.Close()

	ph.forget(token)

	return err
}

func (ph *PTYHost) Events() <-chan Event {
	return ph.events
}

func (ph *PTYHost) NumSessions() int {
	ph.sessionsLock.Lock()
	defer ph.sessionsLock.Unlock()

	return len(ph.sessions)
}

func (ph *PTYHost) LastActivity() time.Time {
	ph.sessionsLock.Lock()
	defer ph.sessionsLock.Unlock()

	var result time.Time

	for _, sess := range ph.sessions {
		if lastActivity := sess.LastActivity(); lastActivity.After(result) {
			result = lastActivity
		}
	}

	return result
}

// Shutdown kills every shell and closes the event channel.
func (ph *PTYHost) Shutdown() error {
	ph.sessionsLock.Lock()
	if ph.closed {
		ph.sessionsLock.Unlock()
		return nil
	}
	ph.closed = true
	close(ph.closing)

	sessions := make([]*session.Session, 0, len(ph.sessions))
	for _, sess := range ph.sessions {
		sessions = append(sessions, sess)
	}
	ph.sessionsLock.Unlock()

	var result error

	for _, sess := range sessions {
		if err := sess.Close(); err != nil && result == nil {
			result = err
		}
	}

	ph.pumps.Wait()

	ph.eventsLock.Lock()
	ph.eventsClosed = true
	close(ph.events)
	ph.eventsLock.Unlock()

	return result
}

func (ph *PTYHost) find(token string) (*session.Session, error) {
	ph.sessionsLock.Lock()
	defer ph.sessionsLock.Unlock()

	sess, ok := ph.sessions[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, token)
	}

	return sess, nil
}

func (ph *PTYHost) forget(token string) {
	ph.sessionsLock.Lock()
	_, ok := ph.sessions[token]
	delete(ph.sessions, token)
	closed := ph.closed
	ph.sessionsLock.Unlock()

	if ok && !closed {
		ph.emit(Event{Kind: EventSessionEnded, Token: token})
	}
}

func (ph *PTYHost) emit(event Event) {
	ph.eventsLock.RLock()
	defer ph.eventsLock.RUnlock()

	if ph.eventsClosed {
		return
	}

	select {
	case ph.events <- event:
	case <-ph.closing:
	}
}
