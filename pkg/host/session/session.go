//go:build !windows
// +build !windows

package session

import (
	"errors"
	"go.uber.org/zap"
	"io"
	"sync"
	"time"
)

const readBufSize = 4096

// Session is a shell running in a PTY on this host.
type Session struct {
	logger *zap.SugaredLogger

	token string
	name  string
	shell *ShellPTY

	lastActivityLock sync.Mutex
	lastActivity     time.Time
}

func New(logger *zap.Logger, token string, name string, shell *ShellPTY) *Session {
	return &Session{
		logger: logger.Sugar().With("host-token", token),
		token:  token,
		name:   name,
		shell:  shell,
	}
}

func (session *Session) Token() string {
	return session.token
}

func (session *Session) Name() string {
	return session.name
}

func (session *Session) Write(data []byte) error {
	session.updateLastActivity()

	_, err := session.shell.Write(data)

	return err
}

func (session *Session) Resize(cols, rows int) error {
	session.updateLastActivity()

	return session.shell.Resize(cols, rows)
}

// PumpOutput reads the PTY until it's closed, handing each chunk to onOutput,
// and then returns the shell's exit code.
func (session *Session) PumpOutput(onOutput func([]byte)) int {
	buf := make([]byte, readBufSize)

	for {
		n, err := session.shell.Read(buf)
		if n > 0 {
			session.updateLastActivity()

			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onOutput(chunk)
		}

		if err != nil {
			// Linux reports EIO once the shell side of the PTY is gone
			if !errors.Is(err, io.EOF) {
				session.logger.Debugf("stopped reading from the PTY: %v", err)
			}

			break
		}
	}

	exitCode, err := session.shell.Wait()
	if err != nil {
		session.logger.Warnf("failed to wait for the shell: %v", err)
	}

	return exitCode
}

func (session *Session) Close() error {
	return session.shell.Close()
}

func (session *Session) LastActivity() time.Time {
	session.lastActivityLock.Lock()
	defer session.lastActivityLock.Unlock()

	return session.lastActivity
}

func (session *Session) updateLastActivity() {
	session.lastActivityLock.Lock()
	defer session.lastActivityLock.Unlock()

	now := time.Now()
	if now.After(session.lastActivity) {
		session.lastActivity = now
	}
}
