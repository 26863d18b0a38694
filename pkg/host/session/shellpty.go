//go:build !windows
// +build !windows

package session

import (
	"errors"
	"github.com/creack/pty"
	"go.uber.org/zap"
	"os"
	"os/exec"
	"runtime"
	"sync"
)

const (
	defaultWidthColumns = 80
	defaultHeightRows   = 24
)

type ShellOptions struct {
	ShellPath        string
	WorkingDirectory string
	Env              []string
	Cols             int
	Rows             int
}

type ShellPTY struct {
	logger    *zap.SugaredLogger
	shellPath string
	shellCmd  *exec.Cmd
	pty       *os.File

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

func NewShellPTY(logger *zap.SugaredLogger, opts ShellOptions) (*ShellPTY, error) {
	// Create a PTY with a shell attached to it
	shellPath := opts.ShellPath
	if shellPath == "" {
		shellPath = determineShellPath()
	}
	shellCmd := exec.Command(shellPath)
	shellCmd.Dir = opts.WorkingDirectory

	// Inherit this process environment variables
	if len(opts.Env) == 0 {
		shellCmd.Env = os.Environ()
	} else {
		shellCmd.Env = opts.Env
	}

	// Set TERM to avoid "Error opening terminal: unknown." error
	shellCmd.Env = append(shellCmd.Env, "TERM=xterm")

	pty, err := pty.StartWithSize(shellCmd, dimensionsToPtyWinsize(opts.Cols, opts.Rows))
	if err != nil {
		return nil, err
	}

	logger.Debugf("started shell process with PID %d", shellCmd.Process.Pid)

	return &ShellPTY{
		logger:    logger,
		shellPath: shellPath,
		shellCmd:  shellCmd,
		pty:       pty,
	}, nil
}

func (sp *ShellPTY) Write(b []byte) (int, error) {
	return sp.pty.Write(b)
}

func (sp *ShellPTY) Read(b []byte) (int, error) {
	return sp.pty.Read(b)
}

func (sp *ShellPTY) Resize(cols, rows int) error {
	return pty.Setsize(sp.pty, dimensionsToPtyWinsize(cols, rows))
}

func (sp *ShellPTY) Pid() int {
	return sp.shellCmd.Process.Pid
}

func (sp *ShellPTY) ShellPath() string {
	return sp.shellPath
}

func (sp *ShellPTY) WorkingDirectory() string {
	if sp.shellCmd.Dir != "" {
		return sp.shellCmd.Dir
	}

	wd, _ := os.Getwd()

	return wd
}

// Wait waits for the shell to exit and returns its exit code. It's safe to call
// multiple times.
func (sp *ShellPTY) Wait() (int, error) {
	sp.waitOnce.Do(func() {
		err := sp.shellCmd.Wait()

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			sp.exitCode = exitErr.ExitCode()
			return
		}

		sp.waitErr = err
	})

	return sp.exitCode, sp.waitErr
}

func (sp *ShellPTY) Close() error {
	var result error

	if err := sp.pty.Close(); err != nil {
		result = err
	}

	sp.logger.Debugf("killing shell process with PID %d", sp.shellCmd.Process.Pid)

	if err := sp.shellCmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		sp.logger.Warnf("failed to kill shell process with PID %d: %v", sp.shellCmd.Process.Pid, err)

		if result == nil {
			result = err
		}
	}

	_, _ = sp.Wait()

	return result
}

func determineShellPath() string {
	shellPath := "/bin/sh"

	if envShell := os.Getenv("SHELL"); envShell != "" {
		if _, err := exec.LookPath(envShell); err == nil {
			return envShell
		}
	}

	// Prefer Zsh on macOS
	if runtime.GOOS == "darwin" {
		if zshPath, err := exec.LookPath("zsh"); err == nil {
			return zshPath
		}
	}

	if bashPath, err := exec.LookPath("bash"); err == nil {
		shellPath = bashPath
	}

	return shellPath
}

func dimensionsToPtyWinsize(cols, rows int) *pty.Winsize {
	if cols <= 0 || rows <= 0 {
		return &pty.Winsize{
			Cols: defaultWidthColumns,
			Rows: defaultHeightRows,
		}
	}

	return &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	}
}
