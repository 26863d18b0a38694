//go:build !windows
// +build !windows

// nolint:testpackage // we intentionally don't use a separate test package to call the updateLastActivity() method
package session

import (
	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"testing"
	"time"
)

func TestLastActivitySimple(t *testing.T) {
	session := New(zap.NewNop(), "", "", nil)

	require.Equal(t, time.Time{}, session.LastActivity())

	session.updateLastActivity()
	require.WithinDuration(t, session.LastActivity(), time.Now(), time.Second)
}

func TestDimensionsToPtyWinsize(t *testing.T) {
	assert.Equal(t, &pty.Winsize{Rows: 24, Cols: 80},
		dimensionsToPtyWinsize(0, 0))
	assert.Equal(t, &pty.Winsize{Rows: 24, Cols: 80},
		dimensionsToPtyWinsize(160, -1))
	assert.Equal(t, &pty.Winsize{Rows: 48, Cols: 160},
		dimensionsToPtyWinsize(160, 48))
}

func TestPumpOutputReportsExitCode(t *testing.T) {
	shell, err := NewShellPTY(zap.NewNop().Sugar(), ShellOptions{ShellPath: "/bin/sh"})
	require.NoError(t, err)
	defer shell.Close()

	session := New(zap.NewNop(), "token", "sh", shell)

	require.NoError(t, session.Write([]byte("echo canary-output; exit 3\n")))

	var output []byte
	exitCode := session.PumpOutput(func(chunk []byte) {
		output = append(output, chunk...)
	})

	assert.Equal(t, 3, exitCode)
	assert.Contains(t, string(output), "canary-output")
}
