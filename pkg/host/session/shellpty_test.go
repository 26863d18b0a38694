//go:build !windows
// +build !windows

package session_test

import (
	"bytes"
	"fmt"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/host/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"io"
	"os"
	"testing"
)

func TestEnvPassthrough(t *testing.T) {
	t.Setenv("TEST_ENV_PASSTHROUGH_CANARY", "some value")

	shellPty, err := session.NewShellPTY(zap.NewNop().Sugar(), session.ShellOptions{ShellPath: "/bin/sh"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fmt.Fprintln(shellPty, "env ; exit"); err != nil {
		t.Fatal(err)
	}

	buf := bytes.NewBuffer([]byte{})

	_, _ = io.Copy(buf, shellPty)

	if err := shellPty.Close(); err != nil {
		t.Fatal(err)
	}

	assert.Contains(t, buf.String(), "TEST_ENV_PASSTHROUGH_CANARY=some value")
}

func TestEnvCustom(t *testing.T) {
	shellPty, err := session.NewShellPTY(zap.NewNop().Sugar(), session.ShellOptions{
		ShellPath: "/bin/sh",
		Env:       []string{"TEST_ENV_PASSTHROUGH_CANARY=some value"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := fmt.Fprintln(shellPty, "env ; exit"); err != nil {
		t.Fatal(err)
	}

	buf := bytes.NewBuffer([]byte{})

	_, _ = io.Copy(buf, shellPty)

	if err := shellPty.Close(); err != nil {
		t.Fatal(err)
	}

	assert.Contains(t, buf.String(), "TEST_ENV_PASSTHROUGH_CANARY=some value")
}

func TestWorkingDirectory(t *testing.T) {
	dir := t.TempDir()

	shellPty, err := session.NewShellPTY(zap.NewNop().Sugar(), session.ShellOptions{
		ShellPath:        "/bin/sh",
		WorkingDirectory: dir,
	})
	require.NoError(t, err)
	defer shellPty.Close()

	assert.Equal(t, dir, shellPty.WorkingDirectory())
	assert.NotZero(t, shellPty.Pid())

	_, err = os.Stat(dir)
	require.NoError(t, err)
}
