package registry

import (
	"path/filepath"
	"strings"
	"time"
)

type ShellKind string

const (
	ShellBash ShellKind = "bash"
	ShellZsh  ShellKind = "zsh"
	ShellFish ShellKind = "fish"
	ShellPwsh ShellKind = "pwsh"
	ShellCmd  ShellKind = "cmd"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusCrashed  Status = "crashed"
)

type Dimensions struct {
	Cols int
	Rows int
}

// TerminalSession is a snapshot of a tracked session. The registry hands out
// copies, mutating one has no effect on the registry.
type TerminalSession struct {
	ID               string
	DisplayName      string
	ProcessID        int
	WorkingDirectory string
	ShellKind        ShellKind
	Dimensions       Dimensions
	IsActive         bool
	IsMarkedSpecial  bool
	CreatedAt        time.Time
	LastActivityAt   time.Time
	Status           Status
}

// HostInfo describes a session as reported by the host collaborator.
// HostToken is the host's own handle for the session.
type HostInfo struct {
	HostToken        string
	DisplayName      string
	ProcessID        int
	WorkingDirectory string
	ShellPath        string
	Dimensions       Dimensions
}

func DetectShellKind(shellPath string) ShellKind {
	base := strings.ToLower(filepath.Base(strings.ReplaceAll(shellPath, "\\", "/")))
	base = strings.TrimSuffix(base, ".exe")

	switch base {
	case "zsh":
		return ShellZsh
	case "fish":
		return ShellFish
	case "pwsh", "powershell":
		return ShellPwsh
	case "cmd":
		return ShellCmd
	default:
		return ShellBash
	}
}
