// Package registry keeps the in-memory model of the relayed terminal sessions:
// their metadata, which one is selected, their output history and their
// output sequence counters.
//
// Every method takes the same lock, so mutations on a session never interleave.
// The registry performs no I/O, talking to the host is left to the callers.
package registry

import (
	"github.com/google/uuid"
	"strings"
	"sync"
	"time"
)

var DefaultAssistantPatterns = []string{"claude"}

type entry struct {
	session   TerminalSession
	hostToken string
	buffer    *OutputBuffer
	sequence  uint64
}

type Registry struct {
	mu sync.RWMutex

	sessions map[string]*entry
	byToken  map[string]string
	order    []string
	activeID string

	bufferCapacity    int
	assistantPatterns []string
	generateID        func() string
	now               func() time.Time
}

func New(opts ...Option) *Registry {
	registry := &Registry{
		sessions:          make(map[string]*entry),
		byToken:           make(map[string]string),
		bufferCapacity:    DefaultBufferCapacity,
		assistantPatterns: DefaultAssistantPatterns,
	}

	// Apply options
	for _, opt := range opts {
		opt(registry)
	}

	// Apply defaults
	if registry.generateID == nil {
		registry.generateID = func() string {
			return uuid.New().String()
		}
	}
	if registry.now == nil {
		registry.now = time.Now
	}

	return registry
}

// CreateSession starts tracking a host session. The first session tracked
// becomes the active one. Reporting the same host token twice returns the
// session created the first time.
func (registry *Registry) CreateSession(info HostInfo) TerminalSession {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if info.HostToken != "" {
		if id, ok := registry.byToken[info.HostToken]; ok {
			return registry.snapshot(registry.sessions[id])
		}
	}

	id := registry.generateID()
	for _, taken := registry.sessions[id]; taken; _, taken = registry.sessions[id] {
		id = registry.generateID()
	}

	now := registry.now()

	e := &entry{
		session: TerminalSession{
			ID:               id,
			DisplayName:      info.DisplayName,
			ProcessID:        info.ProcessID,
			WorkingDirectory: info.WorkingDirectory,
			ShellKind:        DetectShellKind(info.ShellPath),
			Dimensions:       info.Dimensions,
			IsMarkedSpecial:  registry.isAssistant(info.DisplayName),
			CreatedAt:        now,
			LastActivityAt:   now,
			Status:           StatusActive,
		},
		hostToken: info.HostToken,
		buffer:    NewOutputBuffer(registry.bufferCapacity),
	}

	registry.sessions[id] = e
	registry.order = append(registry.order, id)
	if info.HostToken != "" {
		registry.byToken[info.HostToken] = id
	}

	if len(registry.sessions) == 1 {
		registry.activeID = id
	}

	return registry.snapshot(e)
}

// DestroySession stops tracking the session. When it was the active one,
// no session is active afterwards.
func (registry *Registry) DestroySession(id string) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e, ok := registry.sessions[id]
	if !ok {
		return false
	}

	delete(registry.sessions, id)
	if e.hostToken != "" {
		delete(registry.byToken, e.hostToken)
	}

	for i, orderedID := range registry.order {
		if orderedID == id {
			registry.order = append(registry.order[:i], registry.order[i+1:]...)
			break
		}
	}

	if registry.activeID == id {
		registry.activeID = ""
	}

	return true
}

func (registry *Registry) SelectSession(id string) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e, ok := registry.sessions[id]
	if !ok {
		return false
	}

	registry.activeID = id
	registry.touch(e)

	return true
}

// RecordOutput appends the chunk to the session's buffer and returns the
// sequence number assigned to it.
func (registry *Registry) RecordOutput(id string, chunk string) (uint64, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e, ok := registry.sessions[id]
	if !ok {
		return 0, false
	}

	e.buffer.Append(chunk)
	e.sequence++
	registry.touch(e)

	return e.sequence, true
}

func (registry *Registry) Resize(id string, cols, rows int) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e, ok := registry.sessions[id]
	if !ok {
		return false
	}

	if cols <= 0 || rows <= 0 {
		return false
	}

	e.session.Dimensions = Dimensions{Cols: cols, Rows: rows}
	registry.touch(e)

	return true
}

// Touch records a control event (such as input) on the session and returns the
// session's host token.
func (registry *Registry) Touch(id string) (string, bool) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e, ok := registry.sessions[id]
	if !ok {
		return "", false
	}

	registry.touch(e)

	return e.hostToken, true
}

// MarkExited records the exit of the session's process. A non-zero exit code
// marks the session as crashed.
func (registry *Registry) MarkExited(id string, exitCode int) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	e, ok := registry.sessions[id]
	if !ok {
		return false
	}

	if exitCode != 0 {
		e.session.Status = StatusCrashed
	} else {
		e.session.Status = StatusInactive
	}

	return true
}

// MarkIdle marks active sessions with no activity since the given time as
// inactive and returns how many were changed.
func (registry *Registry) MarkIdle(since time.Time) int {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	var changed int

	for _, e := range registry.sessions {
		if e.session.Status == StatusActive && e.session.LastActivityAt.Before(since) {
			e.session.Status = StatusInactive
			changed++
		}
	}

	return changed
}

func (registry *Registry) Get(id string) (TerminalSession, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	e, ok := registry.sessions[id]
	if !ok {
		return TerminalSession{}, false
	}

	return registry.snapshot(e), true
}

func (registry *Registry) Buffer(id string) ([]string, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	e, ok := registry.sessions[id]
	if !ok {
		return nil, false
	}

	return e.buffer.Chunks(), true
}

// List returns the sessions in creation order.
func (registry *Registry) List() []TerminalSession {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	result := make([]TerminalSession, 0, len(registry.order))

	for _, id := range registry.order {
		result = append(result, registry.snapshot(registry.sessions[id]))
	}

	return result
}

func (registry *Registry) ActiveID() (string, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	return registry.activeID, registry.activeID != ""
}

// Sequence returns the last sequence number assigned to the session's output.
func (registry *Registry) Sequence(id string) (uint64, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	e, ok := registry.sessions[id]
	if !ok {
		return 0, false
	}

	return e.sequence, true
}

func (registry *Registry) IDForToken(hostToken string) (string, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	id, ok := registry.byToken[hostToken]

	return id, ok
}

func (registry *Registry) HostToken(id string) (string, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	e, ok := registry.sessions[id]
	if !ok {
		return "", false
	}

	return e.hostToken, true
}

func (registry *Registry) Len() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	return len(registry.sessions)
}

func (registry *Registry) touch(e *entry) {
	now := registry.now()
	if now.After(e.session.LastActivityAt) {
		e.session.LastActivityAt = now
	}

	e.session.Status = StatusActive
}

func (registry *Registry) snapshot(e *entry) TerminalSession {
	session := e.session
	session.IsActive = session.ID == registry.activeID

	return session
}

func (registry *Registry) isAssistant(displayName string) bool {
	name := strings.ToLower(displayName)

	for _, pattern := range registry.assistantPatterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}

	return false
}
