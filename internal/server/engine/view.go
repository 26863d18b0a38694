package engine

import (
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/registry"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/protocol"
)

func SessionView(session registry.TerminalSession) protocol.Session {
	return protocol.Session{
		ID:               session.ID,
		DisplayName:      session.DisplayName,
		ProcessID:        session.ProcessID,
		WorkingDirectory: session.WorkingDirectory,
		ShellKind:        string(session.ShellKind),
		Dimensions: protocol.Dimensions{
			Cols: session.Dimensions.Cols,
			Rows: session.Dimensions.Rows,
		},
		IsActive:        session.IsActive,
		IsMarkedSpecial: session.IsMarkedSpecial,
		CreatedAt:       session.CreatedAt,
		LastActivityAt:  session.LastActivityAt,
		Status:          string(session.Status),
	}
}

func (engine *Engine) ListPayload() protocol.ListPayload {
	sessions := engine.registry.List()

	payload := protocol.ListPayload{
		Sessions: make([]protocol.Session, 0, len(sessions)),
	}

	for _, session := range sessions {
		payload.Sessions = append(payload.Sessions, SessionView(session))

		if session.IsActive {
			activeID := session.ID
			payload.ActiveSessionID = &activeID
		}
	}

	return payload
}
