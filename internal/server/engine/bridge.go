package engine

import (
	"context"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/registry"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/host"
	"go.uber.org/zap"
	"unicode/utf8"
)

func (engine *Engine) consumeHostEvents(ctx context.Context, events <-chan host.Event) {
	defer engine.hostFeedDone.Store(true)

	// Output chunks may end in the middle of a UTF-8 sequence, the
	// incomplete tail is held back until the next chunk of the session
	pending := make(map[string][]byte)

	for {
		select {
		case event, ok := <-events:
			if !ok {
				engine.logger.Warn("host event feed has ended")
				return
			}

			engine.HandleHostEvent(event, pending)
		case <-ctx.Done():
			return
		}
	}
}

// HandleHostEvent applies a single host event. pending carries incomplete UTF-8
// output between calls and may be nil.
func (engine *Engine) HandleHostEvent(event host.Event, pending map[string][]byte) {
	logger := engine.logger.With(zap.Stringer("host-event", event.Kind), zap.String("host-token", event.Token))

	if event.Kind == host.EventSessionStarted {
		session := engine.registry.CreateSession(registry.HostInfo{
			HostToken:        event.Token,
			DisplayName:      event.Info.Name,
			ProcessID:        event.Info.ProcessID,
			WorkingDirectory: event.Info.WorkingDirectory,
			ShellPath:        event.Info.ShellPath,
			Dimensions: registry.Dimensions{
				Cols: event.Info.Cols,
				Rows: event.Info.Rows,
			},
		})

		logger.Info("tracking new session", SessionField(session.ID))
		engine.BroadcastList()

		return
	}

	sessionID, ok := engine.registry.IDForToken(event.Token)
	if !ok {
		logger.Debug("ignoring event for an untracked host session")
		return
	}

	switch event.Kind {
	case host.EventOutput:
		data := event.Data
		if pending != nil {
			data = append(pending[event.Token], data...)
			data, pending[event.Token] = splitIncompleteUTF8(data)
		}

		if len(data) > 0 {
			engine.PublishOutput(sessionID, string(data))
		}
	case host.EventSessionExited:
		engine.registry.MarkExited(sessionID, event.ExitCode)
		logger.Info("session process exited", SessionField(sessionID), zap.Int("exit-code", event.ExitCode))
		engine.BroadcastList()
	case host.EventSessionEnded:
		if pending != nil {
			delete(pending, event.Token)
		}

		engine.registry.DestroySession(sessionID)
		logger.Info("session ended", SessionField(sessionID))
		engine.BroadcastList()
	case host.EventActiveChanged:
		engine.Select(sessionID)
	}
}

// splitIncompleteUTF8 splits off a trailing, not yet complete UTF-8 sequence.
func splitIncompleteUTF8(data []byte) ([]byte, []byte) {
	// A UTF-8 sequence is at most utf8.UTFMax bytes long
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		start := len(data) - i
		if !utf8.RuneStart(data[start]) {
			continue
		}

		if !utf8.FullRune(data[start:]) {
			return data[:start], append([]byte(nil), data[start:]...)
		}

		break
	}

	return data, nil
}
