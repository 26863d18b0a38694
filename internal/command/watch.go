package command

import (
	"bufio"
	"fmt"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/client"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/protocol"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"io"
	"os"
	"sync"
)

const apiKeyEnv = "RELAY_API_KEY"

var (
	watchURL      string
	watchAPIKey   string
	watchSession  string
	watchLogLevel string
)

// watcher prints the output of one session and types stdin lines into it,
// the way a mobile client would.
type watcher struct {
	out io.Writer

	mu        sync.Mutex
	sessionID string
	pinned    bool
}

func (w *watcher) target() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.sessionID
}

func (w *watcher) handleMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeTerminalList:
		var list protocol.ListPayload
		if err := msg.DecodePayload(&list); err != nil {
			return
		}

		w.mu.Lock()
		if !w.pinned && list.ActiveSessionID != nil {
			w.sessionID = *list.ActiveSessionID
		}
		w.mu.Unlock()
	case protocol.TypeTerminalOutput:
		var output protocol.OutputPayload
		if err := msg.DecodePayload(&output); err != nil {
			return
		}

		if output.SessionID != w.target() {
			return
		}

		_, _ = io.WriteString(w.out, output.Data)
	case protocol.TypeError:
		var payload protocol.ErrorPayload
		if err := msg.DecodePayload(&payload); err != nil {
			return
		}

		fmt.Fprintf(os.Stderr, "relay: %s: %s\n", payload.Code, payload.Message)
	}
}

func watch(cmd *cobra.Command, args []string) error {
	apiKey := watchAPIKey
	if apiKey == "" {
		apiKey = os.Getenv(apiKeyEnv)
	}
	if apiKey == "" {
		return fmt.Errorf("no API key given, use --api-key or set %s", apiKeyEnv)
	}

	logger, _, err := newLogger(watchLogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	w := &watcher{
		out:       cmd.OutOrStdout(),
		sessionID: watchSession,
		pinned:    watchSession != "",
	}

	failed := make(chan struct{})
	var failedOnce sync.Once

	relayClient := client.New(
		client.WithLogger(logger),
		client.WithMessageHandler(w.handleMessage),
		client.WithStateObserver(func(previous, current client.State) {
			logger.Debug("connection state changed",
				zap.Stringer("previous", previous), zap.Stringer("current", current))

			if current == client.StateFailed {
				failedOnce.Do(func() { close(failed) })
			}
		}),
		client.WithErrorHandler(func(err error) {
			logger.Warn("relay connection error", zap.Error(err))
		}),
	)

	relayClient.Connect(watchURL, apiKey)
	defer relayClient.Disconnect()

	go func() {
		scanner := bufio.NewScanner(cmd.InOrStdin())

		for scanner.Scan() {
			sessionID := w.target()
			if sessionID == "" {
				fmt.Fprintln(os.Stderr, "relay: no session to type into yet")

				continue
			}

			if err := relayClient.Input(sessionID, scanner.Text()+"\n"); err != nil {
				logger.Warn("failed to send input", zap.Error(err))
			}
		}
	}()

	select {
	case <-cmd.Context().Done():
		return nil
	case <-failed:
		return fmt.Errorf("gave up connecting to %s", watchURL)
	}
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [flags]",
		Short: "Follow a terminal session through a running relay",
		RunE:  watch,
	}

	cmd.Flags().StringVar(&watchURL, "url", "ws://127.0.0.1:8080/ws", "relay WebSocket endpoint")
	cmd.Flags().StringVar(&watchAPIKey, "api-key", "", fmt.Sprintf("API key (defaults to $%s)", apiKeyEnv))
	cmd.Flags().StringVar(&watchSession, "session", "", "session to follow (defaults to the active one)")
	cmd.Flags().StringVar(&watchLogLevel, "log-level", "warn", "logging level")

	return cmd
}
