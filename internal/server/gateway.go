package server

import (
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/server/engine"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"net/http"
	"strings"
	"time"
)

const (
	APIKeyHeader = "X-API-Key"

	rejectionWriteTimeout = time.Second
)

// credentialFromRequest returns the bearer credential from X-API-Key, falling
// back to "Authorization: Bearer".
func credentialFromRequest(request *http.Request) string {
	if apiKey := strings.TrimSpace(request.Header.Get(APIKeyHeader)); apiKey != "" {
		return apiKey
	}

	const bearerPrefix = "bearer "

	authorization := strings.TrimSpace(request.Header.Get("Authorization"))
	if len(authorization) > len(bearerPrefix) && strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authorization[len(bearerPrefix):])
	}

	return ""
}

// admissionCode decides whether a streaming connection attempt may be admitted.
// It returns zero on admission, in which case a connection slot is held by the
// caller and must be released.
func (ts *TerminalServer) admissionCode(request *http.Request) int {
	if !ts.acquireSlot() {
		return protocol.CloseCapacityExceeded
	}

	credential := credentialFromRequest(request)
	if credential == "" {
		ts.releaseSlot()
		return protocol.CloseMissingCredential
	}

	if !ts.authority.Check(credential) {
		ts.releaseSlot()
		return protocol.CloseInvalidCredential
	}

	return 0
}

func (ts *TerminalServer) handleStream(w http.ResponseWriter, request *http.Request) {
	logger := ts.logger.With(RemoteField(request.RemoteAddr)).With(ts.TraceContext(request)...)

	code := ts.admissionCode(request)

	conn, err := ts.upgrader.Upgrade(w, request, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error
		logger.Debug("failed to upgrade the connection", zap.Error(err))

		if code == 0 {
			ts.releaseSlot()
		}

		return
	}

	if code != 0 {
		reason := protocol.CloseReason(code)
		logger.Info("rejected streaming connection", zap.Int("close-code", code), zap.String("reason", reason))

		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason),
			time.Now().Add(rejectionWriteTimeout))
		_ = conn.Close()

		return
	}
	defer ts.releaseSlot()

	client := ts.engine.Admit(conn)
	if client == nil {
		return
	}

	logger.Info("admitted streaming connection", HashedCredentialField(credentialFromRequest(request)),
		engine.ClientField(client.ID()))

	// Let the new client know what it can select
	client.Send(protocol.MustNew(protocol.TypeTerminalList, ts.engine.ListPayload()))

	ts.engine.Serve(client)
}
