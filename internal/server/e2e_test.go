package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/credential"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/registry"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/server"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"io"
	"net/http"
	"testing"
	"time"
)

type testRelay struct {
	server    *server.TerminalServer
	authority *credential.Authority
	registry  *registry.Registry
}

func startRelay(t *testing.T, opts ...server.Option) *testRelay {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	authority := credential.NewAuthority(credential.NewMemoryStore(), zap.NewNop())
	require.NoError(t, authority.Load())

	reg := registry.New()

	serverOpts := []server.Option{
		server.WithServerAddress("127.0.0.1:0"),
		server.WithAuthority(authority),
		server.WithRegistry(reg),
	}
	serverOpts = append(serverOpts, opts...)

	terminalServer, err := server.New(serverOpts...)
	require.NoError(t, err)

	terminalServerErrChan := make(chan error, 1)
	go func() {
		terminalServerErrChan <- terminalServer.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()

		if err := <-terminalServerErrChan; err != nil && !errors.Is(err, context.Canceled) {
			t.Error(err)
		}
	})

	return &testRelay{
		server:    terminalServer,
		authority: authority,
		registry:  reg,
	}
}

func (relay *testRelay) dial(t *testing.T, credential string) *websocket.Conn {
	t.Helper()

	headers := http.Header{}
	if credential != "" {
		headers.Set("X-API-Key", credential)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+relay.server.ServerAddress()+"/ws", headers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func (relay *testRelay) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequest(method, "http://"+relay.server.ServerAddress()+path, reader)
	require.NoError(t, err)
	request.Header.Set("X-API-Key", relay.authority.Secret())

	resp, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, v any) {
	t.Helper()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func requireCloseCode(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, data, err := conn.ReadMessage()
	require.Error(t, err, "expected the connection to be closed, received %s", data)

	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected a close frame, got %v", err)
	require.Equal(t, code, closeErr.Code)
}

// tryAdmission reports whether a new streaming connection gets admitted.
func (relay *testRelay) tryAdmission(t *testing.T) bool {
	t.Helper()

	conn := relay.dial(t, relay.authority.Secret())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, _, err := conn.ReadMessage()

	return err == nil
}

func receive(t *testing.T, conn *websocket.Conn, messageType protocol.Type) *protocol.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		msg, err := protocol.Decode(data)
		require.NoError(t, err)

		if msg.Type == messageType {
			return msg
		}
	}
}

func TestStreamAdmission(t *testing.T) {
	relay := startRelay(t)

	relay.registry.CreateSession(registry.HostInfo{HostToken: "a"})

	requireCloseCode(t, relay.dial(t, ""), protocol.CloseMissingCredential)
	requireCloseCode(t, relay.dial(t, "not the credential"), protocol.CloseInvalidCredential)

	// Admitted clients are greeted with the session list
	conn := relay.dial(t, relay.authority.Secret())

	var list protocol.ListPayload
	require.NoError(t, receive(t, conn, protocol.TypeTerminalList).DecodePayload(&list))
	assert.Len(t, list.Sessions, 1)
}

func TestConnectionCeiling(t *testing.T) {
	relay := startRelay(t)

	var admitted []*websocket.Conn
	for i := 0; i < server.DefaultMaxConnections; i++ {
		conn := relay.dial(t, relay.authority.Secret())
		receive(t, conn, protocol.TypeTerminalList)

		admitted = append(admitted, conn)
	}

	requireCloseCode(t, relay.dial(t, relay.authority.Secret()), protocol.CloseCapacityExceeded)
	assert.Equal(t, server.DefaultMaxConnections, relay.server.Engine().NumClients())

	// The earlier connections are still being served
	session := relay.registry.CreateSession(registry.HostInfo{HostToken: "a"})
	relay.server.Engine().PublishOutput(session.ID, "still here")

	var output protocol.OutputPayload
	require.NoError(t, receive(t, admitted[0], protocol.TypeTerminalOutput).DecodePayload(&output))
	assert.Equal(t, "still here", output.Data)

	// A freed slot can be taken again
	require.NoError(t, admitted[0].WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	require.Eventually(t, func() bool {
		return relay.server.Engine().NumClients() == server.DefaultMaxConnections-1
	}, 5*time.Second, 10*time.Millisecond)

	// The slot is given back right after the engine lets go of the client
	require.Eventually(t, func() bool {
		return relay.tryAdmission(t)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRotationKeepsAdmittedConnections(t *testing.T) {
	relay := startRelay(t)

	oldSecret := relay.authority.Secret()
	conn := relay.dial(t, oldSecret)
	receive(t, conn, protocol.TypeTerminalList)

	newSecret, err := relay.authority.Rotate()
	require.NoError(t, err)
	require.NotEqual(t, oldSecret, newSecret)

	session := relay.registry.CreateSession(registry.HostInfo{HostToken: "a"})
	relay.server.Engine().PublishOutput(session.ID, "after rotation")

	var output protocol.OutputPayload
	require.NoError(t, receive(t, conn, protocol.TypeTerminalOutput).DecodePayload(&output))
	assert.Equal(t, "after rotation", output.Data)

	requireCloseCode(t, relay.dial(t, oldSecret), protocol.CloseInvalidCredential)

	newConn := relay.dial(t, newSecret)
	receive(t, newConn, protocol.TypeTerminalList)
}

func TestRESTRequiresCredential(t *testing.T) {
	relay := startRelay(t)

	resp, err := http.Get("http://" + relay.server.ServerAddress() + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	var problem server.Problem
	decodeResponse(t, resp, &problem)
	assert.Equal(t, "missing credential", problem.Detail)
	assert.NotEmpty(t, problem.RequestID)

	// Health is exempt
	resp, err = http.Get("http://" + relay.server.ServerAddress() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRESTSessions(t *testing.T) {
	relay := startRelay(t)

	first := relay.registry.CreateSession(registry.HostInfo{HostToken: "a", DisplayName: "bash"})
	second := relay.registry.CreateSession(registry.HostInfo{HostToken: "b", DisplayName: "Claude"})
	relay.server.Engine().PublishOutput(first.ID, "hello")

	// List
	resp := relay.request(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list protocol.ListPayload
	decodeResponse(t, resp, &list)
	require.Len(t, list.Sessions, 2)
	require.NotNil(t, list.ActiveSessionID)
	assert.Equal(t, first.ID, *list.ActiveSessionID)
	assert.True(t, list.Sessions[1].IsMarkedSpecial)

	// Detail with buffer
	resp = relay.request(t, http.MethodGet, "/sessions/"+first.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail server.SessionResponse
	decodeResponse(t, resp, &detail)
	assert.Equal(t, first.ID, detail.Session.ID)
	assert.Equal(t, []string{"hello"}, detail.Buffer)

	resp = relay.request(t, http.MethodGet, "/sessions/unknown-id", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Select
	resp = relay.request(t, http.MethodPost, "/sessions/"+second.ID+"/select", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var selected server.SelectResponse
	decodeResponse(t, resp, &selected)
	assert.Equal(t, server.SelectResponse{Success: true, ActiveSessionID: second.ID}, selected)

	resp = relay.request(t, http.MethodPost, "/sessions/unknown-id/select", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	activeID, _ := relay.registry.ActiveID()
	assert.Equal(t, second.ID, activeID)
}

func TestRESTInput(t *testing.T) {
	relay := startRelay(t)

	session := relay.registry.CreateSession(registry.HostInfo{HostToken: "a"})
	relay.server.Engine().PublishOutput(session.ID, "prompt$ ")

	for _, body := range []any{
		map[string]any{},
		map[string]any{"data": 42},
		map[string]any{"data": nil},
		[]string{"ls"},
	} {
		resp := relay.request(t, http.MethodPost, "/sessions/"+session.ID+"/input", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "%v", body)
	}

	resp := relay.request(t, http.MethodPost, "/sessions/unknown-id/input", map[string]any{"data": "ls\n"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = relay.request(t, http.MethodPost, "/sessions/"+session.ID+"/input", map[string]any{"data": "ls\n"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var input server.InputResponse
	decodeResponse(t, resp, &input)
	assert.Equal(t, server.InputResponse{Success: true, Sequence: 1}, input)
}

func TestRESTResize(t *testing.T) {
	relay := startRelay(t)

	session := relay.registry.CreateSession(registry.HostInfo{
		HostToken:  "a",
		Dimensions: registry.Dimensions{Cols: 80, Rows: 24},
	})

	for _, body := range []any{
		map[string]any{"cols": 100},
		map[string]any{"cols": 100, "rows": 0},
		map[string]any{"cols": -1, "rows": 30},
		map[string]any{"cols": 100.5, "rows": 30},
		map[string]any{"cols": "100", "rows": 30},
	} {
		resp := relay.request(t, http.MethodPost, "/sessions/"+session.ID+"/resize", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "%v", body)
	}

	unchanged, _ := relay.registry.Get(session.ID)
	assert.Equal(t, registry.Dimensions{Cols: 80, Rows: 24}, unchanged.Dimensions)

	resp := relay.request(t, http.MethodPost, "/sessions/unknown-id/resize", map[string]any{"cols": 100, "rows": 30})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = relay.request(t, http.MethodPost, "/sessions/"+session.ID+"/resize", map[string]any{"cols": 100, "rows": 30})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resized, _ := relay.registry.Get(session.ID)
	assert.Equal(t, registry.Dimensions{Cols: 100, Rows: 30}, resized.Dimensions)
}

func TestGRPCHealthService(t *testing.T) {
	relay := startRelay(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientConn, err := grpc.DialContext(ctx, relay.server.ServerAddress(),
		grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithBlock())
	require.NoError(t, err)
	defer clientConn.Close()

	resp, err := grpc_health_v1.NewHealthClient(clientConn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}

func TestWebsocketOriginChecking(t *testing.T) {
	const goodOrigin = "https://example.com"

	relay := startRelay(t, server.WithWebsocketOriginFunc(func(request *http.Request) bool {
		return request.Header.Get("Origin") == goodOrigin
	}))

	headers := http.Header{}
	headers.Set("X-API-Key", relay.authority.Secret())

	goodHeaders := headers.Clone()
	goodHeaders.Set("Origin", goodOrigin)
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+relay.server.ServerAddress()+"/ws", goodHeaders)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	_ = conn.Close()

	badHeaders := headers.Clone()
	badHeaders.Set("Origin", "https://example.org")
	_, resp, err = websocket.DefaultDialer.Dial("ws://"+relay.server.ServerAddress()+"/ws", badHeaders)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
