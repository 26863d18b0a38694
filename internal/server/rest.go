package server

import (
	"encoding/json"
	"fmt"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/server/engine"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/version"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"io"
	"net/http"
	"time"
)

const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"

	maxRequestBody = 1 << 20
)

type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	SessionCount  int    `json:"sessionCount"`
}

type SessionResponse struct {
	Session protocol.Session `json:"session"`
	Buffer  []string         `json:"buffer"`
}

type SelectResponse struct {
	Success         bool   `json:"success"`
	ActiveSessionID string `json:"activeSessionId"`
}

type InputResponse struct {
	Success  bool   `json:"success"`
	Sequence uint64 `json:"sequence"`
}

type ResizeResponse struct {
	Success bool `json:"success"`
}

func (ts *TerminalServer) router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(ts.requestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/health", ts.getHealth)

	router.Group(func(router chi.Router) {
		router.Use(ts.authenticate)

		router.Get("/ws", ts.handleStream)
		router.Get("/stream", ts.handleStream)

		router.Get("/sessions", ts.listSessions)
		router.Get("/sessions/{id}", ts.getSession)
		router.Post("/sessions/{id}/select", ts.selectSession)
		router.Post("/sessions/{id}/input", ts.sendInput)
		router.Post("/sessions/{id}/resize", ts.resizeSession)
	})

	return router
}

func (ts *TerminalServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, request *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, request.ProtoMajor)

		next.ServeHTTP(ww, request)

		fields := []zap.Field{
			zap.String("method", request.Method),
			zap.String("path", request.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			RequestIDField(middleware.GetReqID(request.Context())),
			RemoteField(request.RemoteAddr),
		}
		fields = append(fields, ts.TraceContext(request)...)

		ts.logger.Debug("handled request", fields...)
	})
}

// authenticate checks the credential of every request. Streaming connections
// are only passed through: they're admitted or rejected after the upgrade so
// that the client receives a meaningful close code.
func (ts *TerminalServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, request *http.Request) {
		if websocket.IsWebSocketUpgrade(request) {
			next.ServeHTTP(w, request)
			return
		}

		credential := credentialFromRequest(request)
		if credential == "" {
			writeProblem(w, request, http.StatusUnauthorized, "missing credential")
			return
		}

		if !ts.authority.Check(credential) {
			ts.logger.Info("rejected request with an invalid credential", HashedCredentialField(credential),
				RemoteField(request.RemoteAddr))
			writeProblem(w, request, http.StatusUnauthorized, "invalid credential")

			return
		}

		next.ServeHTTP(w, request)
	})
}

func (ts *TerminalServer) healthReport() HealthResponse {
	status := HealthHealthy
	if !ts.engine.HostFeedHealthy() || ts.atCapacity() {
		status = HealthDegraded
	}

	return HealthResponse{
		Status:        status,
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(ts.startedAt).Seconds()),
		SessionCount:  ts.registry.Len(),
	}
}

func (ts *TerminalServer) getHealth(w http.ResponseWriter, request *http.Request) {
	writeJSON(w, http.StatusOK, ts.healthReport())
}

func (ts *TerminalServer) listSessions(w http.ResponseWriter, request *http.Request) {
	writeJSON(w, http.StatusOK, ts.engine.ListPayload())
}

func (ts *TerminalServer) getSession(w http.ResponseWriter, request *http.Request) {
	id := chi.URLParam(request, "id")

	session, ok := ts.registry.Get(id)
	if !ok {
		writeProblem(w, request, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		return
	}

	buffer, ok := ts.registry.Buffer(id)
	if !ok {
		writeProblem(w, request, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Session: engine.SessionView(session),
		Buffer:  buffer,
	})
}

func (ts *TerminalServer) selectSession(w http.ResponseWriter, request *http.Request) {
	id := chi.URLParam(request, "id")

	if !ts.engine.Select(id) {
		writeProblem(w, request, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		return
	}

	writeJSON(w, http.StatusOK, SelectResponse{
		Success:         true,
		ActiveSessionID: id,
	})
}

func (ts *TerminalServer) sendInput(w http.ResponseWriter, request *http.Request) {
	id := chi.URLParam(request, "id")

	var body struct {
		Data json.RawMessage `json:"data"`
	}
	if err := decodeBody(request, &body); err != nil {
		writeProblem(w, request, http.StatusBadRequest, err.Error())
		return
	}

	var data string
	if len(body.Data) == 0 || json.Unmarshal(body.Data, &data) != nil || string(body.Data) == "null" {
		writeProblem(w, request, http.StatusBadRequest, "data must be a string")
		return
	}

	sequence, ok := ts.engine.Input(id, data)
	if !ok {
		writeProblem(w, request, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		return
	}

	writeJSON(w, http.StatusOK, InputResponse{
		Success:  true,
		Sequence: sequence,
	})
}

func (ts *TerminalServer) resizeSession(w http.ResponseWriter, request *http.Request) {
	id := chi.URLParam(request, "id")

	var body struct {
		Cols json.RawMessage `json:"cols"`
		Rows json.RawMessage `json:"rows"`
	}
	if err := decodeBody(request, &body); err != nil {
		writeProblem(w, request, http.StatusBadRequest, err.Error())
		return
	}

	cols, rows, err := protocol.ParseDimensions(body.Cols, body.Rows)
	if err != nil {
		writeProblem(w, request, http.StatusBadRequest, err.Error())
		return
	}

	if !ts.engine.Resize(id, cols, rows) {
		writeProblem(w, request, http.StatusNotFound, fmt.Sprintf("session %q not found", id))
		return
	}

	writeJSON(w, http.StatusOK, ResizeResponse{Success: true})
}

func decodeBody(request *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(request.Body, maxRequestBody))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("request body is not a JSON object: %w", err)
	}

	return nil
}
