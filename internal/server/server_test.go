package server

import (
	"encoding/json"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/credential"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestTerminalServer(t *testing.T, opts ...Option) *TerminalServer {
	t.Helper()

	authority := credential.NewAuthority(credential.NewMemoryStore(), zap.NewNop())
	require.NoError(t, authority.Load())

	opts = append([]Option{WithAuthority(authority), WithServerAddress("127.0.0.1:0")}, opts...)

	ts, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, listener := range ts.listeners {
			_ = listener.Close()
		}
	})

	return ts
}

func TestNewRequiresAuthority(t *testing.T) {
	_, err := New(WithServerAddress("127.0.0.1:0"))
	require.ErrorIs(t, err, ErrNoAuthority)
}

func TestCredentialFromRequest(t *testing.T) {
	testCases := []struct {
		Name     string
		Headers  map[string]string
		Expected string
	}{
		{"none", map[string]string{}, ""},
		{"api key", map[string]string{"X-API-Key": "secret"}, "secret"},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, "secret"},
		{"lowercase bearer", map[string]string{"Authorization": "bearer secret"}, "secret"},
		{"basic is ignored", map[string]string{"Authorization": "Basic c2VjcmV0"}, ""},
		{"empty bearer", map[string]string{"Authorization": "Bearer "}, ""},
		{"api key wins", map[string]string{"X-API-Key": "first", "Authorization": "Bearer second"}, "first"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/sessions", nil)
			for key, value := range testCase.Headers {
				request.Header.Set(key, value)
			}

			assert.Equal(t, testCase.Expected, credentialFromRequest(request))
		})
	}
}

func TestConnectionSlots(t *testing.T) {
	ts := newTestTerminalServer(t, WithMaxConnections(2))

	require.True(t, ts.acquireSlot())
	require.False(t, ts.atCapacity())
	require.True(t, ts.acquireSlot())
	require.True(t, ts.atCapacity())
	require.False(t, ts.acquireSlot())

	ts.releaseSlot()
	require.True(t, ts.acquireSlot())
}

func TestAdmissionOrder(t *testing.T) {
	ts := newTestTerminalServer(t, WithMaxConnections(1))

	request := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Equal(t, 4001, ts.admissionCode(request))

	request.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, 4003, ts.admissionCode(request))

	// Rejections give the slot back
	request.Header.Set("X-API-Key", ts.authority.Secret())
	assert.Equal(t, 0, ts.admissionCode(request))

	// Capacity is checked before the credential
	assert.Equal(t, 1013, ts.admissionCode(httptest.NewRequest(http.MethodGet, "/ws", nil)))
}

func TestProblemDetails(t *testing.T) {
	ts := newTestTerminalServer(t)

	request := httptest.NewRequest(http.MethodGet, "/sessions/unknown-id", nil)
	request.Header.Set("X-API-Key", ts.authority.Secret())
	recorder := httptest.NewRecorder()

	ts.router().ServeHTTP(recorder, request)

	require.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "application/problem+json", recorder.Header().Get("Content-Type"))

	var problem Problem
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusNotFound, problem.Status)
	assert.Equal(t, "Not Found", problem.Title)
	assert.Equal(t, "/sessions/unknown-id", problem.Instance)
	assert.NotEmpty(t, problem.RequestID)
	assert.False(t, problem.Timestamp.IsZero())
}

func TestHealthIsDegradedWithoutHostFeed(t *testing.T) {
	reg := registry.New()
	reg.CreateSession(registry.HostInfo{HostToken: "a"})

	ts := newTestTerminalServer(t, WithRegistry(reg))

	recorder := httptest.NewRecorder()
	ts.router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
	assert.Equal(t, HealthDegraded, health.Status)
	assert.Equal(t, 1, health.SessionCount)
	assert.NotEmpty(t, health.Version)
}

func TestHashedCredentialFieldMatchesFingerprint(t *testing.T) {
	field := HashedCredentialField("secret")

	assert.Equal(t, credentialField, field.Key)
	assert.Equal(t, credential.Fingerprint("secret"), field.String)
	assert.NotContains(t, field.String, "secret")
}
