// Package server is the relay's single listening surface: the streaming
// WebSocket gateway, the REST API and a gRPC health service share one port.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/credential"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/registry"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/server/engine"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/host"
	"github.com/gorilla/websocket"
	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrNoAuthority = errors.New("a credential authority is required")

const (
	DefaultMaxConnections = 50

	keepaliveInterval = 1 * time.Minute
	shutdownTimeout   = 5 * time.Second
)

type TerminalServer struct {
	logger *zap.Logger

	addresses []string
	listeners []net.Listener
	tlsConfig *tls.Config

	authority *credential.Authority
	registry  *registry.Registry
	host      host.Host

	engine     *engine.Engine
	engineOpts []engine.Option

	// Slots are reserved before the credential is looked at, so that
	// concurrent attempts can't overshoot the ceiling
	slotsLock      sync.Mutex
	slotsTaken     int
	maxConnections int

	upgrader            websocket.Upgrader
	websocketOriginFunc WebsocketOriginFunc

	healthServer *health.Server

	gcpProjectID string
	startedAt    time.Time
}

func New(opts ...Option) (*TerminalServer, error) {
	ts := &TerminalServer{}

	// Apply options
	for _, opt := range opts {
		opt(ts)
	}

	// Apply defaults
	if ts.logger == nil {
		ts.logger = zap.NewNop()
	}
	if ts.authority == nil {
		return nil, ErrNoAuthority
	}
	if ts.registry == nil {
		ts.registry = registry.New()
	}
	if ts.maxConnections <= 0 {
		ts.maxConnections = DefaultMaxConnections
	}
	if len(ts.addresses) == 0 {
		ts.addresses = []string{"0.0.0.0:0"}
	}

	engineOpts := append([]engine.Option{engine.WithLogger(ts.logger)}, ts.engineOpts...)
	ts.engine = engine.New(ts.registry, ts.host, engineOpts...)

	ts.upgrader = websocket.Upgrader{
		CheckOrigin: func(request *http.Request) bool {
			if ts.websocketOriginFunc == nil {
				return true
			}

			return ts.websocketOriginFunc(request)
		},
	}

	ts.healthServer = health.NewServer()
	ts.startedAt = time.Now()

	// Listen
	for _, address := range ts.addresses {
		listener, err := net.Listen("tcp", address)
		if err != nil {
			for _, listener := range ts.listeners {
				_ = listener.Close()
			}

			return nil, err
		}

		ts.listeners = append(ts.listeners, listener)
	}

	return ts, nil
}

func (ts *TerminalServer) Run(ctx context.Context) (err error) {
	// Create a sub-context to let the first failing Goroutine to start the cancellation process
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		ts.engine.Run(subCtx)
	}()

	keepaliveOption := grpc.KeepaliveParams(keepalive.ServerParameters{
		Time: keepaliveInterval,
	})
	grpcServer := grpc.NewServer(keepaliveOption)
	defer grpcServer.Stop()
	grpc_health_v1.RegisterHealthServer(grpcServer, ts.healthServer)
	ts.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	grpcWebServer := grpcweb.WrapServer(
		grpcServer,
		grpcweb.WithWebsockets(true),
		grpcweb.WithWebsocketOriginFunc(func(request *http.Request) bool {
			return ts.upgrader.CheckOrigin(request)
		}),
		grpcweb.WithWebsocketPingInterval(keepaliveInterval),
	)

	router := ts.router()

	handler := func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("content-type")
		switch {
		case strings.ToLower(r.Header.Get("Sec-Websocket-Protocol")) == "grpc-websockets":
			grpcWebServer.ServeHTTP(w, r)
		case strings.HasPrefix(contentType, "application/grpc-web"):
			grpcWebServer.ServeHTTP(w, r)
		case strings.HasPrefix(contentType, "application/grpc"):
			grpcServer.ServeHTTP(w, r)
		default:
			router.ServeHTTP(w, r)
		}
	}

	startServer := func(server *http.Server, listener net.Listener) error {
		ts.logger.Sugar().Infof("starting server on %s...", listener.Addr().String())

		if server.TLSConfig != nil {
			return server.ServeTLS(listener, "", "")
		}
		// enable HTTP/2 without TLS aka h2c
		h2s := &http2.Server{}
		server.Handler = h2c.NewHandler(server.Handler, h2s)
		return server.Serve(listener)
	}

	var (
		errLock   sync.Mutex
		serversWG sync.WaitGroup
	)

	servers := make([]*http.Server, 0, len(ts.listeners))

	for _, listener := range ts.listeners {
		listener := listener

		server := &http.Server{
			Handler:           http.HandlerFunc(handler),
			ReadHeaderTimeout: 5 * time.Second,
			TLSConfig:         ts.tlsConfig,
		}
		servers = append(servers, server)

		serversWG.Add(1)
		go func() {
			defer serversWG.Done()
			defer cancel()

			if serverErr := startServer(server, listener); serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
				ts.logger.Sugar().With(zap.Error(serverErr)).Warnf("server failed on %s", listener.Addr().String())

				errLock.Lock()
				err = serverErr
				errLock.Unlock()
			}
		}()
	}

	<-subCtx.Done()

	ts.healthServer.Shutdown()
	ts.engine.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	for _, server := range servers {
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			ts.logger.Warn("failed to gracefully shut down the server", zap.Error(shutdownErr))
		}
	}

	serversWG.Wait()
	<-engineDone

	return err
}

func (ts *TerminalServer) Addresses() []string {
	var result []string

	for _, listener := range ts.listeners {
		result = append(result, listener.Addr().String())
	}

	return result
}

func (ts *TerminalServer) ServerAddress() string {
	return ts.listeners[0].Addr().String()
}

func (ts *TerminalServer) Engine() *engine.Engine {
	return ts.engine
}

func (ts *TerminalServer) Registry() *registry.Registry {
	return ts.registry
}

func (ts *TerminalServer) acquireSlot() bool {
	ts.slotsLock.Lock()
	defer ts.slotsLock.Unlock()

	if ts.slotsTaken >= ts.maxConnections {
		return false
	}

	ts.slotsTaken++

	return true
}

func (ts *TerminalServer) releaseSlot() {
	ts.slotsLock.Lock()
	defer ts.slotsLock.Unlock()

	ts.slotsTaken--
}

func (ts *TerminalServer) atCapacity() bool {
	ts.slotsLock.Lock()
	defer ts.slotsLock.Unlock()

	return ts.slotsTaken >= ts.maxConnections
}
