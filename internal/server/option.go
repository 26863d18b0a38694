package server

import (
	"crypto/tls"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/credential"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/registry"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/server/engine"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/host"
	"go.uber.org/zap"
	"net/http"
)

type Option func(*TerminalServer)

type WebsocketOriginFunc func(*http.Request) bool

func WithLogger(logger *zap.Logger) Option {
	return func(ts *TerminalServer) {
		ts.logger = logger
	}
}

func WithServerAddress(address string) Option {
	return func(ts *TerminalServer) {
		ts.addresses = append(ts.addresses, address)
	}
}

func WithServerAddresses(addresses []string) Option {
	return func(ts *TerminalServer) {
		ts.addresses = append(ts.addresses, addresses...)
	}
}

func WithAuthority(authority *credential.Authority) Option {
	return func(ts *TerminalServer) {
		ts.authority = authority
	}
}

func WithRegistry(reg *registry.Registry) Option {
	return func(ts *TerminalServer) {
		ts.registry = reg
	}
}

func WithHost(terminalHost host.Host) Option {
	return func(ts *TerminalServer) {
		ts.host = terminalHost
	}
}

// WithMaxConnections sets the ceiling of concurrently admitted streaming connections.
func WithMaxConnections(maxConnections int) Option {
	return func(ts *TerminalServer) {
		ts.maxConnections = maxConnections
	}
}

func WithWebsocketOriginFunc(websocketOriginFunc WebsocketOriginFunc) Option {
	return func(ts *TerminalServer) {
		ts.websocketOriginFunc = websocketOriginFunc
	}
}

// WithGCPProjectID enables trace correlation of request logs through X-Cloud-Trace-Context.
func WithGCPProjectID(gcpProjectID string) Option {
	return func(ts *TerminalServer) {
		ts.gcpProjectID = gcpProjectID
	}
}

func WithEngineOptions(opts ...engine.Option) Option {
	return func(ts *TerminalServer) {
		ts.engineOpts = append(ts.engineOpts, opts...)
	}
}

func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(ts *TerminalServer) {
		ts.tlsConfig = tlsConfig
	}
}
