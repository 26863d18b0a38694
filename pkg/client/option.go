package client

import (
	"context"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"net/http"
	"time"
)

type Option func(*Client)

// DialFunc has the signature of (*websocket.Dialer).DialContext.
type DialFunc func(ctx context.Context, url string, header http.Header) (*websocket.Conn, *http.Response, error)

type StateObserver func(previous, current State)

type MessageHandler func(msg *protocol.Message)

type ErrorHandler func(err error)

func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithBaseDelay sets d in the d, 2d, 4d... reconnection backoff.
func WithBaseDelay(baseDelay time.Duration) Option {
	return func(client *Client) {
		client.baseDelay = baseDelay
	}
}

func WithMaxAttempts(maxAttempts int) Option {
	return func(client *Client) {
		client.maxAttempts = maxAttempts
	}
}

// WithStateObserver registers a callback invoked on every state transition.
// It runs synchronously and must not call Connect or Disconnect.
func WithStateObserver(observer StateObserver) Option {
	return func(client *Client) {
		client.onState = observer
	}
}

func WithMessageHandler(handler MessageHandler) Option {
	return func(client *Client) {
		client.onMessage = handler
	}
}

func WithErrorHandler(handler ErrorHandler) Option {
	return func(client *Client) {
		client.onError = handler
	}
}

func WithDialer(dial DialFunc) Option {
	return func(client *Client) {
		client.dial = dial
	}
}

func WithScheduler(scheduler Scheduler) Option {
	return func(client *Client) {
		client.scheduler = scheduler
	}
}

// WithPingInterval sets how often connection.ping is sent while connected,
// a negative interval disables pinging.
func WithPingInterval(pingInterval time.Duration) Option {
	return func(client *Client) {
		client.pingInterval = pingInterval
	}
}

func WithDialTimeout(dialTimeout time.Duration) Option {
	return func(client *Client) {
		client.dialTimeout = dialTimeout
	}
}
