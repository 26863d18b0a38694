// Package client maintains a single logical relay connection from the remote
// side, reconnecting with exponential backoff when the transport is lost.
package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"net/http"
	"sync"
	"time"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrRejected     = errors.New("connection rejected by the relay")
)

const (
	DefaultBaseDelay    = 1 * time.Second
	DefaultMaxAttempts  = 5
	DefaultPingInterval = 25 * time.Second
	DefaultDialTimeout  = 10 * time.Second

	writeTimeout = 10 * time.Second
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (state State) String() string {
	switch state {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Client struct {
	logger *zap.Logger

	baseDelay    time.Duration
	maxAttempts  int
	pingInterval time.Duration
	dialTimeout  time.Duration

	dial      DialFunc
	scheduler Scheduler

	onState   StateObserver
	onMessage MessageHandler
	onError   ErrorHandler

	mu    sync.Mutex
	state State
	// Bumped by Connect and Disconnect, callbacks of an older generation
	// (a late dial, a stale retry, a dying read loop) are ignored
	generation uint64
	armed      bool
	attempt    int
	retry      Timer
	conn       *websocket.Conn
	url        string
	credential string

	// State transitions are delivered outside of mu, tickets keep them in the
	// order they happened
	pending      []transition
	nextTicket   uint64
	notifyLock   sync.Mutex
	notifyCond   *sync.Cond
	servedTicket uint64

	writeLock sync.Mutex
}

type transition struct {
	previous State
	current  State
}

func New(opts ...Option) *Client {
	client := &Client{}
	client.notifyCond = sync.NewCond(&client.notifyLock)

	// Apply options
	for _, opt := range opts {
		opt(client)
	}

	// Apply defaults
	if client.logger == nil {
		client.logger = zap.NewNop()
	}
	if client.baseDelay <= 0 {
		client.baseDelay = DefaultBaseDelay
	}
	if client.maxAttempts <= 0 {
		client.maxAttempts = DefaultMaxAttempts
	}
	if client.pingInterval == 0 {
		client.pingInterval = DefaultPingInterval
	}
	if client.dialTimeout <= 0 {
		client.dialTimeout = DefaultDialTimeout
	}
	if client.dial == nil {
		client.dial = websocket.DefaultDialer.DialContext
	}
	if client.scheduler == nil {
		client.scheduler = realScheduler{}
	}

	return client
}

func (client *Client) State() State {
	client.mu.Lock()
	defer client.mu.Unlock()

	return client.state
}

// Connect arms reconnection and starts connecting to the relay at url. It's a
// no-op while already connecting or connected.
func (client *Client) Connect(url string, credential string) {
	client.mu.Lock()

	if client.state == StateConnecting || client.state == StateConnected {
		client.mu.Unlock()
		return
	}

	client.stopRetryLocked()
	client.generation++
	client.armed = true
	client.attempt = 0
	client.url = url
	client.credential = credential

	// A connection still waiting to be admitted belongs to the old generation
	pendingConn := client.conn
	client.conn = nil

	client.setStateLocked(StateConnecting)

	generation := client.generation
	client.unlockAndNotify()

	if pendingConn != nil {
		_ = pendingConn.Close()
	}

	go client.connect(generation)
}

// Disconnect closes the connection and cancels any pending reconnection. It's
// safe to call in any state and more than once.
func (client *Client) Disconnect() {
	client.mu.Lock()

	client.stopRetryLocked()
	client.generation++
	client.armed = false

	conn := client.conn
	client.conn = nil

	client.setStateLocked(StateDisconnected)
	client.unlockAndNotify()

	if conn != nil {
		client.writeLock.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		client.writeLock.Unlock()

		_ = conn.Close()
	}
}

// Send fails fast with ErrNotConnected unless the client is connected.
func (client *Client) Send(msg *protocol.Message) error {
	client.mu.Lock()
	conn := client.conn
	connected := client.state == StateConnected
	client.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	encoded, err := msg.Encode()
	if err != nil {
		return err
	}

	client.writeLock.Lock()
	defer client.writeLock.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return conn.WriteMessage(websocket.TextMessage, encoded)
}

func (client *Client) connect(generation uint64) {
	client.mu.Lock()
	url := client.url
	header := http.Header{}
	header.Set("X-API-Key", client.credential)
	client.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), client.dialTimeout)
	defer cancel()

	conn, resp, err := client.dial(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	client.mu.Lock()

	if generation != client.generation {
		client.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}

		return
	}

	if err != nil {
		client.logger.Info("failed to connect to the relay", zap.String("url", url), zap.Error(err))
		client.scheduleRetryLocked()
		client.unlockAndNotify()

		return
	}

	// The relay upgrades refused connections too, so the attempt only counts
	// as a success once the relay speaks first
	client.conn = conn
	client.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(client.dialTimeout))

	done := make(chan struct{})

	go func() {
		defer close(done)
		client.readLoop(generation, conn, done)
	}()
}

func (client *Client) readLoop(generation uint64, conn *websocket.Conn, done <-chan struct{}) {
	admitted := false

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			client.connectionLost(generation, conn, err)
			return
		}

		if !admitted {
			if !client.markAdmitted(generation, conn) {
				_ = conn.Close()
				return
			}

			admitted = true
			_ = conn.SetReadDeadline(time.Time{})

			if client.pingInterval > 0 {
				go client.pingLoop(done)
			}
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			client.reportError(err)
			continue
		}

		if client.onMessage != nil {
			client.onMessage(msg)
		}
	}
}

func (client *Client) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(client.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := client.Ping(); err != nil && !errors.Is(err, ErrNotConnected) {
				client.logger.Debug("failed to ping the relay", zap.Error(err))
			}
		case <-done:
			return
		}
	}
}

// markAdmitted switches to Connected on the first message of a connection and
// starts the backoff over.
func (client *Client) markAdmitted(generation uint64, conn *websocket.Conn) bool {
	client.mu.Lock()

	if generation != client.generation || client.conn != conn {
		client.mu.Unlock()
		return false
	}

	client.attempt = 0
	client.setStateLocked(StateConnected)
	client.unlockAndNotify()

	return true
}

func (client *Client) connectionLost(generation uint64, conn *websocket.Conn, err error) {
	client.mu.Lock()

	if generation != client.generation || client.conn != conn {
		client.mu.Unlock()
		return
	}

	client.conn = nil
	_ = conn.Close()

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && !protocol.Retryable(closeErr.Code) {
		client.logger.Warn("relay refused the connection", zap.Int("close-code", closeErr.Code))

		client.armed = false
		client.setStateLocked(StateFailed)
		client.unlockAndNotify()

		client.reportError(fmt.Errorf("%w: %s", ErrRejected, protocol.CloseReason(closeErr.Code)))

		return
	}

	if client.state == StateConnected {
		client.logger.Info("lost connection to the relay", zap.Error(err))
	} else {
		client.logger.Info("relay closed the connection before admitting it", zap.Error(err))
	}
	client.scheduleRetryLocked()
	client.unlockAndNotify()
}

// scheduleRetryLocked arms the next attempt after baseDelay*2^attempt, or
// gives up once the attempts are exhausted.
func (client *Client) scheduleRetryLocked() {
	if !client.armed {
		client.setStateLocked(StateDisconnected)
		return
	}

	if client.attempt >= client.maxAttempts {
		client.logger.Warn("giving up on reconnecting", zap.Int("attempts", client.attempt))

		client.armed = false
		client.setStateLocked(StateFailed)

		return
	}

	delay := client.baseDelay * time.Duration(1<<client.attempt)
	client.attempt++

	client.setStateLocked(StateReconnecting)

	generation := client.generation
	client.retry = client.scheduler.AfterFunc(delay, func() {
		client.mu.Lock()
		stale := generation != client.generation || client.state != StateReconnecting
		if !stale {
			client.retry = nil
		}
		client.mu.Unlock()

		if !stale {
			client.connect(generation)
		}
	})
}

func (client *Client) stopRetryLocked() {
	if client.retry != nil {
		client.retry.Stop()
		client.retry = nil
	}
}

func (client *Client) setStateLocked(state State) {
	if client.state == state {
		return
	}

	client.pending = append(client.pending, transition{previous: client.state, current: state})
	client.state = state
}

// unlockAndNotify releases mu and then delivers the transitions recorded
// while it was held.
func (client *Client) unlockAndNotify() {
	pending := client.pending
	client.pending = nil

	if len(pending) == 0 {
		client.mu.Unlock()
		return
	}

	ticket := client.nextTicket
	client.nextTicket++
	client.mu.Unlock()

	client.notifyLock.Lock()
	defer client.notifyLock.Unlock()

	for client.servedTicket != ticket {
		client.notifyCond.Wait()
	}

	if client.onState != nil {
		for _, transition := range pending {
			client.onState(transition.previous, transition.current)
		}
	}

	client.servedTicket++
	client.notifyCond.Broadcast()
}

func (client *Client) reportError(err error) {
	if client.onError != nil {
		client.onError(err)
	}
}

func (client *Client) Select(sessionID string) error {
	return client.sendPayload(protocol.TypeTerminalSelect, protocol.SelectPayload{SessionID: sessionID})
}

func (client *Client) Input(sessionID string, data string) error {
	return client.sendPayload(protocol.TypeTerminalInput, protocol.InputPayload{SessionID: sessionID, Data: data})
}

func (client *Client) Resize(sessionID string, cols, rows int) error {
	return client.sendPayload(protocol.TypeTerminalResize, map[string]any{
		"sessionId": sessionID,
		"cols":      cols,
		"rows":      rows,
	})
}

func (client *Client) List() error {
	return client.sendPayload(protocol.TypeTerminalList, nil)
}

func (client *Client) Ping() error {
	return client.sendPayload(protocol.TypeConnectionPing, nil)
}

func (client *Client) sendPayload(messageType protocol.Type, payload any) error {
	msg, err := protocol.New(messageType, payload)
	if err != nil {
		return err
	}

	return client.Send(msg)
}
