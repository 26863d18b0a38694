// Package engine fans terminal output out to every admitted streaming client
// and routes the clients' control messages back to the session registry and
// the host.
package engine

import (
	"context"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/registry"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/host"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultPingInterval    = 30 * time.Second
	DefaultLivenessTimeout = 60 * time.Second
	DefaultIdleAfter       = 5 * time.Minute

	hostCallBacklog = 256
)

type Engine struct {
	logger   *zap.Logger
	registry *registry.Registry
	host     host.Host

	clientsLock sync.RWMutex
	clients     map[string]*Client
	closed      bool

	// Held while assigning a sequence number and fanning the output out,
	// so that every client sees a session's output in sequence order
	sequencingLock sync.Mutex

	queueCapacity   int
	pingInterval    time.Duration
	livenessTimeout time.Duration
	idleAfter       time.Duration
	inputRate       rate.Limit
	inputBurst      int
	now             func() time.Time

	// Host writes and resizes are applied in submission order by a single
	// worker, the submitter never waits for them
	hostCalls chan func()

	hostFeedDone atomic.Bool
	closeOnce    sync.Once
	done         chan struct{}
}

func New(reg *registry.Registry, terminalHost host.Host, opts ...Option) *Engine {
	engine := &Engine{
		registry:  reg,
		host:      terminalHost,
		clients:   make(map[string]*Client),
		hostCalls: make(chan func(), hostCallBacklog),
		done:      make(chan struct{}),
	}

	// Apply options
	for _, opt := range opts {
		opt(engine)
	}

	// Apply defaults
	if engine.logger == nil {
		engine.logger = zap.NewNop()
	}
	if engine.queueCapacity <= 0 {
		engine.queueCapacity = DefaultQueueCapacity
	}
	if engine.pingInterval <= 0 {
		engine.pingInterval = DefaultPingInterval
	}
	if engine.livenessTimeout <= 0 {
		engine.livenessTimeout = DefaultLivenessTimeout
	}
	if engine.idleAfter <= 0 {
		engine.idleAfter = DefaultIdleAfter
	}
	if engine.now == nil {
		engine.now = time.Now
	}

	go engine.runHostCalls()

	return engine
}

func (engine *Engine) Registry() *registry.Registry {
	return engine.registry
}

// Admit registers an upgraded connection and starts delivering broadcasts to it.
// It returns nil when the engine is already closed.
func (engine *Engine) Admit(conn *websocket.Conn) *Client {
	client := &Client{
		id:         uuid.New().String(),
		conn:       conn,
		lastPingAt: engine.now(),
		queue:      NewQueue(engine.queueCapacity),
		done:       make(chan struct{}),
	}
	client.logger = engine.logger.With(ClientField(client.id))

	if engine.inputRate > 0 {
		client.limiter = rate.NewLimiter(engine.inputRate, engine.inputBurst)
	}

	engine.clientsLock.Lock()
	if engine.closed {
		engine.clientsLock.Unlock()
		client.Close(websocket.CloseGoingAway, "server is shutting down")

		return nil
	}
	engine.clients[client.id] = client
	numClients := len(engine.clients)
	engine.clientsLock.Unlock()

	client.logger.Info("admitted client", zap.Int("clients", numClients))

	go func() {
		if err := client.writeLoop(); err != nil {
			client.logger.Info("failed to write to client", zap.Error(err))
		}

		engine.remove(client, websocket.CloseGoingAway, "")
	}()

	return client
}

// Serve runs the dispatch loop of an admitted client until its transport fails
// or it's closed.
func (engine *Engine) Serve(client *Client) {
	defer engine.remove(client, websocket.CloseNormalClosure, "")

	client.conn.SetReadLimit(maxInbound)
	client.conn.SetPongHandler(func(string) error {
		client.refreshLiveness(engine.now())
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				client.logger.Info("client read failed", zap.Error(err))
			}

			return
		}

		engine.dispatch(client, data)
	}
}

func (engine *Engine) remove(client *Client, code int, reason string) {
	engine.clientsLock.Lock()
	_, ok := engine.clients[client.id]
	delete(engine.clients, client.id)
	numClients := len(engine.clients)
	engine.clientsLock.Unlock()

	client.Close(code, reason)

	if ok {
		client.logger.Info("client disconnected", zap.Int("clients", numClients))
	}
}

func (engine *Engine) NumClients() int {
	engine.clientsLock.RLock()
	defer engine.clientsLock.RUnlock()

	return len(engine.clients)
}

func (engine *Engine) snapshotClients() []*Client {
	engine.clientsLock.RLock()
	defer engine.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(engine.clients))
	for _, client := range engine.clients {
		clients = append(clients, client)
	}

	return clients
}

func (engine *Engine) broadcast(msg *protocol.Message) {
	encoded, err := msg.Encode()
	if err != nil {
		engine.logger.Warn("failed to encode broadcast", zap.Error(err))
		return
	}

	for _, client := range engine.snapshotClients() {
		client.Enqueue(encoded)
	}
}

// PublishOutput records a chunk of session output and fans it out to every
// admitted client with the sequence number it was assigned.
func (engine *Engine) PublishOutput(sessionID string, data string) (uint64, bool) {
	engine.sequencingLock.Lock()
	defer engine.sequencingLock.Unlock()

	sequence, ok := engine.registry.RecordOutput(sessionID, data)
	if !ok {
		return 0, false
	}

	engine.broadcast(protocol.MustNew(protocol.TypeTerminalOutput, protocol.OutputPayload{
		SessionID: sessionID,
		Data:      data,
		Sequence:  sequence,
	}))

	return sequence, true
}

// BroadcastList sends the current session list to every admitted client.
func (engine *Engine) BroadcastList() {
	engine.broadcast(protocol.MustNew(protocol.TypeTerminalList, engine.ListPayload()))
}

// Select makes the session the active one and, on success, tells every client.
func (engine *Engine) Select(sessionID string) bool {
	if !engine.registry.SelectSession(sessionID) {
		return false
	}

	engine.BroadcastList()

	return true
}

// Input forwards data to the session's host terminal without waiting for the
// write to complete. Writes and resizes reach the host in the order they were
// made. It returns the session's latest output sequence number.
func (engine *Engine) Input(sessionID string, data string) (uint64, bool) {
	hostToken, ok := engine.registry.Touch(sessionID)
	if !ok {
		return 0, false
	}

	sequence, _ := engine.registry.Sequence(sessionID)

	engine.submitHostCall(func() {
		if err := engine.host.Write(hostToken, []byte(data)); err != nil {
			engine.logger.Warn("host failed to write input", SessionField(sessionID), zap.Error(err))
		}
	})

	return sequence, true
}

// Resize updates the session's dimensions and forwards them to the host
// without waiting for the host to apply them.
func (engine *Engine) Resize(sessionID string, cols, rows int) bool {
	if !engine.registry.Resize(sessionID, cols, rows) {
		return false
	}

	if hostToken, ok := engine.registry.HostToken(sessionID); ok {
		engine.submitHostCall(func() {
			if err := engine.host.Resize(hostToken, cols, rows); err != nil {
				engine.logger.Warn("host failed to resize terminal", SessionField(sessionID), zap.Error(err))
			}
		})
	}

	return true
}

func (engine *Engine) submitHostCall(call func()) {
	if engine.host == nil {
		return
	}

	select {
	case engine.hostCalls <- call:
	case <-engine.done:
	default:
		engine.logger.Warn("host is not keeping up, dropping a host call")
	}
}

func (engine *Engine) runHostCalls() {
	for {
		select {
		case call := <-engine.hostCalls:
			call()
		case <-engine.done:
			return
		}
	}
}

// Run consumes host events and runs the periodic liveness sweep until ctx is
// cancelled, then closes the engine.
func (engine *Engine) Run(ctx context.Context) {
	defer engine.Close()

	if engine.host != nil {
		go engine.consumeHostEvents(ctx, engine.host.Events())
	}

	ticker := time.NewTicker(engine.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			engine.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep closes clients that gave no sign of life within the liveness timeout,
// pings the rest and marks sessions without recent activity as inactive.
func (engine *Engine) Sweep() {
	now := engine.now()

	for _, client := range engine.snapshotClients() {
		if silence := now.Sub(client.LastPingAt()); silence > engine.livenessTimeout {
			client.logger.Info("closing unresponsive client", zap.Duration("silence", silence))
			engine.remove(client, websocket.CloseGoingAway, "liveness timeout")

			continue
		}

		// A slow writer holds the connection's write lock, ping without holding up the sweep
		go func(client *Client) {
			if err := client.ping(); err != nil {
				client.logger.Info("failed to ping client", zap.Error(err))
				engine.remove(client, websocket.CloseGoingAway, "")
			}
		}(client)
	}

	if engine.registry.MarkIdle(now.Add(-engine.idleAfter)) > 0 {
		engine.BroadcastList()
	}
}

// HostFeedHealthy reports whether host events are still being received.
func (engine *Engine) HostFeedHealthy() bool {
	return engine.host != nil && !engine.hostFeedDone.Load()
}

// Close disconnects every client, no client is admitted afterwards.
func (engine *Engine) Close() {
	engine.closeOnce.Do(func() {
		close(engine.done)

		engine.clientsLock.Lock()
		engine.closed = true
		clients := make([]*Client, 0, len(engine.clients))
		for id, client := range engine.clients {
			clients = append(clients, client)
			delete(engine.clients, id)
		}
		engine.clientsLock.Unlock()

		for _, client := range clients {
			client.Close(websocket.CloseGoingAway, "server is shutting down")
		}
	})
}
