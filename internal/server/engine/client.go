package engine

import (
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/protocol"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"sync"
	"time"
)

const (
	writeTimeout = 10 * time.Second
	maxInbound   = 512 * 1024
)

// Client is an admitted streaming connection.
type Client struct {
	id     string
	conn   *websocket.Conn
	logger *zap.Logger

	lastPingLock sync.Mutex
	lastPingAt   time.Time

	queue   *Queue
	limiter *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
}

func (client *Client) ID() string {
	return client.id
}

func (client *Client) LastPingAt() time.Time {
	client.lastPingLock.Lock()
	defer client.lastPingLock.Unlock()

	return client.lastPingAt
}

func (client *Client) refreshLiveness(now time.Time) {
	client.lastPingLock.Lock()
	defer client.lastPingLock.Unlock()

	if now.After(client.lastPingAt) {
		client.lastPingAt = now
	}
}

// Enqueue never blocks: the message waits in the bounded outbound queue
// until the writer gets to it.
func (client *Client) Enqueue(encoded []byte) {
	select {
	case <-client.done:
		return
	default:
	}

	if client.queue.Push(encoded) {
		client.logger.Debug("outbound queue is full, dropped the oldest message",
			zap.Uint64("dropped-total", client.queue.Dropped()))
	}
}

func (client *Client) Send(msg *protocol.Message) {
	encoded, err := msg.Encode()
	if err != nil {
		client.logger.Warn("failed to encode message", zap.Error(err))
		return
	}

	client.Enqueue(encoded)
}

// writeLoop drains the outbound queue whenever something was pushed. It returns
// on the first write failure.
func (client *Client) writeLoop() error {
	for {
		select {
		case <-client.queue.Ready():
			for _, encoded := range client.queue.Drain() {
				_ = client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

				if err := client.conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
					return err
				}
			}
		case <-client.done:
			return nil
		}
	}
}

func (client *Client) ping() error {
	return client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Close sends a close frame with the given code and tears the transport down.
func (client *Client) Close(code int, reason string) {
	client.closeOnce.Do(func() {
		close(client.done)

		_ = client.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second))
		_ = client.conn.Close()
	})
}

func (client *Client) Done() <-chan struct{} {
	return client.done
}
