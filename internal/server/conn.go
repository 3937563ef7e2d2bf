package server

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// conn wraps one WebSocket transport with its outbound queue and writer
// goroutine. Reads happen on the caller's goroutine; writes are drained
// from the queue so no send ever blocks the core.
type conn struct {
	id     uint64
	ws     *websocket.Conn
	queue  *outQueue
	logger *zap.Logger

	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.Mutex
	accountID string
}

func newConn(id uint64, ws *websocket.Conn, queueSize int, cancel context.CancelFunc, logger *zap.Logger) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		queue:  newOutQueue(queueSize),
		cancel: cancel,
		logger: logger,
	}
}

func (c *conn) bindAccount(accountID string) {
	c.mu.Lock()
	c.accountID = accountID
	c.mu.Unlock()
}

func (c *conn) boundAccount() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountID
}

// enqueue hands a payload to the writer; drop-oldest on overflow.
func (c *conn) enqueue(payload []byte) bool {
	return c.queue.push(payload)
}

// writeLoop drains the queue onto the transport until the context ends or
// a write fails. A write failure closes the connection; the read loop then
// observes the close and runs the disconnect path.
func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.queue.wake:
		}
		for {
			payload := c.queue.pop()
			if payload == nil {
				break
			}
			if err := c.ws.Write(ctx, websocket.MessageText, payload); err != nil {
				c.logger.Debug("write failed, closing connection",
					zap.Uint64("conn", c.id),
					zap.Error(err),
				)
				c.close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

func (c *conn) close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.queue.close()
		if c.cancel != nil {
			c.cancel()
		}
		if c.ws != nil {
			_ = c.ws.Close(status, reason)
		}
	})
}
