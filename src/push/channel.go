package push

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"kline-cache/src/helpers"
	"kline-cache/src/logger"
	"kline-cache/src/models"

	"github.com/gorilla/websocket"
)

const defaultReconnectDelay = 3 * time.Second

// -----------------------------------------------------------------------------
// PushChannel keeps a live WebSocket connection to the kline push service
// and dispatches "kline" and "transactions" notifications to registered
// handlers. On close or error exactly one reconnect attempt is scheduled
// after a fixed delay; an already pending timer is never doubled. Close()
// cancels the pending timer, closes the socket, and guarantees no further
// callbacks. Handlers run on the read goroutine and are invoked
// at-least-once per server-sent notification; no ordering is guaranteed
// relative to the HTTP backfill path (the merge engine absorbs that race).
// -----------------------------------------------------------------------------

type PushChannel struct {
	Logger *logger.Logger

	url            string
	reconnectDelay time.Duration

	onKline        func(models.MKlinePayload)
	onTransactions func(models.MTransactionsPayload)
	onError        func(error)

	mu             sync.Mutex
	conn           *websocket.Conn
	reconnectTimer *time.Timer
	closed         bool
}

// -----------------------------------------------------------------------------

func NewPushChannel(cfg *models.MConfig, log *logger.Logger) *PushChannel {
	delay := defaultReconnectDelay
	if cfg.Kline.ReconnectDelaySeconds > 0 {
		delay = time.Duration(cfg.Kline.ReconnectDelaySeconds) * time.Second
	}

	return &PushChannel{
		Logger:         log,
		url:            cfg.Kline.WSURL,
		reconnectDelay: delay,
	}
}

// -----------------------------------------------------------------------------
// Handler registration. Must be called before Connect.
// -----------------------------------------------------------------------------

func (c *PushChannel) WithOnKline(cb func(models.MKlinePayload)) {
	c.onKline = cb
}

func (c *PushChannel) WithOnTransactions(cb func(models.MTransactionsPayload)) {
	c.onTransactions = cb
}

// WithOnError registers a diagnostics callback; channel errors are never
// fatal, the channel reconnects on its own.
func (c *PushChannel) WithOnError(cb func(error)) {
	c.onError = cb
}

// -----------------------------------------------------------------------------

// Connect dials the push service and starts the read loop. A dial failure
// is returned to the caller and also schedules a reconnect, so a failed
// initial connection still recovers on its own.
func (c *PushChannel) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("push channel is closed")
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.Logger.Warning("Push connect failed: %v", err)
		c.scheduleReconnect()
		return helpers.NewChannelError("push connect", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("push channel is closed")
	}
	c.conn = conn
	c.mu.Unlock()

	c.Logger.Info("Push channel connected to %s", c.url)
	go c.readLoop(conn)
	return nil
}

// -----------------------------------------------------------------------------

func (c *PushChannel) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		c.dispatch(message)
	}
}

// -----------------------------------------------------------------------------

// dispatch parses one push frame and routes it. Malformed payloads are
// logged and dropped; the connection stays open.
func (c *PushChannel) dispatch(message []byte) {
	if c.isClosed() {
		return
	}

	var notification models.MNotification
	if err := json.Unmarshal(message, &notification); err != nil {
		c.Logger.Warning("Dropping malformed push frame: %v",
			helpers.NewMalformedMessageError("push frame", err))
		return
	}

	switch notification.Notification {
	case models.NotificationKline:
		var payload models.MKlinePayload
		if err := json.Unmarshal(notification.Value, &payload); err != nil {
			c.Logger.Warning("Dropping malformed kline value: %v",
				helpers.NewMalformedMessageError("kline value", err))
			return
		}
		if c.onKline != nil {
			c.onKline(payload)
		}

	case models.NotificationTransactions:
		var payload models.MTransactionsPayload
		if err := json.Unmarshal(notification.Value, &payload); err != nil {
			c.Logger.Warning("Dropping malformed transactions value: %v",
				helpers.NewMalformedMessageError("transactions value", err))
			return
		}
		if c.onTransactions != nil {
			c.onTransactions(payload)
		}

	default:
		c.Logger.Debug("Ignoring unknown notification: %s", notification.Notification)
	}
}

// -----------------------------------------------------------------------------

func (c *PushChannel) handleDisconnect(err error) {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}

	c.Logger.Warning("Push channel disconnected: %v", err)
	if c.onError != nil {
		c.onError(helpers.NewChannelError("push channel", err))
	}
	c.scheduleReconnect()
}

// -----------------------------------------------------------------------------

// scheduleReconnect arms the reconnect timer unless one is already pending.
func (c *PushChannel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.reconnectTimer != nil {
		return
	}

	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return
		}
		// Connect re-arms the timer itself if the dial fails.
		_ = c.Connect()
	})
}

// -----------------------------------------------------------------------------

// Close tears the channel down: pending reconnect cancelled, socket closed,
// no callbacks after return.
func (c *PushChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// -----------------------------------------------------------------------------

func (c *PushChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
