package websocket

import (
	"context"
	"live-auction/internal/feed"
	"live-auction/pkg/logger"
	"live-auction/pkg/utils"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// bidFunc handles one place_bid message and returns the reply.
type bidFunc func(ctx context.Context, userID string, msg inbound) interface{}

// WebSocketConnection owns one socket. Only writePump writes to it; the read
// loop and the feed hand messages over through channels.
type WebSocketConnection struct {
	id     string
	conn   *websocket.Conn
	userID string
	sub    *feed.Subscription
	log    logger.Logger

	replies  chan interface{}
	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once
	stopOnce sync.Once
}

func NewWebSocketConnection(conn *websocket.Conn, userID string, sub *feed.Subscription, log logger.Logger) *WebSocketConnection {
	id := utils.GenerateID("conn")
	return &WebSocketConnection{
		id:       id,
		conn:     conn,
		userID:   userID,
		sub:      sub,
		log:      log.With("conn_id", id, "user_id", userID),
		replies:  make(chan interface{}, 16),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *WebSocketConnection) ID() string     { return c.id }
func (c *WebSocketConnection) UserID() string { return c.userID }

// Send queues a message for the writer. It gives up once the connection is
// closing.
func (c *WebSocketConnection) Send(message interface{}) {
	select {
	case c.replies <- message:
	case <-c.done:
	}
}

// Shutdown asks the writer to say goodbye and close.
func (c *WebSocketConnection) Shutdown() {
	c.stopOnce.Do(func() { close(c.shutdown) })
}

func (c *WebSocketConnection) Close() {
	c.once.Do(func() {
		close(c.done)
		c.sub.Close()
		_ = c.conn.Close()
	})
}

// Run writes snapshot, then serves the connection until either side ends
// it. onBid may be nil.
func (c *WebSocketConnection) Run(ctx context.Context, snapshot interface{}, onBid bidFunc) {
	if err := c.write(snapshot); err != nil {
		c.Close()
		return
	}
	go c.readPump(ctx, onBid)
	c.writePump()
}

func (c *WebSocketConnection) readPump(ctx context.Context, onBid bidFunc) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Failed to read message", "error", err)
			}
			return
		}

		switch msg.Type {
		case msgPlaceBid:
			if onBid == nil {
				c.Send(simpleMessage{Type: msgError, Message: "bidding is not available on this stream"})
				continue
			}
			c.Send(onBid(ctx, c.userID, msg))
		case msgPing:
			c.Send(simpleMessage{Type: msgPong})
		default:
			c.Send(simpleMessage{Type: msgError, Message: "unknown message type"})
		}
	}
}

func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	events := c.sub.Events()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				_ = c.write(closedMessage{Type: msgClosed, Reason: closeReason(c.sub.Err())})
				c.closeFrame()
				return
			}
			if err := c.write(eventMessage{Type: e.Type, Event: e}); err != nil {
				return
			}

		case m := <-c.replies:
			if err := c.write(m); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}

		case <-c.shutdown:
			_ = c.write(closedMessage{Type: msgClosed, Reason: "server_shutdown"})
			c.closeFrame()
			return

		case <-c.done:
			return
		}
	}
}

func (c *WebSocketConnection) write(message interface{}) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(message); err != nil {
		c.log.Warn("Failed to send message", "error", err)
		return err
	}
	return nil
}

func (c *WebSocketConnection) closeFrame() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
