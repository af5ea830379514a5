package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type Client struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn
	dis    *Dispatcher
	egress chan []byte
	userId string
	role   string
}

func NewClient(ctx context.Context, conn *websocket.Conn, dis *Dispatcher, userId, role string) *Client {
	cctx, cancel := context.WithCancel(ctx)
	return &Client{
		ctx:    cctx,
		cancel: cancel,
		conn:   conn,
		dis:    dis,
		egress: make(chan []byte, 64),
		userId: userId,
		role:   role,
	}
}

// ReadMessage drains the connection. Clients never send application data on
// this socket; the read loop only exists to notice disconnects and pongs.
func (c *Client) ReadMessage() {
	defer c.close()

	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.egress:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues a message without blocking; slow consumers get dropped frames
// instead of stalling the fanout.
func (c *Client) Send(msg []byte) bool {
	select {
	case c.egress <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.cancel()
	_ = c.conn.Close()
	c.dis.RemoveClient(c)
}
