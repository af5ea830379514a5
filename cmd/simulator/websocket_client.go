package main

import (
	"context"
	"fmt"

	"ride-dispatch/internal/mylogger"

	"github.com/gorilla/websocket"
)

type WebSocketClient struct {
	conn *websocket.Conn
	ctx  context.Context
	log  mylogger.Logger
}

func NewWebSocketClient(ctx context.Context, log mylogger.Logger) *WebSocketClient {
	return &WebSocketClient{
		ctx: ctx,
		log: log,
	}
}

func (w *WebSocketClient) Connect(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("connecting to websocket: %w", err)
	}

	w.conn = conn
	w.log.Action("ws_connected").Info("connected", "url", url)
	return nil
}

func (w *WebSocketClient) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

func (w *WebSocketClient) ReadMessages(handler func(payload []byte) error) error {
	for {
		select {
		case <-w.ctx.Done():
			return nil
		default:
			_, payload, err := w.conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("reading message: %w", err)
			}
			if err := handler(payload); err != nil {
				w.log.Error("failed to handle message", err)
			}
		}
	}
}
