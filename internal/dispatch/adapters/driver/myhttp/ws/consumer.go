package ws

import (
	"context"
	"encoding/json"

	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/mylogger"
)

// Consumer bridges the notification bus into the websocket dispatcher: every
// published envelope is forwarded to the live connections of its recipients.
type Consumer struct {
	ctx    context.Context
	log    mylogger.Logger
	broker ports.IBrokerConsumer
	dis    *Dispatcher
}

type busEnvelope struct {
	Topic      string          `json:"topic"`
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}

// frame is what actually reaches the websocket peer.
type frame struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func NewConsumer(ctx context.Context, broker ports.IBrokerConsumer, dis *Dispatcher, log mylogger.Logger) *Consumer {
	return &Consumer{
		ctx:    ctx,
		log:    log,
		broker: broker,
		dis:    dis,
	}
}

func (c *Consumer) SubscribeForMessages() error {
	msgCh, err := c.broker.Consume(c.ctx, "dispatch_ws_fanout", "dispatch.#", ports.ConsumeOptions{
		Prefetch:     16,
		AutoAck:      false,
		QueueDurable: true,
	})
	if err != nil {
		c.log.Action("ws_consume").Error("failed to subscribe", err)
		return err
	}

	go func() {
		log := c.log.Action("ws_consume")
		for msg := range msgCh {
			var env busEnvelope
			if err := json.Unmarshal(msg.Body, &env); err != nil {
				log.Error("failed to unmarshal envelope", err)
				_ = msg.Nack(false, false)
				continue
			}

			body, err := json.Marshal(frame{Topic: env.Topic, Payload: env.Payload})
			if err != nil {
				log.Error("failed to marshal frame", err)
				_ = msg.Nack(false, false)
				continue
			}

			sent := c.dis.SendTo(env.Recipients, body)
			log.Debug("notification forwarded", "topic", env.Topic, "recipients", len(env.Recipients), "delivered", sent)

			if err := msg.Ack(false); err != nil {
				log.Error("failed to acknowledge message", err)
			}
		}
	}()
	return nil
}
