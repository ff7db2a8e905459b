package feed

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

func (c *Client) readLoop() {
	c.logEntry().Debug("readLoop started.")
	defer close(c.quotes)

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			c.logEntry().WithError(err).Warn("Quote feed read failed.")

			if !c.reconnect() {
				return
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logEntry().WithError(err).Warn("Failed to parse feed message.")
			continue
		}

		switch {
		case msg.Topic == "quote" || strings.HasPrefix(msg.Topic, "quote"):
			c.handleQuote(msg)
		default:
			continue
		}
	}
}

func (c *Client) reconnect() bool {
	backoff := c.reconnectMin

	for {
		select {
		case <-c.stopCh:
			return false
		default:
		}

		c.logEntry().Info("Reconnecting to quote feed.")

		time.Sleep(backoff)

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.logEntry().WithError(err).Warn("Quote feed reconnect failed.")
			backoff = c.nextBackoff(backoff)
			continue
		}

		if c.conn != nil {
			_ = c.conn.Close()
		}

		c.conn = conn
		c.conn.SetReadLimit(2 << 20)

		if c.token != "" {
			if err := c.authenticate(); err != nil {
				c.logEntry().WithError(err).Warn("Quote feed re-auth failed.")
				backoff = c.nextBackoff(backoff)
				continue
			}
		}

		if len(c.symbols) > 0 {
			if err := c.Subscribe(context.Background(), c.symbols); err != nil {
				c.logEntry().WithError(err).Warn("Quote feed re-subscribe failed.")
				backoff = c.nextBackoff(backoff)
				continue
			}
		}

		c.logEntry().Info("Quote feed reconnected and subscriptions restored.")
		return true
	}
}

func (c *Client) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > c.reconnectMax {
		return c.reconnectMax
	}
	return next
}
