// Package feed is the websocket quote source. It reads tick messages, keeps
// the connection alive across drops, and hands normalized quotes to the
// engine in arrival order.
package feed

import (
	"context"
	"fmt"
	"time"

	"simbroker/internal/logger"
	"simbroker/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func New(url, token string, chanSize int, log *logger.Logger) (*Client, error) {
	if chanSize <= 0 {
		chanSize = 100
	}
	return &Client{
		url:          url,
		token:        token,
		log:          log,
		quotes:       make(chan models.Quote, chanSize),
		stopCh:       make(chan struct{}),
		reconnectMin: 1 * time.Second,
		reconnectMax: 30 * time.Second,
	}, nil
}

func (c *Client) Connect(ctx context.Context) error {
	c.logEntry().WithField("url", c.url).Info("Connecting to quote feed.")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to quote feed: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(2 << 20)

	if c.token != "" {
		if err := c.authenticate(); err != nil {
			return err
		}
	}

	c.logEntry().Info("Quote feed connected.")

	go c.readLoop()

	return nil
}

func (c *Client) authenticate() error {
	return c.conn.WriteJSON(AuthMessage{Op: "auth", Args: []string{c.token}})
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("feed")
}

// Quotes delivers normalized ticks in arrival order. The channel is closed
// after Close.
func (c *Client) Quotes() <-chan models.Quote {
	return c.quotes
}

func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
