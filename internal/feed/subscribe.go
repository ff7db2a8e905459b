package feed

import (
	"context"
)

func (c *Client) Subscribe(ctx context.Context, symbols []string) error {
	c.symbols = symbols

	args := make([]string, 0, len(symbols))
	for _, s := range symbols {
		args = append(args, "quote."+s)
	}
	msg := SubscribeMessage{
		Op:   "subscribe",
		Args: args,
	}

	return c.conn.WriteJSON(msg)
}
