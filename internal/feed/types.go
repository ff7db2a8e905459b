package feed

import (
	"encoding/json"
	"sync"
	"time"

	"simbroker/internal/logger"
	"simbroker/internal/models"

	"github.com/gorilla/websocket"
)

type Client struct {
	url          string
	token        string
	log          *logger.Logger
	conn         *websocket.Conn
	quotes       chan models.Quote
	stopCh       chan struct{}
	stopOnce     sync.Once
	symbols      []string
	reconnectMin time.Duration
	reconnectMax time.Duration
}

type Message struct {
	Topic string          `json:"topic"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type AuthMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type SubscribeMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// quoteRecord is the wire form of one tick. Price fields are pointers so an
// absent value (one-sided book, contract info not served yet) survives the
// trip and can be normalized to NaN instead of zero.
type quoteRecord struct {
	Symbol           string   `json:"symbol"`
	InsClass         string   `json:"ins_class"`
	LastPrice        *float64 `json:"last_price"`
	BidPrice         *float64 `json:"bid_price1"`
	AskPrice         *float64 `json:"ask_price1"`
	PriceTick        *float64 `json:"price_tick"`
	VolumeMultiple   *float64 `json:"volume_multiple"`
	Margin           *float64 `json:"margin"`
	Commission       *float64 `json:"commission"`
	Datetime         int64    `json:"datetime"` // epoch nanoseconds
	OptionClass      string   `json:"option_class"`
	StrikePrice      *float64 `json:"strike_price"`
	UnderlyingSymbol string   `json:"underlying_symbol"`
	UnderlyingLast   *float64 `json:"underlying_last"`
}
