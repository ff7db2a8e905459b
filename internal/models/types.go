package models

import "time"

type Direction string
type Offset string
type PriceType string
type TimeCondition string
type OrderStatus string
type InsClass string
type OptionClass string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"

	OffsetOpen       Offset = "OPEN"
	OffsetClose      Offset = "CLOSE"
	OffsetCloseToday Offset = "CLOSETODAY"

	PriceTypeLimit PriceType = "LIMIT"
	PriceTypeAny   PriceType = "ANY"

	TimeConditionGFD TimeCondition = "GFD"
	TimeConditionIOC TimeCondition = "IOC"

	OrderStatusAlive    OrderStatus = "ALIVE"
	OrderStatusFinished OrderStatus = "FINISHED"

	InsClassFuture       InsClass = "FUTURE"
	InsClassIndex        InsClass = "INDEX"
	InsClassOption       InsClass = "OPTION"
	InsClassFutureOption InsClass = "FUTURE_OPTION"

	OptionClassCall OptionClass = "CALL"
	OptionClassPut  OptionClass = "PUT"
)

func (c InsClass) IsOption() bool {
	return c == InsClassOption || c == InsClassFutureOption
}

func (c InsClass) IsIndex() bool {
	return c == InsClassIndex
}

func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// IsClosing reports whether the offset consumes an existing position.
func (o Offset) IsClosing() bool {
	return o == OffsetClose || o == OffsetCloseToday
}

// Quote is a normalized market-data record for one instrument. Price fields
// may be NaN when the feed has no value for them (one-sided book, limit moves).
type Quote struct {
	Symbol           string      `json:"symbol"`
	ExchangeID       string      `json:"exchange_id"`
	InstrumentID     string      `json:"instrument_id"`
	InsClass         InsClass    `json:"ins_class"`
	LastPrice        float64     `json:"last_price"`
	BidPrice         float64     `json:"bid_price1"`
	AskPrice         float64     `json:"ask_price1"`
	PriceTick        float64     `json:"price_tick"`
	VolumeMultiple   float64     `json:"volume_multiple"`
	Margin           float64     `json:"margin"`     // per-lot margin requirement
	Commission       float64     `json:"commission"` // per-lot commission
	Timestamp        time.Time   `json:"timestamp"`
	OptionClass      OptionClass `json:"option_class,omitempty"`
	StrikePrice      float64     `json:"strike_price,omitempty"`
	UnderlyingSymbol string      `json:"underlying_symbol,omitempty"`
	UnderlyingLast   float64     `json:"underlying_last,omitempty"`
}

type Order struct {
	ID             string        `json:"order_id"`
	Symbol         string        `json:"symbol"`
	ExchangeID     string        `json:"exchange_id"`
	InstrumentID   string        `json:"instrument_id"`
	Direction      Direction     `json:"direction"`
	Offset         Offset        `json:"offset"`
	PriceType      PriceType     `json:"price_type"`
	LimitPrice     float64       `json:"limit_price,omitempty"` // meaningful only for LIMIT orders
	TimeCondition  TimeCondition `json:"time_condition"`
	VolumeOrign    int64         `json:"volume_orign"`
	VolumeLeft     int64         `json:"volume_left"`
	FrozenMargin   float64       `json:"frozen_margin"`
	FrozenPremium  float64       `json:"frozen_premium"`
	InsertDateTime time.Time     `json:"insert_date_time"`
	Status         OrderStatus   `json:"status"`
	LastMsg        string        `json:"last_msg"`
}

type Trade struct {
	TradeID    string    `json:"trade_id"`
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Offset     Offset    `json:"offset"`
	Price      float64   `json:"price"`
	Volume     int64     `json:"volume"`
	Commission float64   `json:"commission"`
	Timestamp  time.Time `json:"timestamp"`
}

// Position is the per-instrument record. Each side is split into history
// volume (carried over previous sessions) and today volume, with matching
// frozen sub-buckets earmarked by pending close orders.
type Position struct {
	Symbol       string `json:"symbol"`
	ExchangeID   string `json:"exchange_id"`
	InstrumentID string `json:"instrument_id"`

	VolumeLongToday  int64 `json:"volume_long_today"`
	VolumeLongHis    int64 `json:"volume_long_his"`
	VolumeLong       int64 `json:"volume_long"`
	VolumeShortToday int64 `json:"volume_short_today"`
	VolumeShortHis   int64 `json:"volume_short_his"`
	VolumeShort      int64 `json:"volume_short"`

	VolumeLongFrozenToday  int64 `json:"volume_long_frozen_today"`
	VolumeLongFrozenHis    int64 `json:"volume_long_frozen_his"`
	VolumeLongFrozen       int64 `json:"volume_long_frozen"`
	VolumeShortFrozenToday int64 `json:"volume_short_frozen_today"`
	VolumeShortFrozenHis   int64 `json:"volume_short_frozen_his"`
	VolumeShortFrozen      int64 `json:"volume_short_frozen"`

	OpenPriceLong      float64 `json:"open_price_long"`
	OpenPriceShort     float64 `json:"open_price_short"`
	OpenCostLong       float64 `json:"open_cost_long"`
	OpenCostShort      float64 `json:"open_cost_short"`
	PositionPriceLong  float64 `json:"position_price_long"`
	PositionPriceShort float64 `json:"position_price_short"`
	PositionCostLong   float64 `json:"position_cost_long"`
	PositionCostShort  float64 `json:"position_cost_short"`

	FloatProfitLong     float64 `json:"float_profit_long"`
	FloatProfitShort    float64 `json:"float_profit_short"`
	FloatProfit         float64 `json:"float_profit"`
	PositionProfitLong  float64 `json:"position_profit_long"`
	PositionProfitShort float64 `json:"position_profit_short"`
	PositionProfit      float64 `json:"position_profit"`

	MarginLong  float64 `json:"margin_long"`
	MarginShort float64 `json:"margin_short"`
	Margin      float64 `json:"margin"`

	MarketValueLong  float64 `json:"market_value_long"`  // buyer side, >= 0
	MarketValueShort float64 `json:"market_value_short"` // writer side, <= 0
	MarketValue      float64 `json:"market_value"`

	LastPrice float64 `json:"last_price"`
	HasPrice  bool    `json:"-"`
}

type Account struct {
	AccountID      string  `json:"account_id"`
	Currency       string  `json:"currency"`
	PreBalance     float64 `json:"pre_balance"`
	StaticBalance  float64 `json:"static_balance"`
	Balance        float64 `json:"balance"`
	Available      float64 `json:"available"`
	FloatProfit    float64 `json:"float_profit"`
	PositionProfit float64 `json:"position_profit"`
	CloseProfit    float64 `json:"close_profit"`
	FrozenMargin   float64 `json:"frozen_margin"`
	Margin         float64 `json:"margin"`
	Commission     float64 `json:"commission"`
	FrozenPremium  float64 `json:"frozen_premium"`
	Premium        float64 `json:"premium"`
	MarketValue    float64 `json:"market_value"`
	RiskRatio      float64 `json:"risk_ratio"`
}
