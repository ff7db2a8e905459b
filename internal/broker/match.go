package broker

import (
	"fmt"
	"math"

	"simbroker/internal/models"
)

// Reason strings surfaced on finished orders through OrderUpdate events.
const (
	msgAccepted            = "order accepted"
	msgFullyFilled         = "fully filled"
	msgCancelled           = "cancelled"
	msgIOCCancelled        = "IOC order cancelled, no match at submission"
	msgMarketCancelled     = "market order cancelled, no counterparty price"
	msgInsufficientFunds   = "insufficient funds to open"
	msgInsufficientVolume  = "insufficient volume to close"
	msgUnsupportedContract = "unsupported contract type, no margin formula"
	msgDayEnded            = "trading day ended, day order auto-cancelled (GFD)"

	optionCommissionPerLot = 10.0
)

// matchOutcome is the result of one match attempt. Exactly one of the three
// cases holds: the order filled in full, it rests (pending), or it finished
// without a fill for the given reason.
type matchOutcome struct {
	filled bool
	reason string // empty means pending
}

func outcomePending() matchOutcome { return matchOutcome{} }
func outcomeFilled() matchOutcome  { return matchOutcome{filled: true, reason: msgFullyFilled} }
func outcomeFinished(reason string) matchOutcome {
	return matchOutcome{reason: reason}
}

// shortOptionMargin is the open margin for one written option lot. The two
// regulatory formulas come from the exchange rules for call and put classes;
// the underlying's last price stands in for its previous close.
func shortOptionMargin(q models.Quote) float64 {
	u := q.UnderlyingLast
	if q.OptionClass == models.OptionClassCall {
		otm := math.Max(q.StrikePrice-u, 0)
		return (q.LastPrice + math.Max(0.12*u-otm, 0.07*u)) * q.VolumeMultiple
	}
	otm := math.Max(u-q.StrikePrice, 0)
	return math.Min(q.LastPrice+math.Max(0.12*u-otm, 0.07*q.StrikePrice), q.StrikePrice) * q.VolumeMultiple
}

// admitOrder runs admission control for a freshly inserted order. A close
// order earmarks position volume; an open order freezes margin or premium on
// the ledger. A non-empty reason means the order was rejected; the caller
// finishes it, which gives back whatever this freeze took, so a rejection has
// no net effect on position or account.
func (w *worker) admitOrder(o *models.Order, q models.Quote) string {
	if o.Offset.IsClosing() {
		var longFrozen, shortFrozen int64
		if o.Direction == models.DirectionSell {
			longFrozen = o.VolumeLeft
		} else {
			shortFrozen = o.VolumeLeft
		}
		w.pos.applyFrozen(longFrozen, shortFrozen, freezePriority(o.ExchangeID, o.Offset))
		if !w.pos.frozenOK() {
			return msgInsufficientVolume
		}
		return ""
	}

	if q.InsClass.IsOption() {
		if o.Direction == models.DirectionSell {
			margin := shortOptionMargin(q)
			if math.IsNaN(margin) {
				return msgUnsupportedContract
			}
			o.FrozenMargin = margin
		} else if o.PriceType != models.PriceTypeAny {
			// A market buy settles atomically at match time, so only limit
			// buys freeze the premium up front.
			o.FrozenPremium = float64(o.VolumeOrign) * q.VolumeMultiple * o.LimitPrice
		}
	} else {
		if math.IsNaN(q.Margin) || q.Margin <= 0 || math.IsNaN(q.Commission) {
			return msgUnsupportedContract
		}
		o.FrozenMargin = q.Margin * float64(o.VolumeOrign)
	}
	if !w.ledger.apply(accountDelta{frozenMargin: o.FrozenMargin, frozenPremium: o.FrozenPremium}) {
		return msgInsufficientFunds
	}
	return ""
}

// tryMatch attempts an all-or-nothing fill against the current best prices.
// Limit orders fill at their own limit price once it reaches or crosses the
// opposite side; market orders take the opposite price and cancel when there
// is none (limit-up/limit-down); an IOC limit order that cannot fill right
// away cancels instead of resting.
func (w *worker) tryMatch(o *models.Order, q models.Quote) matchOutcome {
	ask, bid := q.AskPrice, q.BidPrice
	if q.InsClass.IsIndex() {
		// Index quotes carry no book; synthesize one around the last price.
		if math.IsNaN(ask) {
			ask = q.LastPrice + q.PriceTick
		}
		if math.IsNaN(bid) {
			bid = q.LastPrice - q.PriceTick
		}
	}

	var price float64
	switch {
	case o.PriceType == models.PriceTypeAny:
		if o.Direction == models.DirectionBuy {
			price = ask
		} else {
			price = bid
		}
		if math.IsNaN(price) {
			return outcomeFinished(msgMarketCancelled)
		}
	case o.Direction == models.DirectionBuy && o.LimitPrice >= ask:
		price = o.LimitPrice
	case o.Direction == models.DirectionSell && o.LimitPrice <= bid:
		price = o.LimitPrice
	case o.TimeCondition == models.TimeConditionIOC:
		return outcomeFinished(msgIOCCancelled)
	default:
		return outcomePending()
	}

	commission := q.Commission
	if q.InsClass.IsOption() {
		commission = optionCommissionPerLot
	}
	trade := models.Trade{
		TradeID:    fmt.Sprintf("%s|%d", o.ID, o.VolumeLeft),
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Direction:  o.Direction,
		Offset:     o.Offset,
		Price:      price,
		Volume:     o.VolumeLeft,
		Commission: commission * float64(o.VolumeLeft),
		Timestamp:  w.broker.now(),
	}
	w.broker.recordTrade(trade)
	w.emitTrade(trade)

	pri := matchPriority(o.ExchangeID, o.Offset)
	if o.Offset.IsClosing() {
		// The fill consumes the volume this order had earmarked.
		var longFrozen, shortFrozen int64
		if o.Direction == models.DirectionSell {
			longFrozen = -o.VolumeLeft
		} else {
			shortFrozen = -o.VolumeLeft
		}
		w.pos.applyFrozen(longFrozen, shortFrozen, pri)
	}

	w.applyLedger(w.pos.markPrice(price, q))
	if o.Offset.IsClosing() {
		if o.Direction == models.DirectionSell {
			w.applyLedger(w.pos.applyLong(-o.VolumeLeft, q, pri))
		} else {
			w.applyLedger(w.pos.applyShort(-o.VolumeLeft, q, pri))
		}
	} else {
		if o.Direction == models.DirectionBuy {
			w.applyLedger(w.pos.applyLong(o.VolumeLeft, q, pri))
		} else {
			w.applyLedger(w.pos.applyShort(o.VolumeLeft, q, pri))
		}
	}

	premium := o.FrozenPremium
	if o.Direction == models.DirectionBuy {
		premium = -premium
	}
	w.applyLedger(accountDelta{commission: trade.Commission, premium: premium})

	o.VolumeLeft = 0
	return outcomeFilled()
}
