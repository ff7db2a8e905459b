package broker

import (
	"math"
	"sync"
	"testing"
	"time"

	"simbroker/internal/logger"
	"simbroker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func newTestBroker(t *testing.T, initBalance float64) *Broker {
	t.Helper()
	b, err := New(Options{AccountID: "SIM", InitBalance: initBalance}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

type eventSink struct {
	mu     sync.Mutex
	orders []models.Order
	trades []models.Trade
}

func newEventSink(b *Broker) *eventSink {
	s := &eventSink{}
	go func() {
		for ev := range b.Events() {
			s.mu.Lock()
			switch ev.Type {
			case EventTypeOrder:
				s.orders = append(s.orders, *ev.Order)
			case EventTypeTrade:
				s.trades = append(s.trades, *ev.Trade)
			}
			s.mu.Unlock()
		}
	}()
	return s
}

func (s *eventSink) hasOrderMsg(orderID, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == orderID && o.LastMsg == msg {
			return true
		}
	}
	return false
}

func (s *eventSink) tradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

var day1 = time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC) // Monday

func tickAt(ts time.Time, last, bid, ask float64) models.Quote {
	q := futQuote()
	q.Timestamp = ts
	q.LastPrice = last
	q.BidPrice = bid
	q.AskPrice = ask
	return q
}

func waitAccount(t *testing.T, b *Broker, check func(models.Account) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		return check(b.Account())
	}, 2*time.Second, 5*time.Millisecond)
}

func marketOrder(direction models.Direction, offset models.Offset, volume int64) *models.Order {
	return &models.Order{
		Symbol:      "DCE.m2201",
		Direction:   direction,
		Offset:      offset,
		PriceType:   models.PriceTypeAny,
		VolumeOrign: volume,
	}
}

func TestMarketBuyOpenFillsAtAsk(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")
	b.PushQuote(tickAt(day1, 100, 99, 101))

	o := marketOrder(models.DirectionBuy, models.OffsetOpen, 2)
	require.NoError(t, b.SubmitOrder(o))

	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(o.ID, msgFullyFilled)
	}, 2*time.Second, 5*time.Millisecond)

	// Filled at the ask, then marked back to the last price: the account wears
	// the spread immediately.
	waitAccount(t, b, func(a models.Account) bool {
		return math.Abs(a.Margin-4000) < 1e-9 &&
			math.Abs(a.Commission-6) < 1e-9 &&
			math.Abs(a.Balance-999974) < 1e-9 &&
			math.Abs(a.Available-995974) < 1e-9
	})

	pos, ok := b.Position("DCE.m2201")
	require.True(t, ok)
	assert.Equal(t, int64(2), pos.VolumeLong)
	assert.Equal(t, int64(2), pos.VolumeLongToday)
	assert.InDelta(t, 101, pos.OpenPriceLong, 1e-9)
	assert.Equal(t, 1, sink.tradeCount())
}

func TestRoundTripRealizesSpreadAndCommission(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")
	b.PushQuote(tickAt(day1, 100, 99, 101))

	open := marketOrder(models.DirectionBuy, models.OffsetOpen, 2)
	require.NoError(t, b.SubmitOrder(open))
	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(open.ID, msgFullyFilled)
	}, 2*time.Second, 5*time.Millisecond)

	clos := marketOrder(models.DirectionSell, models.OffsetClose, 2)
	require.NoError(t, b.SubmitOrder(clos))
	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(clos.ID, msgFullyFilled)
	}, 2*time.Second, 5*time.Millisecond)

	// Bought at 101, sold at 99: 2 lots * 10 * 2 spread + 12 commission.
	waitAccount(t, b, func(a models.Account) bool {
		return math.Abs(a.Balance-999948) < 1e-9 &&
			math.Abs(a.Available-999948) < 1e-9 &&
			math.Abs(a.Margin) < 1e-9 &&
			math.Abs(a.CloseProfit-(-40)) < 1e-9
	})

	pos, ok := b.Position("DCE.m2201")
	require.True(t, ok)
	assert.Equal(t, int64(0), pos.VolumeLong)
	assert.InDelta(t, 0, pos.FloatProfit, 1e-9)
}

func TestRoundTripSamePriceLeavesOnlyCommission(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")
	b.PushQuote(tickAt(day1, 101, 100, 101))

	open := &models.Order{
		Symbol:      "DCE.m2201",
		Direction:   models.DirectionBuy,
		Offset:      models.OffsetOpen,
		PriceType:   models.PriceTypeLimit,
		LimitPrice:  101,
		VolumeOrign: 1,
	}
	require.NoError(t, b.SubmitOrder(open))
	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(open.ID, msgFullyFilled)
	}, 2*time.Second, 5*time.Millisecond)

	b.PushQuote(tickAt(day1.Add(time.Minute), 101, 101, 102))
	clos := &models.Order{
		Symbol:      "DCE.m2201",
		Direction:   models.DirectionSell,
		Offset:      models.OffsetClose,
		PriceType:   models.PriceTypeLimit,
		LimitPrice:  101,
		VolumeOrign: 1,
	}
	require.NoError(t, b.SubmitOrder(clos))
	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(clos.ID, msgFullyFilled)
	}, 2*time.Second, 5*time.Millisecond)

	// Same price in and out: zero realized profit, margin fully restored,
	// only commission leaves the account.
	waitAccount(t, b, func(a models.Account) bool {
		return math.Abs(a.CloseProfit) < 1e-9 &&
			math.Abs(a.Margin) < 1e-9 &&
			math.Abs(a.Balance-999994) < 1e-9 &&
			math.Abs(a.Available-999994) < 1e-9
	})
}

func TestFrozenMarginMatchesAliveOrders(t *testing.T) {
	b := newTestBroker(t, 1000000)
	b.Subscribe("DCE.m2201")
	b.PushQuote(tickAt(day1, 100, 99, 101))

	for i := 0; i < 3; i++ {
		o := &models.Order{
			Symbol:      "DCE.m2201",
			Direction:   models.DirectionBuy,
			Offset:      models.OffsetOpen,
			PriceType:   models.PriceTypeLimit,
			LimitPrice:  95,
			VolumeOrign: int64(i + 1),
		}
		require.NoError(t, b.SubmitOrder(o))
	}

	require.Eventually(t, func() bool {
		return len(b.AliveOrders()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	var frozen float64
	for _, o := range b.AliveOrders() {
		frozen += o.FrozenMargin
	}
	assert.InDelta(t, frozen, b.Account().FrozenMargin, 1e-9)
	assert.InDelta(t, 12000, frozen, 1e-9) // (1+2+3) lots * 2000
}

func TestOverCloseIsRejected(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")
	b.PushQuote(tickAt(day1, 100, 99, 101))

	o := marketOrder(models.DirectionSell, models.OffsetClose, 5)
	require.NoError(t, b.SubmitOrder(o))

	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(o.ID, msgInsufficientVolume)
	}, 2*time.Second, 5*time.Millisecond)

	// The failed earmark left nothing behind.
	waitAccount(t, b, func(a models.Account) bool {
		return a.Balance == 1000000 && a.Available == 1000000
	})
	pos, ok := b.Position("DCE.m2201")
	require.True(t, ok)
	assert.Equal(t, int64(0), pos.VolumeLongFrozen)
	assert.Equal(t, int64(0), pos.VolumeLongFrozenToday)
	assert.Equal(t, int64(0), pos.VolumeLongFrozenHis)
}

func TestOpenRejectedWhenUnderfunded(t *testing.T) {
	b := newTestBroker(t, 1000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")
	b.PushQuote(tickAt(day1, 100, 99, 101))

	o := marketOrder(models.DirectionBuy, models.OffsetOpen, 1)
	require.NoError(t, b.SubmitOrder(o))

	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(o.ID, msgInsufficientFunds)
	}, 2*time.Second, 5*time.Millisecond)

	waitAccount(t, b, func(a models.Account) bool {
		return a.Available == 1000 && a.FrozenMargin == 0
	})
	assert.Equal(t, 0, sink.tradeCount())
}

func TestIOCCancelsWhenNotFillable(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")
	b.PushQuote(tickAt(day1, 100, 99, 101))

	o := &models.Order{
		Symbol:        "DCE.m2201",
		Direction:     models.DirectionBuy,
		Offset:        models.OffsetOpen,
		PriceType:     models.PriceTypeLimit,
		LimitPrice:    95,
		TimeCondition: models.TimeConditionIOC,
		VolumeOrign:   1,
	}
	require.NoError(t, b.SubmitOrder(o))

	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(o.ID, msgIOCCancelled)
	}, 2*time.Second, 5*time.Millisecond)
	waitAccount(t, b, func(a models.Account) bool {
		return a.Available == 1000000 && a.FrozenMargin == 0
	})
}

func TestMarketOrderCancelsWithoutCounterpartyPrice(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")
	// Limit-up: no ask side.
	b.PushQuote(tickAt(day1, 100, 99, math.NaN()))

	o := marketOrder(models.DirectionBuy, models.OffsetOpen, 1)
	require.NoError(t, b.SubmitOrder(o))

	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(o.ID, msgMarketCancelled)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, sink.tradeCount())
}

func TestRestingLimitFillsOnLaterTick(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")
	b.PushQuote(tickAt(day1, 100, 99, 101))

	o := &models.Order{
		Symbol:      "DCE.m2201",
		Direction:   models.DirectionBuy,
		Offset:      models.OffsetOpen,
		PriceType:   models.PriceTypeLimit,
		LimitPrice:  95,
		VolumeOrign: 1,
	}
	require.NoError(t, b.SubmitOrder(o))

	// Resting: frozen margin held, no fill yet.
	waitAccount(t, b, func(a models.Account) bool {
		return a.FrozenMargin == 2000
	})
	assert.Equal(t, 0, sink.tradeCount())
	require.Len(t, b.AliveOrders(), 1)
	resting, ok := b.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusAlive, resting.Status)

	// Ask drops through the limit: fill at the order's own price.
	b.PushQuote(tickAt(day1.Add(time.Minute), 95, 94, 95))
	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(o.ID, msgFullyFilled)
	}, 2*time.Second, 5*time.Millisecond)

	waitAccount(t, b, func(a models.Account) bool {
		return a.FrozenMargin == 0 && math.Abs(a.Margin-2000) < 1e-9
	})
	pos, _ := b.Position("DCE.m2201")
	assert.InDelta(t, 95, pos.OpenPriceLong, 1e-9)

	filled, ok := b.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusFinished, filled.Status)
	assert.Equal(t, msgFullyFilled, filled.LastMsg)
	assert.Empty(t, b.AliveOrders())
}

func TestCancelReleasesFrozenMargin(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")
	b.PushQuote(tickAt(day1, 100, 99, 101))

	o := &models.Order{
		Symbol:      "DCE.m2201",
		Direction:   models.DirectionBuy,
		Offset:      models.OffsetOpen,
		PriceType:   models.PriceTypeLimit,
		LimitPrice:  95,
		VolumeOrign: 1,
	}
	require.NoError(t, b.SubmitOrder(o))
	waitAccount(t, b, func(a models.Account) bool {
		return a.FrozenMargin == 2000
	})

	require.NoError(t, b.CancelOrder(o.ID))
	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(o.ID, msgCancelled)
	}, 2*time.Second, 5*time.Millisecond)
	waitAccount(t, b, func(a models.Account) bool {
		return a.FrozenMargin == 0 && a.Available == 1000000
	})

	// A second cancel for the same id is unknown by now.
	assert.ErrorIs(t, b.CancelOrder(o.ID), ErrUnknownOrder)
}

func TestSettlementRollsPositionsAndCancelsDayOrders(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")
	b.PushQuote(tickAt(day1, 100, 99, 101))

	open := marketOrder(models.DirectionBuy, models.OffsetOpen, 2)
	require.NoError(t, b.SubmitOrder(open))
	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(open.ID, msgFullyFilled)
	}, 2*time.Second, 5*time.Millisecond)

	resting := &models.Order{
		Symbol:      "DCE.m2201",
		Direction:   models.DirectionBuy,
		Offset:      models.OffsetOpen,
		PriceType:   models.PriceTypeLimit,
		LimitPrice:  95,
		VolumeOrign: 1,
	}
	require.NoError(t, b.SubmitOrder(resting))
	waitAccount(t, b, func(a models.Account) bool {
		return a.FrozenMargin == 2000
	})

	// First tick of the next trading day triggers settlement.
	day2 := day1.AddDate(0, 0, 1)
	b.PushQuote(tickAt(day2, 100, 99, 101))

	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(resting.ID, msgDayEnded)
	}, 2*time.Second, 5*time.Millisecond)

	waitAccount(t, b, func(a models.Account) bool {
		return math.Abs(a.PreBalance-a.Balance) < 1e-9 &&
			a.PositionProfit == 0 &&
			a.Commission == 0 &&
			a.FrozenMargin == 0
	})

	require.Eventually(t, func() bool {
		pos, ok := b.Position("DCE.m2201")
		return ok && pos.VolumeLongHis == 2 && pos.VolumeLongToday == 0
	}, 2*time.Second, 5*time.Millisecond)
	pos, _ := b.Position("DCE.m2201")
	assert.InDelta(t, 100, pos.PositionPriceLong, 1e-9)

	// The day's record is sealed with the pre-roll snapshots.
	rec, ok := b.TradeLog().Day("2026-08-24")
	require.True(t, ok)
	assert.True(t, rec.Settled)
	require.Len(t, rec.Trades, 1)
	assert.Equal(t, int64(2), rec.Positions["DCE.m2201"].VolumeLongToday)
}

func optTick(ts time.Time, last, bid, ask float64) models.Quote {
	return models.Quote{
		Symbol:           "SHFE.cu2201C72000",
		ExchangeID:       "SHFE",
		InstrumentID:     "cu2201C72000",
		InsClass:         models.InsClassOption,
		OptionClass:      models.OptionClassCall,
		LastPrice:        last,
		BidPrice:         bid,
		AskPrice:         ask,
		PriceTick:        1,
		VolumeMultiple:   10,
		Margin:           math.NaN(),
		Commission:       math.NaN(),
		StrikePrice:      3000,
		UnderlyingSymbol: "SHFE.cu2201",
		UnderlyingLast:   3100,
		Timestamp:        ts,
	}
}

func TestOptionBuyerPaysPremium(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("SHFE.cu2201C72000")
	b.PushQuote(optTick(day1, 50, 49, 51))

	o := &models.Order{
		Symbol:      "SHFE.cu2201C72000",
		Direction:   models.DirectionBuy,
		Offset:      models.OffsetOpen,
		PriceType:   models.PriceTypeLimit,
		LimitPrice:  51,
		VolumeOrign: 1,
	}
	require.NoError(t, b.SubmitOrder(o))
	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(o.ID, msgFullyFilled)
	}, 2*time.Second, 5*time.Millisecond)

	// Paid 510 premium at the limit price, 10 commission, then the long
	// market value marks from the fill price back to the last price.
	waitAccount(t, b, func(a models.Account) bool {
		return math.Abs(a.Premium-(-510)) < 1e-9 &&
			math.Abs(a.Balance-999980) < 1e-9 &&
			math.Abs(a.Available-999480) < 1e-9 &&
			math.Abs(a.MarketValue-500) < 1e-9 &&
			a.Margin == 0 && a.FrozenPremium == 0
	})

	pos, ok := b.Position("SHFE.cu2201C72000")
	require.True(t, ok)
	assert.Equal(t, int64(1), pos.VolumeLong)
	assert.InDelta(t, 500, pos.MarketValueLong, 1e-9)
}

func TestOptionWriterPostsMargin(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("SHFE.cu2201C72000")
	b.PushQuote(optTick(day1, 50, 49, 51))

	o := &models.Order{
		Symbol:      "SHFE.cu2201C72000",
		Direction:   models.DirectionSell,
		Offset:      models.OffsetOpen,
		PriceType:   models.PriceTypeAny,
		VolumeOrign: 1,
	}
	require.NoError(t, b.SubmitOrder(o))
	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(o.ID, msgFullyFilled)
	}, 2*time.Second, 5*time.Millisecond)

	// Sold at the bid: negative market value, regulatory margin posted,
	// no premium cash flow for the writer.
	waitAccount(t, b, func(a models.Account) bool {
		return math.Abs(a.Margin-4220) < 1e-9 &&
			math.Abs(a.MarketValue-(-500)) < 1e-9 &&
			math.Abs(a.Balance-999490) < 1e-9 &&
			math.Abs(a.Available-995770) < 1e-9 &&
			a.Premium == 0 && a.FrozenMargin == 0
	})

	pos, ok := b.Position("SHFE.cu2201C72000")
	require.True(t, ok)
	assert.Equal(t, int64(1), pos.VolumeShort)
	assert.InDelta(t, 4220, pos.MarginShort, 1e-9)
}

func TestCommandsBeforeFirstQuoteAreDeferred(t *testing.T) {
	b := newTestBroker(t, 1000000)
	sink := newEventSink(b)
	b.Subscribe("DCE.m2201")

	o := marketOrder(models.DirectionBuy, models.OffsetOpen, 1)
	require.NoError(t, b.SubmitOrder(o))

	// Nothing happens until a usable quote arrives.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sink.tradeCount())

	b.PushQuote(tickAt(day1, 100, 99, 101))
	require.Eventually(t, func() bool {
		return sink.hasOrderMsg(o.ID, msgFullyFilled)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSubmitOrderValidation(t *testing.T) {
	b := newTestBroker(t, 1000000)

	assert.ErrorIs(t, b.SubmitOrder(&models.Order{Symbol: "DCE.m2201", Direction: models.DirectionBuy, Offset: models.OffsetOpen, PriceType: models.PriceTypeAny}), ErrInvalidOrder)
	assert.ErrorIs(t, b.SubmitOrder(&models.Order{Symbol: "", Direction: models.DirectionBuy, Offset: models.OffsetOpen, PriceType: models.PriceTypeAny, VolumeOrign: 1}), ErrInvalidOrder)
	assert.ErrorIs(t, b.SubmitOrder(&models.Order{Symbol: "DCE.m2201", Direction: "LONG", Offset: models.OffsetOpen, PriceType: models.PriceTypeAny, VolumeOrign: 1}), ErrInvalidOrder)
	assert.ErrorIs(t, b.SubmitOrder(&models.Order{Symbol: "DCE.m2201", Direction: models.DirectionBuy, Offset: models.OffsetOpen, PriceType: models.PriceTypeLimit, VolumeOrign: 1}), ErrInvalidOrder)

	ok := marketOrder(models.DirectionBuy, models.OffsetOpen, 1)
	ok.ID = "dup-1"
	require.NoError(t, b.SubmitOrder(ok))
	dup := marketOrder(models.DirectionBuy, models.OffsetOpen, 1)
	dup.ID = "dup-1"
	assert.ErrorIs(t, b.SubmitOrder(dup), ErrDuplicateOrder)
}

func TestCloseIsIdempotent(t *testing.T) {
	b := newTestBroker(t, 1000000)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.SubmitOrder(marketOrder(models.DirectionBuy, models.OffsetOpen, 1)), ErrClosed)
}
