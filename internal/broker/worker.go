package broker

import (
	"math"
	"strings"
	"sync"

	"simbroker/internal/logger"
	"simbroker/internal/metrics"
	"simbroker/internal/models"

	"github.com/sirupsen/logrus"
)

type workerMsg struct {
	quote  *models.Quote
	insert *models.Order
	cancel string
	settle *settleBarrier
}

// settleBarrier parks a worker between its last same-day event and its first
// next-day event. The worker signals arrival and then blocks until the
// coordinator has finished settling, so settlement happens-before any
// next-day processing on every worker.
type settleBarrier struct {
	arrive  *sync.WaitGroup
	release chan struct{}
}

// worker owns all order and position state for one instrument. It is the only
// goroutine that touches that state, so no lock is needed on the hot path;
// the settlement coordinator may touch it only while the worker is parked at
// a barrier.
type worker struct {
	symbol       string
	exchangeID   string
	instrumentID string

	broker *Broker
	ledger *Ledger
	log    *logger.Logger
	queue  chan workerMsg

	orders map[string]*models.Order
	fifo   []string // order ids in insertion order
	pos    *positionState

	quote    models.Quote
	hasQuote bool
	pending  []workerMsg // commands buffered until the first usable quote
}

func newWorker(b *Broker, symbol string) *worker {
	exchangeID, instrumentID := splitSymbol(symbol)
	return &worker{
		symbol:       symbol,
		exchangeID:   exchangeID,
		instrumentID: instrumentID,
		broker:       b,
		ledger:       b.ledger,
		log:          b.log,
		queue:        make(chan workerMsg, b.queueSize),
		orders:       make(map[string]*models.Order),
		pos:          newPositionState(symbol, exchangeID, instrumentID),
	}
}

func splitSymbol(symbol string) (string, string) {
	parts := strings.SplitN(symbol, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", symbol
}

func (w *worker) logEntry() *logrus.Entry {
	return w.log.WithComponent("worker").WithField("symbol", w.symbol)
}

func (w *worker) run() {
	defer w.broker.wg.Done()
	for msg := range w.queue {
		w.handle(msg)
	}
	w.logEntry().Debug("Matching worker drained and stopped.")
}

// handle processes one inbound event. A panic in the processing of a single
// event is recovered here so one malformed event cannot stop matching for
// the instrument.
func (w *worker) handle(msg workerMsg) {
	defer func() {
		if r := recover(); r != nil {
			w.logEntry().WithField("panic", r).Error("Worker recovered while processing an event, continuing.")
		}
	}()

	switch {
	case msg.settle != nil:
		msg.settle.arrive.Done()
		<-msg.settle.release
	case msg.quote != nil:
		w.onQuote(*msg.quote)
	case msg.insert != nil:
		if !w.hasQuote {
			w.pending = append(w.pending, msg)
			return
		}
		w.onInsert(msg.insert)
	case msg.cancel != "":
		if !w.hasQuote {
			w.pending = append(w.pending, msg)
			return
		}
		w.onCancel(msg.cancel)
	}
}

func (w *worker) onQuote(q models.Quote) {
	if q.VolumeMultiple <= 0 || math.IsNaN(q.VolumeMultiple) || math.IsNaN(q.LastPrice) {
		// Transient: keep resting orders alive and retry on the next tick.
		w.logEntry().Warn("Quote missing required fields, match attempts deferred.")
		return
	}
	w.quote = q
	if !w.hasQuote {
		w.hasQuote = true
		w.replayPending()
	}

	for _, id := range append([]string(nil), w.fifo...) {
		o, ok := w.orders[id]
		if !ok {
			continue
		}
		out := w.tryMatch(o, q)
		if out.reason != "" {
			w.finishOrder(o, out.reason)
		}
	}

	w.applyLedger(w.pos.markPrice(q.LastPrice, q))
	w.emitPosition()
	w.emitAccount()
}

func (w *worker) replayPending() {
	pending := w.pending
	w.pending = nil
	for _, msg := range pending {
		switch {
		case msg.insert != nil:
			w.onInsert(msg.insert)
		case msg.cancel != "":
			w.onCancel(msg.cancel)
		}
	}
}

func (w *worker) onInsert(o *models.Order) {
	o.Status = models.OrderStatusAlive
	o.VolumeLeft = o.VolumeOrign
	o.LastMsg = msgAccepted
	q := w.quote

	if reason := w.admitOrder(o, q); reason != "" {
		metrics.OrdersRejected.Inc()
		w.finishOrder(o, reason)
		return
	}

	o.InsertDateTime = w.broker.now()
	w.orders[o.ID] = o
	w.fifo = append(w.fifo, o.ID)
	w.emitOrder(*o)
	w.logEntry().WithFields(logrus.Fields{
		"order_id":  o.ID,
		"direction": o.Direction,
		"offset":    o.Offset,
		"volume":    o.VolumeOrign,
		"price":     o.LimitPrice,
	}).Info("Order accepted.")

	if out := w.tryMatch(o, q); out.reason != "" {
		w.finishOrder(o, out.reason)
	}
	w.applyLedger(w.pos.markPrice(q.LastPrice, q))
	w.emitPosition()
	w.emitAccount()
}

func (w *worker) onCancel(orderID string) {
	o, ok := w.orders[orderID]
	if !ok {
		return
	}
	w.finishOrder(o, msgCancelled)
	w.emitPosition()
	w.emitAccount()
}

// finishOrder moves an order to its terminal state and gives back whatever it
// still holds frozen: remaining earmarked close volume, or the open order's
// frozen margin and premium.
func (w *worker) finishOrder(o *models.Order, reason string) {
	if o.Offset.IsClosing() {
		var longFrozen, shortFrozen int64
		if o.Direction == models.DirectionSell {
			longFrozen = -o.VolumeLeft
		} else {
			shortFrozen = -o.VolumeLeft
		}
		w.pos.applyFrozen(longFrozen, shortFrozen, releasePriority(o.ExchangeID, o.Offset))
	} else {
		w.applyLedger(accountDelta{frozenMargin: -o.FrozenMargin, frozenPremium: -o.FrozenPremium})
		o.FrozenMargin = 0
		o.FrozenPremium = 0
	}
	o.Status = models.OrderStatusFinished
	o.LastMsg = reason
	delete(w.orders, o.ID)
	w.removeFIFO(o.ID)
	w.broker.forgetOrder(o.ID)
	w.emitOrder(*o)
	w.logEntry().WithFields(logrus.Fields{
		"order_id":    o.ID,
		"last_msg":    reason,
		"volume_left": o.VolumeLeft,
	}).Info("Order finished.")
}

func (w *worker) removeFIFO(orderID string) {
	for i, id := range w.fifo {
		if id == orderID {
			w.fifo = append(w.fifo[:i], w.fifo[i+1:]...)
			return
		}
	}
}

// forceFinishAll finishes every alive order. Only the worker itself or the
// settlement coordinator (with the worker parked) may call it.
func (w *worker) forceFinishAll(reason string) {
	for _, id := range append([]string(nil), w.fifo...) {
		if o, ok := w.orders[id]; ok {
			w.finishOrder(o, reason)
		}
	}
}

func (w *worker) applyLedger(d accountDelta) {
	w.ledger.apply(d)
}

func (w *worker) emitOrder(o models.Order) {
	w.broker.publishOrder(o)
}

func (w *worker) emitTrade(t models.Trade) {
	metrics.TradesMatched.Inc()
	w.broker.publishTrade(t)
}

func (w *worker) emitPosition() {
	w.broker.publishPosition(w.pos.Position)
}

func (w *worker) emitAccount() {
	w.broker.publishAccount(w.ledger.Snapshot())
}
