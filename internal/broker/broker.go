// Package broker implements a local simulated brokerage: a shared account
// ledger, per-instrument matching workers fed by quote ticks, and a trading
// day settlement cycle.
package broker

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"simbroker/internal/logger"
	"simbroker/internal/metrics"
	"simbroker/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrClosed         = errors.New("broker is closed")
	ErrUnknownOrder   = errors.New("unknown order id")
	ErrDuplicateOrder = errors.New("duplicate order id")
	ErrInvalidOrder   = errors.New("invalid order")
)

// Options carries everything the broker needs at construction time.
type Options struct {
	AccountID     string
	Currency      string
	InitBalance   float64
	WorkerQueue   int
	EventQueue    int
	ShutdownGrace time.Duration
}

func (o *Options) withDefaults() {
	if o.Currency == "" {
		o.Currency = "CNY"
	}
	if o.WorkerQueue <= 0 {
		o.WorkerQueue = 256
	}
	if o.EventQueue <= 0 {
		o.EventQueue = 1024
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 5 * time.Second
	}
}

// Broker routes quotes and order commands to per-instrument workers and owns
// the shared ledger, the event stream and the settlement cycle. Routing is
// serialized under mu, which also pins the relative order of quotes, commands
// and settlement barriers across all workers.
type Broker struct {
	log       *logger.Logger
	ledger    *Ledger
	tradeLog  *TradeLog
	positions *positionBook
	orders    *orderBook

	events    chan Event
	dropped   atomic.Int64
	queueSize int
	grace     time.Duration

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	dayEnd  time.Time

	idxMu    sync.Mutex
	orderIdx map[string]string // order id -> symbol

	multMu    sync.Mutex
	multiples map[string]float64 // symbol -> contract multiplier

	clock atomic.Int64 // latest quote timestamp, ns
	wg    sync.WaitGroup
}

func New(opts Options, log *logger.Logger) (*Broker, error) {
	if opts.InitBalance <= 0 {
		return nil, fmt.Errorf("init balance must be positive, got %v", opts.InitBalance)
	}
	opts.withDefaults()
	b := &Broker{
		log:       log,
		ledger:    NewLedger(opts.AccountID, opts.Currency, opts.InitBalance),
		tradeLog:  NewTradeLog(),
		positions: newPositionBook(),
		orders:    newOrderBook(),
		events:    make(chan Event, opts.EventQueue),
		queueSize: opts.WorkerQueue,
		grace:     opts.ShutdownGrace,
		workers:   make(map[string]*worker),
		orderIdx:  make(map[string]string),
		multiples: make(map[string]float64),
	}
	b.log.WithComponent("broker").WithFields(logrus.Fields{
		"account_id":   opts.AccountID,
		"init_balance": opts.InitBalance,
	}).Info("Simulated brokerage started.")
	return b, nil
}

// Subscribe makes sure a matching worker exists for the symbol, so quotes for
// it are routed instead of ignored.
func (b *Broker) Subscribe(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.ensureWorkerLocked(symbol)
}

func (b *Broker) ensureWorkerLocked(symbol string) *worker {
	w, ok := b.workers[symbol]
	if !ok {
		w = newWorker(b, symbol)
		b.workers[symbol] = w
		b.wg.Add(1)
		go w.run()
		b.log.WithComponent("broker").WithField("symbol", symbol).Info("Matching worker started.")
	}
	return w
}

// PushQuote feeds one tick into the engine. It advances the simulation clock,
// triggers settlement when the tick crosses the trading day boundary, and
// hands the tick to the symbol's worker. Ticks for symbols nobody subscribed
// to still advance the clock.
func (b *Broker) PushQuote(q models.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if ts := q.Timestamp.UnixNano(); ts > b.clock.Load() {
		b.clock.Store(ts)
	}
	b.advanceDayLocked(q.Timestamp)
	if q.VolumeMultiple > 0 {
		b.multMu.Lock()
		b.multiples[q.Symbol] = q.VolumeMultiple
		b.multMu.Unlock()
	}
	metrics.QuotesProcessed.Inc()
	if w, ok := b.workers[q.Symbol]; ok {
		w.queue <- workerMsg{quote: &q}
	}
}

// SubmitOrder validates and routes an order command. An empty ID gets a
// generated one; the assigned ID is written back into the order and is also
// carried on every resulting event.
func (b *Broker) SubmitOrder(o *models.Order) error {
	if err := validateOrder(o); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = newOrderID()
	}
	o.ExchangeID, o.InstrumentID = splitSymbol(o.Symbol)

	b.idxMu.Lock()
	if _, exists := b.orderIdx[o.ID]; exists {
		b.idxMu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
	}
	b.orderIdx[o.ID] = o.Symbol
	b.idxMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.forgetOrder(o.ID)
		return ErrClosed
	}
	w := b.ensureWorkerLocked(o.Symbol)
	cp := *o
	w.queue <- workerMsg{insert: &cp}
	metrics.OrdersInserted.Inc()
	return nil
}

// CancelOrder routes a cancel for an order previously submitted. Cancelling
// an already finished order is not an error; it just has no effect.
func (b *Broker) CancelOrder(orderID string) error {
	b.idxMu.Lock()
	symbol, ok := b.orderIdx[orderID]
	b.idxMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if w, ok := b.workers[symbol]; ok {
		w.queue <- workerMsg{cancel: orderID}
	}
	return nil
}

func validateOrder(o *models.Order) error {
	if o.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	}
	if o.VolumeOrign <= 0 {
		return fmt.Errorf("%w: volume must be positive, got %d", ErrInvalidOrder, o.VolumeOrign)
	}
	if o.Direction != models.DirectionBuy && o.Direction != models.DirectionSell {
		return fmt.Errorf("%w: direction %q", ErrInvalidOrder, o.Direction)
	}
	switch o.Offset {
	case models.OffsetOpen, models.OffsetClose, models.OffsetCloseToday:
	default:
		return fmt.Errorf("%w: offset %q", ErrInvalidOrder, o.Offset)
	}
	switch o.PriceType {
	case models.PriceTypeLimit:
		if math.IsNaN(o.LimitPrice) || o.LimitPrice <= 0 {
			return fmt.Errorf("%w: limit order needs a positive limit price", ErrInvalidOrder)
		}
	case models.PriceTypeAny:
	default:
		return fmt.Errorf("%w: price type %q", ErrInvalidOrder, o.PriceType)
	}
	switch o.TimeCondition {
	case "", models.TimeConditionGFD, models.TimeConditionIOC:
	default:
		return fmt.Errorf("%w: time condition %q", ErrInvalidOrder, o.TimeCondition)
	}
	return nil
}

func newOrderID() string {
	return "SIM." + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// now is the simulation clock: the timestamp of the latest quote seen, or the
// zero time before the first quote.
func (b *Broker) now() time.Time {
	ns := b.clock.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (b *Broker) forgetOrder(orderID string) {
	b.idxMu.Lock()
	delete(b.orderIdx, orderID)
	b.idxMu.Unlock()
}

func (b *Broker) recordTrade(t models.Trade) {
	b.tradeLog.Append(t)
}

// Events is the subscriber stream. The broker never closes it; consumers stop
// reading after Close returns.
func (b *Broker) Events() <-chan Event {
	return b.events
}

// Account returns a copy of the current account state.
func (b *Broker) Account() models.Account {
	return b.ledger.Snapshot()
}

// Position returns the latest published snapshot for the symbol.
func (b *Broker) Position(symbol string) (models.Position, bool) {
	return b.positions.get(symbol)
}

// Positions returns the latest published snapshot of every position.
func (b *Broker) Positions() map[string]models.Position {
	return b.positions.all()
}

// Order returns the latest published state of an order, finished ones
// included.
func (b *Broker) Order(orderID string) (models.Order, bool) {
	return b.orders.get(orderID)
}

// AliveOrders lists the orders still resting on the book.
func (b *Broker) AliveOrders() []models.Order {
	return b.orders.alive()
}

// VolumeMultiples returns the contract multipliers seen on the feed so far.
func (b *Broker) VolumeMultiples() map[string]float64 {
	b.multMu.Lock()
	defer b.multMu.Unlock()
	out := make(map[string]float64, len(b.multiples))
	for k, v := range b.multiples {
		out[k] = v
	}
	return out
}

// TradeLog exposes the per-day session records.
func (b *Broker) TradeLog() *TradeLog {
	return b.tradeLog
}

// Dropped reports how many events were discarded because the subscriber fell
// behind.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting input, lets the workers drain their queues, and waits
// up to the shutdown grace period for them to finish.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, w := range b.workers {
		close(w.queue)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.log.WithComponent("broker").Info("Simulated brokerage stopped.")
		return nil
	case <-time.After(b.grace):
		return fmt.Errorf("shutdown grace period of %s elapsed before workers drained", b.grace)
	}
}
