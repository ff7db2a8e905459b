package broker

import (
	"sync"
	"time"

	"simbroker/internal/metrics"
	"simbroker/internal/models"
)

// advanceDayLocked tracks the trading day boundary. The first timestamped
// quote pins the current day; a quote past 18:00 of that day settles it and
// opens the next one.
func (b *Broker) advanceDayLocked(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if b.dayEnd.IsZero() {
		day := tradingDayFromTime(ts)
		b.dayEnd = tradingDayEnd(day)
		b.tradeLog.SetDay(tradingDayKey(day))
		return
	}
	if !ts.After(b.dayEnd) {
		return
	}
	b.settleLocked()
	day := tradingDayFromTime(ts)
	b.dayEnd = tradingDayEnd(day)
	b.tradeLog.SetDay(tradingDayKey(day))
}

// settleLocked performs the end-of-day cycle with every worker parked at a
// barrier: seal the day's record with pre-roll snapshots, carry the closing
// balance into the next day, roll today volume into history on every
// position, and finish the remaining day orders.
func (b *Broker) settleLocked() {
	arrive := &sync.WaitGroup{}
	arrive.Add(len(b.workers))
	release := make(chan struct{})
	barrier := &settleBarrier{arrive: arrive, release: release}
	for _, w := range b.workers {
		w.queue <- workerMsg{settle: barrier}
	}
	arrive.Wait()

	snapshot := make(map[string]models.Position, len(b.workers))
	for symbol, w := range b.workers {
		snapshot[symbol] = w.pos.Position
	}
	b.tradeLog.Seal(b.ledger.Snapshot(), snapshot)

	b.ledger.settleDay()
	b.publishAccount(b.ledger.Snapshot())
	for _, w := range b.workers {
		w.pos.rollDay()
		b.publishPosition(w.pos.Position)
	}
	for _, w := range b.workers {
		w.forceFinishAll(msgDayEnded)
	}

	metrics.Settlements.Inc()
	b.log.WithComponent("broker").WithField("trading_day", b.tradeLog.CurrentDay()).Info("Trading day settled.")
	close(release)
}
