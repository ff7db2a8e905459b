package broker

import (
	"sort"
	"sync"

	"simbroker/internal/models"
)

// DayRecord is everything the session kept about one trading day: the fills
// in match order and, once the day settled, the end-of-day account and
// position snapshots taken before the roll.
type DayRecord struct {
	TradingDay string
	Trades     []models.Trade
	Account    models.Account
	Positions  map[string]models.Position
	Settled    bool
}

// TradeLog accumulates per-day records across the whole session. Workers
// append fills concurrently; the settlement coordinator seals a day and moves
// the log to the next one.
type TradeLog struct {
	mu      sync.Mutex
	days    map[string]*DayRecord
	current string
}

func NewTradeLog() *TradeLog {
	return &TradeLog{days: make(map[string]*DayRecord)}
}

func (l *TradeLog) SetDay(day string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = day
	l.ensureLocked(day)
}

func (l *TradeLog) CurrentDay() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *TradeLog) ensureLocked(day string) *DayRecord {
	r, ok := l.days[day]
	if !ok {
		r = &DayRecord{TradingDay: day}
		l.days[day] = r
	}
	return r
}

func (l *TradeLog) Append(t models.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == "" {
		return
	}
	r := l.ensureLocked(l.current)
	r.Trades = append(r.Trades, t)
}

// seal stores the pre-roll snapshots for the current day and marks it settled.
func (l *TradeLog) Seal(acct models.Account, positions map[string]models.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == "" {
		return
	}
	r := l.ensureLocked(l.current)
	r.Account = acct
	r.Positions = positions
	r.Settled = true
}

// Days lists the recorded trading days in ascending order.
func (l *TradeLog) Days() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.days))
	for day := range l.days {
		out = append(out, day)
	}
	sort.Strings(out)
	return out
}

// Day returns a copy of one day's record.
func (l *TradeLog) Day(day string) (DayRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.days[day]
	if !ok {
		return DayRecord{}, false
	}
	out := DayRecord{
		TradingDay: r.TradingDay,
		Trades:     append([]models.Trade(nil), r.Trades...),
		Account:    r.Account,
		Settled:    r.Settled,
	}
	if r.Positions != nil {
		out.Positions = make(map[string]models.Position, len(r.Positions))
		for k, v := range r.Positions {
			out.Positions[k] = v
		}
	}
	return out, true
}
