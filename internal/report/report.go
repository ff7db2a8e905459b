// Package report computes end-of-session performance statistics from the
// per-day trade log: return, annualized yield, max drawdown, Sharpe ratio,
// and the volume-weighted win rate / profit-loss ratio of FIFO-paired round
// trips.
package report

import (
	"math"

	"simbroker/internal/broker"
	"simbroker/internal/models"
)

const (
	riskFreeDaily      = 0.0001
	tradingDaysPerYear = 250
)

type Stats struct {
	InitBalance     float64 `json:"init_balance"`
	Balance         float64 `json:"balance"`
	ROR             float64 `json:"ror"`
	AnnualYield     float64 `json:"annual_yield"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	WinningRate     float64 `json:"winning_rate"`
	ProfitLossRatio float64 `json:"profit_loss_ratio"`
	TradingDays     int     `json:"trading_days"`
	TradeCount      int     `json:"trade_count"`
}

// Compute walks the recorded days in order. Balance-based figures use each
// day's end-of-day account snapshot; the pairing figures replay every fill.
// multiples maps symbol to contract multiplier for profit scaling.
func Compute(initBalance float64, log *broker.TradeLog, multiples map[string]float64) Stats {
	s := Stats{InitBalance: initBalance, Balance: initBalance}

	days := log.Days()
	var dailyYields []float64
	var trades []models.Trade
	var maxBalance float64
	for _, day := range days {
		rec, ok := log.Day(day)
		if !ok {
			continue
		}
		trades = append(trades, rec.Trades...)
		if !rec.Settled {
			continue
		}
		s.TradingDays++
		balance := rec.Account.Balance
		s.Balance = balance
		if balance > maxBalance {
			maxBalance = balance
		}
		if dd := (maxBalance - balance) / maxBalance; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
		if rec.Account.PreBalance != 0 {
			dailyYields = append(dailyYields, balance/rec.Account.PreBalance-1)
		}
	}
	s.TradeCount = len(trades)

	if initBalance != 0 {
		ratio := s.Balance / initBalance
		s.ROR = ratio - 1
		if s.TradingDays > 0 {
			// Geometric annualization of the whole-session ratio.
			s.AnnualYield = math.Pow(ratio, tradingDaysPerYear/float64(s.TradingDays)) - 1
		}
	}
	s.SharpeRatio = sharpe(dailyYields)
	s.WinningRate, s.ProfitLossRatio = pairTrades(trades, multiples)
	return s
}

func sharpe(yields []float64) float64 {
	if len(yields) == 0 {
		return 0
	}
	var sum float64
	for _, y := range yields {
		sum += y
	}
	mean := sum / float64(len(yields))
	var variance float64
	for _, y := range yields {
		variance += (y - mean) * (y - mean)
	}
	stddev := math.Sqrt(variance / float64(len(yields)))
	if stddev == 0 {
		return math.Inf(1)
	}
	return math.Sqrt(tradingDaysPerYear) * (mean - riskFreeDaily) / stddev
}

type openLot struct {
	price  float64
	volume int64
}

// pairTrades matches every closing fill against the oldest open lots on the
// same symbol and side. Each consumed lot chunk produces one per-lot price
// difference; a non-negative difference counts as a win. The winning rate is
// weighted by paired volume, and the profit-loss ratio compares the average
// profit per winning lot against the average loss per losing lot.
func pairTrades(trades []models.Trade, multiples map[string]float64) (winningRate, profitLossRatio float64) {
	queues := make(map[string][]openLot)
	var profitVolumes, lossVolumes int64
	var profitValue, lossValue float64

	for _, t := range trades {
		mult, ok := multiples[t.Symbol]
		if !ok || mult <= 0 {
			mult = 1
		}
		if t.Offset == models.OffsetOpen {
			key := t.Symbol + "|" + string(t.Direction)
			queues[key] = append(queues[key], openLot{price: t.Price, volume: t.Volume})
			continue
		}

		openDir := t.Direction.Opposite()
		key := t.Symbol + "|" + string(openDir)
		q := queues[key]
		left := t.Volume
		for left > 0 && len(q) > 0 {
			lot := &q[0]
			take := left
			if lot.volume < take {
				take = lot.volume
			}
			diff := t.Price - lot.price
			if openDir == models.DirectionSell {
				diff = -diff
			}
			if diff >= 0 {
				profitVolumes += take
				profitValue += diff * float64(take) * mult
			} else {
				lossVolumes += take
				lossValue += diff * float64(take) * mult
			}
			lot.volume -= take
			left -= take
			if lot.volume == 0 {
				q = q[1:]
			}
		}
		queues[key] = q
	}

	paired := profitVolumes + lossVolumes
	if paired == 0 {
		return 0, 0
	}
	winningRate = float64(profitVolumes) / float64(paired)

	var profitPerVolume, lossPerVolume float64
	if profitVolumes > 0 {
		profitPerVolume = profitValue / float64(profitVolumes)
	}
	if lossVolumes > 0 {
		lossPerVolume = lossValue / float64(lossVolumes)
	}
	if lossPerVolume == 0 {
		profitLossRatio = math.Inf(1)
	} else {
		profitLossRatio = math.Abs(profitPerVolume / lossPerVolume)
	}
	return winningRate, profitLossRatio
}
