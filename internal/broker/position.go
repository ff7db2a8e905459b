package broker

import (
	"math"

	"simbroker/internal/models"
)

// bucketPriority states which today/history bucket a close-side operation
// consumes first, and whether an overflow may carry into the other bucket.
// SHFE and INE track the buckets separately (CLOSETODAY may only touch today,
// CLOSE may only touch history); every other exchange lets the remainder
// carry over.
type bucketPriority int

const (
	priorityTodayOnly bucketPriority = iota
	priorityHistoryOnly
	priorityTodayFirst
	priorityHistoryFirst
)

func (p bucketPriority) todayFirst() bool {
	return p == priorityTodayOnly || p == priorityTodayFirst
}

func (p bucketPriority) carries() bool {
	return p == priorityTodayFirst || p == priorityHistoryFirst
}

func bucketSplit(exchangeID string) bool {
	return exchangeID == "SHFE" || exchangeID == "INE"
}

// freezePriority picks the bucket order used when a close order earmarks
// position volume at insert time.
func freezePriority(exchangeID string, offset models.Offset) bucketPriority {
	if bucketSplit(exchangeID) {
		if offset == models.OffsetCloseToday {
			return priorityTodayOnly
		}
		return priorityHistoryOnly
	}
	return priorityTodayFirst
}

// releasePriority picks the bucket order used when a finished close order
// gives its remaining earmark back.
func releasePriority(exchangeID string, offset models.Offset) bucketPriority {
	if bucketSplit(exchangeID) {
		if offset == models.OffsetCloseToday {
			return priorityTodayOnly
		}
		return priorityHistoryOnly
	}
	return priorityHistoryFirst
}

// matchPriority picks the bucket order used when a fill consumes volume.
func matchPriority(exchangeID string, offset models.Offset) bucketPriority {
	if bucketSplit(exchangeID) {
		if offset == models.OffsetClose {
			return priorityHistoryOnly
		}
		return priorityTodayOnly
	}
	return priorityTodayFirst
}

// carryVolume adds delta to the preferred volume bucket and, when the
// priority carries, moves a negative remainder into the other bucket.
func carryVolume(today, his *int64, delta int64, pri bucketPriority) {
	pref, other := today, his
	if !pri.todayFirst() {
		pref, other = his, today
	}
	*pref += delta
	if pri.carries() && *pref < 0 {
		*other += *pref
		*pref = 0
	}
}

// carryFrozen adds delta to the preferred frozen bucket. When the priority
// carries, a negative remainder moves to the other bucket, and a frozen count
// exceeding that bucket's volume overflows into the other bucket as well.
func carryFrozen(frozenToday, frozenHis *int64, volToday, volHis int64, delta int64, pri bucketPriority) {
	if pri.todayFirst() {
		*frozenToday += delta
		if pri.carries() {
			if *frozenToday < 0 {
				*frozenHis += *frozenToday
				*frozenToday = 0
			} else if volToday < *frozenToday {
				*frozenHis += *frozenToday - volToday
				*frozenToday = volToday
			}
		}
		return
	}
	*frozenHis += delta
	if pri.carries() {
		if *frozenHis < 0 {
			*frozenToday += *frozenHis
			*frozenHis = 0
		} else if volHis < *frozenHis {
			*frozenToday += *frozenHis - volHis
			*frozenHis = volHis
		}
	}
}

// positionState is the single-writer per-instrument position record. All
// methods return the account delta the mutation produced; the caller applies
// it to the shared ledger.
type positionState struct {
	models.Position
}

func newPositionState(symbol, exchangeID, instrumentID string) *positionState {
	return &positionState{Position: models.Position{
		Symbol:             symbol,
		ExchangeID:         exchangeID,
		InstrumentID:       instrumentID,
		OpenPriceLong:      math.NaN(),
		OpenPriceShort:     math.NaN(),
		PositionPriceLong:  math.NaN(),
		PositionPriceShort: math.NaN(),
	}}
}

// applyFrozen earmarks (positive delta) or releases (negative delta) close
// volume on both sides.
func (p *positionState) applyFrozen(longDelta, shortDelta int64, pri bucketPriority) {
	if longDelta != 0 {
		p.VolumeLongFrozen += longDelta
		carryFrozen(&p.VolumeLongFrozenToday, &p.VolumeLongFrozenHis,
			p.VolumeLongToday, p.VolumeLongHis, longDelta, pri)
	}
	if shortDelta != 0 {
		p.VolumeShortFrozen += shortDelta
		carryFrozen(&p.VolumeShortFrozenToday, &p.VolumeShortFrozenHis,
			p.VolumeShortToday, p.VolumeShortHis, shortDelta, pri)
	}
}

// frozenOK reports whether every bucket still has at least as much volume as
// is earmarked. A close order that pushes any bucket past its volume fails
// admission.
func (p *positionState) frozenOK() bool {
	return p.VolumeLongHis-p.VolumeLongFrozenHis >= 0 &&
		p.VolumeLongToday-p.VolumeLongFrozenToday >= 0 &&
		p.VolumeShortHis-p.VolumeShortFrozenHis >= 0 &&
		p.VolumeShortToday-p.VolumeShortFrozenToday >= 0
}

// markPrice revalues both sides at the new price, accruing floating profit
// since the previous mark. Options book the change as market value, futures
// as position profit.
func (p *positionState) markPrice(price float64, q models.Quote) accountDelta {
	if math.IsNaN(price) {
		return accountDelta{}
	}
	var d accountDelta
	if p.HasPrice {
		fpLong := (price - p.LastPrice) * float64(p.VolumeLong) * q.VolumeMultiple
		fpShort := (p.LastPrice - price) * float64(p.VolumeShort) * q.VolumeMultiple
		fp := fpLong + fpShort
		p.FloatProfitLong += fpLong
		p.FloatProfitShort += fpShort
		p.FloatProfit += fp
		if q.InsClass.IsOption() {
			p.MarketValueLong += fpLong
			p.MarketValueShort += fpShort
			p.MarketValue += fp
			d = accountDelta{floatProfit: fp, marketValue: fp}
		} else {
			p.PositionProfitLong += fpLong
			p.PositionProfitShort += fpShort
			p.PositionProfit += fp
			d = accountDelta{floatProfit: fp, positionProfit: fp}
		}
	}
	p.LastPrice = price
	p.HasPrice = true
	return d
}

// applyLong changes the long side by delta lots at the current mark price.
// delta > 0 is a buy-open fill, delta < 0 a sell-close fill.
func (p *positionState) applyLong(delta int64, q models.Quote, pri bucketPriority) accountDelta {
	mult := q.VolumeMultiple
	var closeProfit, floatProfit float64
	if delta > 0 {
		p.OpenCostLong += float64(delta) * p.LastPrice * mult
		p.PositionCostLong += float64(delta) * p.LastPrice * mult
	} else {
		closeProfit = (p.LastPrice - p.PositionPriceLong) * float64(-delta) * mult
		floatProfit = p.FloatProfitLong / float64(p.VolumeLong) * float64(delta)
		p.OpenCostLong += p.OpenCostLong / float64(p.VolumeLong) * float64(delta)
		p.PositionCostLong += p.PositionCostLong / float64(p.VolumeLong) * float64(delta)
	}
	var marketValue, margin float64
	if q.InsClass.IsOption() {
		marketValue = p.LastPrice * float64(delta) * mult
		p.MarketValueLong += marketValue
		p.MarketValue += marketValue
	} else {
		margin = float64(delta) * q.Margin
		p.PositionProfitLong -= closeProfit
		p.PositionProfit -= closeProfit
	}
	p.VolumeLong += delta
	if p.VolumeLong != 0 {
		p.OpenPriceLong = p.OpenCostLong / mult / float64(p.VolumeLong)
		p.PositionPriceLong = p.PositionCostLong / mult / float64(p.VolumeLong)
	} else {
		p.OpenPriceLong = math.NaN()
		p.PositionPriceLong = math.NaN()
	}
	p.FloatProfitLong += floatProfit
	p.FloatProfit += floatProfit
	p.MarginLong += margin
	p.Margin += margin
	carryVolume(&p.VolumeLongToday, &p.VolumeLongHis, delta, pri)

	d := accountDelta{
		floatProfit: floatProfit,
		closeProfit: closeProfit,
		margin:      margin,
		marketValue: marketValue,
	}
	if !q.InsClass.IsOption() {
		d.positionProfit = -closeProfit
	}
	return d
}

// applyShort changes the short side by delta lots at the current mark price.
// delta > 0 is a sell-open fill, delta < 0 a buy-close fill.
func (p *positionState) applyShort(delta int64, q models.Quote, pri bucketPriority) accountDelta {
	mult := q.VolumeMultiple
	var closeProfit, floatProfit float64
	if delta > 0 {
		p.OpenCostShort += float64(delta) * p.LastPrice * mult
		p.PositionCostShort += float64(delta) * p.LastPrice * mult
	} else {
		closeProfit = (p.PositionPriceShort - p.LastPrice) * float64(-delta) * mult
		floatProfit = p.FloatProfitShort / float64(p.VolumeShort) * float64(delta)
		p.OpenCostShort += p.OpenCostShort / float64(p.VolumeShort) * float64(delta)
		p.PositionCostShort += p.PositionCostShort / float64(p.VolumeShort) * float64(delta)
	}
	var marketValue, margin float64
	if q.InsClass.IsOption() {
		marketValue = -(p.LastPrice * float64(delta) * mult)
		p.MarketValueShort += marketValue
		p.MarketValue += marketValue
		if delta > 0 {
			margin = shortOptionMargin(q)
		}
	} else {
		margin = float64(delta) * q.Margin
		p.PositionProfitShort -= closeProfit
		p.PositionProfit -= closeProfit
	}
	p.VolumeShort += delta
	if p.VolumeShort != 0 {
		p.OpenPriceShort = p.OpenCostShort / mult / float64(p.VolumeShort)
		p.PositionPriceShort = p.PositionCostShort / mult / float64(p.VolumeShort)
	} else {
		p.OpenPriceShort = math.NaN()
		p.PositionPriceShort = math.NaN()
	}
	p.FloatProfitShort += floatProfit
	p.FloatProfit += floatProfit
	p.MarginShort += margin
	p.Margin += margin
	carryVolume(&p.VolumeShortToday, &p.VolumeShortHis, delta, pri)

	d := accountDelta{
		floatProfit: floatProfit,
		closeProfit: closeProfit,
		margin:      margin,
		marketValue: marketValue,
	}
	if !q.InsClass.IsOption() {
		d.positionProfit = -closeProfit
	}
	return d
}

// rollDay folds today volume into history and re-marks the cost basis at the
// session's last price, realizing the day's floating profit into the cost.
// Applying it twice for the same day is a no-op: today is already zero and
// the cost fields are already re-marked.
func (p *positionState) rollDay() {
	p.VolumeLongHis = p.VolumeLong
	p.VolumeLongToday = 0
	p.VolumeShortHis = p.VolumeShort
	p.VolumeShortToday = 0
	p.PositionPriceLong = p.LastPrice
	p.PositionPriceShort = p.LastPrice
	p.PositionCostLong = p.OpenCostLong + p.FloatProfitLong
	p.PositionCostShort = p.OpenCostShort + p.FloatProfitShort
	p.PositionProfitLong = 0
	p.PositionProfitShort = 0
	p.PositionProfit = 0
}
