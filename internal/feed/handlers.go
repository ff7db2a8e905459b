package feed

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"simbroker/internal/models"
)

func (c *Client) handleQuote(msg Message) {
	var data []quoteRecord

	if err := json.Unmarshal(msg.Data, &data); err != nil {
		var single quoteRecord
		if err := json.Unmarshal(msg.Data, &single); err != nil {
			c.logEntry().WithError(err).Warn("Failed to parse quote record.")
			return
		}
		data = append(data, single)
	}

	for _, item := range data {
		if item.Symbol == "" {
			continue
		}
		q := normalizeQuote(item)
		if q.Timestamp.IsZero() && msg.TS > 0 {
			q.Timestamp = time.Unix(0, msg.TS)
		}
		c.quotes <- q
	}
}

// normalizeQuote converts one wire record into the engine's quote form.
// Missing price fields become NaN so downstream checks treat them as "no
// value" rather than a zero price.
func normalizeQuote(r quoteRecord) models.Quote {
	q := models.Quote{
		Symbol:           r.Symbol,
		InsClass:         models.InsClass(r.InsClass),
		LastPrice:        floatOrNaN(r.LastPrice),
		BidPrice:         floatOrNaN(r.BidPrice),
		AskPrice:         floatOrNaN(r.AskPrice),
		PriceTick:        floatOrNaN(r.PriceTick),
		VolumeMultiple:   floatOrNaN(r.VolumeMultiple),
		Margin:           floatOrNaN(r.Margin),
		Commission:       floatOrNaN(r.Commission),
		OptionClass:      models.OptionClass(r.OptionClass),
		StrikePrice:      floatOrNaN(r.StrikePrice),
		UnderlyingSymbol: r.UnderlyingSymbol,
		UnderlyingLast:   floatOrNaN(r.UnderlyingLast),
	}
	if r.Datetime > 0 {
		q.Timestamp = time.Unix(0, r.Datetime)
	}
	if i := strings.IndexByte(r.Symbol, '.'); i > 0 {
		q.ExchangeID = r.Symbol[:i]
		q.InstrumentID = r.Symbol[i+1:]
	} else {
		q.InstrumentID = r.Symbol
	}
	return q
}

func floatOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
