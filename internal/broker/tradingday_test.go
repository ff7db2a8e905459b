package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTradingDayFromTime(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"day session stays on its date",
			time.Date(2026, 8, 25, 10, 30, 0, 0, loc), // Tuesday
			time.Date(2026, 8, 25, 0, 0, 0, 0, loc),
		},
		{
			"night session belongs to the next day",
			time.Date(2026, 8, 25, 21, 0, 0, 0, loc),
			time.Date(2026, 8, 26, 0, 0, 0, 0, loc),
		},
		{
			"friday night rolls to monday",
			time.Date(2026, 8, 28, 21, 0, 0, 0, loc), // Friday
			time.Date(2026, 8, 31, 0, 0, 0, 0, loc),
		},
		{
			"saturday early hours roll to monday",
			time.Date(2026, 8, 29, 1, 0, 0, 0, loc),
			time.Date(2026, 8, 31, 0, 0, 0, 0, loc),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tradingDayFromTime(tc.in))
		})
	}
}

func TestTradingDayEnd(t *testing.T) {
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 25, 18, 0, 0, 0, time.UTC), tradingDayEnd(day))
	assert.Equal(t, "2026-08-25", tradingDayKey(day))
}
