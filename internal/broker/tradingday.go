package broker

import "time"

// The night session opens after this hour and already belongs to the next
// trading day.
const nightSessionHour = 18

// tradingDayFromTime maps a wall-clock timestamp to the trading day it belongs
// to. Anything at or after 18:00 counts toward the next business day, and
// weekend days roll forward to Monday.
func tradingDayFromTime(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if t.Hour() >= nightSessionHour {
		day = day.AddDate(0, 0, 1)
	}
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// tradingDayEnd is the instant a trading day closes: 18:00 on the day itself.
// The day session is long over by then and the following night session opens
// at 21:00, which already maps to the next trading day.
func tradingDayEnd(day time.Time) time.Time {
	return day.Add(nightSessionHour * time.Hour)
}

func tradingDayKey(day time.Time) string {
	return day.Format("2006-01-02")
}
