package common

import (
	"time"
)

// TradeDateLayout is the at-rest format for trade dates. ISO dates compare
// lexically, which the monotonic publication upsert relies on.
const TradeDateLayout = "2006-01-02"

var easternLocation *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// UTC keeps date arithmetic working when tzdata is unavailable;
		// session boundaries will be off by the ET offset.
		loc = time.UTC
	}
	easternLocation = loc
}

// Eastern returns the exchange time zone.
func Eastern() *time.Location {
	return easternLocation
}

// TradeDate formats a time as its ET calendar date.
func TradeDate(t time.Time) string {
	return t.In(easternLocation).Format(TradeDateLayout)
}

// CurrentTradeDate returns the trade date for "now", rolled back to the
// most recent weekday when now falls on a weekend.
func CurrentTradeDate(now time.Time) string {
	et := now.In(easternLocation)
	for et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		et = et.AddDate(0, 0, -1)
	}
	return et.Format(TradeDateLayout)
}

// PreviousTradingDay returns the weekday before the given trade date.
func PreviousTradingDay(tradeDate string) (string, error) {
	t, err := time.ParseInLocation(TradeDateLayout, tradeDate, easternLocation)
	if err != nil {
		return "", err
	}
	t = t.AddDate(0, 0, -1)
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, -1)
	}
	return t.Format(TradeDateLayout), nil
}

// LookbackStart returns the date lookbackDays calendar days before the
// trade date, used as the from-bound of aggregate range queries.
func LookbackStart(tradeDate string, lookbackDays int) (string, error) {
	t, err := time.ParseInLocation(TradeDateLayout, tradeDate, easternLocation)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, -lookbackDays).Format(TradeDateLayout), nil
}

// MaxTradeDate returns the later of two ISO trade dates; empty strings
// lose to any date.
func MaxTradeDate(a, b string) string {
	if a >= b {
		return a
	}
	return b
}
