package util

import "time"

// MarketStatus describes whether a venue is currently trading.
type MarketStatus struct {
	Market string    `json:"market"`
	Open   bool      `json:"open"`
	Time   time.Time `json:"time"`
}

var (
	newYork = mustLoad("America/New_York")
	telAviv = mustLoad("Asia/Jerusalem")
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MarketOpen reports whether the given market is in its regular trading
// session at t. FX and crypto are treated as always open (FX closes weekends).
func MarketOpen(market string, t time.Time) bool {
	switch market {
	case "US":
		local := t.In(newYork)
		if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
			return false
		}
		mins := local.Hour()*60 + local.Minute()
		return mins >= 9*60+30 && mins < 16*60
	case "TASE":
		local := t.In(telAviv)
		// TASE trades Sunday through Thursday.
		if local.Weekday() == time.Friday || local.Weekday() == time.Saturday {
			return false
		}
		mins := local.Hour()*60 + local.Minute()
		return mins >= 9*60+59 && mins < 17*60+15
	case "FOREX":
		local := t.In(newYork)
		return local.Weekday() != time.Saturday && local.Weekday() != time.Sunday
	case "CRYPTO":
		return true
	}
	return false
}

// Status returns the open/closed status for a market at time t.
func Status(market string, t time.Time) MarketStatus {
	return MarketStatus{Market: market, Open: MarketOpen(market, t), Time: t.UTC()}
}
