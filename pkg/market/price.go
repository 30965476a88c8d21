package market

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Day = 24 * time.Hour

	NoTradesMessage = "No trades available"

	// DisplayLayout renders trade times the way the dashboard shows them.
	DisplayLayout = "1/2/2006, 3:04:05 PM"
)

var hundred = decimal.NewFromInt(100)

// ParseTime parses a trade timestamp. ok is false for anything that is not
// RFC3339.
func ParseTime(ts string) (t time.Time, ok bool) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

type timedTrade struct {
	Trade
	at    time.Time
	valid bool
}

// newestFirst returns a copy of trades sorted by timestamp descending.
// Unparseable timestamps sort last, keeping their relative order.
func newestFirst(trades []Trade) []timedTrade {
	out := make([]timedTrade, len(trades))
	for i, t := range trades {
		at, ok := ParseTime(t.Timestamp)
		out[i] = timedTrade{Trade: t, at: at, valid: ok}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].valid != out[j].valid {
			return out[i].valid
		}
		return out[i].at.After(out[j].at)
	})
	return out
}

// CurrentPrice reports the newest trade price and its change against the
// most recent trade older than 24h. The change is a percentage rounded to
// two places; it is 0 when no such trade exists or its price is zero.
func CurrentPrice(trades []Trade, now time.Time) PriceSummary {
	if len(trades) == 0 {
		return PriceSummary{Message: NoTradesMessage}
	}
	sorted := newestFirst(trades)
	latest := sorted[0]
	current := latest.Price

	change := decimal.Zero
	cutoff := now.Add(-Day)
	for _, t := range sorted {
		if !t.valid || !t.at.Before(cutoff) {
			continue
		}
		if !t.Price.IsZero() {
			change = current.Sub(t.Price).Div(t.Price).Mul(hundred).Round(2)
		}
		break
	}

	cp := current.InexactFloat64()
	pc := change.InexactFloat64()
	return PriceSummary{
		CurrentPrice:  &cp,
		PriceChange:   &pc,
		LastTradeTime: latest.Timestamp,
	}
}

// Window24h aggregates the trades strictly after now-24h.
func Window24h(trades []Trade, now time.Time) Window {
	cutoff := now.Add(-Day)
	w := Window{Volume: decimal.Zero, AveragePrice: decimal.Zero}
	sum := decimal.Zero
	for _, t := range trades {
		at, ok := ParseTime(t.Timestamp)
		if !ok || !at.After(cutoff) {
			continue
		}
		w.Volume = w.Volume.Add(t.Value())
		sum = sum.Add(t.Price)
		w.TradeCount++
	}
	if w.TradeCount > 0 {
		w.AveragePrice = sum.Div(decimal.NewFromInt(int64(w.TradeCount)))
	}
	return w
}
