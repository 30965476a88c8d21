package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statistics combines ledger totals, the 24h window, the current price and
// order-book liquidity into one snapshot.
func Statistics(state MarketState, trades []Trade, book OrderBook, now time.Time) MarketStatistics {
	w := Window24h(trades, now)
	price := CurrentPrice(trades, now)

	stats := MarketStatistics{
		TotalGenerationCapacity: state.TotalGeneration,
		TotalDemand:             state.TotalDemand,
		SocialWelfare:           state.SocialWelfare,
		Volume24h:               w.Volume.InexactFloat64(),
		TradeCount24h:           w.TradeCount,
		AveragePrice24h:         w.AveragePrice.Round(4).InexactFloat64(),
		CurrentPrice:            price.CurrentPrice,
		TotalBuyVolume:          sumQuantity(book.Buy),
		TotalSellVolume:         sumQuantity(book.Sell),
		ProducerCount:           len(state.Producers),
		ConsumerCount:           len(state.Consumers),
	}
	if price.PriceChange != nil {
		stats.PriceChange24h = *price.PriceChange
	}
	return stats
}

func sumQuantity(orders []Order) float64 {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(decimal.NewFromFloat(o.Quantity))
	}
	return total.InexactFloat64()
}

// ComputeDistributions maps producers to (production, cost) and consumers to
// (total demand, balance). Both slices are non-nil.
func ComputeDistributions(state MarketState) Distributions {
	d := Distributions{
		Producers: make([]Distribution, 0, len(state.Producers)),
		Consumers: make([]Distribution, 0, len(state.Consumers)),
	}
	for _, p := range state.Producers {
		d.Producers = append(d.Producers, Distribution{Name: p.ID, Value: p.Production, Secondary: p.Cost})
	}
	for _, c := range state.Consumers {
		d.Consumers = append(d.Consumers, Distribution{Name: c.ID, Value: c.TotalDemand, Secondary: c.Balance})
	}
	return d
}

// FormatTrades renders trades for display in loc. Timestamps that do not
// parse are passed through unchanged.
func FormatTrades(trades []Trade, loc *time.Location) []TradeView {
	if loc == nil {
		loc = time.Local
	}
	out := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		ts := t.Timestamp
		if at, ok := ParseTime(t.Timestamp); ok {
			ts = at.In(loc).Format(DisplayLayout)
		}
		out = append(out, TradeView{
			BuyerID:    t.BuyerID,
			SellerID:   t.SellerID,
			ProducerID: t.ProducerID,
			Price:      t.Price.InexactFloat64(),
			Quantity:   t.Quantity.InexactFloat64(),
			TotalValue: t.Price.Mul(t.Quantity).InexactFloat64(),
			Timestamp:  ts,
		})
	}
	return out
}
