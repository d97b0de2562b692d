package market

// Side is the aggressor or order side on the lead instrument.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "NONE"
)

// Opposite returns the other tradable side. Unknown maps to itself.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	}
	return s
}

// Level is one aggregated price level of an order book.
type Level struct {
	Price float64
	Size  float64
}

// TickEvent is a normalized multi-instrument observation. ES is the lead
// instrument; NQ/YM are correlators and BTC drives the regime monitor.
// Correlator prices are carried forward from the ingress cache, so a zero
// value means "never seen", not "price is zero".
type TickEvent struct {
	TMS int64
	ES  float64
	NQ  float64
	YM  float64
	BTC float64
}

// HasCorrelators reports whether both regressor prices have been observed.
func (t TickEvent) HasCorrelators() bool {
	return t.NQ > 0 && t.YM > 0
}

// DomSnapshot is an aggregated L2 snapshot for one instrument. Bids are
// ordered by descending price, asks by ascending price. Absent levels are
// omitted rather than carried as 0@0 placeholders.
type DomSnapshot struct {
	TMS     int64
	Symbol  string
	BestBid float64
	BestAsk float64
	Bids    []Level
	Asks    []Level
}

// Mid returns the midpoint of the best bid and ask.
func (d DomSnapshot) Mid() float64 {
	return (d.BestBid + d.BestAsk) / 2
}

// SizeAt returns the resting size at the given price on the given side,
// or 0 if the level is not visible.
func (d DomSnapshot) SizeAt(side Side, price float64) float64 {
	levels := d.Bids
	if side == SideSell {
		levels = d.Asks
	}
	for _, lvl := range levels {
		if lvl.Price == price {
			return lvl.Size
		}
	}
	return 0
}

// TradeEvent is a single print on one instrument.
type TradeEvent struct {
	TMS       int64
	Symbol    string
	Price     float64
	Volume    float64
	Aggressor Side
}
