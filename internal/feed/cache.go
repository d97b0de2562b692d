package feed

import (
	"sync"

	"es-maker-bot/internal/market"
)

type instrumentState struct {
	lastPrice    float64
	lastTradeTMS int64
	lastDepth    *market.DomSnapshot
	heartbeatTMS int64
}

// Cache holds the last-known state per symbol. The normalizer is the only
// writer; snapshot reads (status endpoints, staleness checks) may come from
// other goroutines.
type Cache struct {
	mu      sync.RWMutex
	symbols map[string]*instrumentState
}

func NewCache() *Cache {
	return &Cache{symbols: make(map[string]*instrumentState)}
}

func (c *Cache) state(symbol string) *instrumentState {
	st, ok := c.symbols[symbol]
	if !ok {
		st = &instrumentState{}
		c.symbols[symbol] = st
	}
	return st
}

func (c *Cache) ApplyTrade(symbol string, price float64, tms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(symbol)
	st.lastPrice = price
	st.lastTradeTMS = tms
	if tms > st.heartbeatTMS {
		st.heartbeatTMS = tms
	}
}

func (c *Cache) ApplyDepth(symbol string, dom market.DomSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(symbol)
	st.lastDepth = &dom
	if dom.TMS > st.heartbeatTMS {
		st.heartbeatTMS = dom.TMS
	}
}

func (c *Cache) ApplyHeartbeat(symbol string, tms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state(symbol)
	if tms > st.heartbeatTMS {
		st.heartbeatTMS = tms
	}
}

// LastPrice returns the most recent trade price for a symbol, 0 if none.
func (c *Cache) LastPrice(symbol string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if st, ok := c.symbols[symbol]; ok {
		return st.lastPrice
	}
	return 0
}

// LastDepth returns a copy of the most recent depth snapshot for a symbol.
func (c *Cache) LastDepth(symbol string) (market.DomSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.symbols[symbol]
	if !ok || st.lastDepth == nil {
		return market.DomSnapshot{}, false
	}
	return *st.lastDepth, true
}

// HeartbeatTMS returns the last-seen watermark for a symbol, 0 if never seen.
func (c *Cache) HeartbeatTMS(symbol string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if st, ok := c.symbols[symbol]; ok {
		return st.heartbeatTMS
	}
	return 0
}

// Tick assembles a TickEvent from the latest cached prices. Symbols that have
// never traded contribute zero, which downstream consumers treat as absent.
func (c *Cache) Tick(tms int64, lead, nq, ym, btc string) market.TickEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tick := market.TickEvent{TMS: tms}
	if st, ok := c.symbols[lead]; ok {
		tick.ES = st.lastPrice
	}
	if st, ok := c.symbols[nq]; ok {
		tick.NQ = st.lastPrice
	}
	if st, ok := c.symbols[ym]; ok {
		tick.YM = st.lastPrice
	}
	if st, ok := c.symbols[btc]; ok {
		tick.BTC = st.lastPrice
	}
	return tick
}
