package feed

import (
	"time"

	"es-maker-bot/internal/market"
)

// Handler receives normalized events. The engine implements this; the
// normalizer never holds a reference past the call.
type Handler interface {
	OnTick(tick market.TickEvent)
	OnDom(dom market.DomSnapshot)
	OnTrade(trade market.TradeEvent)
	OnPosition(symbol string, volume float64)
	OnMonitoredLimit(symbol string, price float64)
	OnHeartbeat(symbol string, tms int64)
}

// Symbols names the instruments the core cares about. Frame symbols are
// matched by prefix so contract-coded names (ESZ5) resolve to their root.
type Symbols struct {
	Lead string
	NQ   string
	YM   string
	BTC  string
}

// Normalizer turns decoded frames into typed events and drives the handler.
// It owns the per-symbol cache; it must be called from a single goroutine.
type Normalizer struct {
	cache   *Cache
	handler Handler
	symbols Symbols
	clock   func() int64
}

func NewNormalizer(cache *Cache, handler Handler, symbols Symbols) *Normalizer {
	return &Normalizer{
		cache:   cache,
		handler: handler,
		symbols: symbols,
		clock:   func() int64 { return time.Now().UnixMilli() },
	}
}

// SetClock replaces the wall-clock source used when frames carry no
// exchange timestamp.
func (n *Normalizer) SetClock(clock func() int64) {
	n.clock = clock
}

// Cache exposes the per-symbol state for status reads.
func (n *Normalizer) Cache() *Cache {
	return n.cache
}

// Handle dispatches one frame.
func (n *Normalizer) Handle(f Frame) {
	switch fr := f.(type) {
	case TradeFrame:
		n.handleTrade(fr)
	case DepthFrame:
		n.handleDepth(fr)
	case HeartbeatFrame:
		n.handleHeartbeat(fr)
	case PositionFrame:
		root, _ := n.root(fr.Symbol)
		n.handler.OnPosition(root, fr.Volume)
	case MonitorFrame:
		root, _ := n.root(fr.Symbol)
		n.handler.OnMonitoredLimit(root, fr.Price)
	}
}

func (n *Normalizer) handleTrade(fr TradeFrame) {
	tms := fr.TMS
	if tms <= 0 {
		tms = n.clock()
	}
	root, known := n.root(fr.Symbol)
	n.cache.ApplyTrade(root, fr.Price, tms)
	if !known {
		// The cache still tracks the symbol, but only the lead and its
		// correlators drive the engine's tick pipeline.
		return
	}
	if root == n.symbols.Lead {
		n.handler.OnTrade(market.TradeEvent{
			TMS:       tms,
			Symbol:    root,
			Price:     fr.Price,
			Volume:    fr.Volume,
			Aggressor: fr.Side,
		})
	}
	n.handler.OnTick(n.cache.Tick(tms, n.symbols.Lead, n.symbols.NQ, n.symbols.YM, n.symbols.BTC))
}

func (n *Normalizer) handleDepth(fr DepthFrame) {
	tms := fr.TMS
	if tms <= 0 {
		tms = n.clock()
	}
	root, _ := n.root(fr.Symbol)
	dom := market.DomSnapshot{TMS: tms, Symbol: root, Bids: fr.Bids, Asks: fr.Asks}
	if len(fr.Bids) > 0 {
		dom.BestBid = fr.Bids[0].Price
	}
	if len(fr.Asks) > 0 {
		dom.BestAsk = fr.Asks[0].Price
	}
	n.cache.ApplyDepth(root, dom)
	if root == n.symbols.Lead {
		n.handler.OnDom(dom)
	}
}

func (n *Normalizer) handleHeartbeat(fr HeartbeatFrame) {
	tms := fr.TMS
	if tms <= 0 {
		tms = n.clock()
	}
	root, _ := n.root(fr.Symbol)
	n.cache.ApplyHeartbeat(root, tms)
	n.handler.OnHeartbeat(root, tms)
}

// root maps a raw frame symbol onto a configured instrument root. Unmatched
// symbols pass through unchanged, flagged false, so the cache still tracks
// them without driving the engine.
func (n *Normalizer) root(raw string) (string, bool) {
	for _, sym := range []string{n.symbols.Lead, n.symbols.NQ, n.symbols.YM, n.symbols.BTC} {
		if sym != "" && hasRoot(raw, sym) {
			return sym, true
		}
	}
	return raw, false
}

func hasRoot(raw, root string) bool {
	if len(raw) < len(root) {
		return false
	}
	return raw[:len(root)] == root
}
