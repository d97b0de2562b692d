package feed

import (
	"testing"

	"es-maker-bot/internal/market"
)

func TestCacheTickCarriesForward(t *testing.T) {
	cache := NewCache()
	cache.ApplyTrade("ES", 6800, 1000)
	cache.ApplyTrade("NQ", 21500, 1100)

	tick := cache.Tick(1200, "ES", "NQ", "YM", "BTC")
	if tick.ES != 6800 || tick.NQ != 21500 {
		t.Fatalf("unexpected tick: %+v", tick)
	}
	if tick.YM != 0 || tick.BTC != 0 {
		t.Fatalf("never-seen symbols must be zero: %+v", tick)
	}
	if tick.HasCorrelators() {
		t.Fatalf("correlators incomplete without YM")
	}

	cache.ApplyTrade("YM", 44000, 1300)
	tick = cache.Tick(1400, "ES", "NQ", "YM", "BTC")
	if !tick.HasCorrelators() {
		t.Fatalf("expected correlators present: %+v", tick)
	}
}

func TestCacheHeartbeatWatermark(t *testing.T) {
	cache := NewCache()
	cache.ApplyHeartbeat("ES", 5000)
	cache.ApplyHeartbeat("ES", 4000)
	if got := cache.HeartbeatTMS("ES"); got != 5000 {
		t.Fatalf("watermark must be monotone, got %d", got)
	}
	cache.ApplyTrade("ES", 6800, 6000)
	if got := cache.HeartbeatTMS("ES"); got != 6000 {
		t.Fatalf("trade should advance watermark, got %d", got)
	}
}

func TestCacheLastDepth(t *testing.T) {
	cache := NewCache()
	if _, ok := cache.LastDepth("ES"); ok {
		t.Fatalf("expected no depth yet")
	}
	cache.ApplyDepth("ES", market.DomSnapshot{TMS: 1000, Symbol: "ES", BestBid: 6800, BestAsk: 6800.25})
	dom, ok := cache.LastDepth("ES")
	if !ok || dom.BestBid != 6800 {
		t.Fatalf("unexpected depth: %+v ok=%v", dom, ok)
	}
}
