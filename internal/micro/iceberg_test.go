package micro

import (
	"testing"

	"es-maker-bot/internal/market"
)

func icebergDom(tms int64) market.DomSnapshot {
	return market.DomSnapshot{
		TMS:     tms,
		Symbol:  "ES",
		BestBid: 6800,
		BestAsk: 6800.25,
		Bids:    []market.Level{{Price: 6800, Size: 40}},
		Asks:    []market.Level{{Price: 6800.25, Size: 50}},
	}
}

func TestIcebergDetectsHiddenAsk(t *testing.T) {
	ic := NewIceberg(DefaultIcebergConfig())
	ic.OnDom(icebergDom(1000))

	// 300 contracts print into an ask showing 50: hidden sell liquidity.
	ic.OnTrade(market.TradeEvent{TMS: 1100, Symbol: "ES", Price: 6800.25, Volume: 300, Aggressor: market.SideBuy})

	findings := ic.Findings()
	if len(findings) != 1 {
		t.Fatalf("expected one finding, got %v", findings)
	}
	f := findings[0]
	if f.Side != market.SideSell || f.Price != 6800.25 {
		t.Fatalf("unexpected finding: %+v", f)
	}
	if f.EstHidden < 200 {
		t.Fatalf("estimated hidden size too small: %v", f.EstHidden)
	}
	if !ic.BlockedNear(market.SideSell, 6800.25, 200) {
		t.Fatalf("expected entry veto near hidden ask")
	}
	if ic.BlockedNear(market.SideBuy, 6800, 200) {
		t.Fatalf("no hidden bid was observed")
	}
}

func TestIcebergSkipsUnknownAggressor(t *testing.T) {
	ic := NewIceberg(DefaultIcebergConfig())
	ic.OnDom(icebergDom(1000))
	ic.OnTrade(market.TradeEvent{TMS: 1100, Symbol: "ES", Price: 6800.25, Volume: 1000, Aggressor: market.SideUnknown})
	if findings := ic.Findings(); len(findings) != 0 {
		t.Fatalf("unknown-aggressor prints must be ignored, got %v", findings)
	}
}

func TestIcebergIgnoresTradesOutsideBand(t *testing.T) {
	ic := NewIceberg(DefaultIcebergConfig())
	ic.OnDom(icebergDom(1000))
	// 2 points above the ask is eight ticks away, outside the 3-tick band.
	ic.OnTrade(market.TradeEvent{TMS: 1100, Symbol: "ES", Price: 6802.25, Volume: 1000, Aggressor: market.SideBuy})
	if findings := ic.Findings(); len(findings) != 0 {
		t.Fatalf("far prints must be ignored, got %v", findings)
	}
}

func TestIcebergDecaysOut(t *testing.T) {
	ic := NewIceberg(DefaultIcebergConfig())
	ic.OnDom(icebergDom(1000))
	ic.OnTrade(market.TradeEvent{TMS: 1100, Symbol: "ES", Price: 6800.25, Volume: 300, Aggressor: market.SideBuy})
	if len(ic.Findings()) != 1 {
		t.Fatalf("expected initial finding")
	}
	// 30 seconds of silence is six decay constants; the record ages out.
	ic.OnDom(icebergDom(31100))
	if findings := ic.Findings(); len(findings) != 0 {
		t.Fatalf("finding should have decayed, got %v", findings)
	}
}

func TestIcebergRequiresMinHidden(t *testing.T) {
	ic := NewIceberg(DefaultIcebergConfig())
	ic.OnDom(icebergDom(1000))
	// Consumes well past the displayed size but below the hidden floor.
	ic.OnTrade(market.TradeEvent{TMS: 1100, Symbol: "ES", Price: 6800.25, Volume: 150, Aggressor: market.SideBuy})
	if findings := ic.Findings(); len(findings) != 0 {
		t.Fatalf("sub-threshold flow must not classify, got %v", findings)
	}
}
