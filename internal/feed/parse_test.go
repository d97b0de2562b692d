package feed

import (
	"testing"

	"es-maker-bot/internal/market"
)

func TestParseTrade(t *testing.T) {
	frame, err := Parse("T,ES,6799.50,3,BUY")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	trade, ok := frame.(TradeFrame)
	if !ok {
		t.Fatalf("expected TradeFrame, got %T", frame)
	}
	if trade.Symbol != "ES" || trade.Price != 6799.50 || trade.Volume != 3 || trade.Side != market.SideBuy {
		t.Fatalf("unexpected trade: %+v", trade)
	}
	if trade.TMS != 0 {
		t.Fatalf("expected no timestamp, got %d", trade.TMS)
	}
}

func TestParseTradeWithTicks(t *testing.T) {
	const ms = int64(1700000000000)
	line := Encode(TradeFrame{Symbol: "ES", Price: 6800, Volume: 1, Side: market.SideSell, TMS: ms})
	frame, err := Parse(line)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	trade := frame.(TradeFrame)
	if trade.TMS != ms {
		t.Fatalf("expected tms %d, got %d", ms, trade.TMS)
	}
}

func TestParseDepth(t *testing.T) {
	frame, err := Parse("D,ES,6800@100|6799.75@50,6800.25@80|6800.5@60")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	depth := frame.(DepthFrame)
	if len(depth.Bids) != 2 || len(depth.Asks) != 2 {
		t.Fatalf("unexpected level counts: %+v", depth)
	}
	if depth.Bids[0] != (market.Level{Price: 6800, Size: 100}) {
		t.Fatalf("unexpected best bid: %+v", depth.Bids[0])
	}
	if depth.Asks[1] != (market.Level{Price: 6800.5, Size: 60}) {
		t.Fatalf("unexpected ask: %+v", depth.Asks[1])
	}
}

func TestParseDepthPlaceholders(t *testing.T) {
	frame, err := Parse("D,ES,0@0,6800.25@80")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	depth := frame.(DepthFrame)
	if len(depth.Bids) != 0 {
		t.Fatalf("expected empty bids, got %+v", depth.Bids)
	}
	if len(depth.Asks) != 1 {
		t.Fatalf("expected one ask, got %+v", depth.Asks)
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	frames := []Frame{
		TradeFrame{Symbol: "ES", Price: 6799.5, Volume: 3, Side: market.SideBuy},
		TradeFrame{Symbol: "NQ", Price: 21500.25, Volume: 1, Side: market.SideUnknown, TMS: 1700000000000},
		DepthFrame{
			Symbol: "ES",
			Bids:   []market.Level{{Price: 6800, Size: 100}, {Price: 6799.75, Size: 50}},
			Asks:   []market.Level{{Price: 6800.25, Size: 80}},
		},
		DepthFrame{Symbol: "YM", Asks: []market.Level{{Price: 44000, Size: 5}}},
		HeartbeatFrame{Symbol: "ES", TMS: 1700000000000},
		PositionFrame{Symbol: "ES", Volume: -2},
		MonitorFrame{Symbol: "ES", Price: 6799.5},
	}
	for _, original := range frames {
		wire := Encode(original)
		parsed, err := Parse(wire)
		if err != nil {
			t.Fatalf("parse of %q failed: %v", wire, err)
		}
		if again := Encode(parsed); again != wire {
			t.Fatalf("round trip changed frame: %q -> %q", wire, again)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	lines := []string{
		"",
		"X,ES,1",
		"T,ES",
		"T,ES,abc,1,BUY",
		"T,ES,6799.5,0,BUY",
		"T,ES,6799.5,1,MAYBE",
		"D,ES,6800@,6800.25@80",
		"P,ES",
		"M,ES,abc",
	}
	for _, line := range lines {
		if _, err := Parse(line); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
}
