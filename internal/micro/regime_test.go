package micro

import "testing"

// quietThenWild feeds n quiet 1 Hz samples followed by m violently
// alternating ones and returns the monitor and the last timestamp used.
func quietThenWild(r *Regime, quiet, wild int) int64 {
	tms := int64(0)
	price := func(i int, swing float64) float64 {
		if i%2 == 0 {
			return 95000 + swing
		}
		return 95000 - swing
	}
	for i := 0; i < quiet; i++ {
		tms += 1000
		r.OnPrice(price(i, 1), tms)
	}
	for i := 0; i < wild; i++ {
		tms += 1000
		r.OnPrice(price(i, 2000), tms)
	}
	return tms
}

func TestRegimeSingleSampleReportsOK(t *testing.T) {
	r := NewRegime(DefaultRegimeConfig())
	r.OnPrice(95000, 1000)
	if r.State() != RegimeOK {
		t.Fatalf("single sample must be OK, got %s", r.State())
	}
	if r.Ratio() != 1 {
		t.Fatalf("warm-up ratio must be 1, got %v", r.Ratio())
	}
}

func TestRegimeWarmupNeverBlocks(t *testing.T) {
	r := NewRegime(DefaultRegimeConfig())
	tms := int64(0)
	for i := 0; i < 30; i++ {
		tms += 1000
		swing := 1.0
		if i > 20 {
			swing = 3000
		}
		price := 95000 + swing
		if i%2 == 1 {
			price = 95000 - swing
		}
		r.OnPrice(price, tms)
	}
	if r.State() != RegimeOK {
		t.Fatalf("monitor must stay OK during warm-up, got %s", r.State())
	}
}

func TestRegimeTripsOnVolatilityBurst(t *testing.T) {
	r := NewRegime(DefaultRegimeConfig())
	quietThenWild(r, 600, 60)
	if r.State() != RegimeTripped {
		t.Fatalf("expected TRIPPED, ratio=%v", r.Ratio())
	}
	if r.Ratio() <= r.cfg.Trip {
		t.Fatalf("trip without ratio above threshold: %v", r.Ratio())
	}
}

func TestRegimeDecimatesSamples(t *testing.T) {
	r := NewRegime(DefaultRegimeConfig())
	// 10 ticks inside the same second must collapse to one sample.
	for i := 0; i < 10; i++ {
		r.OnPrice(95000+float64(i), int64(1000+i*10))
	}
	if len(r.samples) != 1 {
		t.Fatalf("expected 1 decimated sample, got %d", len(r.samples))
	}
}

func TestRegimeHysteresisRestore(t *testing.T) {
	r := NewRegime(DefaultRegimeConfig())
	tms := quietThenWild(r, 600, 60)
	if r.State() != RegimeTripped {
		t.Fatalf("setup failed: expected TRIPPED")
	}
	// Quiet again: the ratio must hold at or below reset for the cool-off
	// before the monitor re-arms.
	restored := false
	for i := 0; i < 200; i++ {
		tms += 1000
		price := 95000.0 + 1
		if i%2 == 1 {
			price = 95000 - 1
		}
		r.OnPrice(price, tms)
		if r.State() == RegimeOK {
			restored = true
			break
		}
	}
	if !restored {
		t.Fatalf("monitor never restored, ratio=%v", r.Ratio())
	}
}
