package micro

import "math"

// RegimeState is the binary macro-risk classification from the BTC monitor.
type RegimeState string

const (
	RegimeOK      RegimeState = "OK"
	RegimeTripped RegimeState = "TRIPPED"
)

type RegimeConfig struct {
	SampleHz float64
	ShortN   int
	LongN    int
	// Trip and Reset bound the short/long volatility ratio with hysteresis:
	// the monitor trips above Trip and only re-arms after the ratio holds at
	// or below Reset for CoolOffS seconds.
	Trip     float64
	Reset    float64
	CoolOffS float64
}

func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{SampleHz: 1, ShortN: 60, LongN: 600, Trip: 3.0, Reset: 2.0, CoolOffS: 30}
}

// Regime watches BTC for volatility bursts relative to its own baseline and
// trips a circuit breaker that the engine uses to refuse new entries.
type Regime struct {
	cfg RegimeConfig

	samples       []float64
	lastSampleTMS int64

	state         RegimeState
	ratio         float64
	belowResetTMS int64
}

func NewRegime(cfg RegimeConfig) *Regime {
	return &Regime{cfg: cfg, state: RegimeOK, ratio: 1}
}

// Reset clears history and re-arms the monitor.
func (r *Regime) Reset() {
	r.samples = nil
	r.lastSampleTMS = 0
	r.state = RegimeOK
	r.ratio = 1
	r.belowResetTMS = 0
}

// OnPrice feeds a BTC price observation. Prices are decimated to the
// configured sample rate; intermediate ticks are free.
func (r *Regime) OnPrice(price float64, tms int64) {
	if price <= 0 {
		return
	}
	intervalMS := int64(1000 / r.cfg.SampleHz)
	if r.lastSampleTMS != 0 && tms-r.lastSampleTMS < intervalMS {
		return
	}
	r.lastSampleTMS = tms
	r.samples = append(r.samples, math.Log(price))
	if len(r.samples) > r.cfg.LongN+1 {
		r.samples = r.samples[len(r.samples)-r.cfg.LongN-1:]
	}
	r.evaluate(tms)
}

func (r *Regime) evaluate(tms int64) {
	returns := diffs(r.samples)
	// Not enough history for a short window: never block during warm-up.
	if len(returns) < r.cfg.ShortN {
		r.ratio = 1
		return
	}
	short := stdev(returns[len(returns)-r.cfg.ShortN:])
	long := stdev(returns)
	if long < 1e-12 {
		r.ratio = 1
	} else {
		r.ratio = short / long
	}

	switch r.state {
	case RegimeOK:
		if r.ratio > r.cfg.Trip {
			r.state = RegimeTripped
			r.belowResetTMS = 0
		}
	case RegimeTripped:
		if r.ratio > r.cfg.Reset {
			r.belowResetTMS = 0
			return
		}
		if r.belowResetTMS == 0 {
			r.belowResetTMS = tms
			return
		}
		if float64(tms-r.belowResetTMS) >= r.cfg.CoolOffS*1000 {
			r.state = RegimeOK
			r.belowResetTMS = 0
		}
	}
}

// State returns the current classification.
func (r *Regime) State() RegimeState { return r.state }

// Ratio returns the latest short/long volatility ratio.
func (r *Regime) Ratio() float64 { return r.ratio }

func diffs(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out[i-1] = xs[i] - xs[i-1]
	}
	return out
}

// stdev is the sample standard deviation (n-1 denominator).
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}
