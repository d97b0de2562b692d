package micro

import "es-maker-bot/internal/market"

type OBIConfig struct {
	// Depth is how many levels per side enter the sum; the first levels are
	// the real orders, deep levels are mostly spoof.
	Depth int
	// Decay is the per-level geometric weight, w_i = decay^i.
	Decay float64
}

func DefaultOBIConfig() OBIConfig {
	return OBIConfig{Depth: 10, Decay: 0.5}
}

// OBI computes the weighted order-book imbalance of a depth snapshot.
// Weights are precomputed once; Calc is a pure function of its input.
type OBI struct {
	weights []float64
}

func NewOBI(cfg OBIConfig) *OBI {
	weights := make([]float64, cfg.Depth)
	w := 1.0
	for i := range weights {
		weights[i] = w
		w *= cfg.Decay
	}
	return &OBI{weights: weights}
}

// Calc returns (W_b - W_a) / (W_b + W_a) in [-1, +1]; 0 when both sides are
// empty. Positive means bid-heavy.
func (o *OBI) Calc(dom market.DomSnapshot) float64 {
	wb := o.weightedSize(dom.Bids)
	wa := o.weightedSize(dom.Asks)
	total := wb + wa
	if total <= 0 {
		return 0
	}
	return (wb - wa) / total
}

func (o *OBI) weightedSize(levels []market.Level) float64 {
	var sum float64
	for i, w := range o.weights {
		if i >= len(levels) {
			break
		}
		if levels[i].Size > 0 {
			sum += w * levels[i].Size
		}
	}
	return sum
}
