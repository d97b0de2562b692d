package model

import (
	"math"

	"es-maker-bot/internal/market"
)

type RidgeConfig struct {
	// Lambda is the forgetting factor; 0.999 remembers ~1000 ticks,
	// 0.99 about 100.
	Lambda float64
	// Alpha is the L2 penalty that keeps the regressor from fitting the
	// spread away entirely.
	Alpha  float64
	InitP0 float64
}

func DefaultRidgeConfig() RidgeConfig {
	return RidgeConfig{Lambda: 0.995, Alpha: 1e-4, InitP0: 100.0}
}

// Ridge is the corroborating fair-price estimator: recursive least squares
// with a forgetting factor and a ridge leak on the covariance. Structurally
// independent from the Kalman filter so that the two disagree when either
// is being fooled.
type Ridge struct {
	cfg RidgeConfig

	theta Vec3
	p     Mat3

	initialized bool
	es0         float64
	nq0         float64
	ym0         float64

	updates int
	skips   int

	lastFair   float64
	lastSpread float64
}

func NewRidge(cfg RidgeConfig) *Ridge {
	r := &Ridge{cfg: cfg}
	r.resetState()
	return r
}

func (r *Ridge) resetState() {
	r.theta = Vec3{}
	r.p = Diag(r.cfg.InitP0, r.cfg.InitP0, r.cfg.InitP0)
	r.initialized = false
	r.updates = 0
}

// Reset clears all learned state including the baselines.
func (r *Ridge) Reset() {
	r.resetState()
	r.lastFair = 0
	r.lastSpread = 0
}

// Update consumes one tick; see Kalman.Update for the contract.
func (r *Ridge) Update(tick market.TickEvent) (fair, spread float64, ok bool) {
	if tick.ES <= 0 || !tick.HasCorrelators() {
		return r.lastFair, r.lastSpread, false
	}
	if !r.initialized {
		r.es0 = tick.ES
		r.nq0 = tick.NQ
		r.ym0 = tick.YM
		r.initialized = true
		r.lastFair = tick.ES
		r.lastSpread = 0
		return tick.ES, 0, true
	}

	x := Vec3{tick.NQ - r.nq0, tick.YM - r.ym0, 1}
	y := tick.ES - r.es0

	p := r.p.Add(Diag(r.cfg.Alpha, r.cfg.Alpha, r.cfg.Alpha)).Scale(1 / r.cfg.Lambda)

	px := p.MulVec(x)
	g := r.cfg.Lambda + x.Dot(px)
	if g < varianceFloor {
		g = varianceFloor
	}

	gain := px.Scale(1 / g)
	if n := gain.Norm(); n > gainNormMax {
		gain = gain.Scale(gainNormMax / n)
	}

	e := clamp(y-x.Dot(r.theta), innovationMax)

	theta := r.theta.Add(gain.Scale(e)).Clamp(thetaMax)
	pNew := p.Sub(Outer(gain, px)).Clamp(covMax)

	fair = x.Dot(theta) + r.es0
	if !theta.Finite() || !pNew.Finite() || math.IsNaN(fair) || math.IsInf(fair, 0) {
		r.skips++
		return r.lastFair, r.lastSpread, false
	}

	r.theta = theta
	r.p = pNew
	r.updates++
	r.lastFair = fair
	r.lastSpread = fair - tick.ES
	return r.lastFair, r.lastSpread, true
}

// Updates reports the number of accepted (post-baseline) updates.
func (r *Ridge) Updates() int { return r.updates }

// Skips reports the number of updates discarded by the numeric guard.
func (r *Ridge) Skips() int { return r.skips }

// Theta returns the current parameter vector.
func (r *Ridge) Theta() Vec3 { return r.theta }
