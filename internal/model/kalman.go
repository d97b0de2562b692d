package model

import (
	"math"

	"es-maker-bot/internal/market"
)

// Numerical guard rails shared by both models. Regressors live on ~2e4 while
// the betas live on ~1e-1, so untamed updates can diverge in a handful of
// bad ticks; every update is clamped and non-finite results are discarded.
const (
	thetaMax      = 100.0
	covMax        = 1e6
	innovationMax = 100.0
	gainNormMax   = 100.0
	varianceFloor = 1e-10
)

type KalmanConfig struct {
	InitP0 float64
	QBeta  float64
	QAlpha float64
	RObs   float64
}

func DefaultKalmanConfig() KalmanConfig {
	return KalmanConfig{InitP0: 100.0, QBeta: 1e-12, QAlpha: 1e-6, RObs: 100.0}
}

// Kalman is the online state-space fair-price estimator for the lead
// instrument: y = ES - es0 regressed on (NQ - nq0, YM - ym0, 1) with a
// random-walk state (beta_NQ, beta_YM, alpha).
type Kalman struct {
	cfg KalmanConfig

	theta Vec3
	p     Mat3
	q     Mat3

	initialized bool
	es0         float64
	nq0         float64
	ym0         float64

	updates int
	skips   int

	lastFair   float64
	lastSpread float64
}

func NewKalman(cfg KalmanConfig) *Kalman {
	k := &Kalman{cfg: cfg}
	k.resetState()
	return k
}

func (k *Kalman) resetState() {
	k.theta = Vec3{}
	// Mixed-scale prior: the beta variances are tiny because the regressors
	// are ~1e4 while alpha carries the configured uncertainty. Equal scales
	// would let the gain slam the betas on the first innovations.
	k.p = Diag(1e-8, 1e-8, k.cfg.InitP0)
	k.q = Diag(k.cfg.QBeta, k.cfg.QBeta, k.cfg.QAlpha)
	k.initialized = false
	k.updates = 0
}

// Reset clears all learned state including the baselines.
func (k *Kalman) Reset() {
	k.resetState()
	k.lastFair = 0
	k.lastSpread = 0
}

// Update consumes one tick. It returns the fair price, the spread
// (fair - actual) and whether a usable estimate was produced this tick.
// Ticks without both correlators, and updates that would produce
// non-finite state, leave the prior state standing and return ok=false.
func (k *Kalman) Update(tick market.TickEvent) (fair, spread float64, ok bool) {
	if tick.ES <= 0 || !tick.HasCorrelators() {
		return k.lastFair, k.lastSpread, false
	}
	if !k.initialized {
		k.es0 = tick.ES
		k.nq0 = tick.NQ
		k.ym0 = tick.YM
		k.initialized = true
		k.lastFair = tick.ES
		k.lastSpread = 0
		return tick.ES, 0, true
	}

	x := Vec3{tick.NQ - k.nq0, tick.YM - k.ym0, 1}
	y := tick.ES - k.es0

	p := k.p.Add(k.q)

	e := clamp(y-x.Dot(k.theta), innovationMax)

	s := x.Dot(p.MulVec(x)) + k.cfg.RObs
	if s < varianceFloor {
		s = varianceFloor
	}

	gain := p.MulVec(x).Scale(1 / s)
	if n := gain.Norm(); n > gainNormMax {
		gain = gain.Scale(gainNormMax / n)
	}

	theta := k.theta.Add(gain.Scale(e)).Clamp(thetaMax)
	pNew := identity.Sub(Outer(gain, x)).Mul(p).Symmetrize().Clamp(covMax)

	fair = x.Dot(theta) + k.es0
	if !theta.Finite() || !pNew.Finite() || math.IsNaN(fair) || math.IsInf(fair, 0) {
		k.skips++
		return k.lastFair, k.lastSpread, false
	}

	k.theta = theta
	k.p = pNew
	k.updates++
	k.lastFair = fair
	k.lastSpread = fair - tick.ES
	return k.lastFair, k.lastSpread, true
}

// Updates reports the number of accepted (post-baseline) updates.
func (k *Kalman) Updates() int { return k.updates }

// Skips reports the number of updates discarded by the numeric guard.
func (k *Kalman) Skips() int { return k.skips }

// Theta returns the current state vector (beta_NQ, beta_YM, alpha).
func (k *Kalman) Theta() Vec3 { return k.theta }

// Cov returns the current covariance matrix.
func (k *Kalman) Cov() Mat3 { return k.p }

// Baselines returns (es0, nq0, ym0) and whether they are set.
func (k *Kalman) Baselines() (es0, nq0, ym0 float64, ok bool) {
	return k.es0, k.nq0, k.ym0, k.initialized
}
