package model

import (
	"math"
	"testing"

	"es-maker-bot/internal/market"
)

func warmRidge(n int) *Ridge {
	r := NewRidge(DefaultRidgeConfig())
	for i := 0; i < n; i++ {
		r.Update(steadyTick(i))
	}
	return r
}

func TestRidgeFirstTickSetsBaseline(t *testing.T) {
	r := NewRidge(DefaultRidgeConfig())
	fair, spread, ok := r.Update(steadyTick(0))
	if !ok || fair != 6800 || spread != 0 {
		t.Fatalf("baseline tick: fair=%v spread=%v ok=%v", fair, spread, ok)
	}
	if r.Updates() != 0 {
		t.Fatalf("baseline tick must not count as update, got %d", r.Updates())
	}
}

func TestRidgeSpreadSignAgreesWithKalman(t *testing.T) {
	r := warmRidge(300)
	k := warmKalman(300)
	dislocated := market.TickEvent{TMS: 301000, ES: 6799.50, NQ: 21520, YM: 44020}
	_, spreadRD, okRD := r.Update(dislocated)
	_, spreadKF, okKF := k.Update(dislocated)
	if !okRD || !okKF {
		t.Fatalf("updates rejected: rd=%v kf=%v", okRD, okKF)
	}
	if spreadRD <= 0 || spreadKF <= 0 {
		t.Fatalf("both spreads should be positive: rd=%v kf=%v", spreadRD, spreadKF)
	}
}

func TestRidgeSkipsIncompleteTicks(t *testing.T) {
	r := NewRidge(DefaultRidgeConfig())
	if _, _, ok := r.Update(market.TickEvent{TMS: 1, ES: 6800, NQ: 21500}); ok {
		t.Fatalf("tick without YM must be skipped")
	}
}

func TestRidgeOverflowGuard(t *testing.T) {
	r := warmRidge(300)
	fair, spread, _ := r.Update(market.TickEvent{TMS: 301000, ES: 6800, NQ: 1e12, YM: 44000})
	if math.IsNaN(fair) || math.IsInf(fair, 0) || math.IsNaN(spread) || math.IsInf(spread, 0) {
		t.Fatalf("non-finite output: fair=%v spread=%v", fair, spread)
	}
	for i, v := range r.Theta() {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 100 {
			t.Fatalf("theta[%d]=%v escaped clamp", i, v)
		}
	}
}

func TestRidgeThetaStaysClamped(t *testing.T) {
	r := NewRidge(DefaultRidgeConfig())
	for i := 0; i < 1000; i++ {
		es := 6800 + math.Sin(float64(i))*500
		nq := 21500 + math.Cos(float64(i))*5000
		ym := 44000 - math.Sin(float64(i)*0.7)*8000
		r.Update(market.TickEvent{TMS: int64(i) * 1000, ES: es, NQ: nq, YM: ym})
		for j, v := range r.Theta() {
			if math.Abs(v) > 100 {
				t.Fatalf("theta[%d]=%v outside [-100,100] at tick %d", j, v, i)
			}
		}
	}
}
