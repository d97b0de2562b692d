package model

import "math"

// The state space of both pricing models is fixed at three dimensions
// (beta_NQ, beta_YM, alpha), so the linear algebra is hand-rolled on
// value-type arrays instead of pulling in a matrix library.

type Vec3 [3]float64

type Mat3 [3][3]float64

func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v Vec3) Clamp(limit float64) Vec3 {
	for i := range v {
		v[i] = clamp(v[i], limit)
	}
	return v
}

func (v Vec3) Finite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func Diag(a, b, c float64) Mat3 {
	return Mat3{{a, 0, 0}, {0, b, 0}, {0, 0, c}}
}

func (m Mat3) Add(o Mat3) Mat3 {
	for i := range m {
		for j := range m[i] {
			m[i][j] += o[i][j]
		}
	}
	return m
}

func (m Mat3) Sub(o Mat3) Mat3 {
	for i := range m {
		for j := range m[i] {
			m[i][j] -= o[i][j]
		}
	}
	return m
}

func (m Mat3) Scale(s float64) Mat3 {
	for i := range m {
		for j := range m[i] {
			m[i][j] *= s
		}
	}
	return m
}

func (m Mat3) MulVec(v Vec3) Vec3 {
	var out Vec3
	for i := range m {
		out[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return out
}

func (m Mat3) Mul(o Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * o[k][j]
			}
		}
	}
	return out
}

// Outer returns a ⊗ b.
func Outer(a, b Vec3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[i] * b[j]
		}
	}
	return out
}

// Symmetrize returns (m + mᵀ)/2, restoring symmetry lost to rounding.
func (m Mat3) Symmetrize() Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = (m[i][j] + m[j][i]) / 2
		}
	}
	return out
}

func (m Mat3) Clamp(limit float64) Mat3 {
	for i := range m {
		for j := range m[i] {
			m[i][j] = clamp(m[i][j], limit)
		}
	}
	return m
}

func (m Mat3) Finite() bool {
	for i := range m {
		for j := range m[i] {
			if math.IsNaN(m[i][j]) || math.IsInf(m[i][j], 0) {
				return false
			}
		}
	}
	return true
}

var identity = Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

func clamp(x, limit float64) float64 {
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}
