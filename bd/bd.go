// Package bd implements transition probabilities of the birth-death
// model of gene-family size evolution and a cache of transition
// matrices.
package bd

import (
	"math"

	"github.com/gonum/matrix/mat64"
	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("bd")

const (
	// zeroThreshold is the largest matrix entry below which the
	// whole matrix is treated as zero.
	zeroThreshold = 1e-300
	// saturationDelta defines how close alpha may come to the 0.5
	// pole before the branch is considered saturated.
	saturationDelta = 1e-10
)

// Alpha returns lambda*t/(1+lambda*t), the workhorse quantity of the
// birth-death transition probability.
func Alpha(lambda, t float64) float64 {
	lt := lambda * t
	return lt / (1 + lt)
}

// IsSaturated reports whether the birth-death process saturates on a
// branch of length t under rate lambda.
func IsSaturated(lambda, t float64) bool {
	return Alpha(lambda, t) >= 0.5-saturationDelta
}

// Calculator computes birth-death transition probabilities for family
// sizes up to a fixed bound.
type Calculator struct {
	maxSize int
	// lnGamma[i] = lgamma(i), i in [0, 2*maxSize+2]
	lnGamma []float64
}

// NewCalculator creates a calculator for family sizes 0..maxSize.
func NewCalculator(maxSize int) *Calculator {
	c := &Calculator{
		maxSize: maxSize,
		lnGamma: make([]float64, 2*maxSize+3),
	}
	for i := range c.lnGamma {
		c.lnGamma[i], _ = math.Lgamma(float64(i))
	}
	return c
}

// MaxSize returns the size bound.
func (calc *Calculator) MaxSize() int {
	return calc.maxSize
}

// chooseln returns log of the binomial coefficient (n choose k).
func (calc *Calculator) chooseln(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	return calc.lnGamma[n+1] - calc.lnGamma[k+1] - calc.lnGamma[n-k+1]
}

// Probability returns P(s -> c) over a branch of length t under rate
// lambda.
func (calc *Calculator) Probability(lambda, t float64, s, c int) float64 {
	if s == 0 {
		// extinction is absorbing
		if c == 0 {
			return 1
		}
		return 0
	}
	alpha := Alpha(lambda, t)
	if alpha == 0 {
		if s == c {
			return 1
		}
		return 0
	}
	logAlpha := math.Log(alpha)
	coeff := 1 - 2*alpha

	res := 0.0
	lastTerm := 1.0
	jmax := s
	if c < s {
		jmax = c
	}
	for j := 0; j <= jmax; j++ {
		logTerm := calc.chooseln(s, j) +
			calc.chooseln(s+c-j-1, s-1) +
			float64(s+c-2*j)*logAlpha
		res += math.Exp(logTerm) * lastTerm
		lastTerm *= coeff
	}
	if res < 0 {
		res = 0
	}
	return res
}

// Matrix is a transition probability matrix over family sizes
// 0..maxSize. A matrix whose largest entry fell below the floating
// point floor is flagged zero.
type Matrix struct {
	p    *mat64.Dense
	n    int
	zero bool
}

// NewMatrix computes the transition matrix for a branch of length t
// under rate lambda.
func (calc *Calculator) NewMatrix(lambda, t float64) *Matrix {
	n := calc.maxSize
	m := &Matrix{
		p: mat64.NewDense(n+1, n+1, nil),
		n: n,
	}
	m.p.Set(0, 0, 1)
	if IsSaturated(lambda, t) {
		m.zero = true
		return m
	}
	maxVal := 0.0
	for s := 1; s <= n; s++ {
		for c := 0; c <= n; c++ {
			v := calc.Probability(lambda, t, s, c)
			m.p.Set(s, c, v)
			if v > maxVal {
				maxVal = v
			}
		}
	}
	if maxVal < zeroThreshold {
		m.zero = true
	}
	return m
}

// IsZero reports whether the matrix collapsed to zero (saturated
// branch or underflow).
func (m *Matrix) IsZero() bool {
	return m.zero
}

// At returns P(s -> c).
func (m *Matrix) At(s, c int) float64 {
	return m.p.At(s, c)
}

// Size returns the size bound of the matrix.
func (m *Matrix) Size() int {
	return m.n
}

// Apply computes dst = P * v, the inner sum of the pruning recursion.
// dst is zeroed when the matrix is flagged zero.
func (m *Matrix) Apply(dst, v []float64) {
	if len(dst) != m.n+1 || len(v) != m.n+1 {
		panic("matrix-vector size mismatch")
	}
	if m.zero {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	dv := mat64.NewVector(len(dst), dst)
	vv := mat64.NewVector(len(v), v)
	dv.MulVec(m.p, vv)
}

// Row returns row s as a slice (a copy).
func (m *Matrix) Row(s int) []float64 {
	return mat64.Row(nil, s, m.p)
}
