package bd

import (
	"math"
	"testing"

	"github.com/op/go-logging"
)

const smallDiff = 1e-6

func init() {
	logging.SetLevel(logging.WARNING, "bd")
}

func TestProbability(tst *testing.T) {
	calc := NewCalculator(20)

	// alpha = 0.01/1.01, P(1->1) = alpha^2 + (1-2*alpha)
	alpha := Alpha(0.01, 1)
	ref := alpha*alpha + (1 - 2*alpha)
	p := calc.Probability(0.01, 1, 1, 1)
	tst.Log("P(1->1)=", p, ", Ref=", ref, ", diff=", math.Abs(p-ref))
	if math.Abs(p-ref) > smallDiff {
		tst.Error("Expected ", ref, ", got", p)
	}

	// P(1->0) is the extinction probability alpha
	p = calc.Probability(0.01, 1, 1, 0)
	if math.Abs(p-alpha) > smallDiff {
		tst.Error("Expected ", alpha, ", got", p)
	}

	// P(1->2) = alpha^3 + alpha*(1-2*alpha)
	ref = alpha*alpha*alpha + alpha*(1-2*alpha)
	p = calc.Probability(0.01, 1, 1, 2)
	if math.Abs(p-ref) > smallDiff {
		tst.Error("Expected ", ref, ", got", p)
	}
}

func TestProbabilityIdentity(tst *testing.T) {
	calc := NewCalculator(10)
	for s := 0; s <= 10; s++ {
		for c := 0; c <= 10; c++ {
			want := 0.0
			if s == c {
				want = 1
			}
			if p := calc.Probability(0, 5, s, c); p != want {
				tst.Errorf("P(%d->%d) at lambda=0: got %v", s, c, p)
			}
		}
	}
}

func TestMatrixRows(tst *testing.T) {
	calc := NewCalculator(50)
	m := calc.NewMatrix(0.05, 2)
	if m.IsZero() {
		tst.Fatal("Matrix unexpectedly zero")
	}

	// row 0 is absorbing
	if m.At(0, 0) != 1 {
		tst.Error("P(0->0) must be 1")
	}
	for c := 1; c <= 50; c++ {
		if m.At(0, c) != 0 {
			tst.Error("P(0->c) must be 0 for c>0")
		}
	}

	// rows are (truncated) probability distributions
	for s := 1; s <= 50; s++ {
		sum := 0.0
		for c := 0; c <= 50; c++ {
			v := m.At(s, c)
			if v < 0 || v > 1 {
				tst.Fatalf("P(%d->%d)=%v out of [0,1]", s, c, v)
			}
			sum += v
		}
		if sum > 1+smallDiff {
			tst.Errorf("Row %d sums to %v > 1", s, sum)
		}
		if s < 10 && sum < 0.999 {
			tst.Errorf("Row %d sums to %v, expected near 1", s, sum)
		}
	}
}

func TestSaturation(tst *testing.T) {
	if !IsSaturated(2, 1) {
		tst.Error("lambda*t=2 must saturate")
	}
	if IsSaturated(0.01, 1) {
		tst.Error("lambda*t=0.01 must not saturate")
	}
	calc := NewCalculator(10)
	m := calc.NewMatrix(2, 1)
	if !m.IsZero() {
		tst.Error("Saturated matrix must be flagged zero")
	}
	dst := make([]float64, 11)
	v := make([]float64, 11)
	v[3] = 1
	m.Apply(dst, v)
	for _, x := range dst {
		if x != 0 {
			tst.Error("Zero matrix must produce a zero vector")
		}
	}
}

func TestApply(tst *testing.T) {
	calc := NewCalculator(30)
	m := calc.NewMatrix(0.01, 1)
	v := make([]float64, 31)
	v[5] = 1
	dst := make([]float64, 31)
	m.Apply(dst, v)
	for s := 0; s <= 30; s++ {
		if math.Abs(dst[s]-m.At(s, 5)) > 1e-12 {
			tst.Error("Apply with an indicator must return a matrix column")
		}
	}
}

func TestMatrixCache(tst *testing.T) {
	mc := NewMatrixCache(40)
	mc.Precalculate([]float64{0.01, 0.05}, []float64{1, 3, 7})
	if mc.Len() != 6 {
		tst.Error("Expected 6 matrices, got", mc.Len())
	}
	m1 := mc.Get(0.01, 3)
	m2 := mc.Get(0.01, 3)
	if m1 != m2 {
		tst.Error("Cache must return the same matrix")
	}

	defer func() {
		if recover() == nil {
			tst.Error("Missing key must panic")
		}
	}()
	mc.Get(0.02, 1)
}

func BenchmarkMatrix(b *testing.B) {
	calc := NewCalculator(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		calc.NewMatrix(0.05, 3)
	}
}
