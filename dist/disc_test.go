package dist

import (
	"math"
	"testing"
)

const smallDiff = 1e-6

type Settings struct {
	n      int
	a, b   float64
	median bool
}

/*** Tests if a and b are approximately equal ***/
func appreq(a, b float64) bool {
	return math.Abs(a-b) <= smallDiff
}

/*** Tests that arrays have approximately same values ***/
func cmp(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !appreq(a[i], b[i]) {
			return false
		}
	}
	return true
}

/*** Test discrete gamma ***/
func TestGamma(tst *testing.T) {
	settings := [...]Settings{
		{4, 0.5, 10, false},
		{4, 0.5, 10, true},
		{8, 2, .1, false},
		{7, 15, 1, true},
		{4, 1.16, 3.54, false},
		{4, 1.16, 3.54, true},
	}
	results := [...]([]float64){
		{0.001669, 0.012596, 0.041013, 0.144721},
		{0.001454, 0.014036, 0.046239, 0.138272},
		{3.848344, 7.882645, 11.320993, 14.879554, 18.906079, 23.893507, 31.028044, 48.240834},
		{9.793787, 11.891047, 13.362596, 14.722906, 16.172736, 17.973174, 21.083754},
		{0.054962, 0.170420, 0.334948, 0.750405},
		{0.059239, 0.182032, 0.355645, 0.713819},
	}
	for i, s := range settings {
		freq := make([]float64, s.n)
		r := DiscreteGamma(s.a, s.b, s.n, s.median, freq, nil)
		if !cmp(r, results[i]) {
			tst.Error("Results missmatch:", r, results[i])
		}
	}
}

// Rate multipliers must average to one and increase with the category.
func TestGammaMultipliers(tst *testing.T) {
	for _, alpha := range []float64{0.2, 0.5, 1, 2.5} {
		for _, k := range []int{2, 3, 4, 8} {
			m := GammaMultipliers(alpha, k)
			if len(m) != k {
				tst.Fatalf("Expected %d multipliers, got %d", k, len(m))
			}
			mean := 0.0
			for i, v := range m {
				mean += v
				if i > 0 && m[i-1] >= v {
					tst.Error("Multipliers not increasing:", m)
				}
			}
			mean /= float64(k)
			if !appreq(mean, 1) {
				tst.Errorf("Mean multiplier %v != 1 (alpha=%v, k=%d)", mean, alpha, k)
			}
		}
	}
}

func TestChi2RoundTrip(tst *testing.T) {
	for _, v := range []float64{1, 2, 5, 10} {
		for _, p := range []float64{0.05, 0.5, 0.95} {
			x := QuantileChi2(p, v)
			got := CDFChi2(x, v)
			if math.Abs(got-p) > 1e-4 {
				tst.Errorf("CDFChi2(QuantileChi2(%v, %v)) = %v", p, v, got)
			}
		}
	}
}

func TestChi2Bounds(tst *testing.T) {
	if CDFChi2(0, 3) != 0 {
		tst.Error("CDF at zero must be zero")
	}
	if CDFChi2(-1, 3) != 0 {
		tst.Error("CDF below zero must be zero")
	}
	if CDFChi2(1e6, 3) < 0.999999 {
		tst.Error("CDF far in the tail must approach one")
	}
}
