package prior

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/op/go-logging"
)

const smallDiff = 1e-6

func init() {
	logging.SetLevel(logging.WARNING, "prior")
	logging.SetLevel(logging.WARNING, "optimize")
}

func TestUniform(tst *testing.T) {
	u := NewUniform(10)
	if math.Abs(u.Compute(5)-0.1) > smallDiff {
		tst.Error("Expected 0.1, got", u.Compute(5))
	}
	if u.Compute(11) != 0 {
		tst.Error("Out of range size must have zero prior")
	}
	sum := 0.0
	for s := 1; s <= 10; s++ {
		sum += u.Compute(s)
	}
	if math.Abs(sum-1) > smallDiff {
		tst.Error("Prior must sum to 1, got", sum)
	}
}

func TestParseRootDist(tst *testing.T) {
	rd, err := ParseRootDist(strings.NewReader("1\t3\n2\t1\n5\t2\n"))
	if err != nil {
		tst.Fatal("Error parsing root distribution:", err)
	}
	if rd.Total() != 6 || rd.Max() != 5 || rd.At(1) != 3 {
		tst.Error("Wrong distribution:", rd.Total(), rd.Max(), rd.At(1))
	}

	u := NewUniformFromDist(rd)
	if math.Abs(u.Compute(1)-0.5) > smallDiff {
		tst.Error("Expected 0.5, got", u.Compute(1))
	}
	if u.Compute(3) != 0 {
		tst.Error("Missing size must have zero prior")
	}

	if _, err := ParseRootDist(strings.NewReader("")); err == nil {
		tst.Error("Expected error for empty distribution")
	}
	if _, err := ParseRootDist(strings.NewReader("1\tx\n")); err == nil {
		tst.Error("Expected error for bad count")
	}
}

func TestSelectRandomly(tst *testing.T) {
	rd := NewRootDistribution(map[int]int{2: 9000, 7: 1000})
	rnd := rand.New(rand.NewSource(1))
	n7 := 0
	for i := 0; i < 10000; i++ {
		s := rd.SelectRandomly(rnd)
		if s != 2 && s != 7 {
			tst.Fatal("Impossible size drawn:", s)
		}
		if s == 7 {
			n7++
		}
	}
	// expect ~1000 draws of size 7
	if n7 < 800 || n7 > 1200 {
		tst.Error("Weighted selection looks off:", n7)
	}
}

func TestPare(tst *testing.T) {
	rd := NewRootDistribution(map[int]int{1: 50, 2: 50})
	rnd := rand.New(rand.NewSource(1))
	rd.Pare(10, rnd)
	if rd.Total() != 10 {
		tst.Error("Expected 10 families, got", rd.Total())
	}
	if rd.At(1)+rd.At(2) != 10 {
		tst.Error("Pared counts inconsistent")
	}
}

func TestPoissonPrior(tst *testing.T) {
	p := NewPoisson(2.5)
	if p.Compute(0) != 0 {
		tst.Error("Root size zero must have zero prior")
	}
	// size 1 corresponds to pmf(0) = exp(-lambda)
	want := math.Exp(-2.5)
	if math.Abs(p.Compute(1)-want) > smallDiff {
		tst.Error("Expected", want, ", got", p.Compute(1))
	}
	sum := 0.0
	for s := 1; s < 200; s++ {
		sum += p.Compute(s)
	}
	if math.Abs(sum-1) > 1e-9 {
		tst.Error("Prior must sum to 1, got", sum)
	}
}

func TestFitPoisson(tst *testing.T) {
	// sizes-1 drawn with mean 3: MLE of lambda is the sample mean
	sizes := []int{4, 4, 4, 4, 3, 5, 2, 6, 4, 4}
	p, err := FitPoisson(sizes)
	if err != nil {
		tst.Fatal("Error fitting Poisson:", err)
	}
	mean := 0.0
	for _, s := range sizes {
		mean += float64(s - 1)
	}
	mean /= float64(len(sizes))
	tst.Log("lambda=", p.Lambda, ", mean=", mean)
	if math.Abs(p.Lambda-mean) > 1e-3 {
		tst.Error("Expected lambda near", mean, ", got", p.Lambda)
	}

	if _, err := FitPoisson([]int{0, 0}); err == nil {
		tst.Error("Expected error for all-zero sizes")
	}
}
