// Package prior implements root family size priors and empirical root
// distributions.
package prior

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/evolbio/famex/optimize"
)

// log is the global logging variable.
var log = logging.MustGetLogger("prior")

// Prior is a prior over root family sizes. Sizes start at one.
type Prior interface {
	Compute(size int) float64
}

// RootDistribution is an empirical distribution of root family sizes.
type RootDistribution struct {
	counts map[int]int
	sizes  []int // one entry per family, for random selection
	max    int
	total  int
}

// NewRootDistribution creates a root distribution from a size-count
// map.
func NewRootDistribution(counts map[int]int) *RootDistribution {
	rd := &RootDistribution{counts: make(map[int]int)}
	for size, count := range counts {
		rd.add(size, count)
	}
	return rd
}

// UniformRootDistribution creates a distribution with one family of
// every size in 1..maxSize.
func UniformRootDistribution(maxSize int) *RootDistribution {
	rd := &RootDistribution{counts: make(map[int]int)}
	for size := 1; size <= maxSize; size++ {
		rd.add(size, 1)
	}
	return rd
}

func (rd *RootDistribution) add(size, count int) {
	if count <= 0 {
		return
	}
	rd.counts[size] += count
	rd.total += count
	if size > rd.max {
		rd.max = size
	}
	for i := 0; i < count; i++ {
		rd.sizes = append(rd.sizes, size)
	}
}

// At returns the number of families with a given root size.
func (rd *RootDistribution) At(size int) int {
	return rd.counts[size]
}

// Max returns the largest root size.
func (rd *RootDistribution) Max() int {
	return rd.max
}

// Total returns the total number of families.
func (rd *RootDistribution) Total() int {
	return rd.total
}

// SelectRandomly draws a root size with replacement.
func (rd *RootDistribution) SelectRandomly(rnd *rand.Rand) int {
	return rd.sizes[rnd.Intn(len(rd.sizes))]
}

// Pare shuffles the distribution and truncates it to n families.
func (rd *RootDistribution) Pare(n int, rnd *rand.Rand) {
	if n >= rd.total {
		return
	}
	rnd.Shuffle(len(rd.sizes), func(i, j int) {
		rd.sizes[i], rd.sizes[j] = rd.sizes[j], rd.sizes[i]
	})
	rd.sizes = rd.sizes[:n]
	rd.counts = make(map[int]int)
	rd.max = 0
	rd.total = n
	for _, size := range rd.sizes {
		rd.counts[size]++
		if size > rd.max {
			rd.max = size
		}
	}
}

// ParseRootDist reads a root distribution file: one size and count
// per line, tab or space separated.
func ParseRootDist(rd io.Reader) (*RootDistribution, error) {
	scanner := bufio.NewScanner(rd)
	counts := make(map[int]int)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected size and count", line)
		}
		size, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad size: %v", line, err)
		}
		count, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad count: %v", line, err)
		}
		counts[size] += count
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, errors.New("empty root distribution")
	}
	return NewRootDistribution(counts), nil
}

// Uniform is a prior proportional to an empirical root distribution,
// or flat over 1..maxSize without one.
type Uniform struct {
	dist *RootDistribution
}

// NewUniform creates a flat prior over 1..maxSize.
func NewUniform(maxSize int) *Uniform {
	return &Uniform{dist: UniformRootDistribution(maxSize)}
}

// NewUniformFromDist creates a prior proportional to an empirical
// distribution.
func NewUniformFromDist(dist *RootDistribution) *Uniform {
	return &Uniform{dist: dist}
}

// Compute returns the prior probability of a root size.
func (u *Uniform) Compute(size int) float64 {
	if u.dist.total == 0 {
		return 0
	}
	return float64(u.dist.At(size)) / float64(u.dist.total)
}

// Poisson is a Poisson prior over root sizes; size s has probability
// pmf(s-1) so that the support starts at one.
type Poisson struct {
	Lambda float64
	pmf    distuv.Poisson
}

// NewPoisson creates a Poisson root prior.
func NewPoisson(lambda float64) *Poisson {
	return &Poisson{Lambda: lambda, pmf: distuv.Poisson{Lambda: lambda}}
}

// Compute returns the prior probability of a root size.
func (p *Poisson) Compute(size int) float64 {
	if size < 1 {
		return 0
	}
	return p.pmf.Prob(float64(size - 1))
}

// poissonFit is an Optimizable fitting a Poisson rate to observed
// leaf family sizes.
type poissonFit struct {
	lambda     float64
	counts     []int
	parameters optimize.FloatParameters
}

func newPoissonFit(counts []int, lambda float64) *poissonFit {
	f := &poissonFit{lambda: lambda, counts: counts}
	par := optimize.NewBasicFloatParameter(&f.lambda, "poissonLambda")
	par.SetMin(1e-7)
	par.SetMax(1e5)
	f.parameters.Append(par)
	return f
}

func (f *poissonFit) GetFloatParameters() optimize.FloatParameters {
	return f.parameters
}

func (f *poissonFit) Likelihood() (res float64) {
	p := distuv.Poisson{Lambda: f.lambda}
	for _, c := range f.counts {
		res += p.LogProb(float64(c))
	}
	return
}

func (f *poissonFit) Copy() optimize.Optimizable {
	return newPoissonFit(f.counts, f.lambda)
}

// FitPoisson estimates the Poisson rate by maximum likelihood from
// observed leaf family sizes. Zero sizes are skipped and the support
// is shifted so that root sizes start at one.
func FitPoisson(sizes []int) (*Poisson, error) {
	counts := make([]int, 0, len(sizes))
	sum := 0
	for _, s := range sizes {
		if s < 1 {
			continue
		}
		counts = append(counts, s-1)
		sum += s - 1
	}
	if len(counts) == 0 {
		return nil, errors.New("no non-zero family sizes to fit the Poisson prior")
	}

	start := float64(sum)/float64(len(counts)) + 1e-6
	fit := newPoissonFit(counts, start)
	fms := optimize.NewFMS(optimize.StrategyStandard)
	fms.Quiet = true
	fms.SetOptimizable(fit)
	fms.Run(300)
	lambda := fms.GetMaxLParameters()[0]
	if math.IsNaN(lambda) || lambda <= 0 {
		return nil, errors.New("poisson prior fit failed")
	}
	log.Noticef("Empirical Poisson lambda: %v (lnL=%v)", lambda, fms.GetMaxL())
	return NewPoisson(lambda), nil
}
