package optimize

import (
	"math"
	"math/rand"
	"sort"
)

// Strategy selects how the downhill simplex explores the parameter
// space.
type Strategy string

const (
	// StrategyStandard is a single simplex run with default
	// coefficients.
	StrategyStandard Strategy = "standard"
	// StrategyPerturbWhenClose converges loosely first, then
	// restarts with aggressive coefficients near the optimum.
	StrategyPerturbWhenClose Strategy = "perturb"
	// StrategyInitialVariants runs several loose searches from
	// independently drawn starting points and homes in on the best.
	StrategyInitialVariants Strategy = "variants"
	// StrategyRangeWidely searches with wide steps first and homes
	// in with default coefficients afterwards.
	StrategyRangeWidely Strategy = "widehome"
)

// Strategies lists the valid strategy names.
var Strategies = []string{
	string(StrategyStandard),
	string(StrategyPerturbWhenClose),
	string(StrategyInitialVariants),
	string(StrategyRangeWidely),
}

const (
	defaultRho   = 1
	defaultChi   = 2
	defaultPsi   = 0.5
	defaultSigma = 0.5
	defaultDelta = 0.05
	defaultTolX  = 1e-6
	defaultTolF  = 1e-6
	// zeroDelta replaces the relative perturbation for zero
	// coordinates when building the initial simplex.
	zeroDelta = 2.5e-4
	// variantAttempts is the number of loose searches from
	// independently drawn starting points in the initial-variants
	// strategy, variantTol their tolerance.
	variantAttempts = 4
	variantTol      = 1e-3
)

// RandomInitializer is an optimizable that can draw a random starting
// point; the initial-variants strategy uses it to restart searches.
type RandomInitializer interface {
	Optimizable
	RandomInit(rnd *rand.Rand)
}

// phase is one simplex run with its own coefficients and tolerances.
type phase struct {
	rho, chi, psi, sigma float64
	delta                float64
	tolx, tolf           float64
}

func defaultPhase() phase {
	return phase{
		rho:   defaultRho,
		chi:   defaultChi,
		psi:   defaultPsi,
		sigma: defaultSigma,
		delta: defaultDelta,
		tolx:  defaultTolX,
		tolf:  defaultTolF,
	}
}

// FMS is a downhill simplex (Nelder-Mead) maximizer.
type FMS struct {
	BaseOptimizer
	strategy Strategy
	rnd      *rand.Rand

	ndim   int
	points []Optimizable
	pars   []FloatParameters
	scores []float64 // negated log-likelihoods, minimized
}

// NewFMS creates a downhill simplex optimizer with a given strategy.
func NewFMS(strategy Strategy) (fms *FMS) {
	fms = &FMS{strategy: strategy}
	fms.repPeriod = 10
	return
}

// SetRandom sets the random source used for restart draws.
func (fms *FMS) SetRandom(rnd *rand.Rand) {
	fms.rnd = rnd
}

func (fms *FMS) random() *rand.Rand {
	if fms.rnd == nil {
		fms.rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return fms.rnd
}

// evaluate returns the score (negated log-likelihood) of a vertex and
// keeps track of the maximum. Bounds live on the primary parameters;
// vertex copies may carry stale ranges.
func (fms *FMS) evaluate(opt Optimizable, par FloatParameters) float64 {
	if !fms.parameters.ValuesInRange(par.Values(nil)) {
		return math.Inf(+1)
	}
	l := opt.Likelihood()
	fms.calls++
	if math.IsNaN(l) || math.IsInf(l, -1) {
		return math.Inf(+1)
	}
	if l > fms.maxL {
		fms.maxL = l
		fms.maxLPar = par.Values(fms.maxLPar)
	}
	return -l
}

// createSimplex builds the initial simplex around a starting point.
// Vertex i perturbs coordinate i-1 by a relative delta; when the
// starting score is infinite the perturbation is a hundredfold.
func (fms *FMS) createSimplex(start []float64, delta float64) {
	n := fms.ndim
	if fms.points == nil {
		fms.points = make([]Optimizable, n+1)
		fms.pars = make([]FloatParameters, n+1)
		fms.scores = make([]float64, n+1)
		fms.points[0] = fms.Optimizable
		fms.pars[0] = fms.parameters
		for i := 1; i <= n; i++ {
			point := fms.Optimizable.Copy()
			fms.points[i] = point
			fms.pars[i] = point.GetFloatParameters()
		}
	}

	fms.pars[0].SetValues(start)
	fms.scores[0] = fms.evaluate(fms.points[0], fms.pars[0])
	if math.IsInf(fms.scores[0], +1) {
		delta *= 100
	}
	v := make([]float64, n)
	for i := 1; i <= n; i++ {
		copy(v, start)
		if v[i-1] != 0 {
			v[i-1] *= 1 + delta
		} else {
			v[i-1] = zeroDelta
		}
		fms.pars[i].SetValues(v)
		fms.scores[i] = fms.evaluate(fms.points[i], fms.pars[i])
	}
	fms.sortSimplex()
}

// sortSimplex orders vertices by score, best first.
func (fms *FMS) sortSimplex() {
	idx := make([]int, len(fms.scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := fms.scores[idx[a]], fms.scores[idx[b]]
		if math.IsNaN(sa) {
			return false
		}
		if math.IsNaN(sb) {
			return true
		}
		return sa < sb
	})
	points := make([]Optimizable, len(idx))
	pars := make([]FloatParameters, len(idx))
	scores := make([]float64, len(idx))
	for i, j := range idx {
		points[i] = fms.points[j]
		pars[i] = fms.pars[j]
		scores[i] = fms.scores[j]
	}
	fms.points, fms.pars, fms.scores = points, pars, scores
}

// converged checks both the simplex diameter and the score range.
func (fms *FMS) converged(ph phase) bool {
	n := fms.ndim
	best := fms.pars[0].Values(nil)
	maxDiff := 0.0
	for i := 1; i <= n; i++ {
		for j, v := range fms.pars[i].Values(nil) {
			if d := math.Abs(v - best[j]); d > maxDiff {
				maxDiff = d
			}
		}
	}
	if maxDiff > ph.tolx {
		return false
	}
	maxSpread := 0.0
	for i := 1; i <= n; i++ {
		if d := math.Abs(fms.scores[i] - fms.scores[0]); d > maxSpread {
			maxSpread = d
		}
	}
	return maxSpread <= ph.tolf
}

// step performs one Nelder-Mead iteration: reflection, expansion,
// contraction or shrink.
func (fms *FMS) step(ph phase) {
	n := fms.ndim
	worst := n

	centroid := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			centroid[j] += fms.pars[i].Values(nil)[j]
		}
	}
	for j := range centroid {
		centroid[j] /= float64(n)
	}
	worstVals := fms.pars[worst].Values(nil)

	tryPoint := func(coef float64) ([]float64, float64) {
		v := make([]float64, n)
		for j := range v {
			v[j] = centroid[j] + coef*(centroid[j]-worstVals[j])
		}
		fms.pars[worst].SetValues(v)
		return v, fms.evaluate(fms.points[worst], fms.pars[worst])
	}

	accept := func(score float64) {
		fms.scores[worst] = score
		fms.sortSimplex()
	}

	_, fr := tryPoint(ph.rho)
	switch {
	case fr < fms.scores[0]:
		// try to expand
		xr := fms.pars[worst].Values(nil)
		_, fe := tryPoint(ph.rho * ph.chi)
		if fe < fr {
			accept(fe)
		} else {
			fms.pars[worst].SetValues(xr)
			accept(fr)
		}
	case fr < fms.scores[n-1]:
		accept(fr)
	case fr < fms.scores[n]:
		// outside contraction
		_, fc := tryPoint(ph.psi * ph.rho)
		if fc <= fr {
			accept(fc)
		} else {
			// shrink acts on the original simplex
			fms.pars[worst].SetValues(worstVals)
			fms.shrink(ph)
		}
	default:
		// inside contraction
		_, fcc := tryPoint(-ph.psi)
		if fcc < fms.scores[n] {
			accept(fcc)
		} else {
			fms.pars[worst].SetValues(worstVals)
			fms.shrink(ph)
		}
	}
}

// shrink moves every vertex towards the best one.
func (fms *FMS) shrink(ph phase) {
	best := fms.pars[0].Values(nil)
	v := make([]float64, fms.ndim)
	for i := 1; i <= fms.ndim; i++ {
		for j, x := range fms.pars[i].Values(nil) {
			v[j] = best[j] + ph.sigma*(x-best[j])
		}
		fms.pars[i].SetValues(v)
		fms.scores[i] = fms.evaluate(fms.points[i], fms.pars[i])
	}
	fms.sortSimplex()
}

// runPhase iterates one phase from a starting point until convergence
// or the iteration budget is spent. It returns false if a signal was
// received.
func (fms *FMS) runPhase(ph phase, start []float64, iterations int) bool {
	fms.createSimplex(start, ph.delta)
	for ; fms.i < iterations; fms.i++ {
		if fms.converged(ph) {
			return true
		}
		fms.step(ph)
		fms.l = -fms.scores[0]
		if fms.repPeriod > 0 && fms.i%fms.repPeriod == 0 {
			fms.PrintLine(fms.pars[0], -fms.scores[0])
		}
		fms.SaveCheckpoint(false)
		select {
		case s := <-fms.sig:
			log.Warningf("Received signal %v, exiting.", s)
			return false
		default:
		}
	}
	log.Warningf("Iterations exceeded (%d)", iterations)
	return true
}

// runInitialVariants runs several searches at loose tolerances, each
// from an independently drawn starting point, then homes in on the
// best point at the default tolerances.
func (fms *FMS) runInitialVariants(iterations int) {
	loose := defaultPhase()
	loose.tolx, loose.tolf = variantTol, variantTol

	ri, ok := fms.Optimizable.(RandomInitializer)
	if !ok {
		log.Warning("Model cannot draw random starting points, running a single loose pass")
	}
	start := fms.parameters.Values(nil)
	for a := 0; a < variantAttempts; a++ {
		if a > 0 {
			if !ok {
				break
			}
			ri.RandomInit(fms.random())
			start = fms.parameters.Values(nil)
		}
		if !fms.runPhase(loose, start, iterations) {
			return
		}
	}
	fms.runPhase(defaultPhase(), fms.bestStart(), iterations)
}

// bestStart returns the starting point for the next phase: the best
// known point so far, or the current parameter values.
func (fms *FMS) bestStart() []float64 {
	if fms.maxLPar != nil {
		start := make([]float64, len(fms.maxLPar))
		copy(start, fms.maxLPar)
		return start
	}
	return fms.parameters.Values(nil)
}

// Run maximizes the likelihood. The iteration budget is shared by all
// phases of the strategy.
func (fms *FMS) Run(iterations int) {
	fms.maxL = math.Inf(-1)
	fms.ndim = len(fms.parameters)
	if fms.ndim == 0 {
		log.Warning("No parameters to optimize")
		return
	}
	fms.PrintHeader(fms.parameters)

	if fms.strategy == StrategyInitialVariants {
		fms.runInitialVariants(iterations)
	} else {
		var phases []phase
		switch fms.strategy {
		case StrategyPerturbWhenClose:
			loose := defaultPhase()
			loose.tolx, loose.tolf = 1e-2, 1e-2
			wide := defaultPhase()
			wide.rho, wide.chi, wide.delta = 1.3, 30, 0.4
			phases = []phase{loose, wide}
		case StrategyRangeWidely:
			wide := defaultPhase()
			wide.rho, wide.chi, wide.delta = 1.5, 50, 0.4
			wide.tolx, wide.tolf = 1e-2, 1e-2
			phases = []phase{wide, defaultPhase()}
		default:
			phases = []phase{defaultPhase()}
		}
		for _, ph := range phases {
			if !fms.runPhase(ph, fms.bestStart(), iterations) {
				break
			}
		}
	}

	if fms.maxLPar != nil {
		fms.parameters.SetValues(fms.maxLPar)
	}
	fms.SaveCheckpoint(true)
	log.Info("Finished downhill simplex")
	log.Noticef("Maximum likelihood: %v", fms.maxL)
	log.Infof("Parameter  names: %v", fms.parameters.NamesString())
	log.Infof("Parameter values: %v", fms.parameters.ValuesString())
	fms.PrintFinal(fms.parameters)
}
