package optimize

import (
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// LBFGSB is a limited-memory bound-constrained quasi-Newton maximizer
// with numerical gradients. It is an alternative to the downhill
// simplex for smooth likelihood surfaces.
type LBFGSB struct {
	BaseOptimizer
	dH   float64
	grad []float64
}

// NewLBFGSB creates a new LBFGSB optimizer.
func NewLBFGSB() (l *LBFGSB) {
	l = &LBFGSB{
		dH: 1e-6,
	}
	l.repPeriod = 10
	return
}

// Logger reports the optimizer state once per iteration.
func (l *LBFGSB) Logger(info *lbfgsb.OptimizationIterationInformation) {
	l.i = info.Iteration
	l.parameters.SetValues(info.X)
	l.l = -info.F
	if l.repPeriod > 0 && info.Iteration%l.repPeriod == 0 {
		l.PrintLine(l.parameters, -info.F)
	}
	l.SaveCheckpoint(false)
	select {
	case s := <-l.sig:
		log.Fatalf("Received signal %v, exiting", s)
	default:
	}
}

// EvaluateFunction returns the negated log-likelihood at a point.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	if !l.parameters.ValuesInRange(x) {
		return math.Inf(+1)
	}

	l.parameters.SetValues(x)

	L := l.Likelihood()
	l.calls++
	if L > l.maxL {
		l.maxL = L
		l.maxLPar = l.parameters.Values(l.maxLPar)
	}
	return -L
}

// EvaluateGradient computes a central-difference gradient of the
// negated log-likelihood.
func (l *LBFGSB) EvaluateGradient(x []float64) (grad []float64) {
	if l.grad == nil {
		l.grad = make([]float64, len(x))
	}
	grad = l.grad
	for i := range x {
		no1 := l.Optimizable.Copy()
		par1 := no1.GetFloatParameters()
		par1.SetValues(x)
		par1[i].Set(x[i] - l.dH)
		l1 := -no1.Likelihood()
		l.calls++

		no2 := no1.Copy()
		par2 := no2.GetFloatParameters()
		par2[i].Set(x[i] + l.dH)
		l2 := -no2.Likelihood()
		l.calls++

		grad[i] = (l2 - l1) / 2 / l.dH
	}
	return
}

// Run maximizes the likelihood.
func (l *LBFGSB) Run(iterations int) {
	l.maxL = math.Inf(-1)
	l.PrintHeader(l.parameters)
	bounds := make([][2]float64, len(l.parameters))

	for i, par := range l.parameters {
		bounds[i][0] = par.GetMin() + 1e-5
		bounds[i][1] = par.GetMax() - 1e-5
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)

	opt.SetBounds(bounds)
	opt.SetLogger(l.Logger)

	_, exitStatus := opt.Minimize(l, l.parameters.Values(nil))

	log.Infof("Exit status: %v", exitStatus)

	if l.maxLPar != nil {
		l.parameters.SetValues(l.maxLPar)
	}
	l.SaveCheckpoint(true)
	log.Info("Finished LBFGSB")
	log.Noticef("Maximum likelihood: %v", l.maxL)
	log.Infof("Likelihood function calls: %v", l.calls)
	log.Infof("Parameter  names: %v", l.parameters.NamesString())
	log.Infof("Parameter values: %v", l.parameters.ValuesString())
	l.PrintFinal(l.parameters)
}
