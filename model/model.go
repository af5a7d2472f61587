// Package model implements likelihood computation for gene-family
// size evolution: the base birth-death model, the gamma
// rate-variation model, ancestral reconstruction and optimizer
// bindings.
package model

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/op/go-logging"

	"github.com/evolbio/famex/bd"
	"github.com/evolbio/famex/errmodel"
	"github.com/evolbio/famex/family"
	"github.com/evolbio/famex/optimize"
	"github.com/evolbio/famex/prior"
	"github.com/evolbio/famex/tree"
)

// log is the global logging variable.
var log = logging.MustGetLogger("model")

const (
	lambdaMin = 1e-10
	lambdaMax = 1e4
	// epsilonMax bounds the per-deviation error rate.
	epsilonMax = 0.5
)

// FamilyStats holds per-family inference results.
type FamilyStats struct {
	// ID is the family id.
	ID string
	// LnL is the family log-likelihood.
	LnL float64
	// RootSize is the maximum-likelihood root size.
	RootSize int
	// CategoryLnL are per-rate-category log-likelihoods.
	CategoryLnL []float64
	// Posterior are per-category posterior probabilities.
	Posterior []float64
	// Multipliers are the rate multipliers of the categories.
	Multipliers []float64
	// PValue is the Monte-Carlo p-value (NaN when not computed).
	PValue float64
}

// SignificantCategory returns true if any rate category has posterior
// probability above 0.95.
func (fs *FamilyStats) SignificantCategory() bool {
	for _, p := range fs.Posterior {
		if p > 0.95 {
			return true
		}
	}
	return false
}

// BaseModel is the single-rate (or per-branch-rate) birth-death
// model. It implements optimize.Optimizable over its lambda (and
// optionally error rate) parameters.
type BaseModel struct {
	t         *tree.Tree
	fams      []*family.Family
	rootPrior prior.Prior
	errModel  *errmodel.ErrorModel

	maxFamilySize int
	maxRootSize   int

	lambdas    []float64
	epsilon    float64
	estEpsilon bool

	// multipliers and weights define the rate categories; the base
	// model has a single unit category, the gamma model replaces
	// them on every alpha change.
	multipliers []float64
	weights     []float64

	// prepare is called before matrix calculation; the gamma model
	// uses it to refresh the multipliers.
	prepare func() error

	parameters optimize.FloatParameters
	cache      *bd.MatrixCache
	dirty      bool
	valid      bool

	stats []FamilyStats
}

// NewBaseModel creates a birth-death model. The number of lambda
// parameters is one more than the largest rate class of the tree. If
// estEpsilon is true the error model rate is estimated as an extra
// parameter.
func NewBaseModel(t *tree.Tree, fams []*family.Family, rootPrior prior.Prior,
	maxFamilySize, maxRootSize int,
	errModel *errmodel.ErrorModel, estEpsilon bool) *BaseModel {
	if estEpsilon && errModel == nil {
		panic("error rate estimation requires an error model")
	}
	m := &BaseModel{
		t:             t,
		fams:          fams,
		rootPrior:     rootPrior,
		errModel:      errModel,
		maxFamilySize: maxFamilySize,
		maxRootSize:   maxRootSize,
		lambdas:       make([]float64, t.MaxClass()+1),
		estEpsilon:    estEpsilon,
		multipliers:   []float64{1},
		weights:       []float64{1},
		cache:         bd.NewMatrixCache(maxFamilySize),
		dirty:         true,
	}
	if errModel != nil {
		m.epsilon = errModel.Epsilon() / float64(len(errModel.Deviations())-1)
	}
	m.addParameters()
	return m
}

func (m *BaseModel) addParameters() {
	for i := range m.lambdas {
		name := "lambda"
		if len(m.lambdas) > 1 {
			name = fmt.Sprintf("lambda%d", i+1)
		}
		par := optimize.NewBasicFloatParameter(&m.lambdas[i], name)
		par.SetMin(lambdaMin)
		par.SetMax(lambdaMax)
		par.SetOnChange(m.expectRecalc)
		m.parameters.Append(par)
	}
	if m.estEpsilon {
		par := optimize.NewBasicFloatParameter(&m.epsilon, "epsilon")
		par.SetMin(0)
		par.SetMax(epsilonMax - 1e-9)
		par.SetOnChange(m.expectRecalc)
		m.parameters.Append(par)
	}
}

// expectRecalc marks cached matrices as invalid.
func (m *BaseModel) expectRecalc() {
	m.dirty = true
}

// GetFloatParameters returns the adjustable parameters.
func (m *BaseModel) GetFloatParameters() optimize.FloatParameters {
	return m.parameters
}

// SetLambdas sets fixed rate values.
func (m *BaseModel) SetLambdas(lambdas []float64) error {
	if len(lambdas) != len(m.lambdas) {
		return fmt.Errorf("expected %d lambda values, got %d",
			len(m.lambdas), len(lambdas))
	}
	copy(m.lambdas, lambdas)
	m.dirty = true
	return nil
}

// Lambdas returns the current rate values.
func (m *BaseModel) Lambdas() []float64 {
	l := make([]float64, len(m.lambdas))
	copy(l, m.lambdas)
	return l
}

// SetEpsilon sets the per-deviation error rate as a starting value
// for estimation.
func (m *BaseModel) SetEpsilon(eps float64) {
	m.epsilon = eps
	m.dirty = true
}

// Epsilon returns the total off-diagonal error mass, or zero without
// an error model.
func (m *BaseModel) Epsilon() float64 {
	if m.errModel == nil {
		return 0
	}
	return m.errModel.Epsilon()
}

// Tree returns the species tree.
func (m *BaseModel) Tree() *tree.Tree {
	return m.t
}

// Families returns the gene families.
func (m *BaseModel) Families() []*family.Family {
	return m.fams
}

// MaxFamilySize returns the family size bound.
func (m *BaseModel) MaxFamilySize() int {
	return m.maxFamilySize
}

// MaxRootSize returns the root size bound.
func (m *BaseModel) MaxRootSize() int {
	return m.maxRootSize
}

// RootPrior returns the root size prior.
func (m *BaseModel) RootPrior() prior.Prior {
	return m.rootPrior
}

// Cache returns the transition matrix cache. The cache is valid after
// a Likelihood call.
func (m *BaseModel) Cache() *bd.MatrixCache {
	return m.cache
}

// Name returns the model name.
func (m *BaseModel) Name() string {
	if len(m.lambdas) > 1 {
		return "MultiLambda"
	}
	return "Base"
}

// Copy returns an independent copy of the model sharing the input
// data.
func (m *BaseModel) Copy() optimize.Optimizable {
	var em *errmodel.ErrorModel
	if m.errModel != nil {
		em = m.errModel.Copy()
	}
	newM := NewBaseModel(m.t, m.fams, m.rootPrior,
		m.maxFamilySize, m.maxRootSize, em, m.estEpsilon)
	copy(newM.lambdas, m.lambdas)
	newM.epsilon = m.epsilon
	return newM
}

// update refreshes the rate categories and the matrix cache. It
// returns false when the current parameter values are invalid
// (saturated branches or impossible rates).
func (m *BaseModel) update() bool {
	if !m.dirty {
		return m.valid
	}
	m.dirty = false
	m.valid = false

	if m.prepare != nil {
		if err := m.prepare(); err != nil {
			log.Debugf("invalid parameters: %v", err)
			return false
		}
	}
	for _, l := range m.lambdas {
		if l <= 0 || math.IsNaN(l) {
			return false
		}
	}
	if m.estEpsilon {
		if m.epsilon < 0 || m.epsilon >= epsilonMax {
			return false
		}
		if err := m.errModel.SetEpsilon(m.epsilon); err != nil {
			return false
		}
	}

	lengths := m.t.BranchLengths()
	lambdaEff := make([]float64, 0, len(m.lambdas)*len(m.multipliers))
	for _, l := range m.lambdas {
		for _, mult := range m.multipliers {
			lambdaEff = append(lambdaEff, l*mult)
		}
	}
	// a candidate saturating any branch under any category is
	// rejected as a whole
	for _, l := range lambdaEff {
		for _, t := range lengths {
			if bd.IsSaturated(l, t) {
				log.Debugf("saturation at lambda=%v, t=%v", l, t)
				return false
			}
		}
	}
	m.cache.Precalculate(lambdaEff, lengths)
	m.valid = true
	return true
}

// lambdaFor returns the effective rate on the branch leading to a
// node under a given category multiplier.
func (m *BaseModel) lambdaFor(node *tree.Node, multiplier float64) float64 {
	return m.lambdas[node.Class] * multiplier
}

// Likelihood returns the total log-likelihood over all families. The
// per-family breakdown is available from FamilyStats afterwards.
func (m *BaseModel) Likelihood() float64 {
	if !m.update() {
		return math.Inf(-1)
	}

	stats := make([]FamilyStats, len(m.fams))
	nWorkers := runtime.GOMAXPROCS(0)
	tasks := make(chan int, len(m.fams))
	var wg sync.WaitGroup
	for w := 0; w < nWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := m.newPruner()
			for i := range tasks {
				stats[i] = m.familyStats(p, m.fams[i])
			}
		}()
	}
	for i := range m.fams {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	m.stats = stats
	res := 0.0
	for i := range stats {
		if math.IsInf(stats[i].LnL, -1) || math.IsNaN(stats[i].LnL) {
			return math.Inf(-1)
		}
		res += stats[i].LnL
	}
	return res
}

// FamilyStats returns the per-family results of the last Likelihood
// call.
func (m *BaseModel) FamilyStats() []FamilyStats {
	return m.stats
}

// FamilyLnLs computes log-likelihoods of arbitrary families under the
// current parameters. The model's own family set and stats are left
// untouched.
func (m *BaseModel) FamilyLnLs(fams []*family.Family) ([]float64, error) {
	if !m.update() {
		return nil, errors.New("invalid parameter values")
	}
	res := make([]float64, len(fams))
	nWorkers := runtime.GOMAXPROCS(0)
	tasks := make(chan int, len(fams))
	var wg sync.WaitGroup
	for w := 0; w < nWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := m.newPruner()
			for i := range tasks {
				res[i] = m.familyStats(p, fams[i]).LnL
			}
		}()
	}
	for i := range fams {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	return res, nil
}

// familyStats computes per-category likelihoods, the combined family
// log-likelihood and category posteriors for one family.
func (m *BaseModel) familyStats(p *pruner, fam *family.Family) FamilyStats {
	k := len(m.multipliers)
	fs := FamilyStats{
		ID:          fam.ID,
		CategoryLnL: make([]float64, k),
		Posterior:   make([]float64, k),
		Multipliers: m.multipliers,
		PValue:      math.NaN(),
	}

	best := math.Inf(-1)
	for i, mult := range m.multipliers {
		v, err := p.rootVector(fam, mult)
		if err != nil {
			log.Errorf("family %s: %v", fam.ID, err)
			fs.LnL = math.Inf(-1)
			return fs
		}
		lnL, rootSize := familyLnL(v, m.rootPrior, m.rootBound())
		fs.CategoryLnL[i] = lnL
		if lnL > best {
			best = lnL
			fs.RootSize = rootSize
		}
	}

	// combine categories on log scale
	if math.IsInf(best, -1) {
		fs.LnL = math.Inf(-1)
		return fs
	}
	sum := 0.0
	for i := range fs.CategoryLnL {
		sum += m.weights[i] * math.Exp(fs.CategoryLnL[i]-best)
	}
	fs.LnL = best + math.Log(sum)
	for i := range fs.Posterior {
		fs.Posterior[i] = m.weights[i] * math.Exp(fs.CategoryLnL[i]-fs.LnL)
	}
	return fs
}

// rootBound returns the largest root size evaluated.
func (m *BaseModel) rootBound() int {
	if m.maxRootSize < m.maxFamilySize {
		return m.maxRootSize
	}
	return m.maxFamilySize
}

// familyLnL combines a root likelihood vector with the root prior and
// returns the log-likelihood of the best root size.
func familyLnL(v []float64, pr prior.Prior, maxRoot int) (float64, int) {
	best := math.Inf(-1)
	bestSize := 0
	for s := 1; s <= maxRoot && s < len(v); s++ {
		p := pr.Compute(s)
		if p <= 0 || v[s] <= 0 {
			continue
		}
		if l := math.Log(v[s]) + math.Log(p); l > best {
			best = l
			bestSize = s
		}
	}
	return best, bestSize
}
