package model

import (
	"fmt"
	"math"

	"github.com/evolbio/famex/dist"
	"github.com/evolbio/famex/errmodel"
	"github.com/evolbio/famex/family"
	"github.com/evolbio/famex/optimize"
	"github.com/evolbio/famex/prior"
	"github.com/evolbio/famex/tree"
)

const (
	alphaMin = 1e-3
	alphaMax = 1e3
)

// GammaModel extends the base model with gamma-distributed rate
// variation across families: K discrete categories with equal weights
// and mean-one multipliers derived from the shape parameter alpha.
type GammaModel struct {
	*BaseModel
	alpha    float64
	k        int
	estAlpha bool
}

// NewGammaModel creates a gamma rate-variation model with k
// categories. With estAlpha false the shape parameter stays fixed at
// the given value.
func NewGammaModel(t *tree.Tree, fams []*family.Family, rootPrior prior.Prior,
	maxFamilySize, maxRootSize int,
	errModel *errmodel.ErrorModel, estEpsilon bool,
	k int, alpha float64, estAlpha bool) *GammaModel {
	if k < 2 {
		panic("gamma model requires at least two rate categories")
	}
	m := &GammaModel{
		BaseModel: NewBaseModel(t, fams, rootPrior,
			maxFamilySize, maxRootSize, errModel, estEpsilon),
		alpha:    alpha,
		k:        k,
		estAlpha: estAlpha,
	}
	m.prepare = m.refreshCategories
	if estAlpha {
		par := optimize.NewBasicFloatParameter(&m.alpha, "alpha")
		par.SetMin(alphaMin)
		par.SetMax(alphaMax)
		par.SetOnChange(m.expectRecalc)
		m.parameters.Append(par)
	}
	return m
}

// Alpha returns the gamma shape parameter.
func (m *GammaModel) Alpha() float64 {
	return m.alpha
}

// SetAlpha sets a fixed shape parameter.
func (m *GammaModel) SetAlpha(alpha float64) {
	m.alpha = alpha
	m.dirty = true
}

// NCategories returns the number of rate categories.
func (m *GammaModel) NCategories() int {
	return m.k
}

// Name returns the model name.
func (m *GammaModel) Name() string {
	return "Gamma"
}

// refreshCategories recomputes the category multipliers from alpha.
func (m *GammaModel) refreshCategories() error {
	if m.alpha <= 0 || math.IsNaN(m.alpha) {
		return fmt.Errorf("invalid alpha %v", m.alpha)
	}
	m.multipliers = dist.GammaMultipliers(m.alpha, m.k)
	m.weights = make([]float64, m.k)
	for i := range m.weights {
		m.weights[i] = 1 / float64(m.k)
	}
	return nil
}

// Copy returns an independent copy of the model sharing the input
// data.
func (m *GammaModel) Copy() optimize.Optimizable {
	var em *errmodel.ErrorModel
	if m.errModel != nil {
		em = m.errModel.Copy()
	}
	newM := NewGammaModel(m.t, m.fams, m.rootPrior,
		m.maxFamilySize, m.maxRootSize, em, m.estEpsilon,
		m.k, m.alpha, m.estAlpha)
	copy(newM.lambdas, m.lambdas)
	newM.epsilon = m.epsilon
	return newM
}
