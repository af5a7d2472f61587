package model

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/evolbio/famex/dist"
	"github.com/evolbio/famex/family"
	"github.com/evolbio/famex/optimize"
	"github.com/evolbio/famex/tree"
)

// initAttempts is the number of random starting points tried before
// giving up.
const initAttempts = 100

// Starting alpha values are drawn from a normal distribution around a
// moderate shape.
const (
	alphaGuessMean   = 1.0
	alphaGuessStddev = 0.3
)

// Initializable is an optimizable model which can draw a random
// starting point.
type Initializable interface {
	optimize.Optimizable
	RandomInit(rnd *rand.Rand)
}

// RandomInit draws random starting rates. Rates are uniform on
// (0, 1/longestBranch) so that no branch starts saturated.
func (m *BaseModel) RandomInit(rnd *rand.Rand) {
	m.randomRates(rnd, 1)
}

// randomRates draws each rate uniform on
// (0, 1/(longestBranch*maxMultiplier)).
func (m *BaseModel) randomRates(rnd *rand.Rand, maxMultiplier float64) {
	scale := 1 / (m.t.LongestBranch() * maxMultiplier)
	for i := range m.lambdas {
		m.lambdas[i] = rnd.Float64() * scale
	}
	m.dirty = true
}

// RandomInit draws a random gamma shape and random starting rates
// scaled so that the fastest category does not start saturated.
func (m *GammaModel) RandomInit(rnd *rand.Rand) {
	if m.estAlpha {
		a := alphaGuessMean + alphaGuessStddev*rnd.NormFloat64()
		if a < alphaMin {
			a = alphaMin
		}
		m.alpha = a
	}
	mults := dist.GammaMultipliers(m.alpha, m.k)
	m.randomRates(rnd, mults[len(mults)-1])
}

// InitializationError reports that no usable starting point was found.
// It carries the families with the largest size differentials, the
// usual culprits.
type InitializationError struct {
	Suspects []*family.Family
}

func (e *InitializationError) Error() string {
	var sb strings.Builder
	sb.WriteString("failed to find any reasonable starting values\n")
	sb.WriteString("families with the largest size differentials, " +
		"consider removing them:\n")
	for _, fam := range e.Suspects {
		fmt.Fprintf(&sb, "%s: %d\n", fam.ID, fam.SizeDifferential())
	}
	return sb.String()
}

// Initialize draws random starting points until the model likelihood
// is finite.
func Initialize(m Initializable, rnd *rand.Rand, fams []*family.Family) error {
	for i := 0; i < initAttempts; i++ {
		m.RandomInit(rnd)
		if l := m.Likelihood(); !math.IsInf(l, -1) && !math.IsNaN(l) {
			log.Infof("Initial lnL=%v (attempt %d)", l, i+1)
			return nil
		}
	}
	return &InitializationError{
		Suspects: family.LargestDifferentials(fams, 20),
	}
}

// ExistsAtRoot reports whether a family was present in the root
// ancestor under parsimony: a leaf carries the family if its count is
// positive, an internal node carries it only if all of its children
// do.
func ExistsAtRoot(t *tree.Tree, fam *family.Family) bool {
	exists := make([]bool, t.NNodes())
	for _, node := range t.ReverseLevelOrder() {
		if node.IsTerminal() {
			count, err := fam.Count(node.Name)
			exists[node.Id] = err == nil && count > 0
			continue
		}
		all := true
		for _, child := range node.ChildNodes() {
			if !exists[child.Id] {
				all = false
				break
			}
		}
		exists[node.Id] = all
	}
	return exists[t.Node.Id]
}

// FamilyRate is a per-family rate estimate.
type FamilyRate struct {
	ID     string
	Lambda float64
	LnL    float64
	// Skipped marks families absent from the root ancestor; their
	// rate cannot be estimated.
	Skipped bool
}

// EstimatePerFamilyRates fits a separate rate to every family present
// at the root. Families absent at the root are reported as skipped.
func EstimatePerFamilyRates(proto *BaseModel, rnd *rand.Rand, iterations int) ([]FamilyRate, error) {
	res := make([]FamilyRate, 0, len(proto.fams))
	for _, fam := range proto.fams {
		if !ExistsAtRoot(proto.t, fam) {
			log.Warningf("Skipping family %s: not present at the root", fam.ID)
			res = append(res, FamilyRate{ID: fam.ID, Skipped: true})
			continue
		}
		m := NewBaseModel(proto.t, []*family.Family{fam}, proto.rootPrior,
			proto.maxFamilySize, proto.maxRootSize, proto.errModel, false)
		if err := Initialize(m, rnd, m.fams); err != nil {
			return nil, fmt.Errorf("family %s: %v", fam.ID, err)
		}
		fms := optimize.NewFMS(optimize.StrategyStandard)
		fms.Quiet = true
		fms.SetOptimizable(m)
		fms.Run(iterations)
		res = append(res, FamilyRate{
			ID:     fam.ID,
			Lambda: fms.GetMaxLParameters()[0],
			LnL:    fms.GetMaxL(),
		})
	}
	return res, nil
}
