package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/evolbio/famex/family"
	"github.com/evolbio/famex/model"
)

// DefaultSims is the usual number of null simulations per root size.
const DefaultSims = 1000

// PValues computes Monte-Carlo p-values for every family of a fitted
// model: nSims null families are simulated per observed
// maximum-likelihood root size and the p-value is the proportion of
// simulated log-likelihoods at or above the observed one.
func PValues(m *model.BaseModel, nSims int, rnd *rand.Rand) ([]float64, error) {
	if l := m.Likelihood(); math.IsInf(l, -1) || math.IsNaN(l) {
		return nil, errors.New("cannot compute p-values under an invalid model")
	}
	stats := m.FamilyStats()

	s, err := NewSimulator(m.Tree(), m.Lambdas(), m.MaxFamilySize(), nil, rnd)
	if err != nil {
		return nil, err
	}

	// empirical log-likelihood distribution per root size
	byRoot := make(map[int][]float64)
	for _, fs := range stats {
		byRoot[fs.RootSize] = nil
	}
	for root := range byRoot {
		fams := s.simulateAtRoot(root, nSims)
		lnls, err := m.FamilyLnLs(fams)
		if err != nil {
			return nil, err
		}
		sort.Float64s(lnls)
		byRoot[root] = lnls
		log.Debugf("Root size %d: %d null log-likelihoods", root, len(lnls))
	}

	res := make([]float64, len(stats))
	for i, fs := range stats {
		lnls := byRoot[fs.RootSize]
		idx := sort.SearchFloat64s(lnls, fs.LnL)
		res[i] = float64(len(lnls)-idx) / float64(len(lnls))
	}
	return res, nil
}

// simulateAtRoot draws n null families with a fixed root size. The
// null simulator carries no error model, so simulation cannot fail.
func (s *Simulator) simulateAtRoot(root, n int) []*family.Family {
	fams := make([]*family.Family, n)
	for i := range fams {
		fams[i], _ = s.SimulateFamily(fmt.Sprintf("null%d", i), root)
	}
	return fams
}
