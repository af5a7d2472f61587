// Package sim implements forward simulation of gene families under
// the birth-death model and Monte-Carlo p-values.
package sim

import (
	"fmt"
	"math/rand"

	"github.com/op/go-logging"

	"github.com/evolbio/famex/bd"
	"github.com/evolbio/famex/errmodel"
	"github.com/evolbio/famex/family"
	"github.com/evolbio/famex/prior"
	"github.com/evolbio/famex/tree"
)

// log is the global logging variable.
var log = logging.MustGetLogger("sim")

// Simulator draws gene families by walking the tree from the root and
// sampling transitions from cached matrices.
type Simulator struct {
	t             *tree.Tree
	cache         *bd.MatrixCache
	lambdas       []float64
	errModel      *errmodel.ErrorModel
	maxFamilySize int
	rnd           *rand.Rand
	sizes         []int
}

// NewSimulator creates a simulator for a tree and per-class rates. An
// error model, if given, perturbs the realized leaf counts.
func NewSimulator(t *tree.Tree, lambdas []float64, maxFamilySize int,
	errModel *errmodel.ErrorModel, rnd *rand.Rand) (*Simulator, error) {
	if len(lambdas) != t.MaxClass()+1 {
		return nil, fmt.Errorf("expected %d rate values, got %d",
			t.MaxClass()+1, len(lambdas))
	}
	lengths := t.BranchLengths()
	for _, l := range lambdas {
		if l <= 0 {
			return nil, fmt.Errorf("invalid rate %v", l)
		}
		for _, bl := range lengths {
			if bd.IsSaturated(l, bl) {
				return nil, fmt.Errorf("rate %v saturates a branch of length %v", l, bl)
			}
		}
	}
	s := &Simulator{
		t:             t,
		cache:         bd.NewMatrixCache(maxFamilySize),
		lambdas:       lambdas,
		errModel:      errModel,
		maxFamilySize: maxFamilySize,
		rnd:           rnd,
		sizes:         make([]int, t.NNodes()),
	}
	s.cache.Precalculate(lambdas, lengths)
	return s, nil
}

// SimulateFamily draws one family starting from a given root size. A
// realized leaf count at or above the error model's largest size has
// no deviation row and is an error.
func (s *Simulator) SimulateFamily(id string, rootSize int) (*family.Family, error) {
	if rootSize > s.maxFamilySize {
		rootSize = s.maxFamilySize
	}
	s.sizes[s.t.Node.Id] = rootSize
	fam := family.NewFamily(id, "")
	for node := range s.t.Walker(nil) {
		if !node.IsRoot() {
			parent := s.sizes[node.Parent.Id]
			m := s.cache.Get(s.lambdas[node.Class], node.BranchLength)
			s.sizes[node.Id] = s.drawTransition(m, parent)
		}
		if node.IsTerminal() {
			count := s.sizes[node.Id]
			if s.errModel != nil {
				if count >= s.errModel.MaxCount() {
					return nil, fmt.Errorf("count %d for %s exceeds the error model support (max %d)",
						count, node.Name, s.errModel.MaxCount())
				}
				count = s.perturb(count)
			}
			fam.SetCount(node.Name, count)
		}
	}
	return fam, nil
}

// drawTransition samples a child size from row s of the transition
// matrix, capped at the size bound.
func (s *Simulator) drawTransition(m *bd.Matrix, parent int) int {
	u := s.rnd.Float64()
	cum := 0.0
	for c := 0; c <= s.maxFamilySize; c++ {
		cum += m.At(parent, c)
		if cum > u {
			return c
		}
	}
	// the row mass is truncated at the bound
	return s.maxFamilySize
}

// perturb draws an observed count from the error distribution around
// the true count.
func (s *Simulator) perturb(count int) int {
	devs := s.errModel.Deviations()
	row := s.errModel.Distribution(count)
	u := s.rnd.Float64()
	cum := 0.0
	for i, d := range devs {
		cum += row[i]
		if cum > u {
			return count + d
		}
	}
	return count
}

// Simulate draws n families with root sizes sampled from a root
// distribution.
func (s *Simulator) Simulate(rd *prior.RootDistribution, n int) ([]*family.Family, error) {
	fams := make([]*family.Family, n)
	for i := range fams {
		root := rd.SelectRandomly(s.rnd)
		fam, err := s.SimulateFamily(fmt.Sprintf("simfam%d", i), root)
		if err != nil {
			return nil, err
		}
		fams[i] = fam
	}
	log.Noticef("Simulated %d families", n)
	return fams, nil
}
