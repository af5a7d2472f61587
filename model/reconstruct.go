package model

import (
	"errors"
	"math"

	"github.com/evolbio/famex/family"
	"github.com/evolbio/famex/tree"
)

// Reconstruction holds maximum-likelihood ancestral family sizes for
// one family, indexed by node id. Changes classifies every node
// against its parent: 'i' for increase, 'd' for decrease, 'c' for
// constant.
type Reconstruction struct {
	FamilyID string
	Sizes    []int
	Changes  []byte
}

// Change returns the change label of a node.
func (r *Reconstruction) Change(node *tree.Node) byte {
	return r.Changes[node.Id]
}

// reconstructor runs the max-product analogue of the pruning
// algorithm and backtracks the most likely ancestral sizes.
type reconstructor struct {
	m *BaseModel
	// l[v][i] is the log-likelihood of the best labelling of the
	// subtree under v given parent state i; c[v][i] is the state of v
	// realizing it.
	l [][]float64
	c [][]int
	// prodLog[j] accumulates children contributions for state j.
	prodLog []float64
}

func (m *BaseModel) newReconstructor() *reconstructor {
	n := m.maxFamilySize
	r := &reconstructor{
		m:       m,
		l:       make([][]float64, m.t.NNodes()),
		c:       make([][]int, m.t.NNodes()),
		prodLog: make([]float64, n+1),
	}
	for i := range r.l {
		r.l[i] = make([]float64, n+1)
		r.c[i] = make([]int, n+1)
	}
	return r
}

// Reconstruct computes ancestral family sizes for every family under
// the current parameter values. With rate variation the per-category
// reconstructions are averaged with posterior weights.
func (m *BaseModel) Reconstruct() ([]*Reconstruction, error) {
	if m.dirty || m.stats == nil {
		if l := m.Likelihood(); math.IsInf(l, -1) {
			return nil, errors.New("cannot reconstruct under an invalid model")
		}
	}

	r := m.newReconstructor()
	res := make([]*Reconstruction, len(m.fams))
	for fi, fam := range m.fams {
		sizes := make([]int, m.t.NNodes())
		if len(m.multipliers) == 1 {
			r.backtrack(fam, m.multipliers[0], sizes)
		} else {
			// posterior-weighted average over rate categories
			catSizes := make([]int, m.t.NNodes())
			weighted := make([]float64, m.t.NNodes())
			for ci, mult := range m.multipliers {
				r.backtrack(fam, mult, catSizes)
				w := m.stats[fi].Posterior[ci]
				for i, s := range catSizes {
					weighted[i] += w * float64(s)
				}
			}
			for i, w := range weighted {
				sizes[i] = int(math.Round(w))
			}
		}
		res[fi] = &Reconstruction{
			FamilyID: fam.ID,
			Sizes:    sizes,
			Changes:  changeLabels(m.t, sizes),
		}
	}
	return res, nil
}

// backtrack fills sizes with the most likely ancestral states of one
// family under one rate multiplier.
func (r *reconstructor) backtrack(fam *family.Family, multiplier float64, sizes []int) {
	n := r.m.maxFamilySize

	for leaf := range r.m.t.Terminals() {
		obs, err := fam.Count(leaf.Name)
		if err != nil {
			// Likelihood already validated coverage
			panic(err)
		}
		mtx := r.m.cache.Get(r.m.lambdaFor(leaf, multiplier), leaf.BranchLength)
		l := r.l[leaf.Id]
		c := r.c[leaf.Id]
		for i := 0; i <= n; i++ {
			l[i] = math.Log(mtx.At(i, obs))
			c[i] = obs
		}
	}

	for _, node := range r.m.t.NodeOrder() {
		for j := range r.prodLog {
			r.prodLog[j] = 0
		}
		for _, child := range node.ChildNodes() {
			cl := r.l[child.Id]
			for j := range r.prodLog {
				r.prodLog[j] += cl[j]
			}
		}

		if node.IsRoot() {
			best := math.Inf(-1)
			bestState := 0
			for j := 1; j <= r.m.rootBound(); j++ {
				p := r.m.rootPrior.Compute(j)
				if p <= 0 {
					continue
				}
				if v := r.prodLog[j] + math.Log(p); v > best {
					best = v
					bestState = j
				}
			}
			if math.IsInf(best, -1) {
				log.Warningf("Family %s: all root states have zero likelihood", fam.ID)
			}
			sizes[node.Id] = bestState
			continue
		}

		mtx := r.m.cache.Get(r.m.lambdaFor(node, multiplier), node.BranchLength)
		l := r.l[node.Id]
		c := r.c[node.Id]
		for i := 0; i <= n; i++ {
			best := math.Inf(-1)
			bestState := 0
			for j := 0; j <= n; j++ {
				v := r.prodLog[j] + math.Log(mtx.At(i, j))
				if v > best {
					best = v
					bestState = j
				}
			}
			l[i] = best
			c[i] = bestState
		}
	}

	// pre-order pass assigns states from the root down
	for node := range r.m.t.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		sizes[node.Id] = r.c[node.Id][sizes[node.Parent.Id]]
	}
}

// changeLabels classifies every node size against its parent.
func changeLabels(t *tree.Tree, sizes []int) []byte {
	labels := make([]byte, len(sizes))
	for node := range t.Walker(nil) {
		if node.IsRoot() {
			labels[node.Id] = 'c'
			continue
		}
		switch {
		case sizes[node.Id] > sizes[node.Parent.Id]:
			labels[node.Id] = 'i'
		case sizes[node.Id] < sizes[node.Parent.Id]:
			labels[node.Id] = 'd'
		default:
			labels[node.Id] = 'c'
		}
	}
	return labels
}
