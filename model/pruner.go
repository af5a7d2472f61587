package model

import (
	"fmt"

	"github.com/evolbio/famex/family"
	"github.com/evolbio/famex/tree"
)

// pruner computes family likelihood vectors by the pruning algorithm.
// Every worker keeps its own pruner so the per-node buffers are never
// shared.
type pruner struct {
	m    *BaseModel
	vecs [][]float64
	tmp  []float64
}

func (m *BaseModel) newPruner() *pruner {
	n := m.maxFamilySize
	p := &pruner{
		m:    m,
		vecs: make([][]float64, m.t.NNodes()),
		tmp:  make([]float64, n+1),
	}
	for i := range p.vecs {
		p.vecs[i] = make([]float64, n+1)
	}
	return p
}

// rootVector computes the root likelihood vector for a family under a
// rate multiplier: entry s is the probability of the observed leaf
// counts given root size s.
func (p *pruner) rootVector(fam *family.Family, multiplier float64) ([]float64, error) {
	n := p.m.maxFamilySize
	for leaf := range p.m.t.Terminals() {
		obs, err := fam.Count(leaf.Name)
		if err != nil {
			return nil, err
		}
		if obs > n {
			return nil, fmt.Errorf("count %d for %s exceeds the size bound %d",
				obs, leaf.Name, n)
		}
		v := p.vecs[leaf.Id]
		if p.m.errModel != nil {
			for k := 0; k <= n; k++ {
				v[k] = p.m.errModel.ObservationProb(k, obs)
			}
		} else {
			for k := range v {
				v[k] = 0
			}
			v[obs] = 1
		}
	}

	for _, node := range p.m.t.NodeOrder() {
		v := p.vecs[node.Id]
		for i := range v {
			v[i] = 1
		}
		for _, child := range node.ChildNodes() {
			p.applyBranch(child, multiplier)
			for i := range v {
				v[i] *= p.tmp[i]
			}
		}
	}
	return p.vecs[p.m.t.Node.Id], nil
}

// applyBranch multiplies the child vector by the transition matrix of
// the branch leading to the child, leaving the result in tmp.
func (p *pruner) applyBranch(child *tree.Node, multiplier float64) {
	m := p.m.cache.Get(p.m.lambdaFor(child, multiplier), child.BranchLength)
	m.Apply(p.tmp, p.vecs[child.Id])
}
